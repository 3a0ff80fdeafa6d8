package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// MovementHandler serves the movement ledger.
type MovementHandler struct {
	*BaseHandler
	ledger *ledger.Service
}

// NewMovementHandler creates a movement handler.
func NewMovementHandler(base *BaseHandler, ledgerSvc *ledger.Service) *MovementHandler {
	return &MovementHandler{
		BaseHandler: base,
		ledger:      ledgerSvc,
	}
}

// Post handles POST /api/v1/movements
func (h *MovementHandler) Post(c *gin.Context) {
	var req dto.PostMovementRequest
	if !h.BindJSON(c, &req) {
		return
	}

	m, err := req.ToMovement()
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid movement").WithDetail("error", err.Error()))
		return
	}

	movementID, err := h.ledger.Post(c.Request.Context(), m)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, movementID)
}

// History handles GET /api/v1/movements?organizationId=&productId=
func (h *MovementHandler) History(c *gin.Context) {
	org, ok := h.RequireOrgQuery(c)
	if !ok {
		return
	}
	productID, ok := h.ParseIDQuery(c, "productId")
	if !ok {
		return
	}
	if id.IsNil(productID) {
		h.Error(c, apperror.NewValidation("productId is required"))
		return
	}

	f := ledger.HistoryFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	batchID, ok := h.ParseIDQuery(c, "batchId")
	if !ok {
		return
	}
	if !id.IsNil(batchID) {
		f.BatchID = &batchID
	}
	if k := c.Query("kind"); k != "" {
		kind := ledger.Kind(k)
		f.Kind = &kind
	}
	if from, okDate := h.parseDateQuery(c, "from"); !okDate {
		return
	} else if from != nil {
		f.FromDate = from
	}
	if to, okDate := h.parseDateQuery(c, "to"); !okDate {
		return
	} else if to != nil {
		f.ToDate = to
	}

	movements, err := h.ledger.History(c.Request.Context(), org, productID, f)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: movements, Count: len(movements), Limit: f.Limit, Offset: f.Offset})
}

// Turnover handles GET /api/v1/movements/turnover?organizationId=&productId=&from=&to=
func (h *MovementHandler) Turnover(c *gin.Context) {
	org, ok := h.RequireOrgQuery(c)
	if !ok {
		return
	}
	productID, ok := h.ParseIDQuery(c, "productId")
	if !ok {
		return
	}
	if id.IsNil(productID) {
		h.Error(c, apperror.NewValidation("productId is required"))
		return
	}

	from, ok := h.parseDateQuery(c, "from")
	if !ok {
		return
	}
	to, ok := h.parseDateQuery(c, "to")
	if !ok {
		return
	}

	now := time.Now().UTC()
	fromDate := now.AddDate(0, -1, 0)
	toDate := now
	if from != nil {
		fromDate = *from
	}
	if to != nil {
		toDate = *to
	}

	t, err := h.ledger.GetTurnover(c.Request.Context(), org, productID, fromDate, toDate)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, t)
}

// WriteOffExpired handles POST /api/v1/movements/write-off-expired
func (h *MovementHandler) WriteOffExpired(c *gin.Context) {
	var req dto.WriteOffExpiredRequest
	if !h.BindJSON(c, &req) {
		return
	}

	cutoff := time.Now().UTC()
	if req.Cutoff != nil {
		cutoff = *req.Cutoff
	}

	runID := id.New()
	count, err := h.ledger.WriteOffExpired(c.Request.Context(), req.OrganizationID, cutoff, runID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.WriteOffExpiredResponse{
		RunID:      runID.String(),
		WrittenOff: count,
	})
}

// parseDateQuery parses an RFC3339 date query parameter. Missing value
// returns (nil, true).
func (h *MovementHandler) parseDateQuery(c *gin.Context, key string) (*time.Time, bool) {
	val := c.Query(key)
	if val == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid date").
			WithDetail("param", key).
			WithDetail("value", val))
		return nil, false
	}
	return &t, true
}
