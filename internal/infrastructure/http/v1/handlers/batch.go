package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/batch"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// BatchHandler serves the batch registry.
type BatchHandler struct {
	*BaseHandler
	registry *batch.Registry
	ledger   *ledger.Service
}

// NewBatchHandler creates a batch handler.
func NewBatchHandler(base *BaseHandler, registry *batch.Registry, ledgerSvc *ledger.Service) *BatchHandler {
	return &BatchHandler{
		BaseHandler: base,
		registry:    registry,
		ledger:      ledgerSvc,
	}
}

// List handles GET /api/v1/batches?productId=|purchaseId=
// Exactly one of productId (with organizationId) or purchaseId is required.
func (h *BatchHandler) List(c *gin.Context) {
	purchaseID, ok := h.ParseIDQuery(c, "purchaseId")
	if !ok {
		return
	}
	productID, ok := h.ParseIDQuery(c, "productId")
	if !ok {
		return
	}

	ctx := c.Request.Context()

	switch {
	case !id.IsNil(purchaseID):
		batches, err := h.registry.ListByPurchase(ctx, purchaseID)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, dto.ListResponse{Items: batches, Count: len(batches)})

	case !id.IsNil(productID):
		org, ok := h.RequireOrgQuery(c)
		if !ok {
			return
		}
		f := batch.ListFilter{
			ExcludeZero: c.Query("excludeZero") == "true",
			Limit:       h.ParseIntQuery(c, "limit", 50),
			Offset:      h.ParseIntQuery(c, "offset", 0),
		}
		if s := c.Query("status"); s != "" {
			status := batch.Status(s)
			f.Status = &status
		}
		batches, err := h.registry.ListByProduct(ctx, org, productID, f)
		if err != nil {
			h.Error(c, err)
			return
		}
		h.OK(c, dto.ListResponse{Items: batches, Count: len(batches), Limit: f.Limit, Offset: f.Offset})

	default:
		h.Error(c, apperror.NewValidation("productId or purchaseId is required"))
	}
}

// Get handles GET /api/v1/batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
	batchID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	b, err := h.registry.GetByID(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, b)
}

// Movements handles GET /api/v1/batches/:id/movements
func (h *BatchHandler) Movements(c *gin.Context) {
	batchID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	movements, err := h.ledger.ListByBatch(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: movements, Count: len(movements)})
}

// Reconciliation handles GET /api/v1/batches/:id/reconciliation
func (h *BatchHandler) Reconciliation(c *gin.Context) {
	batchID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	rec, err := h.ledger.Reconcile(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, rec)
}

// Hold handles POST /api/v1/batches/:id/hold
func (h *BatchHandler) Hold(c *gin.Context) {
	batchID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.registry.Hold(c.Request.Context(), batchID); err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.SuccessResponse{Success: true})
}

// Release handles POST /api/v1/batches/:id/release
func (h *BatchHandler) Release(c *gin.Context) {
	batchID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.registry.Release(c.Request.Context(), batchID); err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.SuccessResponse{Success: true})
}
