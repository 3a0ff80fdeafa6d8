package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/domain/purchase"
	"lotledger/internal/domain/receipt"
	"lotledger/internal/infrastructure/http/v1/dto"
	"lotledger/internal/infrastructure/storage/postgres"
)

// AuditReader reads the audit trail of an entity.
type AuditReader interface {
	GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]postgres.AuditEntry, error)
}

// PurchaseHandler serves purchase orders and their receipts.
type PurchaseHandler struct {
	*BaseHandler
	purchases purchase.Repository
	processor *receipt.Processor
	txManager tx.Manager
	audit     AuditReader
}

// NewPurchaseHandler creates a purchase handler.
func NewPurchaseHandler(base *BaseHandler, purchases purchase.Repository, processor *receipt.Processor, txManager tx.Manager, audit AuditReader) *PurchaseHandler {
	return &PurchaseHandler{
		BaseHandler: base,
		purchases:   purchases,
		processor:   processor,
		txManager:   txManager,
		audit:       audit,
	}
}

// Create handles POST /api/v1/purchases
func (h *PurchaseHandler) Create(c *gin.Context) {
	var req dto.CreatePurchaseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p, err := req.ToPurchase()
	if err != nil {
		h.Error(c, err)
		return
	}
	if err := p.Validate(c.Request.Context()); err != nil {
		h.Error(c, err)
		return
	}

	err = h.txManager.RunInTransaction(c.Request.Context(), func(ctx context.Context) error {
		return h.purchases.Create(ctx, p)
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, p.ID)
}

// Get handles GET /api/v1/purchases/:id
func (h *PurchaseHandler) Get(c *gin.Context) {
	purchaseID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	p, err := h.purchases.GetByID(c.Request.Context(), purchaseID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, p)
}

// List handles GET /api/v1/purchases?organizationId=&status=&limit=&offset=
func (h *PurchaseHandler) List(c *gin.Context) {
	org, ok := h.RequireOrgQuery(c)
	if !ok {
		return
	}

	f := purchase.ListFilter{
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if s := c.Query("status"); s != "" {
		status := purchase.Status(s)
		f.Status = &status
	}

	purchases, err := h.purchases.List(c.Request.Context(), org, f)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{
		Items:  purchases,
		Count:  len(purchases),
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

// Receive handles POST /api/v1/purchases/:id/receive
func (h *PurchaseHandler) Receive(c *gin.Context) {
	purchaseID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var req dto.ReceiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	lines, err := req.ToLines()
	if err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.processor.Process(c.Request.Context(), purchaseID, lines)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, result)
}

// Audit handles GET /api/v1/purchases/:id/audit
// Returns the purchase's audit trail, newest first.
func (h *PurchaseHandler) Audit(c *gin.Context) {
	purchaseID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	entries, err := h.audit.GetEntityHistory(c.Request.Context(), "purchase", purchaseID, h.ParseIntQuery(c, "limit", 50))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.ListResponse{Items: entries, Count: len(entries)})
}
