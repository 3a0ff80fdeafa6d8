package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/domain/allocation"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// AllocationHandler serves allocation planning.
type AllocationHandler struct {
	*BaseHandler
	engine *allocation.Engine
}

// NewAllocationHandler creates an allocation handler.
func NewAllocationHandler(base *BaseHandler, engine *allocation.Engine) *AllocationHandler {
	return &AllocationHandler{
		BaseHandler: base,
		engine:      engine,
	}
}

// Allocate handles POST /api/v1/allocations
// Returns a plan; nothing is deducted until the caller posts movements.
func (h *AllocationHandler) Allocate(c *gin.Context) {
	var req dto.AllocateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	productID, err := dto.ParseID(req.ProductID, "productId")
	if err != nil {
		h.Error(c, err)
		return
	}

	plan, err := h.engine.Allocate(c.Request.Context(), req.OrganizationID, productID, req.Quantity)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, plan)
}
