package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/domain/guard"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// FeatureHandler serves feature rule checks.
type FeatureHandler struct {
	*BaseHandler
	guard *guard.Guard
}

// NewFeatureHandler creates a feature handler.
func NewFeatureHandler(base *BaseHandler, g *guard.Guard) *FeatureHandler {
	return &FeatureHandler{
		BaseHandler: base,
		guard:       g,
	}
}

// Check handles POST /api/v1/features/check
// A passing check returns allowed=true; violations surface as structured
// FEATURE_VIOLATION errors with the rule name in details.
func (h *FeatureHandler) Check(c *gin.Context) {
	var req dto.CheckRuleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	if err := h.guard.Check(req.Rule, req.Context); err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.CheckRuleResponse{Rule: req.Rule, Allowed: true})
}

// Config handles GET /api/v1/features
func (h *FeatureHandler) Config(c *gin.Context) {
	h.OK(c, h.guard.Config())
}
