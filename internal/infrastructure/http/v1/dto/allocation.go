package dto

import (
	"lotledger/internal/core/types"
)

// AllocateRequest plans an allocation for a requested quantity.
type AllocateRequest struct {
	OrganizationID string         `json:"organizationId" binding:"required"`
	ProductID      string         `json:"productId" binding:"required"`
	Quantity       types.Quantity `json:"quantity"`
}
