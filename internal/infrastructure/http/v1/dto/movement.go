package dto

import (
	"time"

	"lotledger/internal/core/types"
	"lotledger/internal/domain/ledger"
)

// PostMovementRequest posts a single ledger movement.
type PostMovementRequest struct {
	OrganizationID string         `json:"organizationId" binding:"required"`
	BatchID        string         `json:"batchId" binding:"required"`
	ProductID      string         `json:"productId" binding:"required"`
	Direction      string         `json:"direction" binding:"required"`
	Kind           string         `json:"kind" binding:"required"`
	Quantity       types.Quantity `json:"quantity"`
	EventDate      *time.Time     `json:"eventDate,omitempty"`
	ReferenceType  string         `json:"referenceType" binding:"required"`
	ReferenceID    string         `json:"referenceId" binding:"required"`
}

// ToMovement converts the request to a domain movement.
func (r *PostMovementRequest) ToMovement() (*ledger.Movement, error) {
	batchID, err := ParseID(r.BatchID, "batchId")
	if err != nil {
		return nil, err
	}
	productID, err := ParseID(r.ProductID, "productId")
	if err != nil {
		return nil, err
	}
	referenceID, err := ParseID(r.ReferenceID, "referenceId")
	if err != nil {
		return nil, err
	}

	m := &ledger.Movement{
		OrganizationID: r.OrganizationID,
		BatchID:        batchID,
		ProductID:      productID,
		Direction:      ledger.Direction(r.Direction),
		Kind:           ledger.Kind(r.Kind),
		Quantity:       r.Quantity,
		ReferenceType:  r.ReferenceType,
		ReferenceID:    referenceID,
	}
	if r.EventDate != nil {
		m.EventDate = *r.EventDate
	}

	return m, nil
}

// WriteOffExpiredRequest runs an expiry write-off for an organization.
type WriteOffExpiredRequest struct {
	OrganizationID string     `json:"organizationId" binding:"required"`
	Cutoff         *time.Time `json:"cutoff,omitempty"`
}

// WriteOffExpiredResponse reports the write-off run outcome.
type WriteOffExpiredResponse struct {
	RunID      string `json:"runId"`
	WrittenOff int    `json:"writtenOff"`
}
