// Package ledger provides the append-only movement ledger. Every quantity
// change against a batch is one immutable movement row tagged with the
// business event that caused it.
package ledger

import (
	"context"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Direction of a movement relative to the batch balance.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Kind classifies the business event behind a movement.
type Kind string

const (
	KindPurchase       Kind = "purchase"
	KindSale           Kind = "sale"
	KindSalesReturn    Kind = "sales_return"
	KindPurchaseReturn Kind = "purchase_return"
	KindAdjustment     Kind = "adjustment"
	KindExpiryWriteoff Kind = "expiry_writeoff"
)

// validKinds gates input from external callers.
var validKinds = map[Kind]struct{}{
	KindPurchase:       {},
	KindSale:           {},
	KindSalesReturn:    {},
	KindPurchaseReturn: {},
	KindAdjustment:     {},
	KindExpiryWriteoff: {},
}

// IsValid reports whether k is a known movement kind.
func (k Kind) IsValid() bool {
	_, ok := validKinds[k]
	return ok
}

// Movement is one ledger entry. Immutable once written; corrections are new
// offsetting movements, never updates.
type Movement struct {
	ID id.ID `db:"id" json:"id"`

	OrganizationID string `db:"organization_id" json:"organizationId"`
	BatchID        id.ID  `db:"batch_id" json:"batchId"`
	ProductID      id.ID  `db:"product_id" json:"productId"`

	Direction Direction      `db:"direction" json:"direction"`
	Kind      Kind           `db:"kind" json:"kind"`
	Quantity  types.Quantity `db:"quantity" json:"quantity"`

	// EventDate is the business date of the causing document
	EventDate time.Time `db:"event_date" json:"eventDate"`

	// ReferenceType + ReferenceID identify the causing business document.
	// Together with Kind and BatchID they form the exactly-once key.
	ReferenceType string `db:"reference_type" json:"referenceType"`
	ReferenceID   id.ID  `db:"reference_id" json:"referenceId"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// SignedQuantity returns the quantity with direction applied: positive for
// in, negative for out.
func (m *Movement) SignedQuantity() types.Quantity {
	if m.Direction == DirectionOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// Validate implements entity.Validatable.
func (m *Movement) Validate(ctx context.Context) error {
	if m.OrganizationID == "" {
		return apperror.NewValidation("organization is required").
			WithDetail("field", "organizationId")
	}
	if id.IsNil(m.BatchID) {
		return apperror.NewValidation("batch is required").
			WithDetail("field", "batchId")
	}
	if id.IsNil(m.ProductID) {
		return apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if m.Direction != DirectionIn && m.Direction != DirectionOut {
		return apperror.NewValidation("direction must be in or out").
			WithDetail("field", "direction").
			WithDetail("value", string(m.Direction))
	}
	if !m.Kind.IsValid() {
		return apperror.NewValidation("unknown movement kind").
			WithDetail("field", "kind").
			WithDetail("value", string(m.Kind))
	}
	if !m.Quantity.IsPositive() {
		return apperror.NewValidation("movement quantity must be positive").
			WithDetail("field", "quantity").
			WithDetail("value", m.Quantity.Float64())
	}
	if m.ReferenceType == "" {
		return apperror.NewValidation("reference type is required").
			WithDetail("field", "referenceType")
	}
	if id.IsNil(m.ReferenceID) {
		return apperror.NewValidation("reference id is required").
			WithDetail("field", "referenceId")
	}
	return nil
}

// Reconciliation is the result of recomputing a batch balance from its
// movements and comparing to the stored value.
type Reconciliation struct {
	BatchID           id.ID          `json:"batchId"`
	QuantityReceived  types.Quantity `json:"quantityReceived"`
	StoredAvailable   types.Quantity `json:"storedAvailable"`
	ComputedAvailable types.Quantity `json:"computedAvailable"`
	MovementCount     int            `json:"movementCount"`
	Consistent        bool           `json:"consistent"`
}
