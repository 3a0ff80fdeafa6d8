// Package batch provides the batch registry: one record per receipt lot,
// tracking received and available quantity per product.
package batch

import (
	"context"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Status of a batch lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusExhausted Status = "exhausted"
	StatusExpired   Status = "expired"
	StatusHeld      Status = "held"
)

// Default metadata applied when upstream sources omit dates.
const (
	DefaultExpiryYears = 2
	DefaultMfgLagDays  = 30
)

// Batch is one receipt lot of one product. Created exactly once at receipt
// time; quantity_available is mutated only through ledger postings; rows are
// never deleted, only marked exhausted or expired.
type Batch struct {
	entity.BaseDocument

	// Number is the batch identifier, unique per product within an organization
	Number string `db:"number" json:"number"`

	OrganizationID string `db:"organization_id" json:"organizationId"`
	ProductID      id.ID  `db:"product_id" json:"productId"`

	// PurchaseID references the purchase this lot was received against
	PurchaseID id.ID `db:"purchase_id" json:"purchaseId"`

	MfgDate    time.Time `db:"mfg_date" json:"mfgDate"`
	ExpiryDate time.Time `db:"expiry_date" json:"expiryDate"`

	QuantityReceived  types.Quantity `db:"quantity_received" json:"quantityReceived"`
	QuantityAvailable types.Quantity `db:"quantity_available" json:"quantityAvailable"`

	UnitCost  types.Money `db:"unit_cost" json:"unitCost"`
	UnitPrice types.Money `db:"unit_price" json:"unitPrice"`

	Status Status `db:"status" json:"status"`
}

// Validate implements entity.Validatable.
func (b *Batch) Validate(ctx context.Context) error {
	if b.OrganizationID == "" {
		return apperror.NewValidation("organization is required").
			WithDetail("field", "organizationId")
	}
	if id.IsNil(b.ProductID) {
		return apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if b.Number == "" {
		return apperror.NewValidation("batch number is required").
			WithDetail("field", "number")
	}
	if !b.QuantityReceived.IsPositive() {
		return apperror.NewValidation("received quantity must be positive").
			WithDetail("field", "quantityReceived").
			WithDetail("value", b.QuantityReceived.Float64())
	}
	if b.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost must not be negative").
			WithDetail("field", "unitCost")
	}
	if b.UnitPrice.IsNegative() {
		return apperror.NewValidation("unit price must not be negative").
			WithDetail("field", "unitPrice")
	}
	if !b.MfgDate.IsZero() && !b.ExpiryDate.IsZero() && b.ExpiryDate.Before(b.MfgDate) {
		return apperror.NewValidation("expiry date must not precede manufacturing date").
			WithDetail("mfgDate", b.MfgDate).
			WithDetail("expiryDate", b.ExpiryDate)
	}
	return nil
}

// IsExpired reports whether the batch's expiry has passed at the given time.
func (b *Batch) IsExpired(at time.Time) bool {
	return !b.ExpiryDate.IsZero() && b.ExpiryDate.Before(at)
}

// statusAfterDelta derives the lifecycle status from the new available
// quantity. Held and expired are sticky: balance changes never resurrect them.
func statusAfterDelta(current Status, available types.Quantity) Status {
	if current == StatusHeld || current == StatusExpired {
		return current
	}
	if available.IsZero() {
		return StatusExhausted
	}
	return StatusActive
}
