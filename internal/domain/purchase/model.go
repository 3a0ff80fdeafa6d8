// Package purchase holds the purchase order model consumed by receipt
// processing. The ledger core does not own purchase creation; it reads
// ordered quantities and writes back received quantities and statuses.
package purchase

import (
	"context"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Status of a purchase order.
type Status string

const (
	StatusOrdered           Status = "ordered"
	StatusPartiallyReceived Status = "partially_received"
	StatusReceived          Status = "received"
)

// ItemStatus of one purchase line.
type ItemStatus string

const (
	ItemStatusOrdered           ItemStatus = "ordered"
	ItemStatusPartiallyReceived ItemStatus = "partially_received"
	ItemStatusReceived          ItemStatus = "received"
)

// Purchase is a purchase order document.
type Purchase struct {
	entity.Document

	SupplierID id.ID  `db:"supplier_id" json:"supplierId"`
	Status     Status `db:"status" json:"status"`

	// GRN fields are stamped by receipt processing
	GRNNumber string     `db:"grn_number" json:"grnNumber,omitempty"`
	GRNDate   *time.Time `db:"grn_date" json:"grnDate,omitempty"`

	Items []PurchaseItem `db:"-" json:"items,omitempty"`
}

// PurchaseItem is one ordered line. BatchNumber/Expiry/MfgDate are optional
// supplier-document metadata; BatchID is resolved at receipt time.
type PurchaseItem struct {
	entity.BaseEntity

	PurchaseID id.ID `db:"purchase_id" json:"purchaseId"`
	ProductID  id.ID `db:"product_id" json:"productId"`

	QuantityOrdered  types.Quantity `db:"quantity_ordered" json:"quantityOrdered"`
	QuantityReceived types.Quantity `db:"quantity_received" json:"quantityReceived"`

	UnitCost  types.Money `db:"unit_cost" json:"unitCost"`
	UnitPrice types.Money `db:"unit_price" json:"unitPrice"`

	BatchNumber string     `db:"batch_number" json:"batchNumber,omitempty"`
	Expiry      *time.Time `db:"expiry" json:"expiry,omitempty"`
	MfgDate     *time.Time `db:"mfg_date" json:"mfgDate,omitempty"`

	// BatchID is set once the line is received into a batch
	BatchID id.ID `db:"batch_id" json:"batchId,omitempty"`

	Status ItemStatus `db:"status" json:"status"`
}

// Outstanding returns the quantity still to be received for this line.
func (i *PurchaseItem) Outstanding() types.Quantity {
	return i.QuantityOrdered - i.QuantityReceived
}

// IsFullyReceived reports whether the line has no outstanding quantity.
func (i *PurchaseItem) IsFullyReceived() bool {
	return !i.Outstanding().IsPositive()
}

// Validate implements entity.Validatable.
func (p *Purchase) Validate(ctx context.Context) error {
	if err := p.Document.Validate(ctx); err != nil {
		return err
	}
	if id.IsNil(p.SupplierID) {
		return apperror.NewValidation("supplier is required").
			WithDetail("field", "supplierId")
	}
	for idx := range p.Items {
		if err := p.Items[idx].Validate(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Validate implements entity.Validatable.
func (i *PurchaseItem) Validate(ctx context.Context) error {
	if id.IsNil(i.ProductID) {
		return apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}
	if !i.QuantityOrdered.IsPositive() {
		return apperror.NewValidation("ordered quantity must be positive").
			WithDetail("field", "quantityOrdered").
			WithDetail("value", i.QuantityOrdered.Float64())
	}
	if i.QuantityReceived.IsNegative() {
		return apperror.NewValidation("received quantity must not be negative").
			WithDetail("field", "quantityReceived")
	}
	return nil
}

// DeriveStatus computes the order status from its items.
func (p *Purchase) DeriveStatus() Status {
	if len(p.Items) == 0 {
		return StatusOrdered
	}

	allReceived := true
	anyReceived := false
	for idx := range p.Items {
		if p.Items[idx].QuantityReceived.IsPositive() {
			anyReceived = true
		}
		if !p.Items[idx].IsFullyReceived() {
			allReceived = false
		}
	}

	switch {
	case allReceived:
		return StatusReceived
	case anyReceived:
		return StatusPartiallyReceived
	default:
		return StatusOrdered
	}
}
