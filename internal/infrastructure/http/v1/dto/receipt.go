package dto

import (
	"time"

	"lotledger/internal/core/types"
	"lotledger/internal/domain/receipt"
)

// ReceiveRequest posts a goods receipt against a purchase.
type ReceiveRequest struct {
	Lines []ReceiveLine `json:"lines" binding:"required,min=1"`
}

// ReceiveLine is one received line. BatchNumber, Expiry and MfgDate override
// the purchase item's metadata when set.
type ReceiveLine struct {
	PurchaseItemID string         `json:"purchaseItemId" binding:"required"`
	Quantity       types.Quantity `json:"quantity"`
	BatchNumber    string         `json:"batchNumber,omitempty"`
	Expiry         *time.Time     `json:"expiry,omitempty"`
	MfgDate        *time.Time     `json:"mfgDate,omitempty"`
}

// ToLines converts the request lines to receipt lines.
func (r *ReceiveRequest) ToLines() ([]receipt.Line, error) {
	lines := make([]receipt.Line, 0, len(r.Lines))
	for _, l := range r.Lines {
		itemID, err := ParseID(l.PurchaseItemID, "purchaseItemId")
		if err != nil {
			return nil, err
		}
		lines = append(lines, receipt.Line{
			PurchaseItemID: itemID,
			Quantity:       l.Quantity,
			BatchNumber:    l.BatchNumber,
			Expiry:         l.Expiry,
			MfgDate:        l.MfgDate,
		})
	}
	return lines, nil
}
