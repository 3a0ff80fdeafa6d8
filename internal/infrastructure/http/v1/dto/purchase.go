package dto

import (
	"time"

	"lotledger/internal/core/entity"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/purchase"
)

// CreatePurchaseRequest creates a purchase order with its lines.
type CreatePurchaseRequest struct {
	OrganizationID string                `json:"organizationId" binding:"required"`
	SupplierID     string                `json:"supplierId" binding:"required"`
	Number         string                `json:"number" binding:"required"`
	Date           *time.Time            `json:"date,omitempty"`
	Comment        string                `json:"comment,omitempty"`
	Items          []PurchaseItemRequest `json:"items" binding:"required,min=1"`
}

// PurchaseItemRequest is one ordered line.
type PurchaseItemRequest struct {
	ProductID       string         `json:"productId" binding:"required"`
	QuantityOrdered types.Quantity `json:"quantityOrdered"`
	UnitCost        types.Money    `json:"unitCost"`
	UnitPrice       types.Money    `json:"unitPrice"`
	BatchNumber     string         `json:"batchNumber,omitempty"`
	Expiry          *time.Time     `json:"expiry,omitempty"`
	MfgDate         *time.Time     `json:"mfgDate,omitempty"`
}

// ToPurchase converts the request to a domain purchase.
func (r *CreatePurchaseRequest) ToPurchase() (*purchase.Purchase, error) {
	supplierID, err := ParseID(r.SupplierID, "supplierId")
	if err != nil {
		return nil, err
	}

	p := &purchase.Purchase{
		Document:   entity.NewDocument(r.OrganizationID),
		SupplierID: supplierID,
		Status:     purchase.StatusOrdered,
	}
	p.Number = r.Number
	p.Comment = r.Comment
	if r.Date != nil {
		p.Date = *r.Date
	}

	for _, item := range r.Items {
		productID, err := ParseID(item.ProductID, "productId")
		if err != nil {
			return nil, err
		}
		p.Items = append(p.Items, purchase.PurchaseItem{
			BaseEntity:      entity.NewBaseEntity(),
			PurchaseID:      p.ID,
			ProductID:       productID,
			QuantityOrdered: item.QuantityOrdered,
			UnitCost:        item.UnitCost,
			UnitPrice:       item.UnitPrice,
			BatchNumber:     item.BatchNumber,
			Expiry:          item.Expiry,
			MfgDate:         item.MfgDate,
			Status:          purchase.ItemStatusOrdered,
		})
	}

	return p, nil
}
