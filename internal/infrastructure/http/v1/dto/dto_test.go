package dto

import (
	"testing"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

func TestParseID(t *testing.T) {
	valid := id.New().String()
	parsed, err := ParseID(valid, "productId")
	if err != nil {
		t.Fatalf("ParseID(%s): %v", valid, err)
	}
	if parsed.String() != valid {
		t.Errorf("parsed = %s, want %s", parsed, valid)
	}

	_, err = ParseID("not-a-uuid", "productId")
	if !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("malformed id must map to a validation error, got %v", err)
	}
	appErr, _ := apperror.AsAppError(err)
	if appErr.Details["field"] != "productId" {
		t.Errorf("field detail = %v, want productId", appErr.Details["field"])
	}
}

func TestConvertersRejectMalformedIDs(t *testing.T) {
	r := &ReceiveRequest{Lines: []ReceiveLine{
		{PurchaseItemID: "oops", Quantity: types.NewQuantityFromInt(1)},
	}}
	if _, err := r.ToLines(); !apperror.HasCode(err, apperror.CodeValidation) {
		t.Errorf("ToLines: expected validation error, got %v", err)
	}

	m := &PostMovementRequest{
		BatchID:     "oops",
		ProductID:   id.New().String(),
		ReferenceID: id.New().String(),
	}
	if _, err := m.ToMovement(); !apperror.HasCode(err, apperror.CodeValidation) {
		t.Errorf("ToMovement: expected validation error, got %v", err)
	}

	p := &CreatePurchaseRequest{
		OrganizationID: "org-1",
		SupplierID:     "oops",
		Number:         "PO-1",
	}
	if _, err := p.ToPurchase(); !apperror.HasCode(err, apperror.CodeValidation) {
		t.Errorf("ToPurchase: expected validation error, got %v", err)
	}
}
