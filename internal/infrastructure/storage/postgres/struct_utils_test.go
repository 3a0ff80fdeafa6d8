package postgres

import (
	"testing"
	"time"

	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batch"
)

func TestExtractDBColumns(t *testing.T) {
	cols := ExtractDBColumns[batch.Batch]()

	want := map[string]bool{
		"id":                 false,
		"version":            false,
		"number":             false,
		"organization_id":    false,
		"product_id":         false,
		"quantity_received":  false,
		"quantity_available": false,
		"status":             false,
		"created_at":         false,
	}
	for _, c := range cols {
		if _, ok := want[c]; ok {
			want[c] = true
		}
	}
	for c, seen := range want {
		if !seen {
			t.Errorf("column %q missing from extracted set %v", c, cols)
		}
	}
}

func TestStructToMap(t *testing.T) {
	b := batch.Batch{
		BaseDocument:      entity.NewBaseDocument(),
		Number:            "LOT-1",
		OrganizationID:    "org-1",
		ProductID:         id.New(),
		ExpiryDate:        time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		QuantityReceived:  types.NewQuantityFromInt(10),
		QuantityAvailable: types.NewQuantityFromInt(4),
		Status:            batch.StatusActive,
	}

	m := StructToMap(&b)

	if m["number"] != "LOT-1" {
		t.Errorf("number = %v", m["number"])
	}
	if m["organization_id"] != "org-1" {
		t.Errorf("organization_id = %v", m["organization_id"])
	}
	if m["quantity_available"] != types.NewQuantityFromInt(4) {
		t.Errorf("quantity_available = %v", m["quantity_available"])
	}
	// Embedded entity fields must be flattened in.
	if m["id"] != b.ID {
		t.Errorf("id = %v, want embedded entity id", m["id"])
	}
	if m["version"] != b.Version {
		t.Errorf("version = %v", m["version"])
	}
	// db:"-" fields must be excluded.
	if _, ok := m["items"]; ok {
		t.Error("db:\"-\" field leaked into map")
	}
}

func TestStructToMapNonStruct(t *testing.T) {
	if m := StructToMap(42); m != nil {
		t.Errorf("expected nil for non-struct, got %v", m)
	}
}
