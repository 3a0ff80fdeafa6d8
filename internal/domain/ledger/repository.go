package ledger

import (
	"context"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Repository defines storage operations for the movement ledger.
// The table is append-only; there is no update or delete.
type Repository interface {
	// Create appends one movement. Returns DuplicateMovement when a row
	// with the same (reference_type, reference_id, kind, batch_id) exists.
	Create(ctx context.Context, m *Movement) error

	// CreateAll appends movements in bulk (COPY), used by receipt posting.
	// Uniqueness violations surface as DuplicateMovement.
	CreateAll(ctx context.Context, movements []Movement) error

	// GetByID returns a movement by primary key.
	GetByID(ctx context.Context, movementID id.ID) (*Movement, error)

	// ListByBatch returns all movements for a batch in posting order.
	ListByBatch(ctx context.Context, batchID id.ID) ([]Movement, error)

	// ListByReference returns movements caused by one business document.
	ListByReference(ctx context.Context, referenceType string, referenceID id.ID) ([]Movement, error)

	// History returns filtered movements for a product, newest first.
	History(ctx context.Context, organizationID string, productID id.ID, f HistoryFilter) ([]Movement, error)

	// SumSignedByBatch folds all movements of a batch into a signed total
	// (in minus out), used by reconciliation.
	SumSignedByBatch(ctx context.Context, batchID id.ID) (types.Quantity, int, error)

	// Turnover aggregates in/out totals for a product over a period.
	Turnover(ctx context.Context, organizationID string, productID id.ID, from, to time.Time) (Turnover, error)
}

// HistoryFilter narrows movement history queries.
type HistoryFilter struct {
	BatchID  *id.ID
	Kind     *Kind
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}

// Turnover is the in/out aggregate for a product over a period.
type Turnover struct {
	ProductID id.ID          `json:"productId"`
	FromDate  time.Time      `json:"fromDate"`
	ToDate    time.Time      `json:"toDate"`
	In        types.Quantity `json:"in"`
	Out       types.Quantity `json:"out"`
	Net       types.Quantity `json:"net"`
}
