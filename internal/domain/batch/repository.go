package batch

import (
	"context"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Repository defines storage operations for batches.
// Mutating methods are expected to run inside a caller-managed transaction.
type Repository interface {
	// Create inserts a new batch. Returns DuplicateBatchNumber when the
	// (organization, product, number) key already exists.
	Create(ctx context.Context, b *Batch) error

	// GetByID returns a batch by primary key.
	GetByID(ctx context.Context, batchID id.ID) (*Batch, error)

	// GetByIDForUpdate returns a batch with a row lock, serializing
	// concurrent balance updates against the same batch.
	GetByIDForUpdate(ctx context.Context, batchID id.ID) (*Batch, error)

	// GetByNumber returns the batch with the given number for a product.
	GetByNumber(ctx context.Context, organizationID string, productID id.ID, number string) (*Batch, error)

	// ExistsByNumber probes number uniqueness without loading the row.
	ExistsByNumber(ctx context.Context, organizationID string, productID id.ID, number string) (bool, error)

	// UpdateBalance persists new quantities and status with an optimistic
	// version check. Fails with ConcurrentModification when the expected
	// version no longer matches.
	UpdateBalance(ctx context.Context, batchID id.ID, received, available types.Quantity, status Status, expectedVersion int) error

	// UpdateStatus changes only the lifecycle status (hold, expire).
	UpdateStatus(ctx context.Context, batchID id.ID, status Status, expectedVersion int) error

	// ListByProduct returns batches of a product, newest first.
	ListByProduct(ctx context.Context, organizationID string, productID id.ID, f ListFilter) ([]Batch, error)

	// ListByPurchase returns batches created against a purchase.
	ListByPurchase(ctx context.Context, purchaseID id.ID) ([]Batch, error)

	// FindForAllocation returns active batches of a product ordered by
	// expiry ascending, creation time ascending. Exhausted, expired and
	// held batches are excluded.
	FindForAllocation(ctx context.Context, organizationID string, productID id.ID) ([]Batch, error)

	// ListExpiring returns active batches whose expiry falls on or before
	// the cutoff, for expiry write-off runs.
	ListExpiring(ctx context.Context, organizationID string, cutoff time.Time) ([]Batch, error)
}

// ListFilter narrows batch listings.
type ListFilter struct {
	Status      *Status
	ExcludeZero bool
	Limit       int
	Offset      int
}
