package purchase

import (
	"context"

	"lotledger/internal/core/id"
)

// Repository defines storage operations for purchases.
type Repository interface {
	// Create inserts a purchase with its items.
	Create(ctx context.Context, p *Purchase) error

	// GetByID returns a purchase with items.
	GetByID(ctx context.Context, purchaseID id.ID) (*Purchase, error)

	// GetByIDForUpdate returns a purchase with items under a row lock on the
	// header, closing the race between checking and setting the status.
	GetByIDForUpdate(ctx context.Context, purchaseID id.ID) (*Purchase, error)

	// UpdateItem persists a line's received quantity, status and batch id.
	UpdateItem(ctx context.Context, item *PurchaseItem) error

	// UpdateStatus stamps the header status and GRN fields with an
	// optimistic version check.
	UpdateStatus(ctx context.Context, p *Purchase) error

	// List returns purchases filtered by status, newest first.
	List(ctx context.Context, organizationID string, f ListFilter) ([]Purchase, error)
}

// ListFilter narrows purchase listings.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}
