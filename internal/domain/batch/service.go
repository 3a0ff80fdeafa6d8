package batch

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/batchnum"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/guard"
	"lotledger/pkg/logger"
)

// maxNumberRetries bounds collision retries for auto-generated numbers.
const maxNumberRetries = 5

// Registry provides business operations for batches.
// Transactions are managed by the caller (receipt processor, ledger service);
// all mutating methods expect to run inside one.
type Registry struct {
	repo      Repository
	guard     *guard.Guard
	generator batchnum.Generator
}

// NewRegistry creates a new batch registry.
func NewRegistry(repo Repository, g *guard.Guard, generator batchnum.Generator) *Registry {
	return &Registry{
		repo:      repo,
		guard:     g,
		generator: generator,
	}
}

// CreateInput describes one batch to create at receipt time.
// Number, Expiry and MfgDate are optional; absent values are defaulted from
// ReceiptDate so a receipt is never blocked on missing metadata.
type CreateInput struct {
	OrganizationID string
	ProductID      id.ID
	PurchaseID     id.ID
	ReceiptDate    time.Time

	Number   string
	Expiry   *time.Time
	MfgDate  *time.Time
	Quantity types.Quantity

	UnitCost  types.Money
	UnitPrice types.Money
}

// Create creates a batch for a receipt lot. Caller-supplied numbers are used
// verbatim and fail fast on collision; auto-generated numbers are retried a
// bounded number of times before surfacing DuplicateBatchNumber.
func (r *Registry) Create(ctx context.Context, in CreateInput) (*Batch, error) {
	if err := r.guard.CheckExpiryMandatory(in.Expiry); err != nil {
		return nil, err
	}
	if !in.Quantity.IsPositive() {
		return nil, apperror.NewValidation("received quantity must be positive").
			WithDetail("field", "quantity").
			WithDetail("value", in.Quantity.Float64())
	}

	receiptDate := in.ReceiptDate
	if receiptDate.IsZero() {
		receiptDate = time.Now().UTC()
	}

	expiry := receiptDate.AddDate(DefaultExpiryYears, 0, 0)
	if in.Expiry != nil && !in.Expiry.IsZero() {
		expiry = *in.Expiry
	}
	mfgDate := receiptDate.AddDate(0, 0, -DefaultMfgLagDays)
	if in.MfgDate != nil && !in.MfgDate.IsZero() {
		mfgDate = *in.MfgDate
	}

	// Available starts at zero: the balance is mutated only by ledger
	// postings, and the accompanying purchase movement fills the lot in the
	// same transaction. This keeps the balance derivable from movements.
	b := &Batch{
		BaseDocument:      entity.NewBaseDocument(),
		OrganizationID:    in.OrganizationID,
		ProductID:         in.ProductID,
		PurchaseID:        in.PurchaseID,
		MfgDate:           mfgDate,
		ExpiryDate:        expiry,
		QuantityReceived:  in.Quantity,
		QuantityAvailable: 0,
		UnitCost:          in.UnitCost,
		UnitPrice:         in.UnitPrice,
		Status:            StatusActive,
	}

	if in.Number != "" {
		b.Number = in.Number
		if err := b.Validate(ctx); err != nil {
			return nil, err
		}
		if err := r.repo.Create(ctx, b); err != nil {
			return nil, err
		}
	} else {
		if err := r.createWithGeneratedNumber(ctx, b, receiptDate); err != nil {
			return nil, err
		}
	}

	logger.Info(ctx, "batch created",
		"batch_id", b.ID,
		"number", b.Number,
		"product_id", b.ProductID,
		"quantity", b.QuantityReceived,
	)

	return b, nil
}

// createWithGeneratedNumber assigns candidate numbers until the insert
// succeeds. The unique index is the arbiter; the pre-probe only avoids
// burning an insert attempt on an obvious collision.
func (r *Registry) createWithGeneratedNumber(ctx context.Context, b *Batch, receiptDate time.Time) error {
	var lastNumber string
	for attempt := 0; attempt < maxNumberRetries; attempt++ {
		number := r.generator.Next(receiptDate, b.ProductID)
		lastNumber = number

		exists, err := r.repo.ExistsByNumber(ctx, b.OrganizationID, b.ProductID, number)
		if err != nil {
			return fmt.Errorf("probe batch number: %w", err)
		}
		if exists {
			continue
		}

		b.Number = number
		if err := b.Validate(ctx); err != nil {
			return err
		}

		err = r.repo.Create(ctx, b)
		if err == nil {
			return nil
		}
		if apperror.IsDuplicateBatchNumber(err) {
			// Lost the race to a concurrent insert of the same number.
			continue
		}
		return err
	}

	return apperror.NewDuplicateBatchNumber(b.ProductID.String(), lastNumber).
		WithDetail("attempts", maxNumberRetries)
}

// ResolveOrCreate returns the existing batch with the given number, or
// creates one. An existing batch absorbs the received quantity. Used by the
// receipt processor when a supplier document names a batch already on file.
func (r *Registry) ResolveOrCreate(ctx context.Context, in CreateInput) (*Batch, bool, error) {
	if in.Number != "" {
		existing, err := r.repo.GetByNumber(ctx, in.OrganizationID, in.ProductID, in.Number)
		if err != nil && !apperror.IsNotFound(err) {
			return nil, false, err
		}
		if existing != nil {
			if err := r.absorbReceipt(ctx, existing, in.Quantity); err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
	}

	b, err := r.Create(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// absorbReceipt raises an existing batch's received quantity under a row
// lock. Available is untouched here; the accompanying purchase movement
// carries the balance increase.
func (r *Registry) absorbReceipt(ctx context.Context, b *Batch, qty types.Quantity) error {
	locked, err := r.repo.GetByIDForUpdate(ctx, b.ID)
	if err != nil {
		return err
	}

	newReceived := locked.QuantityReceived + qty
	if err := r.repo.UpdateBalance(ctx, locked.ID, newReceived, locked.QuantityAvailable, locked.Status, locked.Version); err != nil {
		return err
	}

	b.QuantityReceived = newReceived
	b.QuantityAvailable = locked.QuantityAvailable
	b.Status = locked.Status
	b.Version = locked.Version + 1
	return nil
}

// ApplyDelta adjusts a batch's available quantity by delta under a row lock.
// Positive deltas add stock (returns, receipts into an existing lot);
// negative deltas consume it. Fails with InvariantViolation when the result
// would go negative and the organization forbids negative stock.
func (r *Registry) ApplyDelta(ctx context.Context, batchID id.ID, delta types.Quantity) (*Batch, error) {
	b, err := r.repo.GetByIDForUpdate(ctx, batchID)
	if err != nil {
		return nil, err
	}

	newAvailable := b.QuantityAvailable + delta

	if newAvailable.IsNegative() && !r.guard.AllowsNegativeStock() {
		return nil, apperror.NewInvariantViolation("delta would drive batch balance negative").
			WithDetail("batch_id", batchID.String()).
			WithDetail("available", b.QuantityAvailable.Float64()).
			WithDetail("delta", delta.Float64())
	}
	if newAvailable > b.QuantityReceived {
		return nil, apperror.NewInvariantViolation("available quantity would exceed received quantity").
			WithDetail("batch_id", batchID.String()).
			WithDetail("received", b.QuantityReceived.Float64()).
			WithDetail("resulting_available", newAvailable.Float64())
	}

	newStatus := statusAfterDelta(b.Status, newAvailable)
	if err := r.repo.UpdateBalance(ctx, batchID, b.QuantityReceived, newAvailable, newStatus, b.Version); err != nil {
		return nil, err
	}

	b.QuantityAvailable = newAvailable
	b.Status = newStatus
	b.Version++
	return b, nil
}

// FindForAllocation returns active batches of a product in FEFO order.
// The result is advisory: balances may change before the caller posts, so
// posting paths re-verify under ApplyDelta's row lock.
func (r *Registry) FindForAllocation(ctx context.Context, organizationID string, productID id.ID) ([]Batch, error) {
	return r.repo.FindForAllocation(ctx, organizationID, productID)
}

// GetByID returns a batch by primary key.
func (r *Registry) GetByID(ctx context.Context, batchID id.ID) (*Batch, error) {
	return r.repo.GetByID(ctx, batchID)
}

// GetByIDForUpdate returns a batch under a row lock. Callers must hold a
// transaction; the returned balance stays current until it commits.
func (r *Registry) GetByIDForUpdate(ctx context.Context, batchID id.ID) (*Batch, error) {
	return r.repo.GetByIDForUpdate(ctx, batchID)
}

// ListByProduct returns batches of a product for inventory projections.
func (r *Registry) ListByProduct(ctx context.Context, organizationID string, productID id.ID, f ListFilter) ([]Batch, error) {
	return r.repo.ListByProduct(ctx, organizationID, productID, f)
}

// ListByPurchase returns batches created against a purchase.
func (r *Registry) ListByPurchase(ctx context.Context, purchaseID id.ID) ([]Batch, error) {
	return r.repo.ListByPurchase(ctx, purchaseID)
}

// Hold marks a batch held, excluding it from allocation until released.
func (r *Registry) Hold(ctx context.Context, batchID id.ID) error {
	return r.setStatus(ctx, batchID, StatusHeld)
}

// Release returns a held batch to circulation. The resulting status is
// derived from the balance, not forced to active.
func (r *Registry) Release(ctx context.Context, batchID id.ID) error {
	b, err := r.repo.GetByIDForUpdate(ctx, batchID)
	if err != nil {
		return err
	}
	if b.Status != StatusHeld {
		return apperror.NewBusinessRule(apperror.CodeBusinessRule, "batch is not held").
			WithDetail("batch_id", batchID.String()).
			WithDetail("status", string(b.Status))
	}

	next := StatusActive
	if b.QuantityAvailable.IsZero() {
		next = StatusExhausted
	}
	if b.IsExpired(time.Now().UTC()) {
		next = StatusExpired
	}
	return r.repo.UpdateStatus(ctx, batchID, next, b.Version)
}

// MarkExpired transitions a batch to expired. The caller is expected to post
// the offsetting expiry write-off movement in the same transaction.
func (r *Registry) MarkExpired(ctx context.Context, batchID id.ID) error {
	return r.setStatus(ctx, batchID, StatusExpired)
}

// ListExpiring returns active batches expiring on or before the cutoff.
func (r *Registry) ListExpiring(ctx context.Context, organizationID string, cutoff time.Time) ([]Batch, error) {
	return r.repo.ListExpiring(ctx, organizationID, cutoff)
}

func (r *Registry) setStatus(ctx context.Context, batchID id.ID, status Status) error {
	b, err := r.repo.GetByIDForUpdate(ctx, batchID)
	if err != nil {
		return err
	}
	if b.Status == status {
		return nil
	}
	if err := r.repo.UpdateStatus(ctx, batchID, status, b.Version); err != nil {
		return err
	}

	logger.Info(ctx, "batch status changed",
		"batch_id", batchID,
		"from", b.Status,
		"to", status,
	)
	return nil
}
