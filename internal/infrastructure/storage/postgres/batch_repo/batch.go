// Package batch_repo provides the PostgreSQL implementation of the batch
// registry repository.
package batch_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batch"
	"lotledger/internal/infrastructure/storage/postgres"
)

const batchesTable = "reg_batches"

// uqBatchNumber is the unique index on (organization_id, product_id, number).
// The index is the arbiter for number uniqueness; the service layer only
// pre-probes to keep retries cheap.
const uqBatchNumber = "uq_batches_org_product_number"

// BatchRepo implements batch.Repository.
type BatchRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
	columns []string
}

// NewBatchRepo creates a new batch repository.
func NewBatchRepo(txm *postgres.TxManager) *BatchRepo {
	return &BatchRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		columns: postgres.ExtractDBColumns[batch.Batch](),
	}
}

// Create inserts a new batch row.
func (r *BatchRepo) Create(ctx context.Context, b *batch.Batch) error {
	q := r.builder.Insert(batchesTable).SetMap(postgres.StructToMap(b))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, uqBatchNumber) {
			return apperror.NewDuplicateBatchNumber(b.ProductID.String(), b.Number)
		}
		return fmt.Errorf("insert batch: %w", err)
	}

	return nil
}

// GetByID returns a batch by primary key.
func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (*batch.Batch, error) {
	q := r.builder.Select(r.columns...).
		From(batchesTable).
		Where(squirrel.Eq{"id": batchID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var b batch.Batch
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", batchID.String())
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}

	return &b, nil
}

// GetByIDForUpdate returns a batch with a row lock. Squirrel has no locking
// clause support, so the query is raw SQL.
func (r *BatchRepo) GetByIDForUpdate(ctx context.Context, batchID id.ID) (*batch.Batch, error) {
	sql := fmt.Sprintf(
		"SELECT %s FROM %s WHERE id = $1 FOR UPDATE",
		strings.Join(r.columns, ", "), batchesTable,
	)

	var b batch.Batch
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &b, sql, batchID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", batchID.String())
		}
		return nil, fmt.Errorf("get batch for update: %w", err)
	}

	return &b, nil
}

// GetByNumber returns the batch with the given number for a product.
func (r *BatchRepo) GetByNumber(ctx context.Context, organizationID string, productID id.ID, number string) (*batch.Batch, error) {
	q := r.builder.Select(r.columns...).
		From(batchesTable).
		Where(squirrel.Eq{
			"organization_id": organizationID,
			"product_id":      productID,
			"number":          number,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var b batch.Batch
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &b, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("batch", number)
		}
		return nil, fmt.Errorf("get batch by number: %w", err)
	}

	return &b, nil
}

// ExistsByNumber probes number uniqueness without loading the row.
func (r *BatchRepo) ExistsByNumber(ctx context.Context, organizationID string, productID id.ID, number string) (bool, error) {
	sql := fmt.Sprintf(
		"SELECT EXISTS (SELECT 1 FROM %s WHERE organization_id = $1 AND product_id = $2 AND number = $3)",
		batchesTable,
	)

	var exists bool
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, organizationID, productID, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check batch number: %w", err)
	}

	return exists, nil
}

// UpdateBalance persists new quantities and status with an optimistic
// version check.
func (r *BatchRepo) UpdateBalance(ctx context.Context, batchID id.ID, received, available types.Quantity, status batch.Status, expectedVersion int) error {
	q := r.builder.Update(batchesTable).
		Set("quantity_received", received).
		Set("quantity_available", available).
		Set("status", status).
		Set("version", expectedVersion+1).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": batchID, "version": expectedVersion})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update batch balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("batch", batchID.String())
	}

	return nil
}

// UpdateStatus changes only the lifecycle status.
func (r *BatchRepo) UpdateStatus(ctx context.Context, batchID id.ID, status batch.Status, expectedVersion int) error {
	q := r.builder.Update(batchesTable).
		Set("status", status).
		Set("version", expectedVersion+1).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": batchID, "version": expectedVersion})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("batch", batchID.String())
	}

	return nil
}

// ListByProduct returns batches of a product, newest first.
func (r *BatchRepo) ListByProduct(ctx context.Context, organizationID string, productID id.ID, f batch.ListFilter) ([]batch.Batch, error) {
	q := r.builder.Select(r.columns...).
		From(batchesTable).
		Where(squirrel.Eq{
			"organization_id": organizationID,
			"product_id":      productID,
		}).
		OrderBy("created_at DESC")

	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
	}
	if f.ExcludeZero {
		q = q.Where(squirrel.Gt{"quantity_available": 0})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var batches []batch.Batch
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	return batches, nil
}

// ListByPurchase returns batches created against a purchase.
func (r *BatchRepo) ListByPurchase(ctx context.Context, purchaseID id.ID) ([]batch.Batch, error) {
	q := r.builder.Select(r.columns...).
		From(batchesTable).
		Where(squirrel.Eq{"purchase_id": purchaseID}).
		OrderBy("created_at ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var batches []batch.Batch
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("list batches by purchase: %w", err)
	}

	return batches, nil
}

// FindForAllocation returns active batches with stock, soonest expiry first.
// created_at breaks ties so equal expiries allocate oldest lot first.
func (r *BatchRepo) FindForAllocation(ctx context.Context, organizationID string, productID id.ID) ([]batch.Batch, error) {
	q := r.builder.Select(r.columns...).
		From(batchesTable).
		Where(squirrel.Eq{
			"organization_id": organizationID,
			"product_id":      productID,
			"status":          batch.StatusActive,
		}).
		Where(squirrel.Gt{"quantity_available": 0}).
		OrderBy("expiry_date ASC", "created_at ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var batches []batch.Batch
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("find batches for allocation: %w", err)
	}

	return batches, nil
}

// ListExpiring returns active batches whose expiry falls on or before the
// cutoff.
func (r *BatchRepo) ListExpiring(ctx context.Context, organizationID string, cutoff time.Time) ([]batch.Batch, error) {
	q := r.builder.Select(r.columns...).
		From(batchesTable).
		Where(squirrel.Eq{
			"organization_id": organizationID,
			"status":          batch.StatusActive,
		}).
		Where(squirrel.LtOrEq{"expiry_date": cutoff}).
		OrderBy("expiry_date ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var batches []batch.Batch
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &batches, sql, args...); err != nil {
		return nil, fmt.Errorf("list expiring batches: %w", err)
	}

	return batches, nil
}

// Compile-time check that BatchRepo implements batch.Repository.
var _ batch.Repository = (*BatchRepo)(nil)
