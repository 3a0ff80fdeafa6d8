// Package purchase_repo provides the PostgreSQL implementation of the
// purchase repository.
package purchase_repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/purchase"
	"lotledger/internal/infrastructure/storage/postgres"
)

const (
	purchasesTable     = "doc_purchases"
	purchaseItemsTable = "doc_purchase_items"
)

// PurchaseRepo implements purchase.Repository.
type PurchaseRepo struct {
	txm         *postgres.TxManager
	builder     squirrel.StatementBuilderType
	columns     []string
	itemColumns []string
}

// NewPurchaseRepo creates a new purchase repository.
func NewPurchaseRepo(txm *postgres.TxManager) *PurchaseRepo {
	return &PurchaseRepo{
		txm:         txm,
		builder:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		columns:     postgres.ExtractDBColumns[purchase.Purchase](),
		itemColumns: postgres.ExtractDBColumns[purchase.PurchaseItem](),
	}
}

// Create inserts a purchase with its items.
func (r *PurchaseRepo) Create(ctx context.Context, p *purchase.Purchase) error {
	q := r.builder.Insert(purchasesTable).SetMap(postgres.StructToMap(p))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txm.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}

	for i := range p.Items {
		iq := r.builder.Insert(purchaseItemsTable).SetMap(postgres.StructToMap(&p.Items[i]))
		sql, args, err := iq.ToSql()
		if err != nil {
			return fmt.Errorf("build item insert: %w", err)
		}
		if _, err := querier.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert purchase item: %w", err)
		}
	}

	return nil
}

// GetByID returns a purchase with items.
func (r *PurchaseRepo) GetByID(ctx context.Context, purchaseID id.ID) (*purchase.Purchase, error) {
	q := r.builder.Select(r.columns...).
		From(purchasesTable).
		Where(squirrel.Eq{"id": purchaseID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var p purchase.Purchase
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("purchase", purchaseID.String())
		}
		return nil, fmt.Errorf("get purchase: %w", err)
	}

	if err := r.loadItems(ctx, &p); err != nil {
		return nil, err
	}

	return &p, nil
}

// GetByIDForUpdate returns a purchase with items under a row lock on the
// header. Item rows are not locked; all writers go through the header lock.
func (r *PurchaseRepo) GetByIDForUpdate(ctx context.Context, purchaseID id.ID) (*purchase.Purchase, error) {
	sql := fmt.Sprintf(
		"SELECT %s FROM %s WHERE id = $1 FOR UPDATE",
		strings.Join(r.columns, ", "), purchasesTable,
	)

	var p purchase.Purchase
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &p, sql, purchaseID); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("purchase", purchaseID.String())
		}
		return nil, fmt.Errorf("get purchase for update: %w", err)
	}

	if err := r.loadItems(ctx, &p); err != nil {
		return nil, err
	}

	return &p, nil
}

// loadItems fetches line items ordered by id. IDs are UUIDv7, so this is
// insertion order.
func (r *PurchaseRepo) loadItems(ctx context.Context, p *purchase.Purchase) error {
	q := r.builder.Select(r.itemColumns...).
		From(purchaseItemsTable).
		Where(squirrel.Eq{"purchase_id": p.ID}).
		OrderBy("id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build item select: %w", err)
	}

	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &p.Items, sql, args...); err != nil {
		return fmt.Errorf("load purchase items: %w", err)
	}

	return nil
}

// UpdateItem persists a line's received quantity, status and batch id.
// The caller Touch()es the item first, so the expected stored version is
// one behind the in-memory value.
func (r *PurchaseRepo) UpdateItem(ctx context.Context, item *purchase.PurchaseItem) error {
	q := r.builder.Update(purchaseItemsTable).
		Set("quantity_received", item.QuantityReceived).
		Set("status", item.Status).
		Set("batch_id", item.BatchID).
		Set("version", item.Version).
		Where(squirrel.Eq{"id": item.ID, "version": item.Version - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update purchase item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("purchase item", item.ID.String())
	}

	return nil
}

// UpdateStatus stamps the header status and GRN fields.
func (r *PurchaseRepo) UpdateStatus(ctx context.Context, p *purchase.Purchase) error {
	q := r.builder.Update(purchasesTable).
		Set("status", p.Status).
		Set("grn_number", p.GRNNumber).
		Set("grn_date", p.GRNDate).
		Set("version", p.Version).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": p.ID, "version": p.Version - 1})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update purchase status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("purchase", p.ID.String())
	}

	return nil
}

// List returns purchases filtered by status, newest first. Items are not
// loaded for listings.
func (r *PurchaseRepo) List(ctx context.Context, organizationID string, f purchase.ListFilter) ([]purchase.Purchase, error) {
	q := r.builder.Select(r.columns...).
		From(purchasesTable).
		Where(squirrel.Eq{"organization_id": organizationID}).
		OrderBy("date DESC", "created_at DESC")

	if f.Status != nil {
		q = q.Where(squirrel.Eq{"status": *f.Status})
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

	var purchases []purchase.Purchase
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &purchases, sql, args...); err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}

	return purchases, nil
}

// Compile-time check that PurchaseRepo implements purchase.Repository.
var _ purchase.Repository = (*PurchaseRepo)(nil)
