// Package ledger_repo provides the PostgreSQL implementation of the
// movement ledger repository. The movements table is append-only.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/infrastructure/storage/postgres"
)

const movementsTable = "reg_movements"

// uqMovementReference is the unique index on
// (reference_type, reference_id, kind, batch_id), the exactly-once arbiter
// for movement posting.
const uqMovementReference = "uq_movements_reference"

// movementColumns is the fixed column order shared by INSERT and COPY.
var movementColumns = []string{
	"id", "organization_id", "batch_id", "product_id",
	"direction", "kind", "quantity",
	"event_date", "reference_type", "reference_id", "created_at",
}

func movementRow(m *ledger.Movement) []any {
	return []any{
		m.ID, m.OrganizationID, m.BatchID, m.ProductID,
		m.Direction, m.Kind, m.Quantity,
		m.EventDate, m.ReferenceType, m.ReferenceID, m.CreatedAt,
	}
}

// MovementRepo implements ledger.Repository.
type MovementRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

// NewMovementRepo creates a new movement repository.
func NewMovementRepo(txm *postgres.TxManager) *MovementRepo {
	return &MovementRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create appends one movement.
func (r *MovementRepo) Create(ctx context.Context, m *ledger.Movement) error {
	q := r.builder.Insert(movementsTable).
		Columns(movementColumns...).
		Values(movementRow(m)...)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, uqMovementReference) {
			return apperror.NewDuplicateMovement(m.ReferenceType, m.ReferenceID.String(), string(m.Kind))
		}
		return fmt.Errorf("insert movement: %w", err)
	}

	return nil
}

// CreateAll appends movements in bulk. Inside a transaction the COPY
// protocol is used; COPY cannot report which row violated the unique index,
// so duplicates surface as a generic DuplicateMovement.
func (r *MovementRepo) CreateAll(ctx context.Context, movements []ledger.Movement) error {
	if len(movements) == 0 {
		return nil
	}

	if tx := r.txm.GetTx(ctx); tx != nil {
		inserter := postgres.NewBatchInserter(r.txm)
		rows := make([][]any, 0, len(movements))
		for i := range movements {
			rows = append(rows, movementRow(&movements[i]))
		}
		if _, err := inserter.CopyFromSlice(ctx, movementsTable, movementColumns, rows); err != nil {
			if postgres.IsUniqueViolation(err, uqMovementReference) {
				return apperror.NewDuplicateMovement("", "", "")
			}
			return fmt.Errorf("copy movements: %w", err)
		}
		return nil
	}

	q := r.builder.Insert(movementsTable).Columns(movementColumns...)
	for i := range movements {
		q = q.Values(movementRow(&movements[i])...)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		if postgres.IsUniqueViolation(err, uqMovementReference) {
			return apperror.NewDuplicateMovement("", "", "")
		}
		return fmt.Errorf("insert movements: %w", err)
	}

	return nil
}

// GetByID returns a movement by primary key.
func (r *MovementRepo) GetByID(ctx context.Context, movementID id.ID) (*ledger.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"id": movementID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var m ledger.Movement
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("movement", movementID.String())
		}
		return nil, fmt.Errorf("get movement: %w", err)
	}

	return &m, nil
}

// ListByBatch returns all movements for a batch in posting order.
func (r *MovementRepo) ListByBatch(ctx context.Context, batchID id.ID) ([]ledger.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"batch_id": batchID}).
		OrderBy("created_at ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var movements []ledger.Movement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("list movements by batch: %w", err)
	}

	return movements, nil
}

// ListByReference returns movements caused by one business document.
func (r *MovementRepo) ListByReference(ctx context.Context, referenceType string, referenceID id.ID) ([]ledger.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{
			"reference_type": referenceType,
			"reference_id":   referenceID,
		}).
		OrderBy("created_at ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var movements []ledger.Movement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("list movements by reference: %w", err)
	}

	return movements, nil
}

// History returns filtered movements for a product, newest first.
func (r *MovementRepo) History(ctx context.Context, organizationID string, productID id.ID, f ledger.HistoryFilter) ([]ledger.Movement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{
			"organization_id": organizationID,
			"product_id":      productID,
		}).
		OrderBy("event_date DESC", "created_at DESC")

	if f.BatchID != nil {
		q = q.Where(squirrel.Eq{"batch_id": *f.BatchID})
	}
	if f.Kind != nil {
		q = q.Where(squirrel.Eq{"kind": *f.Kind})
	}
	if f.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"event_date": *f.FromDate})
	}
	if f.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"event_date": *f.ToDate})
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

	var movements []ledger.Movement
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("movement history: %w", err)
	}

	return movements, nil
}

// SumSignedByBatch folds all movements of a batch into a signed total.
// Quantities are stored as scaled BIGINT, so the fold stays in integer
// arithmetic on the server.
func (r *MovementRepo) SumSignedByBatch(ctx context.Context, batchID id.ID) (types.Quantity, int, error) {
	sql := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'in' THEN quantity ELSE -quantity END), 0),
			COUNT(*)
		FROM %s
		WHERE batch_id = $1
	`, movementsTable)

	var sum int64
	var count int
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, batchID).Scan(&sum, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("sum movements: %w", err)
	}

	return types.NewQuantityFromInt64Scaled(sum), count, nil
}

// Turnover aggregates in/out totals for a product over a period.
func (r *MovementRepo) Turnover(ctx context.Context, organizationID string, productID id.ID, from, to time.Time) (ledger.Turnover, error) {
	sql := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(CASE WHEN direction = 'in' THEN quantity ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN direction = 'out' THEN quantity ELSE 0 END), 0)
		FROM %s
		WHERE organization_id = $1 AND product_id = $2
		  AND event_date >= $3 AND event_date <= $4
	`, movementsTable)

	var in, out int64
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, organizationID, productID, from, to).Scan(&in, &out)
	if err != nil {
		return ledger.Turnover{}, fmt.Errorf("turnover: %w", err)
	}

	t := ledger.Turnover{
		ProductID: productID,
		FromDate:  from,
		ToDate:    to,
		In:        types.NewQuantityFromInt64Scaled(in),
		Out:       types.NewQuantityFromInt64Scaled(out),
	}
	t.Net = t.In - t.Out

	return t, nil
}

// Compile-time check that MovementRepo implements ledger.Repository.
var _ ledger.Repository = (*MovementRepo)(nil)
