package ledger

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/domain/batch"
	"lotledger/pkg/logger"
)

// Service is the single entry point for posting movements. Appending the
// ledger row and adjusting the batch balance happen in one transaction;
// either both persist or neither does.
type Service struct {
	repo      Repository
	batches   *batch.Registry
	txManager tx.ReadOnlyManager
}

// NewService creates a new ledger service.
func NewService(repo Repository, batches *batch.Registry, txManager tx.ReadOnlyManager) *Service {
	return &Service{
		repo:      repo,
		batches:   batches,
		txManager: txManager,
	}
}

// Post appends one movement and applies its delta to the batch balance.
// The unique index on (reference_type, reference_id, kind, batch_id) makes a
// second posting for the same business event fail with DuplicateMovement,
// regardless of which code path attempts it.
func (s *Service) Post(ctx context.Context, m *Movement) (id.ID, error) {
	if err := m.Validate(ctx); err != nil {
		return id.Nil(), err
	}

	if id.IsNil(m.ID) {
		m.ID = id.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.EventDate.IsZero() {
		m.EventDate = m.CreatedAt
	}

	err := s.txManager.RunSerializable(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, m); err != nil {
			return fmt.Errorf("append movement: %w", err)
		}
		if _, err := s.batches.ApplyDelta(ctx, m.BatchID, m.SignedQuantity()); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return id.Nil(), err
	}

	logger.Info(ctx, "movement posted",
		"movement_id", m.ID,
		"batch_id", m.BatchID,
		"kind", m.Kind,
		"direction", m.Direction,
		"quantity", m.Quantity,
	)

	return m.ID, nil
}

// PostAll posts a set of movements atomically. Used by receipt processing
// and by allocation callers committing a multi-batch plan.
func (s *Service) PostAll(ctx context.Context, movements []Movement) error {
	if len(movements) == 0 {
		return nil
	}

	for i := range movements {
		if err := movements[i].Validate(ctx); err != nil {
			return err
		}
		if id.IsNil(movements[i].ID) {
			movements[i].ID = id.New()
		}
		if movements[i].CreatedAt.IsZero() {
			movements[i].CreatedAt = time.Now().UTC()
		}
		if movements[i].EventDate.IsZero() {
			movements[i].EventDate = movements[i].CreatedAt
		}
	}

	return s.txManager.RunSerializable(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateAll(ctx, movements); err != nil {
			return fmt.Errorf("append movements: %w", err)
		}
		for i := range movements {
			if _, err := s.batches.ApplyDelta(ctx, movements[i].BatchID, movements[i].SignedQuantity()); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reconcile recomputes a batch's available quantity by folding its
// movements and compares it to the stored balance. Runs read-only so the
// stored balance and the fold come from one snapshot. Diagnostic only, not
// on the hot path.
func (s *Service) Reconcile(ctx context.Context, batchID id.ID) (Reconciliation, error) {
	var rec Reconciliation
	err := s.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		b, err := s.batches.GetByID(ctx, batchID)
		if err != nil {
			return err
		}

		signed, count, err := s.repo.SumSignedByBatch(ctx, batchID)
		if err != nil {
			return fmt.Errorf("fold movements: %w", err)
		}

		rec = Reconciliation{
			BatchID:           batchID,
			QuantityReceived:  b.QuantityReceived,
			StoredAvailable:   b.QuantityAvailable,
			ComputedAvailable: signed,
			MovementCount:     count,
			Consistent:        signed == b.QuantityAvailable,
		}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}

	if !rec.Consistent {
		logger.Warn(ctx, "batch balance drift detected",
			"batch_id", batchID,
			"stored", rec.StoredAvailable,
			"computed", rec.ComputedAvailable,
		)
	}

	return rec, nil
}

// ListByBatch returns the full movement history of a batch.
func (s *Service) ListByBatch(ctx context.Context, batchID id.ID) ([]Movement, error) {
	return s.repo.ListByBatch(ctx, batchID)
}

// ListByReference returns the movements caused by one business document.
func (s *Service) ListByReference(ctx context.Context, referenceType string, referenceID id.ID) ([]Movement, error) {
	return s.repo.ListByReference(ctx, referenceType, referenceID)
}

// History returns filtered movements for a product.
func (s *Service) History(ctx context.Context, organizationID string, productID id.ID, f HistoryFilter) ([]Movement, error) {
	return s.repo.History(ctx, organizationID, productID, f)
}

// GetTurnover aggregates in/out totals for a product over a period.
func (s *Service) GetTurnover(ctx context.Context, organizationID string, productID id.ID, from, to time.Time) (Turnover, error) {
	t, err := s.repo.Turnover(ctx, organizationID, productID, from, to)
	if err != nil {
		return Turnover{}, err
	}
	t.Net = t.In - t.Out
	return t, nil
}

// WriteOffExpired posts expiry write-off movements for every active batch of
// the organization whose expiry falls on or before the cutoff, and marks the
// batches expired. Listing and posting share one transaction, and each batch
// is re-read under a row lock so the write-off quantity is the balance at
// posting time, not the balance at listing time.
func (s *Service) WriteOffExpired(ctx context.Context, organizationID string, cutoff time.Time, referenceID id.ID) (int, error) {
	written := 0
	err := s.txManager.RunSerializable(ctx, func(ctx context.Context) error {
		written = 0
		expiring, err := s.batches.ListExpiring(ctx, organizationID, cutoff)
		if err != nil {
			return fmt.Errorf("list expiring: %w", err)
		}
		for i := range expiring {
			b, err := s.batches.GetByIDForUpdate(ctx, expiring[i].ID)
			if err != nil {
				return err
			}
			if b.QuantityAvailable.IsPositive() {
				m := &Movement{
					ID:             id.New(),
					OrganizationID: organizationID,
					BatchID:        b.ID,
					ProductID:      b.ProductID,
					Direction:      DirectionOut,
					Kind:           KindExpiryWriteoff,
					Quantity:       b.QuantityAvailable,
					EventDate:      cutoff,
					ReferenceType:  "expiry_run",
					ReferenceID:    referenceID,
					CreatedAt:      time.Now().UTC(),
				}
				if err := s.repo.Create(ctx, m); err != nil {
					return fmt.Errorf("append write-off: %w", err)
				}
				if _, err := s.batches.ApplyDelta(ctx, b.ID, m.SignedQuantity()); err != nil {
					return err
				}
				written++
			}
			if err := s.batches.MarkExpired(ctx, b.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if written > 0 {
		logger.Info(ctx, "expired batches written off",
			"organization_id", organizationID,
			"count", written,
		)
	}

	return written, nil
}
