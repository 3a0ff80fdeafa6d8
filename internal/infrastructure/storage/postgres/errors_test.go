package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"lotledger/internal/core/apperror"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert batch: %w", &pgconn.PgError{
		Code:           CodeUniqueViolation,
		ConstraintName: "uq_batches_org_product_number",
	})

	if !IsUniqueViolation(err, "") {
		t.Error("any-constraint match must detect a wrapped unique violation")
	}
	if !IsUniqueViolation(err, "uq_batches_org_product_number") {
		t.Error("exact constraint match failed")
	}
	if IsUniqueViolation(err, "uq_movements_reference") {
		t.Error("matched the wrong constraint")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Error("non-pg error must not match")
	}
}

func TestIsSerializationFailure(t *testing.T) {
	for _, code := range []string{CodeSerializationFail, CodeDeadlockDetected} {
		err := fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: code})
		if !IsSerializationFailure(err) {
			t.Errorf("code %s must be retryable", code)
		}
	}

	if IsSerializationFailure(fmt.Errorf("%w", &pgconn.PgError{Code: CodeUniqueViolation})) {
		t.Error("unique violation is not retryable")
	}
	if IsSerializationFailure(nil) {
		t.Error("nil is not a serialization failure")
	}
}

func TestRetrySerializable(t *testing.T) {
	serErr := fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: CodeSerializationFail})

	t.Run("succeeds after aborts", func(t *testing.T) {
		calls := 0
		err := retrySerializable(context.Background(), 3, func() error {
			calls++
			if calls < 3 {
				return serErr
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected success on third attempt, got %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("non-retryable error surfaces unchanged", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		err := retrySerializable(context.Background(), 3, func() error {
			calls++
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected original error, got %v", err)
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1 without retry", calls)
		}
	})

	t.Run("exhausted budget maps to conflict", func(t *testing.T) {
		calls := 0
		err := retrySerializable(context.Background(), 3, func() error {
			calls++
			return serErr
		})
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
		if !apperror.HasCode(err, apperror.CodeConcurrentModification) {
			t.Fatalf("expected concurrent modification, got %v", err)
		}
		if !errors.Is(err, serErr) {
			t.Error("mapped error must keep the database cause in its chain")
		}
	})
}
