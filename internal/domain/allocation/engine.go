// Package allocation provides FEFO batch selection for stock consumption.
// The engine produces a plan only; posting the resulting movements is the
// caller's responsibility, so availability checks and dry-run pricing can
// reuse allocation without side effects.
package allocation

import (
	"context"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batch"
	"lotledger/internal/domain/guard"
)

// Line is one step of an allocation plan: take Quantity from Batch.
type Line struct {
	BatchID     id.ID          `json:"batchId"`
	BatchNumber string         `json:"batchNumber"`
	Quantity    types.Quantity `json:"quantity"`

	// Overdraw marks the line that drives its batch negative (only under
	// the negative-stock override, only ever the last line).
	Overdraw bool `json:"overdraw,omitempty"`
}

// Plan is the result of one allocation. Advisory: balances may change before
// the caller posts, and posting re-verifies under row locks.
type Plan struct {
	ProductID id.ID          `json:"productId"`
	Requested types.Quantity `json:"requested"`
	Lines     []Line         `json:"lines"`
}

// Allocated returns the total quantity covered by the plan.
func (p Plan) Allocated() types.Quantity {
	var total types.Quantity
	for _, l := range p.Lines {
		total += l.Quantity
	}
	return total
}

// Engine walks batches in FEFO order and builds deduction plans.
type Engine struct {
	batches *batch.Registry
	guard   *guard.Guard
}

// NewEngine creates a new allocation engine.
func NewEngine(batches *batch.Registry, g *guard.Guard) *Engine {
	return &Engine{batches: batches, guard: g}
}

// Allocate selects batches for a requested quantity, earliest expiry first,
// creation time as tie-break. Fails with InsufficientStock when batches
// cannot cover the request and negative stock is disallowed; otherwise the
// final batch absorbs the shortfall and goes negative.
func (e *Engine) Allocate(ctx context.Context, organizationID string, productID id.ID, quantity types.Quantity) (Plan, error) {
	if !quantity.IsPositive() {
		return Plan{}, apperror.NewValidation("allocation quantity must be positive").
			WithDetail("field", "quantity").
			WithDetail("value", quantity.Float64())
	}

	candidates, err := e.batches.FindForAllocation(ctx, organizationID, productID)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{ProductID: productID, Requested: quantity}
	remaining := quantity

	for i := range candidates {
		if !remaining.IsPositive() {
			break
		}
		b := &candidates[i]
		if !b.QuantityAvailable.IsPositive() {
			continue
		}

		take := remaining.Min(b.QuantityAvailable)
		plan.Lines = append(plan.Lines, Line{
			BatchID:     b.ID,
			BatchNumber: b.Number,
			Quantity:    take,
		})
		remaining -= take
	}

	if remaining.IsPositive() {
		if !e.guard.AllowsNegativeStock() {
			return Plan{}, apperror.NewInsufficientStock(
				productID.String(),
				quantity.Float64(),
				(quantity - remaining).Float64(),
			)
		}

		// Overdraw the last candidate by the shortfall. With no batches at
		// all there is nothing to overdraw against, even with the override.
		if len(plan.Lines) == 0 {
			if len(candidates) == 0 {
				return Plan{}, apperror.NewInsufficientStock(productID.String(), quantity.Float64(), 0)
			}
			last := candidates[len(candidates)-1]
			plan.Lines = append(plan.Lines, Line{
				BatchID:     last.ID,
				BatchNumber: last.Number,
				Quantity:    remaining,
				Overdraw:    true,
			})
		} else {
			last := &plan.Lines[len(plan.Lines)-1]
			last.Quantity += remaining
			last.Overdraw = true
		}
	}

	return plan, nil
}
