// Package receipt turns a purchase order's ordered lines into received,
// batch-tracked stock. The whole receipt is one transaction: batch
// creations, movement postings and status updates commit together or not at
// all.
package receipt

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batch"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/purchase"
	"lotledger/pkg/logger"
)

// ReferenceTypePurchase tags movements caused by purchase receipts.
const ReferenceTypePurchase = "purchase"

// Line is one received line of a receipt request. BatchNumber, Expiry and
// MfgDate are optional supplier-document metadata overriding whatever the
// purchase item carries.
type Line struct {
	PurchaseItemID id.ID          `json:"purchaseItemId"`
	Quantity       types.Quantity `json:"quantity"`
	BatchNumber    string         `json:"batchNumber,omitempty"`
	Expiry         *time.Time     `json:"expiry,omitempty"`
	MfgDate        *time.Time     `json:"mfgDate,omitempty"`
}

// Result is the outcome of one receipt.
type Result struct {
	GRNNumber      string          `json:"grnNumber"`
	GRNDate        time.Time       `json:"grnDate"`
	PurchaseStatus purchase.Status `json:"purchaseStatus"`
	BatchesCreated []batch.Batch   `json:"batchesCreated"`
	MovementIDs    []id.ID         `json:"movementIds"`
}

// Auditor records receipt events for the audit trail. Optional.
type Auditor interface {
	LogChange(ctx context.Context, entityType string, entityID id.ID, action string, changes map[string]any) error
}

// Processor orchestrates purchase receipts.
type Processor struct {
	purchases purchase.Repository
	batches   *batch.Registry
	ledger    *ledger.Service
	txManager tx.Manager
	auditor   Auditor
}

// NewProcessor creates a receipt processor. auditor may be nil.
func NewProcessor(
	purchases purchase.Repository,
	batches *batch.Registry,
	ledgerSvc *ledger.Service,
	txManager tx.Manager,
	auditor Auditor,
) *Processor {
	return &Processor{
		purchases: purchases,
		batches:   batches,
		ledger:    ledgerSvc,
		txManager: txManager,
		auditor:   auditor,
	}
}

// Process receives the given lines against a purchase. The purchase must be
// in status ordered or partially_received; a fully received purchase fails
// with AlreadyReceived. Any failure rolls the whole receipt back.
func (p *Processor) Process(ctx context.Context, purchaseID id.ID, lines []Line) (*Result, error) {
	if len(lines) == 0 {
		return nil, apperror.NewValidation("receipt requires at least one line")
	}

	var result *Result
	err := p.txManager.RunSerializable(ctx, func(ctx context.Context) error {
		var err error
		result, err = p.process(ctx, purchaseID, lines)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase received",
		"purchase_id", purchaseID,
		"grn_number", result.GRNNumber,
		"status", result.PurchaseStatus,
		"batches_created", len(result.BatchesCreated),
		"movements", len(result.MovementIDs),
	)

	return result, nil
}

func (p *Processor) process(ctx context.Context, purchaseID id.ID, lines []Line) (*Result, error) {
	// Row lock on the header closes the race between checking and setting
	// the status across concurrent receipts of the same purchase.
	doc, err := p.purchases.GetByIDForUpdate(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	if doc.Status == purchase.StatusReceived {
		return nil, apperror.NewAlreadyReceived(purchaseID.String())
	}

	items := make(map[id.ID]*purchase.PurchaseItem, len(doc.Items))
	for i := range doc.Items {
		items[doc.Items[i].ID] = &doc.Items[i]
	}

	if err := validateLines(items, lines); err != nil {
		return nil, err
	}

	receiptDate := time.Now().UTC()
	result := &Result{GRNDate: receiptDate}
	movements := make([]ledger.Movement, 0, len(lines))

	for _, line := range lines {
		item := items[line.PurchaseItemID]

		b, created, err := p.resolveBatch(ctx, doc, item, line, receiptDate)
		if err != nil {
			return nil, err
		}
		if created {
			result.BatchesCreated = append(result.BatchesCreated, *b)
		}

		movements = append(movements, ledger.Movement{
			OrganizationID: doc.OrganizationID,
			BatchID:        b.ID,
			ProductID:      item.ProductID,
			Direction:      ledger.DirectionIn,
			Kind:           ledger.KindPurchase,
			Quantity:       line.Quantity,
			EventDate:      receiptDate,
			ReferenceType:  ReferenceTypePurchase,
			ReferenceID:    purchaseID,
		})

		item.QuantityReceived += line.Quantity
		item.BatchID = b.ID
		if item.IsFullyReceived() {
			item.Status = purchase.ItemStatusReceived
		} else {
			item.Status = purchase.ItemStatusPartiallyReceived
		}
		item.Touch()
		if err := p.purchases.UpdateItem(ctx, item); err != nil {
			return nil, fmt.Errorf("update purchase item: %w", err)
		}
	}

	// All lines post as one bulk append; the COPY fast path kicks in since
	// the receipt transaction is in context.
	if err := p.ledger.PostAll(ctx, movements); err != nil {
		return nil, err
	}
	for i := range movements {
		result.MovementIDs = append(result.MovementIDs, movements[i].ID)
	}

	doc.Status = doc.DeriveStatus()
	doc.GRNNumber = "GRN-" + doc.Number
	doc.GRNDate = &receiptDate
	doc.Touch()
	if err := p.purchases.UpdateStatus(ctx, doc); err != nil {
		return nil, fmt.Errorf("update purchase status: %w", err)
	}

	result.GRNNumber = doc.GRNNumber
	result.PurchaseStatus = doc.Status

	if p.auditor != nil {
		changes := map[string]any{
			"grn_number":      doc.GRNNumber,
			"status":          doc.Status,
			"lines":           len(lines),
			"batches_created": len(result.BatchesCreated),
		}
		if err := p.auditor.LogChange(ctx, "purchase", purchaseID, "receive", changes); err != nil {
			return nil, fmt.Errorf("audit receipt: %w", err)
		}
	}

	return result, nil
}

// validateLines checks every line before any mutation happens: unknown
// items, non-positive or over-receipt quantities, and the same caller
// supplied batch number on two lines (which would collapse two movements
// onto one exactly-once key) all fail the whole receipt.
func validateLines(items map[id.ID]*purchase.PurchaseItem, lines []Line) error {
	seenNumbers := make(map[string]struct{}, len(lines))
	seenItems := make(map[id.ID]types.Quantity, len(lines))

	for i, line := range lines {
		item, ok := items[line.PurchaseItemID]
		if !ok {
			return apperror.NewValidation("line refers to unknown purchase item").
				WithDetail("line", i).
				WithDetail("purchase_item_id", line.PurchaseItemID.String())
		}

		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("received quantity must be positive").
				WithDetail("line", i).
				WithDetail("value", line.Quantity.Float64())
		}

		pending := seenItems[line.PurchaseItemID] + line.Quantity
		seenItems[line.PurchaseItemID] = pending
		if pending > item.Outstanding() {
			return apperror.NewOverReceipt(
				item.ID.String(),
				pending.Float64(),
				item.Outstanding().Float64(),
			)
		}

		if line.BatchNumber != "" {
			if _, dup := seenNumbers[line.BatchNumber]; dup {
				return apperror.NewValidation("duplicate batch number across receipt lines").
					WithDetail("batch_number", line.BatchNumber)
			}
			seenNumbers[line.BatchNumber] = struct{}{}
		}
	}

	return nil
}

// resolveBatch finds or creates the batch for a line. Metadata priority:
// the receipt line overrides the purchase item, which overrides defaults.
func (p *Processor) resolveBatch(ctx context.Context, doc *purchase.Purchase, item *purchase.PurchaseItem, line Line, receiptDate time.Time) (*batch.Batch, bool, error) {
	number := line.BatchNumber
	if number == "" {
		number = item.BatchNumber
	}
	expiry := line.Expiry
	if expiry == nil {
		expiry = item.Expiry
	}
	mfgDate := line.MfgDate
	if mfgDate == nil {
		mfgDate = item.MfgDate
	}

	return p.batches.ResolveOrCreate(ctx, batch.CreateInput{
		OrganizationID: doc.OrganizationID,
		ProductID:      item.ProductID,
		PurchaseID:     doc.ID,
		ReceiptDate:    receiptDate,
		Number:         number,
		Expiry:         expiry,
		MfgDate:        mfgDate,
		Quantity:       line.Quantity,
		UnitCost:       item.UnitCost,
		UnitPrice:      item.UnitPrice,
	})
}
