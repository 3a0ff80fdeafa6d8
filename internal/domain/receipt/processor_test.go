package receipt

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/batchnum"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batch"
	"lotledger/internal/domain/guard"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/purchase"
)

type fakeTxManager struct{}

func (fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fakeTxManager) RunSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (fakeTxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// --- in-memory purchase repository ---

type fakePurchaseRepo struct {
	mu        sync.Mutex
	purchases map[id.ID]*purchase.Purchase
}

func newFakePurchaseRepo() *fakePurchaseRepo {
	return &fakePurchaseRepo{purchases: make(map[id.ID]*purchase.Purchase)}
}

func clonePurchase(p *purchase.Purchase) *purchase.Purchase {
	cp := *p
	cp.Items = make([]purchase.PurchaseItem, len(p.Items))
	copy(cp.Items, p.Items)
	return &cp
}

func (f *fakePurchaseRepo) Create(ctx context.Context, p *purchase.Purchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchases[p.ID] = clonePurchase(p)
	return nil
}

func (f *fakePurchaseRepo) GetByID(ctx context.Context, purchaseID id.ID) (*purchase.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.purchases[purchaseID]
	if !ok {
		return nil, apperror.NewNotFound("purchase", purchaseID)
	}
	return clonePurchase(p), nil
}

func (f *fakePurchaseRepo) GetByIDForUpdate(ctx context.Context, purchaseID id.ID) (*purchase.Purchase, error) {
	return f.GetByID(ctx, purchaseID)
}

func (f *fakePurchaseRepo) UpdateItem(ctx context.Context, item *purchase.PurchaseItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.purchases[item.PurchaseID]
	if !ok {
		return apperror.NewNotFound("purchase", item.PurchaseID)
	}
	for i := range p.Items {
		if p.Items[i].ID == item.ID {
			p.Items[i] = *item
			return nil
		}
	}
	return apperror.NewNotFound("purchase item", item.ID)
}

func (f *fakePurchaseRepo) UpdateStatus(ctx context.Context, p *purchase.Purchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.purchases[p.ID]
	if !ok {
		return apperror.NewNotFound("purchase", p.ID)
	}
	stored.Status = p.Status
	stored.GRNNumber = p.GRNNumber
	stored.GRNDate = p.GRNDate
	stored.Version = p.Version
	return nil
}

func (f *fakePurchaseRepo) List(ctx context.Context, organizationID string, _ purchase.ListFilter) ([]purchase.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []purchase.Purchase
	for _, p := range f.purchases {
		if p.OrganizationID == organizationID {
			out = append(out, *clonePurchase(p))
		}
	}
	return out, nil
}

// --- in-memory batch repository ---

type fakeBatchRepo struct {
	mu      sync.Mutex
	batches map[id.ID]*batch.Batch
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: make(map[id.ID]*batch.Batch)}
}

func (f *fakeBatchRepo) Create(ctx context.Context, b *batch.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.batches {
		if existing.OrganizationID == b.OrganizationID &&
			existing.ProductID == b.ProductID && existing.Number == b.Number {
			return apperror.NewDuplicateBatchNumber(b.ProductID.String(), b.Number)
		}
	}
	cp := *b
	f.batches[b.ID] = &cp
	return nil
}

func (f *fakeBatchRepo) GetByID(ctx context.Context, batchID id.ID) (*batch.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return nil, apperror.NewNotFound("batch", batchID)
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBatchRepo) GetByIDForUpdate(ctx context.Context, batchID id.ID) (*batch.Batch, error) {
	return f.GetByID(ctx, batchID)
}

func (f *fakeBatchRepo) GetByNumber(ctx context.Context, organizationID string, productID id.ID, number string) (*batch.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.batches {
		if b.OrganizationID == organizationID && b.ProductID == productID && b.Number == number {
			cp := *b
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("batch", number)
}

func (f *fakeBatchRepo) ExistsByNumber(ctx context.Context, organizationID string, productID id.ID, number string) (bool, error) {
	_, err := f.GetByNumber(ctx, organizationID, productID, number)
	if apperror.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeBatchRepo) UpdateBalance(ctx context.Context, batchID id.ID, received, available types.Quantity, status batch.Status, expectedVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return apperror.NewNotFound("batch", batchID)
	}
	if b.Version != expectedVersion {
		return apperror.NewConcurrentModification("batch", batchID)
	}
	b.QuantityReceived = received
	b.QuantityAvailable = available
	b.Status = status
	b.Version++
	return nil
}

func (f *fakeBatchRepo) UpdateStatus(ctx context.Context, batchID id.ID, status batch.Status, expectedVersion int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[batchID]
	if !ok {
		return apperror.NewNotFound("batch", batchID)
	}
	b.Status = status
	b.Version++
	return nil
}

func (f *fakeBatchRepo) ListByProduct(ctx context.Context, organizationID string, productID id.ID, _ batch.ListFilter) ([]batch.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []batch.Batch
	for _, b := range f.batches {
		if b.OrganizationID == organizationID && b.ProductID == productID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBatchRepo) ListByPurchase(ctx context.Context, purchaseID id.ID) ([]batch.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []batch.Batch
	for _, b := range f.batches {
		if b.PurchaseID == purchaseID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBatchRepo) FindForAllocation(ctx context.Context, organizationID string, productID id.ID) ([]batch.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []batch.Batch
	for _, b := range f.batches {
		if b.OrganizationID == organizationID && b.ProductID == productID && b.Status == batch.StatusActive {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiryDate.Before(out[j].ExpiryDate)
	})
	return out, nil
}

func (f *fakeBatchRepo) ListExpiring(ctx context.Context, organizationID string, cutoff time.Time) ([]batch.Batch, error) {
	return nil, nil
}

// --- in-memory ledger repository ---

type movementKey struct {
	refType string
	refID   id.ID
	kind    ledger.Kind
	batchID id.ID
}

type fakeLedgerRepo struct {
	mu        sync.Mutex
	movements []ledger.Movement
	byKey     map[movementKey]struct{}
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{byKey: make(map[movementKey]struct{})}
}

func (f *fakeLedgerRepo) Create(ctx context.Context, m *ledger.Movement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := movementKey{m.ReferenceType, m.ReferenceID, m.Kind, m.BatchID}
	if _, dup := f.byKey[key]; dup {
		return apperror.NewDuplicateMovement(m.ReferenceType, m.ReferenceID.String(), string(m.Kind))
	}
	f.byKey[key] = struct{}{}
	f.movements = append(f.movements, *m)
	return nil
}

func (f *fakeLedgerRepo) CreateAll(ctx context.Context, movements []ledger.Movement) error {
	for i := range movements {
		if err := f.Create(ctx, &movements[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeLedgerRepo) GetByID(ctx context.Context, movementID id.ID) (*ledger.Movement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.movements {
		if f.movements[i].ID == movementID {
			cp := f.movements[i]
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("movement", movementID)
}

func (f *fakeLedgerRepo) ListByBatch(ctx context.Context, batchID id.ID) ([]ledger.Movement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Movement
	for _, m := range f.movements {
		if m.BatchID == batchID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) ListByReference(ctx context.Context, referenceType string, referenceID id.ID) ([]ledger.Movement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Movement
	for _, m := range f.movements {
		if m.ReferenceType == referenceType && m.ReferenceID == referenceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) History(ctx context.Context, organizationID string, productID id.ID, _ ledger.HistoryFilter) ([]ledger.Movement, error) {
	return nil, nil
}

func (f *fakeLedgerRepo) SumSignedByBatch(ctx context.Context, batchID id.ID) (types.Quantity, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum types.Quantity
	count := 0
	for i := range f.movements {
		if f.movements[i].BatchID == batchID {
			sum += f.movements[i].SignedQuantity()
			count++
		}
	}
	return sum, count, nil
}

func (f *fakeLedgerRepo) Turnover(ctx context.Context, organizationID string, productID id.ID, from, to time.Time) (ledger.Turnover, error) {
	return ledger.Turnover{}, nil
}

// --- fixture ---

type fixture struct {
	processor *Processor
	purchases *fakePurchaseRepo
	ledgerRep *fakeLedgerRepo
	registry  *batch.Registry
	ledgerSvc *ledger.Service
}

func newFixture(t *testing.T, cfg guard.Config) *fixture {
	t.Helper()
	g, err := guard.New(cfg)
	if err != nil {
		t.Fatalf("guard.New: %v", err)
	}
	txm := fakeTxManager{}
	registry := batch.NewRegistry(newFakeBatchRepo(), g, batchnum.New())
	ledgerRepo := newFakeLedgerRepo()
	ledgerSvc := ledger.NewService(ledgerRepo, registry, txm)
	purchases := newFakePurchaseRepo()
	return &fixture{
		processor: NewProcessor(purchases, registry, ledgerSvc, txm, nil),
		purchases: purchases,
		ledgerRep: ledgerRepo,
		registry:  registry,
		ledgerSvc: ledgerSvc,
	}
}

func (fx *fixture) seedPurchase(t *testing.T, quantities ...int64) *purchase.Purchase {
	t.Helper()
	p := &purchase.Purchase{
		Document:   entity.NewDocument("org-1"),
		SupplierID: id.New(),
		Status:     purchase.StatusOrdered,
	}
	p.Number = "PO-1001"
	for _, q := range quantities {
		p.Items = append(p.Items, purchase.PurchaseItem{
			BaseEntity:      entity.NewBaseEntity(),
			PurchaseID:      p.ID,
			ProductID:       id.New(),
			QuantityOrdered: types.NewQuantityFromInt(q),
			UnitCost:        types.MustMoney("10"),
			UnitPrice:       types.MustMoney("15"),
			Status:          purchase.ItemStatusOrdered,
		})
	}
	if err := fx.purchases.Create(context.Background(), p); err != nil {
		t.Fatalf("seed purchase: %v", err)
	}
	return p
}

func TestReceiveFullPurchase(t *testing.T) {
	fx := newFixture(t, guard.DefaultConfig("org-1"))
	p := fx.seedPurchase(t, 250)

	res, err := fx.processor.Process(context.Background(), p.ID, []Line{
		{PurchaseItemID: p.Items[0].ID, Quantity: types.NewQuantityFromInt(250)},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if res.GRNNumber != "GRN-PO-1001" {
		t.Errorf("grn = %s, want GRN-PO-1001", res.GRNNumber)
	}
	if res.PurchaseStatus != purchase.StatusReceived {
		t.Errorf("status = %s, want received", res.PurchaseStatus)
	}
	if len(res.BatchesCreated) != 1 {
		t.Fatalf("batches created = %d, want 1", len(res.BatchesCreated))
	}
	if len(res.MovementIDs) != 1 {
		t.Fatalf("movements = %d, want 1", len(res.MovementIDs))
	}

	b, err := fx.registry.GetByID(context.Background(), res.BatchesCreated[0].ID)
	if err != nil {
		t.Fatalf("load batch: %v", err)
	}
	if b.QuantityAvailable != types.NewQuantityFromInt(250) {
		t.Errorf("available = %v, want 250", b.QuantityAvailable)
	}
	wantExpiry := res.GRNDate.AddDate(2, 0, 0)
	if !b.ExpiryDate.Equal(wantExpiry) {
		t.Errorf("expiry = %v, want receipt+2y %v", b.ExpiryDate, wantExpiry)
	}

	movements, _ := fx.ledgerRep.ListByBatch(context.Background(), b.ID)
	if len(movements) != 1 {
		t.Fatalf("got %d movements, want 1", len(movements))
	}
	m := movements[0]
	if m.Kind != ledger.KindPurchase || m.Direction != ledger.DirectionIn {
		t.Errorf("movement = %s/%s, want purchase/in", m.Kind, m.Direction)
	}
	if m.Quantity != types.NewQuantityFromInt(250) {
		t.Errorf("movement quantity = %v, want 250", m.Quantity)
	}

	rec, err := fx.ledgerSvc.Reconcile(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !rec.Consistent {
		t.Errorf("freshly received batch must reconcile")
	}
}

func TestReceiveAlreadyReceived(t *testing.T) {
	fx := newFixture(t, guard.DefaultConfig("org-1"))
	p := fx.seedPurchase(t, 100)

	lines := []Line{{PurchaseItemID: p.Items[0].ID, Quantity: types.NewQuantityFromInt(100)}}
	if _, err := fx.processor.Process(context.Background(), p.ID, lines); err != nil {
		t.Fatalf("first receipt: %v", err)
	}

	// A duplicate receipt fails the same way every time and posts nothing.
	for i := 0; i < 2; i++ {
		_, err := fx.processor.Process(context.Background(), p.ID, lines)
		if !apperror.HasCode(err, apperror.CodeAlreadyReceived) {
			t.Fatalf("attempt %d: expected already received, got %v", i+2, err)
		}
	}

	posted, _ := fx.ledgerRep.ListByReference(context.Background(), ReferenceTypePurchase, p.ID)
	if len(posted) != 1 {
		t.Fatalf("got %d movements, want exactly 1 after duplicate attempts", len(posted))
	}
}

func TestReceiveOverReceipt(t *testing.T) {
	fx := newFixture(t, guard.DefaultConfig("org-1"))
	p := fx.seedPurchase(t, 50)

	_, err := fx.processor.Process(context.Background(), p.ID, []Line{
		{PurchaseItemID: p.Items[0].ID, Quantity: types.NewQuantityFromInt(51)},
	})
	if !apperror.HasCode(err, apperror.CodeOverReceipt) {
		t.Fatalf("expected over-receipt, got %v", err)
	}

	// Over-receipt across two lines of the same item must also fail.
	_, err = fx.processor.Process(context.Background(), p.ID, []Line{
		{PurchaseItemID: p.Items[0].ID, Quantity: types.NewQuantityFromInt(30)},
		{PurchaseItemID: p.Items[0].ID, Quantity: types.NewQuantityFromInt(30)},
	})
	if !apperror.HasCode(err, apperror.CodeOverReceipt) {
		t.Fatalf("expected over-receipt across lines, got %v", err)
	}

	posted, _ := fx.ledgerRep.ListByReference(context.Background(), ReferenceTypePurchase, p.ID)
	if len(posted) != 0 {
		t.Fatalf("rejected receipts must post nothing, got %d movements", len(posted))
	}
}

func TestReceivePartialThenRemainder(t *testing.T) {
	fx := newFixture(t, guard.DefaultConfig("org-1"))
	p := fx.seedPurchase(t, 200)

	res, err := fx.processor.Process(context.Background(), p.ID, []Line{
		{PurchaseItemID: p.Items[0].ID, Quantity: types.NewQuantityFromInt(120), BatchNumber: "LOT-A"},
	})
	if err != nil {
		t.Fatalf("partial receipt: %v", err)
	}
	if res.PurchaseStatus != purchase.StatusPartiallyReceived {
		t.Errorf("status = %s, want partially_received", res.PurchaseStatus)
	}

	res2, err := fx.processor.Process(context.Background(), p.ID, []Line{
		{PurchaseItemID: p.Items[0].ID, Quantity: types.NewQuantityFromInt(80), BatchNumber: "LOT-B"},
	})
	if err != nil {
		t.Fatalf("remainder receipt: %v", err)
	}
	if res2.PurchaseStatus != purchase.StatusReceived {
		t.Errorf("status = %s, want received", res2.PurchaseStatus)
	}

	stored, _ := fx.purchases.GetByID(context.Background(), p.ID)
	if stored.Items[0].QuantityReceived != types.NewQuantityFromInt(200) {
		t.Errorf("item received = %v, want 200", stored.Items[0].QuantityReceived)
	}

	batches, _ := fx.registry.ListByPurchase(context.Background(), p.ID)
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
}

func TestReceiveMultiItem(t *testing.T) {
	fx := newFixture(t, guard.DefaultConfig("org-1"))
	p := fx.seedPurchase(t, 30, 70)

	res, err := fx.processor.Process(context.Background(), p.ID, []Line{
		{PurchaseItemID: p.Items[0].ID, Quantity: types.NewQuantityFromInt(30)},
		{PurchaseItemID: p.Items[1].ID, Quantity: types.NewQuantityFromInt(40)},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if res.PurchaseStatus != purchase.StatusPartiallyReceived {
		t.Errorf("status = %s, want partially_received", res.PurchaseStatus)
	}

	stored, _ := fx.purchases.GetByID(context.Background(), p.ID)
	if stored.Items[0].Status != purchase.ItemStatusReceived {
		t.Errorf("item 0 status = %s, want received", stored.Items[0].Status)
	}
	if stored.Items[1].Status != purchase.ItemStatusPartiallyReceived {
		t.Errorf("item 1 status = %s, want partially_received", stored.Items[1].Status)
	}
}

func TestReceiveDuplicateBatchNumberAcrossLines(t *testing.T) {
	fx := newFixture(t, guard.DefaultConfig("org-1"))
	p := fx.seedPurchase(t, 30, 70)

	_, err := fx.processor.Process(context.Background(), p.ID, []Line{
		{PurchaseItemID: p.Items[0].ID, Quantity: types.NewQuantityFromInt(30), BatchNumber: "LOT-X"},
		{PurchaseItemID: p.Items[1].ID, Quantity: types.NewQuantityFromInt(70), BatchNumber: "LOT-X"},
	})
	if !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReceiveExpiryMandatory(t *testing.T) {
	cfg := guard.DefaultConfig("org-1")
	cfg.ExpiryMandatory = true
	fx := newFixture(t, cfg)
	p := fx.seedPurchase(t, 10)

	_, err := fx.processor.Process(context.Background(), p.ID, []Line{
		{PurchaseItemID: p.Items[0].ID, Quantity: types.NewQuantityFromInt(10)},
	})
	if !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("expected validation error without expiry, got %v", err)
	}

	expiry := time.Now().AddDate(1, 0, 0)
	if _, err := fx.processor.Process(context.Background(), p.ID, []Line{
		{PurchaseItemID: p.Items[0].ID, Quantity: types.NewQuantityFromInt(10), Expiry: &expiry},
	}); err != nil {
		t.Fatalf("receipt with expiry: %v", err)
	}
}

func TestReceiveUnknownItem(t *testing.T) {
	fx := newFixture(t, guard.DefaultConfig("org-1"))
	p := fx.seedPurchase(t, 10)

	_, err := fx.processor.Process(context.Background(), p.ID, []Line{
		{PurchaseItemID: id.New(), Quantity: types.NewQuantityFromInt(5)},
	})
	if !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReceiveEmptyLines(t *testing.T) {
	fx := newFixture(t, guard.DefaultConfig("org-1"))
	p := fx.seedPurchase(t, 10)

	_, err := fx.processor.Process(context.Background(), p.ID, nil)
	if !apperror.HasCode(err, apperror.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
