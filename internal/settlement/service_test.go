package settlement

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopsphere-backend/internal/inventory"
	"github.com/angelmondragon/shopsphere-backend/internal/ledger"
	"github.com/angelmondragon/shopsphere-backend/internal/purchases"
	"github.com/angelmondragon/shopsphere-backend/internal/vendors"
	"github.com/angelmondragon/shopsphere-backend/pkg/config"
	"github.com/angelmondragon/shopsphere-backend/pkg/db"
	"github.com/angelmondragon/shopsphere-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopsphere-backend/pkg/errors"
	"github.com/angelmondragon/shopsphere-backend/pkg/lock"
	"github.com/angelmondragon/shopsphere-backend/pkg/logger"
	"github.com/angelmondragon/shopsphere-backend/pkg/metrics"
	"github.com/angelmondragon/shopsphere-backend/pkg/outbox"
)

type fixture struct {
	svc       Service
	client    *db.Client
	ledger    ledger.Service
	purchases purchases.Service
	inventory inventory.Service
	vendorID  int64
	productID uuid.UUID
}

type overrides struct {
	ledger    func(ledger.Service) ledger.Service
	inventory func(inventory.Service) inventory.Service
}

func newFixture(t *testing.T, mode string, o overrides) fixture {
	t.Helper()
	client := dbtest.Open(t)
	locker := lock.NewLocalLocker(5 * time.Second)

	ledgerSvc, err := ledger.NewService(client, ledger.NewRepository(client.DB()), locker)
	require.NoError(t, err)
	inventorySvc, err := inventory.NewService(client, inventory.NewRepository(client.DB()))
	require.NoError(t, err)
	purchaseSvc, err := purchases.NewService(purchases.NewRepository(client.DB()))
	require.NoError(t, err)
	vendorSvc, err := vendors.NewService(vendors.NewRepository(client.DB()))
	require.NoError(t, err)

	var ledgerDep ledger.Service = ledgerSvc
	if o.ledger != nil {
		ledgerDep = o.ledger(ledgerSvc)
	}
	var inventoryDep inventory.Service = inventorySvc
	if o.inventory != nil {
		inventoryDep = o.inventory(inventorySvc)
	}

	logg := logger.New(logger.Options{ServiceName: "settlement-test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		DB: client,
		Config: config.SettlementConfig{
			Mode:          mode,
			StepRetries:   3,
			StepRetryBase: time.Millisecond,
		},
		Vendors:    vendorSvc,
		Inventory:  inventoryDep,
		Purchases:  purchaseSvc,
		Ledger:     ledgerDep,
		Operations: NewRepository(client.DB()),
		Outbox:     outbox.NewService(outbox.NewRepository(client.DB()), logg),
		Locker:     locker,
		Logger:     logg,
		Metrics:    metrics.NewSettlementMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)

	vendor := models.Vendor{Name: "Acme Supplies"}
	require.NoError(t, client.DB().Create(&vendor).Error)
	product := models.Product{ID: uuid.New(), Name: "Widget", Quantity: 3}
	require.NoError(t, client.DB().Create(&product).Error)

	return fixture{
		svc:       svc,
		client:    client,
		ledger:    ledgerSvc,
		purchases: purchaseSvc,
		inventory: inventorySvc,
		vendorID:  vendor.ID,
		productID: product.ID,
	}
}

func (f fixture) quantity(t *testing.T) int64 {
	t.Helper()
	product, err := f.inventory.Get(context.Background(), f.productID)
	require.NoError(t, err)
	return product.Quantity
}

func (f fixture) balance(t *testing.T) int64 {
	t.Helper()
	balance, err := f.ledger.GetBalance(context.Background(), f.vendorID)
	require.NoError(t, err)
	return balance
}

func (f fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(model).Count(&n).Error)
	return n
}

func errDetails(t *testing.T, err error) map[string]any {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok, "expected map details, got %T", typed.Details())
	return details
}

var modes = []string{config.SettlementModeTransactional, config.SettlementModeSaga}

func TestPurchaseThenCashInScenario(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t, mode, overrides{})
			ctx := context.Background()

			placed, err := f.svc.PlacePurchase(ctx, PlacePurchaseInput{
				VendorID:  f.vendorID,
				ProductID: f.productID,
				Quantity:  10,
				UnitPrice: 5,
				Note:      "restock",
			})
			require.NoError(t, err)
			assert.Equal(t, int64(-50), placed.LedgerBalance)
			assert.Equal(t, enums.PurchaseStatusUnpaid, placed.Purchase.Status)
			assert.Equal(t, int64(50), placed.Purchase.TotalPrice)
			assert.Equal(t, int64(13), f.quantity(t))
			assert.Equal(t, int64(-50), f.balance(t))

			settled, err := f.svc.SettleCashIn(ctx, CashInInput{
				VendorID:   f.vendorID,
				PurchaseID: placed.Purchase.ID,
				Amount:     50,
				Note:       "cash",
			})
			require.NoError(t, err)
			assert.Equal(t, int64(0), settled.LedgerBalance)
			assert.Equal(t, enums.PurchaseStatusPaid, settled.Purchase.Status)
			assert.NotNil(t, settled.Purchase.PaidAt)

			_, err = f.svc.SettleCashIn(ctx, CashInInput{
				VendorID:   f.vendorID,
				PurchaseID: placed.Purchase.ID,
				Amount:     50,
			})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
			assert.Empty(t, errDetails(t, err)["applied"])
			assert.Equal(t, int64(0), f.balance(t))

			audit, err := f.ledger.VerifyAccount(ctx, f.vendorID)
			require.NoError(t, err)
			assert.True(t, audit.Consistent, audit.Inconsistencies)
			assert.Equal(t, int64(2), audit.EntryCount)

			assert.Equal(t, int64(2), f.count(t, &models.OutboxEvent{}))
			op, err := f.svc.GetOperation(ctx, settled.OperationID)
			require.NoError(t, err)
			assert.Equal(t, enums.SettlementStatusCommitted, op.Status)
			assert.Equal(t, []enums.SettlementStep{enums.StepPostCredit, enums.StepMarkPaid}, op.CompletedSteps)
		})
	}
}

func TestPlacePurchaseZeroQuantityWritesNothing(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t, mode, overrides{})

			_, err := f.svc.PlacePurchase(context.Background(), PlacePurchaseInput{
				VendorID:  f.vendorID,
				ProductID: f.productID,
				Quantity:  0,
				UnitPrice: 5,
			})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
			assert.Empty(t, errDetails(t, err)["applied"])

			assert.Equal(t, int64(3), f.quantity(t))
			assert.Equal(t, int64(0), f.balance(t))
			assert.Zero(t, f.count(t, &models.Purchase{}))
			assert.Zero(t, f.count(t, &models.SettlementOperation{}))
			assert.Zero(t, f.count(t, &models.LedgerAccount{}))
		})
	}
}

func TestPlacePurchaseRejectsUnknownReferences(t *testing.T) {
	f := newFixture(t, config.SettlementModeSaga, overrides{})
	ctx := context.Background()

	_, err := f.svc.PlacePurchase(ctx, PlacePurchaseInput{VendorID: f.vendorID + 100, ProductID: f.productID, Quantity: 1, UnitPrice: 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.PlacePurchase(ctx, PlacePurchaseInput{VendorID: f.vendorID, ProductID: uuid.New(), Quantity: 1, UnitPrice: 1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Zero(t, f.count(t, &models.SettlementOperation{}))
}

func TestFreePurchaseSkipsDebit(t *testing.T) {
	f := newFixture(t, config.SettlementModeTransactional, overrides{})

	placed, err := f.svc.PlacePurchase(context.Background(), PlacePurchaseInput{
		VendorID:  f.vendorID,
		ProductID: f.productID,
		Quantity:  4,
		UnitPrice: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), placed.LedgerBalance)
	assert.Equal(t, int64(7), f.quantity(t))
	assert.Zero(t, f.count(t, &models.LedgerEntry{}))

	op, err := f.svc.GetOperation(context.Background(), placed.OperationID)
	require.NoError(t, err)
	assert.Equal(t, []enums.SettlementStep{enums.StepRecordPurchase, enums.StepIncreaseInventory}, op.CompletedSteps)
}

func TestSettleCashInRejectsBadReferences(t *testing.T) {
	f := newFixture(t, config.SettlementModeTransactional, overrides{})
	ctx := context.Background()

	placed, err := f.svc.PlacePurchase(ctx, PlacePurchaseInput{VendorID: f.vendorID, ProductID: f.productID, Quantity: 1, UnitPrice: 9})
	require.NoError(t, err)

	other := models.Vendor{Name: "Other"}
	require.NoError(t, f.client.DB().Create(&other).Error)

	_, err = f.svc.SettleCashIn(ctx, CashInInput{VendorID: other.ID, PurchaseID: placed.Purchase.ID, Amount: 9})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.SettleCashIn(ctx, CashInInput{VendorID: f.vendorID, PurchaseID: uuid.New(), Amount: 9})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.SettleCashIn(ctx, CashInInput{VendorID: f.vendorID, PurchaseID: placed.Purchase.ID, Amount: 0})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Equal(t, int64(-9), f.balance(t))
	balance, err := f.ledger.GetBalance(ctx, other.ID)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestCancelledContextWritesNothing(t *testing.T) {
	f := newFixture(t, config.SettlementModeSaga, overrides{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.PlacePurchase(ctx, PlacePurchaseInput{VendorID: f.vendorID, ProductID: f.productID, Quantity: 2, UnitPrice: 2})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Zero(t, f.count(t, &models.Purchase{}))
	assert.Equal(t, int64(3), f.quantity(t))
}

func TestConcurrentPurchasesApplyEveryDeltaOnce(t *testing.T) {
	for _, mode := range modes {
		t.Run(mode, func(t *testing.T) {
			f := newFixture(t, mode, overrides{})
			second := models.Vendor{Name: "Second"}
			require.NoError(t, f.client.DB().Create(&second).Error)
			vendorIDs := []int64{f.vendorID, second.ID}

			const workers = 16
			var wg sync.WaitGroup
			errs := make(chan error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := f.svc.PlacePurchase(context.Background(), PlacePurchaseInput{
						VendorID:  vendorIDs[i%2],
						ProductID: f.productID,
						Quantity:  int64(i + 1),
						UnitPrice: 2,
					})
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			// 1+2+...+16 units on top of the initial 3.
			assert.Equal(t, int64(3+136), f.quantity(t))

			var total int64
			for _, vendorID := range vendorIDs {
				audit, err := f.ledger.VerifyAccount(context.Background(), vendorID)
				require.NoError(t, err)
				assert.True(t, audit.Consistent, audit.Inconsistencies)
				assert.Equal(t, int64(workers/2), audit.EntryCount)
				total += audit.Balance
			}
			assert.Equal(t, int64(-2*136), total)
		})
	}
}

// failingLedger fails postings of one kind. A negative budget fails forever.
type failingLedger struct {
	ledger.Service
	kind   enums.LedgerEntryKind
	err    error
	mu     sync.Mutex
	budget int
	calls  int
}

func (l *failingLedger) PostEntryTx(ctx context.Context, tx *gorm.DB, input ledger.PostEntryInput) (*ledger.PostingResult, error) {
	if input.Kind == l.kind {
		l.mu.Lock()
		l.calls++
		fail := l.budget != 0
		if l.budget > 0 {
			l.budget--
		}
		l.mu.Unlock()
		if fail {
			return nil, l.err
		}
	}
	return l.Service.PostEntryTx(ctx, tx, input)
}

type failingInventory struct {
	inventory.Service
	decreaseErr error
}

func (i *failingInventory) DecreaseQuantityTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int64) (int64, error) {
	if i.decreaseErr != nil {
		return 0, i.decreaseErr
	}
	return i.Service.DecreaseQuantityTx(ctx, tx, productID, delta)
}

func TestTransactionalModeRollsBackLateFailure(t *testing.T) {
	f := newFixture(t, config.SettlementModeTransactional, overrides{
		ledger: func(base ledger.Service) ledger.Service {
			return &failingLedger{Service: base, kind: enums.LedgerEntryDebit, budget: -1,
				err: pkgerrors.New(pkgerrors.CodeDependency, "ledger unavailable")}
		},
	})

	_, err := f.svc.PlacePurchase(context.Background(), PlacePurchaseInput{VendorID: f.vendorID, ProductID: f.productID, Quantity: 5, UnitPrice: 3})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Empty(t, errDetails(t, err)["applied"])

	assert.Equal(t, int64(3), f.quantity(t))
	assert.Zero(t, f.count(t, &models.Purchase{}))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))

	var row models.SettlementOperation
	require.NoError(t, f.client.DB().First(&row).Error)
	assert.Equal(t, enums.SettlementStatusFailed, row.Status)
	require.NotNil(t, row.LastError)
}

func TestSagaRetriesRecoverableStepErrors(t *testing.T) {
	flaky := &failingLedger{kind: enums.LedgerEntryDebit, budget: 2,
		err: pkgerrors.New(pkgerrors.CodeConcurrency, "ledger account changed concurrently")}
	f := newFixture(t, config.SettlementModeSaga, overrides{
		ledger: func(base ledger.Service) ledger.Service {
			flaky.Service = base
			return flaky
		},
	})

	placed, err := f.svc.PlacePurchase(context.Background(), PlacePurchaseInput{VendorID: f.vendorID, ProductID: f.productID, Quantity: 2, UnitPrice: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, flaky.calls)
	assert.Equal(t, int64(-20), placed.LedgerBalance)
	assert.Equal(t, int64(5), f.quantity(t))

	op, err := f.svc.GetOperation(context.Background(), placed.OperationID)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementStatusCommitted, op.Status)
	assert.Len(t, op.CompletedSteps, 3)
}

func TestSagaCompensatesCompletedSteps(t *testing.T) {
	f := newFixture(t, config.SettlementModeSaga, overrides{
		ledger: func(base ledger.Service) ledger.Service {
			return &failingLedger{Service: base, kind: enums.LedgerEntryDebit, budget: -1,
				err: pkgerrors.New(pkgerrors.CodeValidation, "balance would overflow")}
		},
	})
	ctx := context.Background()

	_, err := f.svc.PlacePurchase(ctx, PlacePurchaseInput{VendorID: f.vendorID, ProductID: f.productID, Quantity: 6, UnitPrice: 4})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details := errDetails(t, err)
	assert.Empty(t, details["applied"])
	assert.Equal(t, true, details["compensated"])

	assert.Equal(t, int64(3), f.quantity(t))
	assert.Equal(t, int64(0), f.balance(t))
	assert.Zero(t, f.count(t, &models.OutboxEvent{}))

	var purchase models.Purchase
	require.NoError(t, f.client.DB().First(&purchase).Error)
	assert.Equal(t, enums.PurchaseStatusFailed, purchase.Status)

	var row models.SettlementOperation
	require.NoError(t, f.client.DB().First(&row).Error)
	assert.Equal(t, enums.SettlementStatusCompensated, row.Status)
	steps, err := DecodeSteps(row.CompletedSteps)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestSagaReportsPartialApplicationWhenCompensationFails(t *testing.T) {
	f := newFixture(t, config.SettlementModeSaga, overrides{
		ledger: func(base ledger.Service) ledger.Service {
			return &failingLedger{Service: base, kind: enums.LedgerEntryDebit, budget: -1,
				err: pkgerrors.New(pkgerrors.CodeValidation, "balance would overflow")}
		},
		inventory: func(base inventory.Service) inventory.Service {
			return &failingInventory{Service: base, decreaseErr: errors.New("disk full")}
		},
	})

	_, err := f.svc.PlacePurchase(context.Background(), PlacePurchaseInput{VendorID: f.vendorID, ProductID: f.productID, Quantity: 6, UnitPrice: 4})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePartiallyApplied))
	details := errDetails(t, err)
	committed := []enums.SettlementStep{enums.StepRecordPurchase, enums.StepIncreaseInventory}
	assert.Equal(t, committed, details["committed_steps"])
	assert.NotNil(t, details["operation_id"])

	assert.Equal(t, int64(9), f.quantity(t))

	var row models.SettlementOperation
	require.NoError(t, f.client.DB().First(&row).Error)
	assert.Equal(t, enums.SettlementStatusNeedsReconciliation, row.Status)
	steps, err := DecodeSteps(row.CompletedSteps)
	require.NoError(t, err)
	assert.Equal(t, committed, steps)
	require.NotNil(t, row.LastError)
	assert.Contains(t, *row.LastError, "disk full")
}

func TestSagaCashInReversesCreditWhenMarkPaidFails(t *testing.T) {
	f := newFixture(t, config.SettlementModeSaga, overrides{})
	ctx := context.Background()

	placed, err := f.svc.PlacePurchase(ctx, PlacePurchaseInput{VendorID: f.vendorID, ProductID: f.productID, Quantity: 1, UnitPrice: 30})
	require.NoError(t, err)

	// Flip the purchase behind the service's back so the conditional
	// transition in mark_paid loses.
	svc := f.svc.(*service)
	svc.purchases = &racingPurchases{Service: svc.purchases}

	_, err = f.svc.SettleCashIn(ctx, CashInInput{VendorID: f.vendorID, PurchaseID: placed.Purchase.ID, Amount: 30})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, true, errDetails(t, err)["compensated"])

	assert.Equal(t, int64(-30), f.balance(t))
	audit, err := f.ledger.VerifyAccount(ctx, f.vendorID)
	require.NoError(t, err)
	assert.True(t, audit.Consistent, audit.Inconsistencies)
	assert.Equal(t, int64(3), audit.EntryCount)
}

type racingPurchases struct {
	purchases.Service
}

func (r *racingPurchases) MarkPaidTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Purchase, error) {
	if err := tx.Model(&models.Purchase{}).Where("id = ?", id).Update("status", enums.PurchaseStatusPaid).Error; err != nil {
		return nil, err
	}
	return r.Service.MarkPaidTx(ctx, tx, id)
}

func TestGetOperationNotFound(t *testing.T) {
	f := newFixture(t, config.SettlementModeTransactional, overrides{})
	_, err := f.svc.GetOperation(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
