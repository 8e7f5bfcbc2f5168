package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopsphere-backend/internal/inventory"
	"github.com/angelmondragon/shopsphere-backend/internal/ledger"
	"github.com/angelmondragon/shopsphere-backend/internal/purchases"
	"github.com/angelmondragon/shopsphere-backend/internal/vendors"
	"github.com/angelmondragon/shopsphere-backend/pkg/config"
	"github.com/angelmondragon/shopsphere-backend/pkg/db"
	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopsphere-backend/pkg/errors"
	"github.com/angelmondragon/shopsphere-backend/pkg/lock"
	"github.com/angelmondragon/shopsphere-backend/pkg/logger"
	"github.com/angelmondragon/shopsphere-backend/pkg/metrics"
	"github.com/angelmondragon/shopsphere-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service coordinates the compound writes that touch the purchase log, the
// inventory store and the vendor ledger together.
type Service interface {
	PlacePurchase(ctx context.Context, input PlacePurchaseInput) (*PlacementResult, error)
	SettleCashIn(ctx context.Context, input CashInInput) (*CashInResult, error)
	GetOperation(ctx context.Context, id uuid.UUID) (*Operation, error)
}

// PlacePurchaseInput is a purchase on credit from a vendor.
type PlacePurchaseInput struct {
	VendorID  int64
	ProductID uuid.UUID
	Quantity  int64
	UnitPrice int64
	Note      string
	Actor     *outbox.ActorRef
}

// CashInInput is a payment to a vendor against one of its purchases.
type CashInInput struct {
	VendorID   int64
	PurchaseID uuid.UUID
	Amount     int64
	Note       string
	Actor      *outbox.ActorRef
}

// PlacementResult is returned by PlacePurchase.
type PlacementResult struct {
	OperationID   uuid.UUID        `json:"operation_id"`
	Purchase      *models.Purchase `json:"purchase"`
	LedgerBalance int64            `json:"ledger_balance"`
}

// CashInResult is returned by SettleCashIn.
type CashInResult struct {
	OperationID   uuid.UUID        `json:"operation_id"`
	LedgerBalance int64            `json:"ledger_balance"`
	Purchase      *models.Purchase `json:"purchase"`
}

// Operation is the journal view of a compound operation.
type Operation struct {
	ID             uuid.UUID              `json:"id"`
	Kind           enums.SettlementKind   `json:"kind"`
	Status         enums.SettlementStatus `json:"status"`
	VendorID       int64                  `json:"vendor_id"`
	PurchaseID     *uuid.UUID             `json:"purchase_id,omitempty"`
	CompletedSteps []enums.SettlementStep `json:"completed_steps"`
	LastError      *string                `json:"last_error,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// ServiceParams wires the settlement service.
type ServiceParams struct {
	DB         txRunner
	Config     config.SettlementConfig
	Vendors    vendors.Service
	Inventory  inventory.Service
	Purchases  purchases.Service
	Ledger     ledger.Service
	Operations Repository
	Outbox     outbox.Emitter
	Locker     lock.Locker
	Logger     *logger.Logger
	Metrics    *metrics.SettlementMetrics
}

type service struct {
	db         txRunner
	cfg        config.SettlementConfig
	vendors    vendors.Service
	inventory  inventory.Service
	purchases  purchases.Service
	ledger     ledger.Service
	operations Repository
	outbox     outbox.Emitter
	locker     lock.Locker
	logg       *logger.Logger
	metrics    *metrics.SettlementMetrics
	now        func() time.Time
}

// NewService validates dependencies and returns the settlement service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Vendors == nil {
		return nil, fmt.Errorf("vendor service required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Purchases == nil {
		return nil, fmt.Errorf("purchase service required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Operations == nil {
		return nil, fmt.Errorf("operations repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("vendor locker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		db:         params.DB,
		cfg:        params.Config,
		vendors:    params.Vendors,
		inventory:  params.Inventory,
		purchases:  params.Purchases,
		ledger:     params.Ledger,
		operations: params.Operations,
		outbox:     params.Outbox,
		locker:     params.Locker,
		logg:       params.Logger,
		metrics:    params.Metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) PlacePurchase(ctx context.Context, input PlacePurchaseInput) (*PlacementResult, error) {
	total, err := purchases.TotalPrice(input.Quantity, input.UnitPrice)
	if err != nil {
		return nil, withApplied(err, nil)
	}
	if input.VendorID <= 0 {
		return nil, withApplied(pkgerrors.New(pkgerrors.CodeValidation, "vendor is required"), nil)
	}
	if input.ProductID == uuid.Nil {
		return nil, withApplied(pkgerrors.New(pkgerrors.CodeValidation, "product is required"), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, withApplied(pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "request cancelled before start"), nil)
	}

	release, err := s.lockVendor(ctx, input.VendorID)
	if err != nil {
		return nil, withApplied(err, nil)
	}
	defer release()

	ok, err := s.vendors.Exists(ctx, input.VendorID)
	if err != nil {
		return nil, withApplied(err, nil)
	}
	if !ok {
		return nil, withApplied(pkgerrors.New(pkgerrors.CodeValidation, "vendor does not exist").
			WithDetails(map[string]any{"vendor": input.VendorID}), nil)
	}
	ok, err = s.inventory.Exists(ctx, input.ProductID)
	if err != nil {
		return nil, withApplied(err, nil)
	}
	if !ok {
		return nil, withApplied(pkgerrors.New(pkgerrors.CodeValidation, "product does not exist").
			WithDetails(map[string]any{"product": input.ProductID}), nil)
	}

	purchaseID := uuid.New()
	result := &PlacementResult{}
	op := &operation{
		kind:       enums.SettlementKindPlacePurchase,
		vendorID:   input.VendorID,
		purchaseID: &purchaseID,
		request:    input,
	}
	op.steps = []step{
		{
			name: enums.StepRecordPurchase,
			apply: func(ctx context.Context, tx *gorm.DB) error {
				purchase, err := s.purchases.RecordTx(ctx, tx, purchases.RecordInput{
					ID:        purchaseID,
					VendorID:  input.VendorID,
					ProductID: input.ProductID,
					Quantity:  input.Quantity,
					UnitPrice: input.UnitPrice,
					Note:      input.Note,
				})
				if err != nil {
					return err
				}
				result.Purchase = purchase
				return nil
			},
			undo: func(ctx context.Context, tx *gorm.DB) error {
				_, err := s.purchases.MarkFailedTx(ctx, tx, purchaseID)
				return err
			},
		},
		{
			name: enums.StepIncreaseInventory,
			apply: func(ctx context.Context, tx *gorm.DB) error {
				_, err := s.inventory.IncreaseQuantityTx(ctx, tx, input.ProductID, input.Quantity)
				return err
			},
			undo: func(ctx context.Context, tx *gorm.DB) error {
				_, err := s.inventory.DecreaseQuantityTx(ctx, tx, input.ProductID, input.Quantity)
				return err
			},
		},
	}
	// A free purchase moves stock but not the balance.
	if total > 0 {
		op.steps = append(op.steps, step{
			name: enums.StepPostDebit,
			apply: func(ctx context.Context, tx *gorm.DB) error {
				_, err := s.ledger.PostEntryTx(ctx, tx, ledger.PostEntryInput{
					VendorID:   input.VendorID,
					Kind:       enums.LedgerEntryDebit,
					Amount:     total,
					ProductID:  &input.ProductID,
					PurchaseID: &purchaseID,
					Note:       input.Note,
				})
				return err
			},
			undo: func(ctx context.Context, tx *gorm.DB) error {
				_, err := s.ledger.PostEntryTx(ctx, tx, ledger.PostEntryInput{
					VendorID:   input.VendorID,
					Kind:       enums.LedgerEntryCredit,
					Amount:     total,
					ProductID:  &input.ProductID,
					PurchaseID: &purchaseID,
					Note:       "reversal of purchase " + purchaseID.String(),
				})
				return err
			},
		})
	}
	op.finalize = func(ctx context.Context, tx *gorm.DB, operationID uuid.UUID) error {
		balance, err := s.ledger.GetBalanceTx(ctx, tx, input.VendorID)
		if err != nil {
			return err
		}
		result.LedgerBalance = balance
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPurchasePlaced,
			AggregateType: enums.AggregateVendorLedger,
			AggregateID:   purchaseID,
			Actor:         input.Actor,
			Data:          purchasePlacedPayload(operationID, result.Purchase, balance),
		})
	}

	operationID, err := s.execute(ctx, op)
	if err != nil {
		return nil, err
	}
	result.OperationID = operationID
	return result, nil
}

func (s *service) SettleCashIn(ctx context.Context, input CashInInput) (*CashInResult, error) {
	if input.VendorID <= 0 {
		return nil, withApplied(pkgerrors.New(pkgerrors.CodeValidation, "vendor is required"), nil)
	}
	if input.PurchaseID == uuid.Nil {
		return nil, withApplied(pkgerrors.New(pkgerrors.CodeValidation, "purchase_ref is required"), nil)
	}
	if input.Amount <= 0 {
		return nil, withApplied(pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero").
			WithDetails(map[string]any{"amount": input.Amount}), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, withApplied(pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "request cancelled before start"), nil)
	}

	release, err := s.lockVendor(ctx, input.VendorID)
	if err != nil {
		return nil, withApplied(err, nil)
	}
	defer release()

	// Checked under the vendor lock so a concurrent settlement of the same
	// purchase is seen before any credit is posted.
	purchase, err := s.purchases.Get(ctx, input.PurchaseID)
	if err != nil {
		return nil, withApplied(err, nil)
	}
	if purchase.VendorID != input.VendorID {
		return nil, withApplied(pkgerrors.New(pkgerrors.CodeValidation, "purchase belongs to another vendor").
			WithDetails(map[string]any{"purchase_ref": input.PurchaseID, "vendor": input.VendorID}), nil)
	}
	if purchase.Status != enums.PurchaseStatusUnpaid {
		return nil, withApplied(pkgerrors.New(pkgerrors.CodeStateConflict, "purchase is already "+string(purchase.Status)).
			WithDetails(map[string]any{"purchase_ref": input.PurchaseID, "status": purchase.Status}), nil)
	}

	purchaseID := purchase.ID
	productID := purchase.ProductID
	result := &CashInResult{}
	op := &operation{
		kind:       enums.SettlementKindSettleCashIn,
		vendorID:   input.VendorID,
		purchaseID: &purchaseID,
		request:    input,
	}
	op.steps = []step{
		{
			name: enums.StepPostCredit,
			apply: func(ctx context.Context, tx *gorm.DB) error {
				posted, err := s.ledger.PostEntryTx(ctx, tx, ledger.PostEntryInput{
					VendorID:   input.VendorID,
					Kind:       enums.LedgerEntryCredit,
					Amount:     input.Amount,
					ProductID:  &productID,
					PurchaseID: &purchaseID,
					Note:       input.Note,
				})
				if err != nil {
					return err
				}
				result.LedgerBalance = posted.Balance
				return nil
			},
			undo: func(ctx context.Context, tx *gorm.DB) error {
				_, err := s.ledger.PostEntryTx(ctx, tx, ledger.PostEntryInput{
					VendorID:   input.VendorID,
					Kind:       enums.LedgerEntryDebit,
					Amount:     input.Amount,
					ProductID:  &productID,
					PurchaseID: &purchaseID,
					Note:       "reversal of cash-in for purchase " + purchaseID.String(),
				})
				return err
			},
		},
		{
			name: enums.StepMarkPaid,
			apply: func(ctx context.Context, tx *gorm.DB) error {
				paid, err := s.purchases.MarkPaidTx(ctx, tx, purchaseID)
				if err != nil {
					return err
				}
				result.Purchase = paid
				return nil
			},
		},
	}
	op.finalize = func(ctx context.Context, tx *gorm.DB, operationID uuid.UUID) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCashInSettled,
			AggregateType: enums.AggregateVendorLedger,
			AggregateID:   purchaseID,
			Actor:         input.Actor,
			Data:          cashInSettledPayload(operationID, input, result.LedgerBalance),
		})
	}

	operationID, err := s.execute(ctx, op)
	if err != nil {
		return nil, err
	}
	result.OperationID = operationID
	return result, nil
}

func (s *service) GetOperation(ctx context.Context, id uuid.UUID) (*Operation, error) {
	row, err := s.operations.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement operation not found")
	}
	if err != nil {
		return nil, db.Classify(err, "load settlement operation")
	}
	return toOperation(row)
}

// lockVendor takes the per-vendor lock shared with the ledger. The returned
// release ignores request cancellation so the lock is always handed back.
func (s *service) lockVendor(ctx context.Context, vendorID int64) (func(), error) {
	held, err := s.locker.Obtain(ctx, ledger.VendorLockKey(vendorID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "vendor ledger is busy").
			WithDetails(map[string]any{"vendor": vendorID})
	}
	return func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "vendor lock release failed")
		}
	}, nil
}

func (s *service) mode() string {
	if s.cfg.IsSaga() {
		return config.SettlementModeSaga
	}
	return config.SettlementModeTransactional
}

func toOperation(row *models.SettlementOperation) (*Operation, error) {
	steps, err := DecodeSteps(row.CompletedSteps)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode completed steps")
	}
	return &Operation{
		ID:             row.ID,
		Kind:           row.Kind,
		Status:         row.Status,
		VendorID:       row.VendorID,
		PurchaseID:     row.PurchaseID,
		CompletedSteps: steps,
		LastError:      row.LastError,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}
