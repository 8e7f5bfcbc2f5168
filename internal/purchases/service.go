package purchases

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/angelmondragon/shopsphere-backend/pkg/db"
	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopsphere-backend/pkg/errors"
	"github.com/angelmondragon/shopsphere-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the purchase log. Purchases are appended as unpaid and move to
// paid exactly once; failed is reserved for compensated placements.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*models.Purchase, error)
	RecordTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Purchase, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	GetTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Purchase, error)
	MarkPaid(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	MarkPaidTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Purchase, error)
	MarkFailedTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Purchase, error)
	ListByVendor(ctx context.Context, vendorID int64, params ListParams) (*ListResult, error)
	ListUnpaid(ctx context.Context, vendorID int64) ([]models.Purchase, error)
}

// RecordInput is the caller-supplied part of a purchase. The total is always
// derived.
type RecordInput struct {
	ID        uuid.UUID
	VendorID  int64
	ProductID uuid.UUID
	Quantity  int64
	UnitPrice int64
	Note      string
}

// ListParams filters a vendor's purchases.
type ListParams struct {
	Status     enums.PurchaseStatus
	Pagination pagination.Params
}

// ListResult is a page of purchases, newest first.
type ListResult struct {
	Purchases  []models.Purchase `json:"purchases"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires the purchase log.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("purchase repository required")
	}
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}, nil
}

// TotalPrice returns quantity × unitPrice, rejecting inputs the log would not accept.
func TotalPrice(quantity, unitPrice int64) (int64, error) {
	if quantity <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero").
			WithDetails(map[string]any{"quantity": quantity})
	}
	if unitPrice < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative").
			WithDetails(map[string]any{"unit_price": unitPrice})
	}
	if unitPrice > 0 && quantity > math.MaxInt64/unitPrice {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "purchase total overflows").
			WithDetails(map[string]any{"quantity": quantity, "unit_price": unitPrice})
	}
	return quantity * unitPrice, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*models.Purchase, error) {
	return s.RecordTx(ctx, nil, input)
}

func (s *service) RecordTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.Purchase, error) {
	total, err := TotalPrice(input.Quantity, input.UnitPrice)
	if err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)
	if input.VendorID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor is required")
	}
	ok, err := repo.VendorExists(ctx, input.VendorID)
	if err != nil {
		return nil, db.Classify(err, "check vendor")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor does not exist").
			WithDetails(map[string]any{"vendor": input.VendorID})
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is required")
	}
	ok, err = repo.ProductExists(ctx, input.ProductID)
	if err != nil {
		return nil, db.Classify(err, "check product")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product does not exist").
			WithDetails(map[string]any{"product": input.ProductID})
	}

	id := input.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	purchase := &models.Purchase{
		ID:         id,
		VendorID:   input.VendorID,
		ProductID:  input.ProductID,
		Quantity:   input.Quantity,
		UnitPrice:  input.UnitPrice,
		TotalPrice: total,
		Status:     enums.PurchaseStatusUnpaid,
		CreatedAt:  s.now(),
	}
	if note := strings.TrimSpace(input.Note); note != "" {
		purchase.Note = &note
	}

	if err := repo.Create(ctx, purchase); err != nil {
		return nil, db.Classify(err, "record purchase")
	}
	return purchase, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	return s.GetTx(ctx, nil, id)
}

func (s *service) GetTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Purchase, error) {
	purchase, err := s.repo.WithTx(tx).FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "purchase not found").
			WithDetails(map[string]any{"purchase_ref": id})
	}
	if err != nil {
		return nil, db.Classify(err, "load purchase")
	}
	return purchase, nil
}

func (s *service) MarkPaid(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	return s.MarkPaidTx(ctx, nil, id)
}

func (s *service) MarkPaidTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Purchase, error) {
	paidAt := s.now()
	return s.transition(ctx, tx, id, enums.PurchaseStatusPaid, &paidAt)
}

func (s *service) MarkFailedTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Purchase, error) {
	return s.transition(ctx, tx, id, enums.PurchaseStatusFailed, nil)
}

func (s *service) transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, to enums.PurchaseStatus, paidAt *time.Time) (*models.Purchase, error) {
	repo := s.repo.WithTx(tx)
	rows, err := repo.Transition(ctx, id, enums.PurchaseStatusUnpaid, to, paidAt)
	if err != nil {
		return nil, db.Classify(err, "update purchase status")
	}

	purchase, err := s.GetTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("purchase is already %s", purchase.Status)).
			WithDetails(map[string]any{"purchase_ref": id, "status": purchase.Status})
	}
	return purchase, nil
}

func (s *service) ListByVendor(ctx context.Context, vendorID int64, params ListParams) (*ListResult, error) {
	if vendorID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor is required")
	}
	if params.Status != "" && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").
			WithDetails(map[string]any{"status": params.Status})
	}
	cursor, err := pagination.ParseCursor(params.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Pagination.Limit)

	rows, err := s.repo.List(ctx, ListFilter{
		VendorID: vendorID,
		Status:   params.Status,
		Cursor:   cursor,
		Limit:    limit + 1,
	})
	if err != nil {
		return nil, db.Classify(err, "list purchases")
	}

	result := &ListResult{Purchases: rows}
	if len(rows) > limit {
		result.Purchases = rows[:limit]
		last := result.Purchases[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return result, nil
}

func (s *service) ListUnpaid(ctx context.Context, vendorID int64) ([]models.Purchase, error) {
	rows, err := s.repo.List(ctx, ListFilter{VendorID: vendorID, Status: enums.PurchaseStatusUnpaid})
	if err != nil {
		return nil, db.Classify(err, "list unpaid purchases")
	}
	return rows, nil
}
