package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/shopsphere-backend/pkg/db"
	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopsphere-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes on-hand quantity mutations. Quantity is never written any
// other way.
type Service interface {
	Get(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	Exists(ctx context.Context, productID uuid.UUID) (bool, error)
	IncreaseQuantity(ctx context.Context, productID uuid.UUID, delta int64) (int64, error)
	IncreaseQuantityTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int64) (int64, error)
	// DecreaseQuantityTx reverses a prior increase during compensation.
	DecreaseQuantityTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int64) (int64, error)
}

type service struct {
	tx   txRunner
	repo Repository
}

// NewService wires the inventory service.
func NewService(tx txRunner, repo Repository) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &service{tx: tx, repo: repo}, nil
}

func (s *service) Get(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, db.Classify(err, "load product")
	}
	return product, nil
}

func (s *service) Exists(ctx context.Context, productID uuid.UUID) (bool, error) {
	if productID == uuid.Nil {
		return false, nil
	}
	ok, err := s.repo.Exists(ctx, productID)
	if err != nil {
		return false, db.Classify(err, "check product")
	}
	return ok, nil
}

func (s *service) IncreaseQuantity(ctx context.Context, productID uuid.UUID, delta int64) (int64, error) {
	var qty int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		qty, err = s.IncreaseQuantityTx(ctx, tx, productID, delta)
		return err
	})
	if err != nil {
		return 0, err
	}
	return qty, nil
}

func (s *service) IncreaseQuantityTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity delta must be positive").
			WithDetails(map[string]any{"delta": delta})
	}
	repo := s.repo.WithTx(tx)
	rows, err := repo.Increment(ctx, productID, delta)
	if err != nil {
		return 0, db.Classify(err, "increase product quantity")
	}
	if rows == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"product_id": productID})
	}
	qty, err := repo.Quantity(ctx, productID)
	if err != nil {
		return 0, db.Classify(err, "read product quantity")
	}
	return qty, nil
}

func (s *service) DecreaseQuantityTx(ctx context.Context, tx *gorm.DB, productID uuid.UUID, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "quantity delta must be positive").
			WithDetails(map[string]any{"delta": delta})
	}
	repo := s.repo.WithTx(tx)
	rows, err := repo.Decrement(ctx, productID, delta)
	if err != nil {
		return 0, db.Classify(err, "decrease product quantity")
	}
	if rows == 0 {
		ok, err := repo.Exists(ctx, productID)
		if err != nil {
			return 0, db.Classify(err, "check product")
		}
		if !ok {
			return 0, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
				WithDetails(map[string]any{"product_id": productID})
		}
		return 0, pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient quantity to reverse").
			WithDetails(map[string]any{"product_id": productID, "delta": delta})
	}
	qty, err := repo.Quantity(ctx, productID)
	if err != nil {
		return 0, db.Classify(err, "read product quantity")
	}
	return qty, nil
}
