package inventory

import (
	"context"
	"time"

	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists product quantities.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Increment(ctx context.Context, id uuid.UUID, delta int64) (int64, error)
	Decrement(ctx context.Context, id uuid.UUID, delta int64) (int64, error)
	Quantity(ctx context.Context, id uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Increment applies a storage-side increment and returns the rows affected.
func (r *repository) Increment(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", delta),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// Decrement lowers quantity only while enough stock remains.
func (r *repository) Decrement(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND quantity >= ?", id, delta).
		UpdateColumns(map[string]any{
			"quantity":   gorm.Expr("quantity - ?", delta),
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) Quantity(ctx context.Context, id uuid.UUID) (int64, error) {
	var qty []int64
	if err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Pluck("quantity", &qty).Error; err != nil {
		return 0, err
	}
	if len(qty) == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return qty[0], nil
}
