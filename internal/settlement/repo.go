package settlement

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
)

// Repository persists the settlement operations journal.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, op *models.SettlementOperation) error
	SaveProgress(ctx context.Context, id uuid.UUID, steps []enums.SettlementStep, status enums.SettlementStatus, lastError *string) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.SettlementOperation, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.SettlementOperation, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus, lastError string) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the journal repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, op *models.SettlementOperation) error {
	return r.db.WithContext(ctx).Create(op).Error
}

func (r *repository) SaveProgress(ctx context.Context, id uuid.UUID, steps []enums.SettlementStep, status enums.SettlementStatus, lastError *string) error {
	encoded, err := EncodeSteps(steps)
	if err != nil {
		return err
	}
	updates := map[string]any{
		"completed_steps": encoded,
		"status":          status,
		"updated_at":      time.Now().UTC(),
	}
	if lastError != nil {
		updates["last_error"] = *lastError
	}
	return r.db.WithContext(ctx).
		Model(&models.SettlementOperation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SettlementOperation, error) {
	var op models.SettlementOperation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&op).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

// ListPendingBefore returns journal rows still pending that were last touched
// before cutoff, oldest first.
func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.SettlementOperation, error) {
	var rows []models.SettlementOperation
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", enums.SettlementStatusPending, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus, lastError string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SettlementOperation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// EncodeSteps renders a step list for the completed_steps column.
func EncodeSteps(steps []enums.SettlementStep) (datatypes.JSON, error) {
	if steps == nil {
		steps = []enums.SettlementStep{}
	}
	raw, err := json.Marshal(steps)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// DecodeSteps reads the completed_steps column.
func DecodeSteps(raw datatypes.JSON) ([]enums.SettlementStep, error) {
	steps := []enums.SettlementStep{}
	if len(raw) == 0 {
		return steps, nil
	}
	if err := json.Unmarshal(raw, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}
