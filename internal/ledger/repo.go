package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Totals aggregates a vendor's entries for balance audits.
type Totals struct {
	Credits      int64
	Debits       int64
	Count        int64
	MaxSequence  int64
	LastBalance  int64
	HasLastEntry bool
}

// Repository manages persistence for ledger accounts and entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	EnsureAccount(ctx context.Context, vendorID int64) error
	LockAccount(ctx context.Context, vendorID int64) (*models.LedgerAccount, error)
	FindAccount(ctx context.Context, vendorID int64) (*models.LedgerAccount, error)
	CompareAndSwap(ctx context.Context, vendorID, expectedVersion, balance, entryCount int64) (int64, error)
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	ListEntries(ctx context.Context, vendorID, afterSequence int64, limit int) ([]models.LedgerEntry, error)
	Totals(ctx context.Context, vendorID int64) (*Totals, error)
	ListVendorIDs(ctx context.Context, afterVendorID int64, limit int) ([]int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// EnsureAccount creates a zero-balance account unless one already exists.
func (r *repository) EnsureAccount(ctx context.Context, vendorID int64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.LedgerAccount{VendorID: vendorID}).Error
}

// LockAccount reads the account row, taking a row lock where the dialect has one.
func (r *repository) LockAccount(ctx context.Context, vendorID int64) (*models.LedgerAccount, error) {
	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var account models.LedgerAccount
	if err := q.Where("vendor_id = ?", vendorID).Take(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindAccount(ctx context.Context, vendorID int64) (*models.LedgerAccount, error) {
	var account models.LedgerAccount
	if err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).Take(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// CompareAndSwap writes the new balance only if nobody bumped the version
// since it was read. It returns the number of rows updated.
func (r *repository) CompareAndSwap(ctx context.Context, vendorID, expectedVersion, balance, entryCount int64) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.LedgerAccount{}).
		Where("vendor_id = ? AND version = ?", vendorID, expectedVersion).
		UpdateColumns(map[string]any{
			"balance":     balance,
			"entry_count": entryCount,
			"version":     gorm.Expr("version + 1"),
			"updated_at":  time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListEntries(ctx context.Context, vendorID, afterSequence int64, limit int) ([]models.LedgerEntry, error) {
	q := r.db.WithContext(ctx).
		Where("vendor_id = ? AND sequence > ?", vendorID, afterSequence).
		Order("sequence ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []models.LedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) Totals(ctx context.Context, vendorID int64) (*Totals, error) {
	var agg struct {
		Credits     int64
		Debits      int64
		Count       int64
		MaxSequence int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select(`COALESCE(SUM(CASE WHEN kind = 'credit' THEN amount ELSE 0 END), 0) AS credits,
			COALESCE(SUM(CASE WHEN kind = 'debit' THEN amount ELSE 0 END), 0) AS debits,
			COUNT(*) AS count,
			COALESCE(MAX(sequence), 0) AS max_sequence`).
		Where("vendor_id = ?", vendorID).
		Scan(&agg).Error; err != nil {
		return nil, err
	}

	totals := &Totals{
		Credits:     agg.Credits,
		Debits:      agg.Debits,
		Count:       agg.Count,
		MaxSequence: agg.MaxSequence,
	}

	var last []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("sequence DESC").
		Limit(1).
		Find(&last).Error; err != nil {
		return nil, err
	}
	if len(last) == 1 {
		totals.LastBalance = last[0].BalanceAfter
		totals.HasLastEntry = true
	}
	return totals, nil
}

func (r *repository) ListVendorIDs(ctx context.Context, afterVendorID int64, limit int) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerAccount{}).
		Where("vendor_id > ?", afterVendorID).
		Order("vendor_id ASC").
		Limit(limit).
		Pluck("vendor_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
