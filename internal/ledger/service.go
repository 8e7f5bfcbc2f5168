package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/shopsphere-backend/pkg/db"
	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopsphere-backend/pkg/errors"
	"github.com/angelmondragon/shopsphere-backend/pkg/lock"
	"github.com/angelmondragon/shopsphere-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the vendor ledger. PostEntry and PostEntryTx are the only ways
// a balance changes.
type Service interface {
	GetBalance(ctx context.Context, vendorID int64) (int64, error)
	GetBalanceTx(ctx context.Context, tx *gorm.DB, vendorID int64) (int64, error)
	GetStatement(ctx context.Context, vendorID int64, params pagination.Params) (*Statement, error)
	PostEntry(ctx context.Context, input PostEntryInput) (*PostingResult, error)
	// PostEntryTx posts inside a caller-owned transaction. The caller must
	// hold the vendor lock for the duration of that transaction.
	PostEntryTx(ctx context.Context, tx *gorm.DB, input PostEntryInput) (*PostingResult, error)
	VerifyAccount(ctx context.Context, vendorID int64) (*AuditResult, error)
	ListAccountIDs(ctx context.Context, afterVendorID int64, limit int) ([]int64, error)
}

// PostEntryInput describes a single posting.
type PostEntryInput struct {
	VendorID   int64
	Kind       enums.LedgerEntryKind
	Amount     int64
	ProductID  *uuid.UUID
	PurchaseID *uuid.UUID
	Note       string
}

// PostingResult is the appended entry and the balance it produced.
type PostingResult struct {
	Entry   models.LedgerEntry `json:"entry"`
	Balance int64              `json:"balance"`
}

// Statement is a page of a vendor's history with the current balance.
type Statement struct {
	VendorID   int64                `json:"vendor_id"`
	Balance    int64                `json:"balance"`
	EntryCount int64                `json:"entry_count"`
	Entries    []models.LedgerEntry `json:"entries"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// AuditResult reports whether the stored balance matches the entry history.
type AuditResult struct {
	VendorID        int64    `json:"vendor_id"`
	Balance         int64    `json:"balance"`
	Credits         int64    `json:"credits"`
	Debits          int64    `json:"debits"`
	EntryCount      int64    `json:"entry_count"`
	StoredCount     int64    `json:"stored_count"`
	LastBalance     int64    `json:"last_balance_after"`
	Consistent      bool     `json:"consistent"`
	Inconsistencies []string `json:"inconsistencies,omitempty"`
}

// VendorLockKey is the lock shared by every operation that changes a vendor's
// balance.
func VendorLockKey(vendorID int64) string {
	return "ledger:vendor:" + strconv.FormatInt(vendorID, 10)
}

type service struct {
	tx     txRunner
	repo   Repository
	locker lock.Locker
	now    func() time.Time
}

// NewService wires a ledger service.
func NewService(tx txRunner, repo Repository, locker lock.Locker) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if locker == nil {
		return nil, fmt.Errorf("vendor locker required")
	}
	return &service{tx: tx, repo: repo, locker: locker, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *service) GetBalance(ctx context.Context, vendorID int64) (int64, error) {
	return s.GetBalanceTx(ctx, nil, vendorID)
}

func (s *service) GetBalanceTx(ctx context.Context, tx *gorm.DB, vendorID int64) (int64, error) {
	if vendorID <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "vendor is required")
	}
	account, err := s.repo.WithTx(tx).FindAccount(ctx, vendorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, db.Classify(err, "load ledger account")
	}
	return account.Balance, nil
}

func (s *service) GetStatement(ctx context.Context, vendorID int64, params pagination.Params) (*Statement, error) {
	if vendorID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor is required")
	}
	after, err := pagination.ParseSequenceCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	statement := &Statement{VendorID: vendorID, Entries: []models.LedgerEntry{}}
	account, err := s.repo.FindAccount(ctx, vendorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return statement, nil
	}
	if err != nil {
		return nil, db.Classify(err, "load ledger account")
	}
	statement.Balance = account.Balance
	statement.EntryCount = account.EntryCount

	entries, err := s.repo.ListEntries(ctx, vendorID, after, limit+1)
	if err != nil {
		return nil, db.Classify(err, "list ledger entries")
	}
	if len(entries) > limit {
		entries = entries[:limit]
		statement.NextCursor = pagination.EncodeSequenceCursor(entries[limit-1].Sequence)
	}
	statement.Entries = entries
	return statement, nil
}

func (s *service) PostEntry(ctx context.Context, input PostEntryInput) (*PostingResult, error) {
	if err := validatePosting(input); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "posting cancelled before start")
	}

	held, err := s.locker.Obtain(ctx, VendorLockKey(input.VendorID))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrency, err, "vendor ledger is busy").
			WithDetails(map[string]any{"vendor": input.VendorID})
	}
	// The lock outlives a cancelled request context until the tx finishes.
	defer held.Release(context.WithoutCancel(ctx))

	var result *PostingResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var perr error
		result, perr = s.PostEntryTx(ctx, tx, input)
		return perr
	})
	if err != nil {
		return nil, db.Classify(err, "commit ledger posting")
	}
	return result, nil
}

func (s *service) PostEntryTx(ctx context.Context, tx *gorm.DB, input PostEntryInput) (*PostingResult, error) {
	if err := validatePosting(input); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)

	if err := repo.EnsureAccount(ctx, input.VendorID); err != nil {
		return nil, db.Classify(err, "open ledger account")
	}
	account, err := repo.LockAccount(ctx, input.VendorID)
	if err != nil {
		return nil, db.Classify(err, "lock ledger account")
	}

	balance, err := applyKind(account.Balance, input.Kind, input.Amount)
	if err != nil {
		return nil, err
	}
	sequence := account.EntryCount + 1

	rows, err := repo.CompareAndSwap(ctx, input.VendorID, account.Version, balance, sequence)
	if err != nil {
		return nil, db.Classify(err, "update ledger balance")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConcurrency, "ledger account changed concurrently").
			WithDetails(map[string]any{"vendor": input.VendorID, "version": account.Version})
	}

	entry := models.LedgerEntry{
		ID:           uuid.New(),
		VendorID:     input.VendorID,
		Sequence:     sequence,
		Kind:         input.Kind,
		ProductID:    input.ProductID,
		PurchaseID:   input.PurchaseID,
		Amount:       input.Amount,
		BalanceAfter: balance,
		CreatedAt:    s.now(),
	}
	if note := strings.TrimSpace(input.Note); note != "" {
		entry.Note = &note
	}
	if err := repo.CreateEntry(ctx, &entry); err != nil {
		return nil, db.Classify(err, "append ledger entry")
	}

	return &PostingResult{Entry: entry, Balance: balance}, nil
}

func (s *service) VerifyAccount(ctx context.Context, vendorID int64) (*AuditResult, error) {
	account, err := s.repo.FindAccount(ctx, vendorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger account not found")
	}
	if err != nil {
		return nil, db.Classify(err, "load ledger account")
	}
	totals, err := s.repo.Totals(ctx, vendorID)
	if err != nil {
		return nil, db.Classify(err, "sum ledger entries")
	}

	result := &AuditResult{
		VendorID:    vendorID,
		Balance:     account.Balance,
		Credits:     totals.Credits,
		Debits:      totals.Debits,
		EntryCount:  totals.Count,
		StoredCount: account.EntryCount,
		LastBalance: totals.LastBalance,
	}
	if totals.Credits-totals.Debits != account.Balance {
		result.Inconsistencies = append(result.Inconsistencies,
			fmt.Sprintf("balance %d differs from credits-debits %d", account.Balance, totals.Credits-totals.Debits))
	}
	if totals.Count != account.EntryCount || totals.MaxSequence != account.EntryCount {
		result.Inconsistencies = append(result.Inconsistencies,
			fmt.Sprintf("entry count %d, max sequence %d, account count %d", totals.Count, totals.MaxSequence, account.EntryCount))
	}
	if totals.HasLastEntry && totals.LastBalance != account.Balance {
		result.Inconsistencies = append(result.Inconsistencies,
			fmt.Sprintf("last balance_after %d differs from balance %d", totals.LastBalance, account.Balance))
	}
	result.Consistent = len(result.Inconsistencies) == 0
	return result, nil
}

func (s *service) ListAccountIDs(ctx context.Context, afterVendorID int64, limit int) ([]int64, error) {
	ids, err := s.repo.ListVendorIDs(ctx, afterVendorID, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, db.Classify(err, "list ledger accounts")
	}
	return ids, nil
}

func validatePosting(input PostEntryInput) error {
	if input.VendorID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "vendor is required")
	}
	if !input.Kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid entry kind").
			WithDetails(map[string]any{"kind": input.Kind})
	}
	if input.Amount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero").
			WithDetails(map[string]any{"amount": input.Amount})
	}
	return nil
}

func applyKind(balance int64, kind enums.LedgerEntryKind, amount int64) (int64, error) {
	switch kind {
	case enums.LedgerEntryCredit:
		if balance > math.MaxInt64-amount {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "balance would overflow")
		}
	case enums.LedgerEntryDebit:
		if balance < math.MinInt64+amount {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "balance would overflow")
		}
	}
	return balance + kind.Signed(amount), nil
}
