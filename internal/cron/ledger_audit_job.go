package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/shopsphere-backend/internal/ledger"
	"github.com/angelmondragon/shopsphere-backend/pkg/logger"
	"github.com/angelmondragon/shopsphere-backend/pkg/metrics"
	"github.com/angelmondragon/shopsphere-backend/pkg/pagination"
)

const defaultAuditBatchSize = 100

// LedgerAuditJobParams configure the balance audit.
type LedgerAuditJobParams struct {
	Logger    *logger.Logger
	Ledger    ledgerAuditor
	Metrics   *metrics.CronJobMetrics
	BatchSize int
}

type ledgerAuditor interface {
	ListAccountIDs(ctx context.Context, afterVendorID int64, limit int) ([]int64, error)
	VerifyAccount(ctx context.Context, vendorID int64) (*ledger.AuditResult, error)
}

// NewLedgerAuditJob builds the job that checks every vendor balance against
// its entry history.
func NewLedgerAuditJob(params LedgerAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAuditBatchSize
	}
	// The ledger caps page sizes; a short page must mean the end.
	batch = pagination.NormalizeLimit(batch)
	return &ledgerAuditJob{
		logg:    params.Logger,
		ledger:  params.Ledger,
		metrics: params.Metrics,
		batch:   batch,
	}, nil
}

type ledgerAuditJob struct {
	logg    *logger.Logger
	ledger  ledgerAuditor
	metrics *metrics.CronJobMetrics
	batch   int
}

func (j *ledgerAuditJob) Name() string { return "ledger-audit" }

// Run walks the accounts in vendor order. A lookup failure on one account
// does not stop the walk; inconsistent accounts fail the run.
func (j *ledgerAuditJob) Run(ctx context.Context) error {
	var (
		after        int64
		checked      int
		inconsistent []int64
		errs         error
	)
	for {
		ids, err := j.ledger.ListAccountIDs(ctx, after, j.batch)
		if err != nil {
			return fmt.Errorf("list ledger accounts: %w", err)
		}
		for _, vendorID := range ids {
			result, err := j.ledger.VerifyAccount(ctx, vendorID)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("vendor %d: %w", vendorID, err))
				continue
			}
			checked++
			if !result.Consistent {
				inconsistent = append(inconsistent, vendorID)
				j.logg.Warn(j.logg.WithFields(j.logg.WithVendorID(ctx, vendorID), map[string]any{
					"balance":         result.Balance,
					"credits":         result.Credits,
					"debits":          result.Debits,
					"inconsistencies": result.Inconsistencies,
				}), "ledger account inconsistent")
			}
		}
		if len(ids) < j.batch {
			break
		}
		after = ids[len(ids)-1]
	}

	j.metrics.SetInconsistentAccounts(len(inconsistent))
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"accounts_checked":      checked,
		"accounts_inconsistent": len(inconsistent),
	}), "ledger audit complete")

	if len(inconsistent) > 0 {
		errs = multierr.Append(errs, fmt.Errorf("%d inconsistent ledger accounts: %v", len(inconsistent), inconsistent))
	}
	return errs
}
