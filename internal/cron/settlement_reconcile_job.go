package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopsphere-backend/internal/settlement"
	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
	"github.com/angelmondragon/shopsphere-backend/pkg/logger"
	"github.com/angelmondragon/shopsphere-backend/pkg/metrics"
)

const (
	defaultPendingTimeout = 5 * time.Minute
	reconcileBatchSize    = 100
	stalePendingMessage   = "operation stayed pending past its deadline"
)

// SettlementReconcileJobParams configure the stale operation sweep.
type SettlementReconcileJobParams struct {
	Logger         *logger.Logger
	Operations     pendingOperations
	Metrics        *metrics.CronJobMetrics
	PendingTimeout time.Duration
}

type pendingOperations interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.SettlementOperation, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.SettlementStatus, lastError string) (int64, error)
}

// NewSettlementReconcileJob builds the job that flags saga operations whose
// worker died between steps.
func NewSettlementReconcileJob(params SettlementReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Operations == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	timeout := params.PendingTimeout
	if timeout <= 0 {
		timeout = defaultPendingTimeout
	}
	return &settlementReconcileJob{
		logg:    params.Logger,
		ops:     params.Operations,
		metrics: params.Metrics,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

type settlementReconcileJob struct {
	logg    *logger.Logger
	ops     pendingOperations
	metrics *metrics.CronJobMetrics
	timeout time.Duration
	now     func() time.Time
}

func (j *settlementReconcileJob) Name() string { return "settlement-reconcile" }

func (j *settlementReconcileJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.timeout)
	flagged := 0
	for {
		rows, err := j.ops.ListPendingBefore(ctx, cutoff, reconcileBatchSize)
		if err != nil {
			return fmt.Errorf("list pending operations: %w", err)
		}
		moved := 0
		for _, row := range rows {
			n, err := j.ops.TransitionStatus(ctx, row.ID, enums.SettlementStatusPending, enums.SettlementStatusNeedsReconciliation, stalePendingMessage)
			if err != nil {
				return fmt.Errorf("flag operation %s: %w", row.ID, err)
			}
			if n == 0 {
				// The saga finished between the read and the update.
				continue
			}
			moved++
			steps, _ := settlement.DecodeSteps(row.CompletedSteps)
			j.logg.Warn(j.logg.WithFields(j.logg.WithOperationID(j.logg.WithVendorID(ctx, row.VendorID), row.ID.String()), map[string]any{
				"kind":            string(row.Kind),
				"completed_steps": steps,
				"pending_since":   row.UpdatedAt,
			}), "stale settlement operation needs reconciliation")
		}
		flagged += moved
		if len(rows) < reconcileBatchSize || moved == 0 {
			break
		}
	}

	j.metrics.AddStaleOperations(flagged)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"flagged": flagged,
	}), "settlement reconcile complete")
	return nil
}
