package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopsphere-backend/internal/settlement"
	"github.com/angelmondragon/shopsphere-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
	"github.com/angelmondragon/shopsphere-backend/pkg/logger"
)

func TestSettlementReconcileJobFlagsOnlyStalePending(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	repo := settlement.NewRepository(client.DB())
	now := time.Now().UTC()

	insert := func(status enums.SettlementStatus, age time.Duration) uuid.UUID {
		steps, err := settlement.EncodeSteps([]enums.SettlementStep{enums.StepRecordPurchase})
		require.NoError(t, err)
		row := &models.SettlementOperation{
			ID:             uuid.New(),
			Kind:           enums.SettlementKindPlacePurchase,
			Status:         status,
			VendorID:       1,
			CompletedSteps: steps,
			CreatedAt:      now.Add(-age),
			UpdatedAt:      now.Add(-age),
		}
		require.NoError(t, repo.Create(ctx, row))
		return row.ID
	}
	stale := insert(enums.SettlementStatusPending, time.Hour)
	fresh := insert(enums.SettlementStatusPending, time.Second)
	done := insert(enums.SettlementStatusCommitted, time.Hour)

	job, err := NewSettlementReconcileJob(SettlementReconcileJobParams{
		Logger:         logger.New(logger.Options{ServiceName: "cron-test"}),
		Operations:     repo,
		PendingTimeout: 5 * time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(ctx))

	statusOf := func(id uuid.UUID) enums.SettlementStatus {
		row, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		return row.Status
	}
	assert.Equal(t, enums.SettlementStatusNeedsReconciliation, statusOf(stale))
	assert.Equal(t, enums.SettlementStatusPending, statusOf(fresh))
	assert.Equal(t, enums.SettlementStatusCommitted, statusOf(done))

	row, err := repo.FindByID(ctx, stale)
	require.NoError(t, err)
	require.NotNil(t, row.LastError)
	assert.Equal(t, stalePendingMessage, *row.LastError)

	// A second sweep finds nothing left to flag.
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, enums.SettlementStatusPending, statusOf(fresh))
}

func TestNewSettlementReconcileJobRequiresRepository(t *testing.T) {
	_, err := NewSettlementReconcileJob(SettlementReconcileJobParams{Logger: logger.New(logger.Options{ServiceName: "cron-test"})})
	require.Error(t, err)
}
