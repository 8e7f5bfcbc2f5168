package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopsphere-backend/pkg/db"
	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopsphere-backend/pkg/errors"
)

const (
	defaultStepRetries   = 3
	defaultStepRetryBase = 50 * time.Millisecond
)

// step is one durable write of a compound operation. undo is nil when the
// step is last in its plan and therefore never needs reversing.
type step struct {
	name  enums.SettlementStep
	apply func(ctx context.Context, tx *gorm.DB) error
	undo  func(ctx context.Context, tx *gorm.DB) error
}

type operation struct {
	kind       enums.SettlementKind
	vendorID   int64
	purchaseID *uuid.UUID
	request    any
	steps      []step
	// finalize runs in the transaction of the last step.
	finalize func(ctx context.Context, tx *gorm.DB, operationID uuid.UUID) error
}

// execute runs op in the configured mode. The caller holds the vendor lock.
func (s *service) execute(ctx context.Context, op *operation) (uuid.UUID, error) {
	operationID := uuid.New()
	ctx = s.logg.WithOperationID(s.logg.WithVendorID(ctx, op.vendorID), operationID.String())
	ctx = s.logg.WithField(ctx, "settlement_kind", string(op.kind))

	start := s.now()
	var (
		status enums.SettlementStatus
		err    error
	)
	if s.cfg.IsSaga() {
		status, err = s.runSaga(ctx, operationID, op)
	} else {
		status, err = s.runTransactional(ctx, operationID, op)
	}
	s.metrics.Observe(string(op.kind), s.mode(), string(status), s.now().Sub(start))

	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "status", string(status)), "settlement operation failed", err)
		return uuid.Nil, err
	}
	s.logg.Info(ctx, "settlement operation committed")
	return operationID, nil
}

// runTransactional applies every step, the outbox event and the journal row in
// one database transaction.
func (s *service) runTransactional(ctx context.Context, operationID uuid.UUID, op *operation) (enums.SettlementStatus, error) {
	names := stepNames(op.steps)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		for _, st := range op.steps {
			if err := st.apply(ctx, tx); err != nil {
				return err
			}
		}
		if err := op.finalize(ctx, tx, operationID); err != nil {
			return err
		}
		row, err := s.journalRow(operationID, op, enums.SettlementStatusCommitted, names)
		if err != nil {
			return err
		}
		return s.operations.WithTx(tx).Create(ctx, row)
	})
	if err == nil {
		return enums.SettlementStatusCommitted, nil
	}

	err = db.Classify(err, "settlement transaction failed")
	s.recordFailure(ctx, operationID, op, err)
	return enums.SettlementStatusFailed, withApplied(err, nil, "operation_id", operationID)
}

// recordFailure writes an audit row for a rolled back transaction. Nothing
// depends on it succeeding.
func (s *service) recordFailure(ctx context.Context, operationID uuid.UUID, op *operation, cause error) {
	row, err := s.journalRow(operationID, op, enums.SettlementStatusFailed, nil)
	if err == nil {
		msg := journalMessage(cause)
		row.LastError = &msg
		err = s.operations.Create(context.WithoutCancel(ctx), row)
	}
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to journal settlement failure")
	}
}

// runSaga journals a pending intent, then applies each step in its own
// transaction. Recoverable step errors are retried with backoff; anything
// else reverses the completed steps newest first.
func (s *service) runSaga(ctx context.Context, operationID uuid.UUID, op *operation) (enums.SettlementStatus, error) {
	row, err := s.journalRow(operationID, op, enums.SettlementStatusPending, nil)
	if err != nil {
		return enums.SettlementStatusFailed, withApplied(pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode settlement journal"), nil)
	}
	if err := s.operations.Create(ctx, row); err != nil {
		return enums.SettlementStatusFailed, withApplied(db.Classify(err, "journal settlement intent"), nil)
	}

	// Once the intent is durable the operation runs to completion.
	ctx = context.WithoutCancel(ctx)

	completed := make([]step, 0, len(op.steps))
	for i, st := range op.steps {
		last := i == len(op.steps)-1
		done := append(stepNames(completed), st.name)
		err := s.withRetry(ctx, func(ctx context.Context) error {
			return s.db.WithTx(ctx, func(tx *gorm.DB) error {
				if err := st.apply(ctx, tx); err != nil {
					return err
				}
				status := enums.SettlementStatusPending
				if last {
					status = enums.SettlementStatusCommitted
					if err := op.finalize(ctx, tx, operationID); err != nil {
						return err
					}
				}
				return s.operations.WithTx(tx).SaveProgress(ctx, operationID, done, status, nil)
			})
		})
		if err != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"step": string(st.name), "error": err.Error()}), "settlement step failed")
			return s.compensate(ctx, operationID, completed, err)
		}
		completed = append(completed, st)
	}
	return enums.SettlementStatusCommitted, nil
}

// compensate undoes completed steps in reverse order. It stops at the first
// undo that cannot be applied so the journal always lists a prefix of the
// plan as still committed.
func (s *service) compensate(ctx context.Context, operationID uuid.UUID, completed []step, cause error) (enums.SettlementStatus, error) {
	causeMsg := journalMessage(cause)
	remaining := stepNames(completed)
	if len(completed) == 0 {
		if err := s.operations.SaveProgress(ctx, operationID, remaining, enums.SettlementStatusFailed, &causeMsg); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to journal settlement failure")
		}
		return enums.SettlementStatusFailed, withApplied(cause, nil, "operation_id", operationID)
	}

	var undoErr error
	for i := len(completed) - 1; i >= 0; i-- {
		st := completed[i]
		left := remaining[:i]
		err := s.withRetry(ctx, func(ctx context.Context) error {
			return s.db.WithTx(ctx, func(tx *gorm.DB) error {
				if st.undo != nil {
					if err := st.undo(ctx, tx); err != nil {
						return err
					}
				}
				return s.operations.WithTx(tx).SaveProgress(ctx, operationID, left, enums.SettlementStatusPending, &causeMsg)
			})
		})
		s.metrics.IncCompensation(string(st.name), err == nil)
		if err != nil {
			undoErr = fmt.Errorf("undo %s: %w", st.name, err)
			break
		}
		remaining = left
	}

	if undoErr == nil {
		if err := s.operations.SaveProgress(ctx, operationID, nil, enums.SettlementStatusCompensated, &causeMsg); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to journal compensation")
		}
		return enums.SettlementStatusCompensated, withApplied(cause, nil, "operation_id", operationID, "compensated", true)
	}

	combined := multierr.Append(cause, undoErr)
	combinedMsg := journalMessage(combined)
	if err := s.operations.SaveProgress(ctx, operationID, remaining, enums.SettlementStatusNeedsReconciliation, &combinedMsg); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "completed_steps", remaining), "failed to journal partial settlement", err)
	}
	partial := pkgerrors.Wrap(pkgerrors.CodePartiallyApplied, combined, "operation partially applied and could not be reversed").
		WithDetails(map[string]any{
			"operation_id":    operationID,
			"committed_steps": remaining,
			"applied":         remaining,
			"errors":          errorStrings(multierr.Errors(combined)),
		})
	return enums.SettlementStatusNeedsReconciliation, partial
}

// withRetry retries fn while it fails with a retryable error.
func (s *service) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	retries := s.cfg.StepRetries
	if retries == 0 {
		retries = defaultStepRetries
	}
	base := s.cfg.StepRetryBase
	if base <= 0 {
		base = defaultStepRetryBase
	}
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(base))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		err = db.Classify(err, "settlement step")
		if pkgerrors.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *service) journalRow(operationID uuid.UUID, op *operation, status enums.SettlementStatus, steps []enums.SettlementStep) (*models.SettlementOperation, error) {
	encodedSteps, err := EncodeSteps(steps)
	if err != nil {
		return nil, err
	}
	request, err := json.Marshal(op.request)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &models.SettlementOperation{
		ID:             operationID,
		Kind:           op.kind,
		Status:         status,
		VendorID:       op.vendorID,
		PurchaseID:     op.purchaseID,
		CompletedSteps: encodedSteps,
		Request:        datatypes.JSON(request),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// withApplied attaches the committed step list (empty when nothing happened)
// to err, plus any extra key/value pairs.
func withApplied(err error, applied []enums.SettlementStep, extra ...any) error {
	if err == nil {
		return nil
	}
	if applied == nil {
		applied = []enums.SettlementStep{}
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settlement failed")
	}

	details := map[string]any{}
	switch existing := typed.Details().(type) {
	case map[string]any:
		for k, v := range existing {
			details[k] = v
		}
	case nil:
	default:
		details["cause"] = existing
	}
	details["applied"] = applied
	for i := 0; i+1 < len(extra); i += 2 {
		if key, ok := extra[i].(string); ok {
			details[key] = extra[i+1]
		}
	}
	return pkgerrors.Wrap(typed.Code(), err, typed.Message()).WithDetails(details)
}

func stepNames(steps []step) []enums.SettlementStep {
	names := make([]enums.SettlementStep, 0, len(steps))
	for _, st := range steps {
		names = append(names, st.name)
	}
	return names
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

// journalMessage flattens err for the last_error column, keeping the root
// cause of each aggregated error.
func journalMessage(err error) string {
	parts := make([]string, 0, 2)
	for _, e := range multierr.Errors(err) {
		msg := e.Error()
		root := e
		for next := errors.Unwrap(root); next != nil; next = errors.Unwrap(root) {
			root = next
		}
		if root != e && !strings.Contains(msg, root.Error()) {
			msg += " (" + root.Error() + ")"
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}
