package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/sip/internal/execution"
	"github.com/vultisig/sip/internal/metrics"
	"github.com/vultisig/sip/internal/tasks"
	"github.com/vultisig/sip/types"
)

type PlanStore interface {
	GetPlan(ctx context.Context, id uuid.UUID) (*types.Plan, error)
	SetPlanStatus(ctx context.Context, id uuid.UUID, status types.PlanStatus) (*types.Plan, error)
}

type Executor interface {
	Execute(ctx context.Context, planID uuid.UUID) (*execution.Result, error)
}

// Deregisterer removes a plan's trigger. Implemented by scheduler.Reconciler.
type Deregisterer interface {
	Deregister(ctx context.Context, planID uuid.UUID) error
}

type Worker struct {
	logger    *logrus.Logger
	store     PlanStore
	engine    Executor
	scheduler Deregisterer
	metrics   metrics.WorkerMetrics
}

func NewWorker(
	logger *logrus.Logger,
	store PlanStore,
	engine Executor,
	scheduler Deregisterer,
	m metrics.WorkerMetrics,
) *Worker {
	if m == nil {
		m = metrics.Nil()
	}
	return &Worker{
		logger:    logger.WithField("pkg", "dispatch.Worker").Logger,
		store:     store,
		engine:    engine,
		scheduler: scheduler,
		metrics:   m,
	}
}

// Process handles one delivered job. lastAttempt is true when the transport
// will not redeliver it, in which case a retryable failure pauses the plan.
func (w *Worker) Process(ctx context.Context, payload types.JobPayload, lastAttempt bool) Result {
	planID := payload.PlanID
	fields := logrus.Fields{
		"plan_id":      planID,
		"frequency":    payload.Cadence,
		"last_attempt": lastAttempt,
	}

	plan, err := w.store.GetPlan(ctx, planID)
	switch {
	case errors.Is(err, types.ErrNotFound):
		w.logger.WithFields(fields).Warn("plan no longer exists, removing its trigger")
		return w.deregister(ctx, Result{PlanID: planID, Reason: types.KindNotFound.String(), Err: err})
	case err != nil:
		return w.retry(ctx, Result{PlanID: planID, Err: fmt.Errorf("failed to load plan: %w", err)}, lastAttempt)
	case !plan.Active():
		w.logger.WithFields(fields).WithField("status", plan.Status).Info("plan is not active, removing its trigger")
		return w.deregister(ctx, Result{
			PlanID: planID,
			Reason: types.KindNotActive.String(),
			Status: plan.Status,
			Err:    fmt.Errorf("plan %s is %s: %w", planID, plan.Status, types.ErrNotActive),
		})
	}

	res, err := w.engine.Execute(ctx, planID)
	if err == nil {
		next := res.NextExecution
		w.logger.WithFields(fields).WithField("trade_id", res.Trade.TradeID).Info("plan job executed")
		return Result{
			Outcome:       OutcomeExecuted,
			PlanID:        planID,
			Status:        types.PlanStatusActive,
			TradeID:       res.Trade.TradeID,
			TxHash:        res.Trade.TxHash,
			NextExecution: &next,
		}
	}

	var (
		execErr     *types.ExecutionError
		bkErr       *types.BookkeepingError
		unsettleErr *types.UnsettledTradeError
	)
	switch {
	case errors.As(err, &bkErr):
		// The trade went through; redelivery would trade again.
		w.logger.WithFields(fields).WithError(err).Error("plan job settled without bookkeeping")
		return Result{
			Outcome: OutcomeExecuted,
			PlanID:  planID,
			Reason:  "bookkeeping_failed",
			TradeID: bkErr.Trade.TradeID,
			TxHash:  bkErr.Trade.TxHash,
			Err:     err,
		}
	case errors.As(err, &unsettleErr):
		// Same as above: the custody service may still settle the trade.
		w.logger.WithFields(fields).WithError(err).Error("plan job interrupted with a trade in flight")
		return Result{
			Outcome: OutcomeExecuted,
			PlanID:  planID,
			Reason:  "trade_unconfirmed",
			Status:  plan.Status,
			Err:     err,
		}
	case errors.As(err, &execErr):
		return w.deregister(ctx, Result{
			PlanID: planID,
			Reason: types.Classify(err).String(),
			Status: execErr.Status,
			Err:    err,
		})
	}

	switch kind := types.Classify(err); kind {
	case types.KindNotFound, types.KindNotActive:
		return w.deregister(ctx, Result{PlanID: planID, Reason: kind.String(), Err: err})
	default:
		return w.retry(ctx, Result{PlanID: planID, Err: err}, lastAttempt)
	}
}

func (w *Worker) deregister(ctx context.Context, res Result) Result {
	res.Outcome = OutcomeDeregistered
	if err := w.scheduler.Deregister(ctx, res.PlanID); err != nil {
		// The next sweep drops it: the plan is not active any more.
		w.logger.WithError(err).WithField("plan_id", res.PlanID).Warn("failed to remove trigger")
	}
	return res
}

func (w *Worker) retry(ctx context.Context, res Result, lastAttempt bool) Result {
	if !lastAttempt {
		res.Outcome = OutcomeRetry
		w.logger.WithError(res.Err).WithField("plan_id", res.PlanID).Warn("plan job failed, will retry")
		return res
	}

	w.logger.WithError(res.Err).WithField("plan_id", res.PlanID).Error("plan job out of retries, pausing plan")
	_, err := w.store.SetPlanStatus(ctx, res.PlanID, types.PlanStatusPaused)
	switch {
	case err == nil:
		res.Status = types.PlanStatusPaused
	case errors.Is(err, types.ErrNotFound):
	default:
		w.logger.WithError(err).WithField("plan_id", res.PlanID).Error("failed to pause plan")
	}
	res.Reason = types.KindTransient.String()
	return w.deregister(ctx, res)
}

// HandleExecutePlan is the asynq handler for tasks.TypeExecutePlan.
func (w *Worker) HandleExecutePlan(ctx context.Context, t *asynq.Task) error {
	start := time.Now()

	payload, err := tasks.ParseJobPayload(t)
	if err != nil {
		w.metrics.RecordDispatch("malformed", time.Since(start).Seconds())
		return fmt.Errorf("tasks.ParseJobPayload failed: %v: %w", err, asynq.SkipRetry)
	}

	res := w.Process(ctx, payload, isLastAttempt(ctx))
	w.metrics.RecordDispatch(res.Outcome.String(), time.Since(start).Seconds())

	if rw := t.ResultWriter(); rw != nil {
		buf, er := json.Marshal(res)
		if er == nil {
			_, er = rw.Write(buf)
		}
		if er != nil {
			w.logger.WithError(er).Warn("t.ResultWriter.Write failed")
		}
	}

	if res.Outcome == OutcomeRetry {
		return res.Err
	}
	return nil
}

func isLastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried >= maxRetry
}

// RetryDelay is the transport backoff: base, 2*base, 4*base, ...
func RetryDelay(base time.Duration) asynq.RetryDelayFunc {
	if base <= 0 {
		base = time.Second
	}
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		if n > 16 {
			n = 16
		}
		return base << n
	}
}
