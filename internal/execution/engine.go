package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/sip/internal/metrics"
	"github.com/vultisig/sip/internal/trade"
	"github.com/vultisig/sip/types"
)

type Config struct {
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts,omitempty"`
	BackoffBase time.Duration `mapstructure:"backoff_base" json:"backoff_base,omitempty"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" json:"retry_delay,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BackoffBase: time.Second,
		RetryDelay:  time.Second,
	}
}

type Store interface {
	GetPlan(ctx context.Context, id uuid.UUID) (*types.Plan, error)
	SetPlanStatus(ctx context.Context, id uuid.UUID, status types.PlanStatus) (*types.Plan, error)
	RecordExecution(ctx context.Context, id uuid.UUID, trade types.Trade, executedAt, next time.Time) (*types.Plan, error)
}

type Result struct {
	Plan          *types.Plan
	Trade         *types.Trade
	NextExecution time.Time
	Attempts      int
}

// Engine runs one plan execution: a bounded number of trade attempts with
// exponential backoff, then either the success bookkeeping or the plan demotion.
type Engine struct {
	logger  *logrus.Logger
	store   Store
	trader  trade.Trader
	metrics metrics.ExecutionMetrics
	cfg     Config

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = def.BackoffBase
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = def.RetryDelay
	}
	return c
}

// Budget is the longest Execute can run when every trade call takes tradeCall:
// all attempts, their backoffs and the fixed delays between them.
func (c Config) Budget(tradeCall time.Duration) time.Duration {
	c = c.withDefaults()
	var total time.Duration
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		total += tradeCall + c.BackoffBase<<(attempt-1)
		if attempt < c.MaxAttempts {
			total += c.RetryDelay
		}
	}
	return total
}

func NewEngine(
	logger *logrus.Logger,
	store Store,
	trader trade.Trader,
	cfg Config,
	m metrics.ExecutionMetrics,
) *Engine {
	cfg = cfg.withDefaults()
	if m == nil {
		m = metrics.Nil()
	}
	return &Engine{
		logger:  logger.WithField("pkg", "execution.Engine").Logger,
		store:   store,
		trader:  trader,
		metrics: m,
		cfg:     cfg,
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Backoff is the wait after the given failed attempt (1-based): base * 2^(attempt-1).
func (e *Engine) Backoff(attempt int) time.Duration {
	return e.cfg.BackoffBase << (attempt - 1)
}

// Execute loads the plan and trades it. On exhaustion the plan has already been
// moved to paused or insufficient_funds when the *types.ExecutionError is returned.
// A *types.BookkeepingError means the trade settled and must not be retried;
// a *types.UnsettledTradeError means it may have, with the same consequence.
func (e *Engine) Execute(ctx context.Context, planID uuid.UUID) (*Result, error) {
	start := time.Now()

	plan, err := e.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	if !plan.Active() {
		return nil, fmt.Errorf("plan %s is %s: %w", plan.ID, plan.Status, types.ErrNotActive)
	}

	fields := logrus.Fields{
		"plan_id":   plan.ID,
		"wallet_id": plan.WalletID,
		"from":      plan.FromAsset,
		"to":        plan.ToAsset,
		"amount":    plan.Amount.String(),
	}

	var (
		settled  *types.Trade
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		attempts = attempt
		settled, lastErr = e.trader.ExecuteTrade(ctx, plan.WalletID, plan.Amount, plan.FromAsset, plan.ToAsset)
		if lastErr == nil {
			e.metrics.RecordAttempt("settled")
			break
		}
		if ctx.Err() != nil && isContextErr(lastErr) {
			e.metrics.RecordAttempt("interrupted")
			e.metrics.RecordExecution("unsettled", time.Since(start).Seconds())
			e.logger.WithFields(fields).WithError(lastErr).WithField("attempt", attempt).
				Error("trade interrupted in flight, settlement unknown")
			return nil, &types.UnsettledTradeError{PlanID: plan.ID, Attempt: attempt, Err: lastErr}
		}

		funds := types.IsInsufficientFunds(lastErr)
		if funds {
			e.metrics.RecordAttempt("insufficient_funds")
		} else {
			e.metrics.RecordAttempt("failed")
		}
		e.logger.WithFields(fields).WithError(lastErr).WithField("attempt", attempt).Warn("trade attempt failed")

		if err := e.sleep(ctx, e.Backoff(attempt)); err != nil {
			return nil, fmt.Errorf("execution of plan %s interrupted: %w", plan.ID, err)
		}
		if attempt == e.cfg.MaxAttempts || funds {
			break
		}
		if err := e.sleep(ctx, e.cfg.RetryDelay); err != nil {
			return nil, fmt.Errorf("execution of plan %s interrupted: %w", plan.ID, err)
		}
	}

	if lastErr != nil {
		return nil, e.demote(ctx, plan, attempts, lastErr, fields, start)
	}

	executedAt := e.now()
	next, err := plan.Cadence.Next(executedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to compute next execution: %w", err)
	}

	updated, err := e.store.RecordExecution(ctx, plan.ID, *settled, executedAt, next)
	if err != nil {
		e.metrics.RecordExecution("bookkeeping_failed", time.Since(start).Seconds())
		e.logger.WithFields(fields).WithError(err).WithField("trade_id", settled.TradeID).
			Error("trade settled but plan bookkeeping failed")
		return nil, &types.BookkeepingError{PlanID: plan.ID, Trade: settled, Err: err}
	}

	e.metrics.RecordExecution(string(types.PlanStatusActive), time.Since(start).Seconds())
	e.logger.WithFields(fields).WithFields(logrus.Fields{
		"trade_id":       settled.TradeID,
		"tx_hash":        settled.TxHash,
		"attempts":       attempts,
		"next_execution": next,
	}).Info("plan executed")

	return &Result{
		Plan:          updated,
		Trade:         settled,
		NextExecution: next,
		Attempts:      attempts,
	}, nil
}

func (e *Engine) demote(
	ctx context.Context,
	plan *types.Plan,
	attempts int,
	cause error,
	fields logrus.Fields,
	start time.Time,
) error {
	status := types.FailureStatus(cause)
	if _, err := e.store.SetPlanStatus(ctx, plan.ID, status); err != nil {
		return fmt.Errorf("failed to set plan status to %s after %q: %w", status, cause.Error(), err)
	}

	e.metrics.RecordExecution(string(status), time.Since(start).Seconds())
	e.logger.WithFields(fields).WithError(cause).WithFields(logrus.Fields{
		"attempts": attempts,
		"status":   status,
	}).Error("plan execution gave up")

	return &types.ExecutionError{
		PlanID:   plan.ID,
		Status:   status,
		Attempts: attempts,
		Err:      cause,
	}
}
