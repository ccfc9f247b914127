package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/sip/internal/execution"
	"github.com/vultisig/sip/internal/storage"
	"github.com/vultisig/sip/internal/trade"
	"github.com/vultisig/sip/types"
)

type Plan interface {
	Create(ctx context.Context, req types.CreatePlanRequest) (*CreateResult, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Plan, error)
	ListByWallet(ctx context.Context, walletID string) ([]types.Plan, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, walletID string, status string) (*types.Plan, error)
	Update(ctx context.Context, id uuid.UUID, walletID string, update types.PlanUpdate) (*types.Plan, error)
	Delete(ctx context.Context, id uuid.UUID, walletID string) error
	ExecuteNow(ctx context.Context, id uuid.UUID) (*execution.Result, error)
	ListExecutions(ctx context.Context, id uuid.UUID) ([]types.PlanExecution, error)
}

// Scheduler keeps a plan's trigger in line with its status.
type Scheduler interface {
	Register(ctx context.Context, plan *types.Plan) (string, error)
	Deregister(ctx context.Context, planID uuid.UUID) error
}

type Executor interface {
	Execute(ctx context.Context, planID uuid.UUID) (*execution.Result, error)
}

var _ Plan = (*PlanService)(nil)

type PlanService struct {
	db        storage.PlanStorage
	trader    trade.Trader
	scheduler Scheduler
	engine    Executor
	logger    *logrus.Logger
	now       func() time.Time
}

func NewPlanService(
	logger *logrus.Logger,
	db storage.PlanStorage,
	trader trade.Trader,
	scheduler Scheduler,
	engine Executor,
) (*PlanService, error) {
	if db == nil {
		return nil, fmt.Errorf("database storage cannot be nil")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler cannot be nil")
	}
	return &PlanService{
		db:        db,
		trader:    trader,
		scheduler: scheduler,
		engine:    engine,
		logger:    logger.WithField("service", "plan").Logger,
		now:       time.Now,
	}, nil
}

type CreateResult struct {
	Plan         *types.Plan  `json:"sip"`
	InitialTrade *types.Trade `json:"initial_trade,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// Create runs the first trade right away and always stores the plan: active
// when the trade settled, otherwise paused or insufficient_funds with the
// failure reason in CreateResult.Error.
func (s *PlanService) Create(ctx context.Context, req types.CreatePlanRequest) (*CreateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	plan := types.Plan{
		WalletID:  req.WalletID,
		FromAsset: trade.ResolveAsset(req.FromAsset),
		ToAsset:   trade.ResolveAsset(req.ToAsset),
		Amount:    req.Amount,
		Cadence:   req.Cadence,
	}

	res := &CreateResult{}
	settled, tradeErr := s.trader.ExecuteTrade(ctx, plan.WalletID, plan.Amount, plan.FromAsset, plan.ToAsset)

	now := s.now()
	next, err := plan.Cadence.Next(now)
	if err != nil {
		return nil, err
	}
	plan.NextExecution = next

	if tradeErr == nil {
		plan.Status = types.PlanStatusActive
		plan.TotalExecutions = 1
		plan.LastExecution = &now
		res.InitialTrade = settled
	} else {
		plan.Status = types.FailureStatus(tradeErr)
		if plan.Status == types.PlanStatusInsufficientFunds {
			res.Error = "Insufficient funds for initial trade"
		} else {
			res.Error = "Failed to execute initial trade"
		}
		s.logger.WithError(tradeErr).WithField("wallet_id", plan.WalletID).Warn("initial trade failed")
	}

	inserted, err := s.db.InsertPlan(ctx, plan)
	if err != nil {
		if settled != nil {
			return nil, &types.BookkeepingError{Trade: settled, Err: err}
		}
		return nil, fmt.Errorf("failed to insert plan: %w", err)
	}
	res.Plan = inserted

	s.syncTrigger(ctx, inserted)
	return res, nil
}

func (s *PlanService) Get(ctx context.Context, id uuid.UUID) (*types.Plan, error) {
	return s.db.GetPlan(ctx, id)
}

func (s *PlanService) ListByWallet(ctx context.Context, walletID string) ([]types.Plan, error) {
	if walletID == "" {
		return nil, types.NewValidationError(errors.New("empty wallet id"), "wallet_id is required")
	}
	plans, err := s.db.GetPlansByWallet(ctx, walletID)
	if err != nil {
		return nil, err
	}
	if plans == nil {
		plans = []types.Plan{}
	}
	return plans, nil
}

func (s *PlanService) UpdateStatus(ctx context.Context, id uuid.UUID, walletID string, status string) (*types.Plan, error) {
	next, err := types.ParsePlanStatus(status)
	if err != nil {
		return nil, err
	}
	return s.Update(ctx, id, walletID, types.PlanUpdate{Status: &next})
}

// Update applies the owner's changes. A cadence change restarts the schedule
// from now; the trigger follows the resulting status.
func (s *PlanService) Update(ctx context.Context, id uuid.UUID, walletID string, update types.PlanUpdate) (*types.Plan, error) {
	if update.Empty() {
		return nil, types.NewValidationError(errors.New("empty plan update"), "No valid fields to update")
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}

	current, err := s.ownedPlan(ctx, id, walletID)
	if err != nil {
		return nil, err
	}
	if update.Status != nil && !current.Status.CanTransition(*update.Status) {
		return nil, types.NewValidationError(
			fmt.Errorf("transition %s -> %s not allowed", current.Status, *update.Status),
			fmt.Sprintf("Cannot change status from %s to %s", current.Status, *update.Status),
		)
	}

	changes := storage.PlanChanges{PlanUpdate: update}
	if update.Cadence != nil {
		next, err := update.Cadence.Next(s.now())
		if err != nil {
			return nil, err
		}
		changes.NextExecution = &next
	}

	updated, err := s.db.UpdatePlan(ctx, id, walletID, changes)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"plan_id":   updated.ID,
		"wallet_id": walletID,
		"status":    updated.Status,
	}).Info("plan updated")

	s.syncTrigger(ctx, updated)
	return updated, nil
}

func (s *PlanService) Delete(ctx context.Context, id uuid.UUID, walletID string) error {
	if err := s.db.DeletePlan(ctx, id, walletID); err != nil {
		return err
	}
	if err := s.scheduler.Deregister(ctx, id); err != nil {
		s.logger.WithError(err).WithField("plan_id", id).Warn("failed to remove trigger of deleted plan")
	}
	return nil
}

// ExecuteNow runs an active plan outside its schedule.
func (s *PlanService) ExecuteNow(ctx context.Context, id uuid.UUID) (*execution.Result, error) {
	if s.engine == nil {
		return nil, errors.New("execution engine is not configured")
	}
	res, err := s.engine.Execute(ctx, id)
	if err != nil {
		var execErr *types.ExecutionError
		if errors.As(err, &execErr) {
			if er := s.scheduler.Deregister(ctx, id); er != nil {
				s.logger.WithError(er).WithField("plan_id", id).Warn("failed to remove trigger")
			}
		}
		return nil, err
	}
	s.syncTrigger(ctx, res.Plan)
	return res, nil
}

func (s *PlanService) ListExecutions(ctx context.Context, id uuid.UUID) ([]types.PlanExecution, error) {
	if _, err := s.db.GetPlan(ctx, id); err != nil {
		return nil, err
	}
	executions, err := s.db.ListExecutions(ctx, id)
	if err != nil {
		return nil, err
	}
	if executions == nil {
		executions = []types.PlanExecution{}
	}
	return executions, nil
}

func (s *PlanService) ownedPlan(ctx context.Context, id uuid.UUID, walletID string) (*types.Plan, error) {
	plan, err := s.db.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.WalletID != walletID {
		return nil, fmt.Errorf("plan %s: %w", id, types.ErrNotFound)
	}
	return plan, nil
}

// syncTrigger is best effort: the reconciler converges whatever fails here.
func (s *PlanService) syncTrigger(ctx context.Context, plan *types.Plan) {
	if plan == nil {
		return
	}
	var err error
	if plan.Active() {
		_, err = s.scheduler.Register(ctx, plan)
	} else {
		err = s.scheduler.Deregister(ctx, plan.ID)
	}
	if err != nil {
		s.logger.WithError(err).WithField("plan_id", plan.ID).Warn("failed to sync plan trigger")
	}
}
