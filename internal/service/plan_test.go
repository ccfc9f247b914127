package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/sip/internal/execution"
	"github.com/vultisig/sip/internal/storage"
	"github.com/vultisig/sip/types"
)

type planStoreMock struct {
	mu         sync.Mutex
	plans      map[uuid.UUID]*types.Plan
	executions map[uuid.UUID][]types.PlanExecution
	insertErr  error
}

var _ storage.PlanStorage = (*planStoreMock)(nil)

func newPlanStoreMock() *planStoreMock {
	return &planStoreMock{
		plans:      make(map[uuid.UUID]*types.Plan),
		executions: make(map[uuid.UUID][]types.PlanExecution),
	}
}

func (m *planStoreMock) Close() error                   { return nil }
func (m *planStoreMock) Ping(ctx context.Context) error { return nil }

func (m *planStoreMock) GetPlan(_ context.Context, id uuid.UUID) (*types.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, types.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *planStoreMock) GetPlansByStatus(_ context.Context, status types.PlanStatus) ([]types.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []types.Plan
	for _, p := range m.plans {
		if p.Status == status {
			res = append(res, *p)
		}
	}
	return res, nil
}

func (m *planStoreMock) GetPlansByWallet(_ context.Context, walletID string) ([]types.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []types.Plan
	for _, p := range m.plans {
		if p.WalletID == walletID {
			res = append(res, *p)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *planStoreMock) InsertPlan(_ context.Context, plan types.Plan) (*types.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	plan.ID = uuid.New()
	plan.CreatedAt = time.Now()
	plan.UpdatedAt = plan.CreatedAt
	m.plans[plan.ID] = &plan
	cp := plan
	return &cp, nil
}

func (m *planStoreMock) UpdatePlan(_ context.Context, id uuid.UUID, walletID string, changes storage.PlanChanges) (*types.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok || p.WalletID != walletID {
		return nil, types.ErrNotFound
	}
	if changes.Status != nil {
		p.Status = *changes.Status
	}
	if changes.Cadence != nil {
		p.Cadence = *changes.Cadence
	}
	if changes.Amount != nil {
		p.Amount = *changes.Amount
	}
	if changes.NextExecution != nil {
		p.NextExecution = *changes.NextExecution
	}
	cp := *p
	return &cp, nil
}

func (m *planStoreMock) SetPlanStatus(_ context.Context, id uuid.UUID, status types.PlanStatus) (*types.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	p.Status = status
	cp := *p
	return &cp, nil
}

func (m *planStoreMock) DeletePlan(_ context.Context, id uuid.UUID, walletID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok || p.WalletID != walletID {
		return types.ErrNotFound
	}
	delete(m.plans, id)
	return nil
}

func (m *planStoreMock) RecordExecution(_ context.Context, id uuid.UUID, tr types.Trade, executedAt, next time.Time) (*types.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	p.LastExecution = &executedAt
	p.NextExecution = next
	p.TotalExecutions++
	p.Status = types.PlanStatusActive
	m.executions[id] = append(m.executions[id], types.PlanExecution{
		ID: uuid.New(), PlanID: id, TradeID: tr.TradeID, Amount: p.Amount, ExecutedAt: executedAt,
	})
	cp := *p
	return &cp, nil
}

func (m *planStoreMock) ListExecutions(_ context.Context, planID uuid.UUID) ([]types.PlanExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executions[planID], nil
}

type traderMock struct {
	err   error
	calls int
}

func (m *traderMock) ExecuteTrade(_ context.Context, walletID string, amount decimal.Decimal, from, to string) (*types.Trade, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &types.Trade{TradeID: "t-1", WalletID: walletID, FromAsset: from, ToAsset: to, FromAmount: amount}, nil
}

type schedulerMock struct {
	registered map[uuid.UUID]int
	removed    map[uuid.UUID]int
}

func newSchedulerMock() *schedulerMock {
	return &schedulerMock{registered: map[uuid.UUID]int{}, removed: map[uuid.UUID]int{}}
}

func (m *schedulerMock) Register(_ context.Context, plan *types.Plan) (string, error) {
	m.registered[plan.ID]++
	return plan.TriggerID(), nil
}

func (m *schedulerMock) Deregister(_ context.Context, planID uuid.UUID) error {
	m.removed[planID]++
	return nil
}

type executorMock struct {
	res *execution.Result
	err error
}

func (m *executorMock) Execute(context.Context, uuid.UUID) (*execution.Result, error) {
	return m.res, m.err
}

var fixedNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db     *planStoreMock
	trader *traderMock
	sched  *schedulerMock
	engine *executorMock
	svc    *PlanService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:     newPlanStoreMock(),
		trader: &traderMock{},
		sched:  newSchedulerMock(),
		engine: &executorMock{},
	}
	svc, err := NewPlanService(logrus.New(), f.db, f.trader, f.sched, f.engine)
	require.NoError(t, err)
	svc.now = func() time.Time { return fixedNow }
	f.svc = svc
	return f
}

func createRequest() types.CreatePlanRequest {
	return types.CreatePlanRequest{
		WalletID:  "wallet-1",
		FromAsset: "ETH",
		ToAsset:   "USDC",
		Amount:    decimal.RequireFromString("10.5"),
		Cadence:   types.CadenceWeekly,
	}
}

func TestPlanService_Create(t *testing.T) {
	t.Run("initial trade settles", func(t *testing.T) {
		f := newFixture(t)

		res, err := f.svc.Create(context.Background(), createRequest())
		require.NoError(t, err)
		require.Empty(t, res.Error)
		require.NotNil(t, res.InitialTrade)

		plan := res.Plan
		require.Equal(t, types.PlanStatusActive, plan.Status)
		require.Equal(t, int64(1), plan.TotalExecutions)
		require.Equal(t, fixedNow, *plan.LastExecution)
		require.Equal(t, fixedNow.AddDate(0, 0, 7), plan.NextExecution)
		require.Equal(t, "eth", plan.FromAsset)
		require.Equal(t, "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", plan.ToAsset)
		require.Equal(t, 1, f.sched.registered[plan.ID])
	})

	tests := []struct {
		name    string
		err     error
		status  types.PlanStatus
		message string
	}{
		{"insufficient funds", fmt.Errorf("trade rejected: %w", types.ErrInsufficientFunds), types.PlanStatusInsufficientFunds, "Insufficient funds for initial trade"},
		{"other failure", errors.New("gateway timeout"), types.PlanStatusPaused, "Failed to execute initial trade"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.trader.err = tc.err

			res, err := f.svc.Create(context.Background(), createRequest())
			require.NoError(t, err, "a plan row is stored regardless of the trade outcome")
			require.Equal(t, tc.message, res.Error)
			require.Nil(t, res.InitialTrade)
			require.Equal(t, tc.status, res.Plan.Status)
			require.Equal(t, int64(0), res.Plan.TotalExecutions)
			require.Nil(t, res.Plan.LastExecution)
			require.Equal(t, 1, f.trader.calls)
			require.Zero(t, f.sched.registered[res.Plan.ID])
		})
	}

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t)
		req := createRequest()
		req.Cadence = "hourly"

		_, err := f.svc.Create(context.Background(), req)
		require.Equal(t, types.KindValidation, types.Classify(err))
		require.Equal(t, 0, f.trader.calls)
	})

	t.Run("store failure after settled trade", func(t *testing.T) {
		f := newFixture(t)
		f.db.insertErr = errors.New("db down")

		_, err := f.svc.Create(context.Background(), createRequest())
		var bkErr *types.BookkeepingError
		require.ErrorAs(t, err, &bkErr)
		require.Equal(t, "t-1", bkErr.Trade.TradeID)
	})
}

func seedPlan(t *testing.T, f *fixture, status types.PlanStatus) *types.Plan {
	t.Helper()
	plan, err := f.db.InsertPlan(context.Background(), types.Plan{
		WalletID:      "wallet-1",
		FromAsset:     "eth",
		ToAsset:       "usdc",
		Amount:        decimal.NewFromInt(5),
		Cadence:       types.CadenceDaily,
		Status:        status,
		NextExecution: fixedNow.Add(-time.Hour),
	})
	require.NoError(t, err)
	return plan
}

func TestPlanService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	plan := seedPlan(t, f, types.PlanStatusActive)

	paused, err := f.svc.UpdateStatus(ctx, plan.ID, "wallet-1", "paused")
	require.NoError(t, err)
	require.Equal(t, types.PlanStatusPaused, paused.Status)
	require.Equal(t, 1, f.sched.removed[plan.ID])

	resumed, err := f.svc.UpdateStatus(ctx, plan.ID, "wallet-1", "active")
	require.NoError(t, err)
	require.Equal(t, types.PlanStatusActive, resumed.Status)
	require.Equal(t, 1, f.sched.registered[plan.ID])

	_, err = f.svc.UpdateStatus(ctx, plan.ID, "wallet-1", "running")
	var vErr *types.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "Invalid status. Must be one of: active, paused, completed, insufficient_funds", vErr.Message)

	_, err = f.svc.UpdateStatus(ctx, plan.ID, "wallet-2", "paused")
	require.ErrorIs(t, err, types.ErrNotFound, "other wallets cannot touch the plan")

	_, err = f.svc.UpdateStatus(ctx, plan.ID, "wallet-1", "insufficient_funds")
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "Cannot change status from active to insufficient_funds", vErr.Message)
	stored, err := f.svc.Get(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, types.PlanStatusActive, stored.Status)

	_, err = f.svc.UpdateStatus(ctx, plan.ID, "wallet-1", "completed")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, plan.ID, "wallet-1", "active")
	require.Equal(t, types.KindValidation, types.Classify(err), "completed is terminal")
}

func TestPlanService_UpdateStatusFromInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	plan := seedPlan(t, f, types.PlanStatusInsufficientFunds)

	_, err := f.svc.UpdateStatus(ctx, plan.ID, "wallet-1", "paused")
	var vErr *types.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, "Cannot change status from insufficient_funds to paused", vErr.Message)

	resumed, err := f.svc.UpdateStatus(ctx, plan.ID, "wallet-1", "active")
	require.NoError(t, err)
	require.Equal(t, types.PlanStatusActive, resumed.Status)
	require.Equal(t, 1, f.sched.registered[plan.ID])
}

func TestPlanService_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	plan := seedPlan(t, f, types.PlanStatusActive)

	monthly := types.CadenceMonthly
	amount := decimal.NewFromInt(25)
	updated, err := f.svc.Update(ctx, plan.ID, "wallet-1", types.PlanUpdate{Cadence: &monthly, Amount: &amount})
	require.NoError(t, err)
	require.Equal(t, types.CadenceMonthly, updated.Cadence)
	require.True(t, amount.Equal(updated.Amount))
	require.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), updated.NextExecution)
	require.Equal(t, 1, f.sched.registered[plan.ID])

	zero := decimal.Zero
	_, err = f.svc.Update(ctx, plan.ID, "wallet-1", types.PlanUpdate{Amount: &zero})
	require.Equal(t, types.KindValidation, types.Classify(err))

	_, err = f.svc.Update(ctx, plan.ID, "wallet-1", types.PlanUpdate{})
	require.Equal(t, types.KindValidation, types.Classify(err))

	stored, err := f.svc.Get(ctx, plan.ID)
	require.NoError(t, err)
	require.True(t, amount.Equal(stored.Amount), "rejected updates change nothing")
}

func TestPlanService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	plan := seedPlan(t, f, types.PlanStatusActive)

	require.ErrorIs(t, f.svc.Delete(ctx, plan.ID, "wallet-2"), types.ErrNotFound)
	require.Zero(t, f.sched.removed[plan.ID])

	require.NoError(t, f.svc.Delete(ctx, plan.ID, "wallet-1"))
	require.Equal(t, 1, f.sched.removed[plan.ID])

	_, err := f.svc.Get(ctx, plan.ID)
	require.ErrorIs(t, err, types.ErrNotFound)
}

func TestPlanService_ExecuteNow(t *testing.T) {
	ctx := context.Background()

	t.Run("success refreshes trigger", func(t *testing.T) {
		f := newFixture(t)
		plan := seedPlan(t, f, types.PlanStatusActive)
		f.engine.res = &execution.Result{Plan: plan, Trade: &types.Trade{TradeID: "t-2"}}

		res, err := f.svc.ExecuteNow(ctx, plan.ID)
		require.NoError(t, err)
		require.Equal(t, "t-2", res.Trade.TradeID)
		require.Equal(t, 1, f.sched.registered[plan.ID])
	})

	t.Run("exhaustion removes trigger", func(t *testing.T) {
		f := newFixture(t)
		plan := seedPlan(t, f, types.PlanStatusActive)
		f.engine.err = &types.ExecutionError{PlanID: plan.ID, Status: types.PlanStatusPaused, Attempts: 3, Err: errors.New("timeout")}

		_, err := f.svc.ExecuteNow(ctx, plan.ID)
		require.Error(t, err)
		require.Equal(t, 1, f.sched.removed[plan.ID])
	})
}

func TestPlanService_Lists(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	plan := seedPlan(t, f, types.PlanStatusActive)

	plans, err := f.svc.ListByWallet(ctx, "wallet-1")
	require.NoError(t, err)
	require.Len(t, plans, 1)

	plans, err = f.svc.ListByWallet(ctx, "nobody")
	require.NoError(t, err)
	require.NotNil(t, plans)
	require.Empty(t, plans)

	_, err = f.svc.ListByWallet(ctx, "")
	require.Equal(t, types.KindValidation, types.Classify(err))

	executions, err := f.svc.ListExecutions(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, executions)

	_, err = f.svc.ListExecutions(ctx, uuid.New())
	require.ErrorIs(t, err, types.ErrNotFound)
}
