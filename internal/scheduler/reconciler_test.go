package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/vultisig/sip/types"
)

type planSourceMock struct {
	mu    sync.Mutex
	plans map[uuid.UUID]types.Plan
	err   error
}

func newPlanSourceMock(plans ...types.Plan) *planSourceMock {
	m := &planSourceMock{plans: make(map[uuid.UUID]types.Plan)}
	for _, p := range plans {
		m.plans[p.ID] = p
	}
	return m
}

func (m *planSourceMock) set(plan types.Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = plan
}

func (m *planSourceMock) GetPlansByStatus(_ context.Context, status types.PlanStatus) ([]types.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var res []types.Plan
	for _, p := range m.plans {
		if p.Status == status {
			res = append(res, p)
		}
	}
	return res, nil
}

type failingRegistry struct {
	*MemoryRegistry
	failUpsert string
}

func (f *failingRegistry) UpsertTrigger(ctx context.Context, trigger types.Trigger) (string, error) {
	if trigger.ID == f.failUpsert {
		return "", errors.New("redis: connection refused")
	}
	return f.MemoryRegistry.UpsertTrigger(ctx, trigger)
}

func testPlan(status types.PlanStatus, cadence types.Cadence) types.Plan {
	return types.Plan{
		ID:            uuid.New(),
		WalletID:      "wallet-1",
		FromAsset:     "ETH",
		ToAsset:       "USDC",
		Amount:        decimal.NewFromInt(10),
		Cadence:       cadence,
		Status:        status,
		NextExecution: time.Date(2025, 3, 10, 8, 15, 0, 0, time.UTC),
	}
}

func newTestReconciler(t *testing.T, plans PlanSource, registry Registry) *Reconciler {
	t.Helper()
	cron, err := NewCronBuilder(time.UTC, "")
	require.NoError(t, err)
	return NewReconciler(logrus.New(), plans, registry, cron, time.Minute, nil)
}

func triggerIDs(t *testing.T, registry Registry) []string {
	t.Helper()
	triggers, err := registry.ListTriggers(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(triggers))
	for _, tr := range triggers {
		ids = append(ids, tr.ID)
	}
	return ids
}

func TestReconciler_Reconcile(t *testing.T) {
	ctx := context.Background()

	daily := testPlan(types.PlanStatusActive, types.CadenceDaily)
	weekly := testPlan(types.PlanStatusActive, types.CadenceWeekly)
	paused := testPlan(types.PlanStatusPaused, types.CadenceDaily)
	broke := testPlan(types.PlanStatusInsufficientFunds, types.CadenceMonthly)
	done := testPlan(types.PlanStatusCompleted, types.CadenceDaily)
	deleted := uuid.New()

	plans := newPlanSourceMock(daily, weekly, paused, broke, done)
	registry := NewMemoryRegistry()
	for _, id := range []uuid.UUID{paused.ID, broke.ID, deleted} {
		_, err := registry.UpsertTrigger(ctx, types.Trigger{ID: types.TriggerIDFor(id), Cronspec: "* * * * *"})
		require.NoError(t, err)
	}
	_, err := registry.UpsertTrigger(ctx, types.Trigger{ID: "other-system-job", Cronspec: "@every 1m"})
	require.NoError(t, err)

	r := newTestReconciler(t, plans, registry)

	report, err := r.Reconcile(ctx)
	require.NoError(t, err)
	require.Equal(t, Report{Active: 2, Created: 2, Removed: 3}, report)
	require.ElementsMatch(t, []string{
		daily.TriggerID(),
		weekly.TriggerID(),
		"other-system-job",
	}, triggerIDs(t, registry))

	t.Run("second sweep is idempotent", func(t *testing.T) {
		report, err := r.Reconcile(ctx)
		require.NoError(t, err)
		require.Equal(t, Report{Active: 2, Refreshed: 2}, report)
		require.Len(t, triggerIDs(t, registry), 3)
	})

	t.Run("cadence changed in store is refreshed", func(t *testing.T) {
		changed := weekly
		changed.Cadence = types.CadenceMonthly
		plans.set(changed)

		_, err := r.Reconcile(ctx)
		require.NoError(t, err)

		triggers, err := registry.ListTriggers(ctx)
		require.NoError(t, err)
		for _, tr := range triggers {
			if tr.ID == weekly.TriggerID() {
				require.Equal(t, "15 8 10 * *", tr.Cronspec)
				require.Equal(t, types.CadenceMonthly, tr.Payload.Cadence)
				require.Equal(t, weekly.ID, tr.Payload.PlanID)
			}
		}
	})

	t.Run("paused plan loses its trigger", func(t *testing.T) {
		p := daily
		p.Status = types.PlanStatusPaused
		plans.set(p)

		report, err := r.Reconcile(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, report.Removed)
		require.NotContains(t, triggerIDs(t, registry), daily.TriggerID())
	})
}

func TestReconciler_ReconcileContinuesPastFailures(t *testing.T) {
	ctx := context.Background()

	ok := testPlan(types.PlanStatusActive, types.CadenceDaily)
	bad := testPlan(types.PlanStatusActive, types.CadenceDaily)
	registry := &failingRegistry{MemoryRegistry: NewMemoryRegistry(), failUpsert: bad.TriggerID()}

	r := newTestReconciler(t, newPlanSourceMock(ok, bad), registry)

	report, err := r.Reconcile(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), bad.ID.String())
	require.Equal(t, 1, report.Created)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, []string{ok.TriggerID()}, triggerIDs(t, registry))
}

func TestReconciler_ReconcileStoreError(t *testing.T) {
	plans := newPlanSourceMock()
	plans.err = errors.New("db down")
	registry := NewMemoryRegistry()
	_, err := registry.UpsertTrigger(context.Background(), types.Trigger{ID: types.TriggerIDFor(uuid.New())})
	require.NoError(t, err)

	r := newTestReconciler(t, plans, registry)

	_, err = r.Reconcile(context.Background())
	require.ErrorContains(t, err, "db down")
	require.Len(t, triggerIDs(t, registry), 1, "nothing is removed when the store cannot be read")
}

func TestReconciler_RegisterDeregister(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()
	r := newTestReconciler(t, newPlanSourceMock(), registry)

	plan := testPlan(types.PlanStatusActive, types.CadenceWeekly)

	id, err := r.Register(ctx, &plan)
	require.NoError(t, err)
	require.Equal(t, "sip-scheduler-"+plan.ID.String(), id)

	_, err = r.Register(ctx, &plan)
	require.NoError(t, err)
	require.Len(t, triggerIDs(t, registry), 1)

	require.NoError(t, r.Deregister(ctx, plan.ID))
	require.Empty(t, triggerIDs(t, registry))
	require.NoError(t, r.Deregister(ctx, plan.ID), "removing a missing trigger is not an error")

	paused := testPlan(types.PlanStatusPaused, types.CadenceDaily)
	_, err = r.Register(ctx, &paused)
	require.ErrorIs(t, err, types.ErrNotActive)
	require.Empty(t, triggerIDs(t, registry))
}

func TestReconciler_RegisterLogsNextFire(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	cron, err := NewCronBuilder(time.UTC, "")
	require.NoError(t, err)
	r := NewReconciler(logger, newPlanSourceMock(), NewMemoryRegistry(), cron, time.Minute, nil)

	plan := testPlan(types.PlanStatusActive, types.CadenceDaily)
	_, err = r.Register(context.Background(), &plan)
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, "trigger registered", entry.Message)
	next, ok := entry.Data["next_fire"].(time.Time)
	require.True(t, ok)
	require.True(t, next.After(time.Now()))
	require.Equal(t, plan.NextExecution.UTC().Minute(), next.Minute())
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	registry := NewMemoryRegistry()
	plan := testPlan(types.PlanStatusActive, types.CadenceDaily)
	r := newTestReconciler(t, newPlanSourceMock(plan), registry)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		triggers, _ := registry.ListTriggers(context.Background())
		return len(triggers) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
