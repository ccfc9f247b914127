package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/sip/internal/metrics"
	"github.com/vultisig/sip/types"
)

const DefaultReconcileInterval = 10 * time.Minute

type PlanSource interface {
	GetPlansByStatus(ctx context.Context, status types.PlanStatus) ([]types.Plan, error)
}

// Report summarizes one reconciliation sweep.
type Report struct {
	Active    int
	Created   int
	Refreshed int
	Removed   int
	Failed    int
}

func (r Report) Fields() logrus.Fields {
	return logrus.Fields{
		"active":    r.Active,
		"created":   r.Created,
		"refreshed": r.Refreshed,
		"removed":   r.Removed,
		"failed":    r.Failed,
	}
}

// Reconciler is the only writer of the trigger registry. It converges the
// registry with the set of active plans on a fixed interval, and serves
// on-demand Register/Deregister calls from the API and the dispatch worker.
type Reconciler struct {
	logger   *logrus.Logger
	plans    PlanSource
	registry Registry
	cron     *CronBuilder
	metrics  metrics.SchedulerMetrics

	interval         time.Duration
	iterationTimeout time.Duration
}

func NewReconciler(
	logger *logrus.Logger,
	plans PlanSource,
	registry Registry,
	cron *CronBuilder,
	interval time.Duration,
	m metrics.SchedulerMetrics,
) *Reconciler {
	if interval <= 0 {
		interval = DefaultReconcileInterval
	}
	if m == nil {
		m = metrics.Nil()
	}
	return &Reconciler{
		logger:           logger.WithField("pkg", "scheduler.Reconciler").Logger,
		plans:            plans,
		registry:         registry,
		cron:             cron,
		metrics:          m,
		interval:         interval,
		iterationTimeout: time.Minute,
	}
}

func (r *Reconciler) trigger(plan *types.Plan) (types.Trigger, error) {
	spec, err := r.cron.Spec(plan.Cadence, plan.NextExecution)
	if err != nil {
		return types.Trigger{}, err
	}
	return types.Trigger{
		ID:       plan.TriggerID(),
		Cronspec: spec,
		Payload: types.JobPayload{
			PlanID:        plan.ID,
			Cadence:       plan.Cadence,
			ScheduledTime: plan.NextExecution,
		},
	}, nil
}

// Register upserts the trigger of an active plan. Registering the same plan
// twice replaces the trigger in place.
func (r *Reconciler) Register(ctx context.Context, plan *types.Plan) (string, error) {
	if !plan.Active() {
		return "", fmt.Errorf("plan %s is %s: %w", plan.ID, plan.Status, types.ErrNotActive)
	}
	trigger, err := r.trigger(plan)
	if err != nil {
		return "", fmt.Errorf("failed to build trigger: %w", err)
	}
	id, err := r.registry.UpsertTrigger(ctx, trigger)
	if err != nil {
		return "", err
	}
	r.metrics.RecordTriggerChange("upsert")
	fields := logrus.Fields{
		"plan_id":  plan.ID,
		"trigger":  trigger.String(),
		"next_run": plan.NextExecution,
	}
	if next, err := r.cron.NextFire(trigger.Cronspec, time.Now()); err == nil {
		fields["next_fire"] = next
	}
	r.logger.WithFields(fields).Info("trigger registered")
	return id, nil
}

// Deregister removes the plan's trigger; a missing trigger is not an error.
func (r *Reconciler) Deregister(ctx context.Context, planID uuid.UUID) error {
	triggerID := types.TriggerIDFor(planID)
	if err := r.registry.RemoveTrigger(ctx, triggerID); err != nil {
		return err
	}
	r.metrics.RecordTriggerChange("remove")
	r.logger.WithField("trigger_id", triggerID).Info("trigger removed")
	return nil
}

// Reconcile runs one sweep. Per-plan failures do not stop the sweep; they are
// counted and returned joined once every plan and trigger has been visited.
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	start := time.Now()
	report, err := r.reconcile(ctx)
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.RecordSweep(status, time.Since(start).Seconds())
	return report, err
}

func (r *Reconciler) reconcile(ctx context.Context) (Report, error) {
	var report Report

	active, err := r.plans.GetPlansByStatus(ctx, types.PlanStatusActive)
	if err != nil {
		return report, fmt.Errorf("failed to get active plans: %w", err)
	}
	triggers, err := r.registry.ListTriggers(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list triggers: %w", err)
	}
	report.Active = len(active)
	r.metrics.SetActivePlans(float64(len(active)))

	registered := make(map[string]struct{}, len(triggers))
	for _, t := range triggers {
		registered[t.ID] = struct{}{}
	}

	var errs []error
	wanted := make(map[uuid.UUID]struct{}, len(active))
	for i := range active {
		plan := &active[i]
		wanted[plan.ID] = struct{}{}

		_, exists := registered[plan.TriggerID()]
		if _, err := r.Register(ctx, plan); err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("plan %s: %w", plan.ID, err))
			continue
		}
		if exists {
			report.Refreshed++
		} else {
			report.Created++
		}
	}

	for _, t := range triggers {
		planID, ok := types.PlanIDFromTrigger(t.ID)
		if !ok {
			continue
		}
		if _, keep := wanted[planID]; keep {
			continue
		}
		if err := r.registry.RemoveTrigger(ctx, t.ID); err != nil {
			report.Failed++
			errs = append(errs, err)
			continue
		}
		r.metrics.RecordTriggerChange("remove")
		r.logger.WithField("trigger_id", t.ID).Info("orphaned trigger removed")
		report.Removed++
	}

	r.metrics.SetRegisteredTriggers(float64(len(triggers) + report.Created - report.Removed))
	return report, errors.Join(errs...)
}

func (r *Reconciler) sweep(aliveCtx context.Context) error {
	ctx, cancel := context.WithTimeout(aliveCtx, r.iterationTimeout)
	defer cancel()

	report, err := r.Reconcile(ctx)
	r.logger.WithFields(report.Fields()).Info("reconciliation sweep finished")
	if err != nil {
		return fmt.Errorf("failed to reconcile: %w", err)
	}
	return nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (r *Reconciler) Run(aliveCtx context.Context) error {
	err := r.sweep(aliveCtx)
	if err != nil {
		r.logger.Errorf("initial sweep error, continue loop: %v", err)
	}

	for {
		select {
		case <-aliveCtx.Done():
			r.logger.Infof("context done & no processing: stop reconciler")
			return nil
		case <-time.After(r.interval):
			er := r.sweep(aliveCtx)
			if er != nil {
				r.logger.Errorf("processing error, continue loop: %v", er)
			}
		}
	}
}
