package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vultisig/sip/types"
)

// PlanStorage is the durable plan record store. Every mutation touches a single
// row and is atomic on its own.
type PlanStorage interface {
	Close() error
	Ping(ctx context.Context) error

	GetPlan(ctx context.Context, id uuid.UUID) (*types.Plan, error)
	GetPlansByStatus(ctx context.Context, status types.PlanStatus) ([]types.Plan, error)
	GetPlansByWallet(ctx context.Context, walletID string) ([]types.Plan, error)
	InsertPlan(ctx context.Context, plan types.Plan) (*types.Plan, error)
	UpdatePlan(ctx context.Context, id uuid.UUID, walletID string, changes PlanChanges) (*types.Plan, error)
	SetPlanStatus(ctx context.Context, id uuid.UUID, status types.PlanStatus) (*types.Plan, error)
	DeletePlan(ctx context.Context, id uuid.UUID, walletID string) error

	// RecordExecution stores the bookkeeping of one settled trade: last/next
	// execution, execution counter, active status and the history row.
	RecordExecution(ctx context.Context, id uuid.UUID, trade types.Trade, executedAt, next time.Time) (*types.Plan, error)
	ListExecutions(ctx context.Context, planID uuid.UUID) ([]types.PlanExecution, error)
}

// PlanChanges is an owner-scoped partial update; nil fields keep their value.
type PlanChanges struct {
	types.PlanUpdate
	NextExecution *time.Time
}
