package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/vultisig/sip/internal/storage"
	"github.com/vultisig/sip/types"
)

const planColumns = `id, wallet_id, from_asset, to_asset, amount::text, cadence::text, status::text,
	last_execution, next_execution, total_executions, created_at, updated_at`

func scanPlan(row pgx.Row) (*types.Plan, error) {
	var (
		plan    types.Plan
		amount  string
		cadence string
		status  string
	)
	err := row.Scan(
		&plan.ID,
		&plan.WalletID,
		&plan.FromAsset,
		&plan.ToAsset,
		&amount,
		&cadence,
		&status,
		&plan.LastExecution,
		&plan.NextExecution,
		&plan.TotalExecutions,
		&plan.CreatedAt,
		&plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	plan.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan amount %q: %w", amount, err)
	}
	plan.Cadence = types.Cadence(cadence)
	plan.Status = types.PlanStatus(status)
	return &plan, nil
}

func notFound(id uuid.UUID, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("plan %s: %w", id, types.ErrNotFound)
	}
	return err
}

func (p *PostgresBackend) queryPlans(ctx context.Context, query string, args ...any) ([]types.Plan, error) {
	rows, err := p.tx.Try(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []types.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over plans: %w", err)
	}
	return plans, nil
}

func (p *PostgresBackend) GetPlan(ctx context.Context, id uuid.UUID) (*types.Plan, error) {
	plan, err := scanPlan(p.tx.Try(ctx).QueryRow(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE id = $1
	`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", notFound(id, err))
	}
	return plan, nil
}

func (p *PostgresBackend) GetPlansByStatus(ctx context.Context, status types.PlanStatus) ([]types.Plan, error) {
	return p.queryPlans(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE status = $1
		ORDER BY next_execution
	`, string(status))
}

func (p *PostgresBackend) GetPlansByWallet(ctx context.Context, walletID string) ([]types.Plan, error) {
	return p.queryPlans(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE wallet_id = $1
		ORDER BY created_at DESC
	`, walletID)
}

func (p *PostgresBackend) InsertPlan(ctx context.Context, plan types.Plan) (*types.Plan, error) {
	inserted, err := scanPlan(p.tx.Try(ctx).QueryRow(ctx, `
		INSERT INTO plans (
			wallet_id, from_asset, to_asset, amount, cadence, status,
			last_execution, next_execution, total_executions
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)
		RETURNING `+planColumns,
		plan.WalletID,
		plan.FromAsset,
		plan.ToAsset,
		plan.Amount.String(),
		string(plan.Cadence),
		string(plan.Status),
		plan.LastExecution,
		plan.NextExecution,
		plan.TotalExecutions,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert plan: %w", err)
	}
	return inserted, nil
}

func (p *PostgresBackend) UpdatePlan(
	ctx context.Context,
	id uuid.UUID,
	walletID string,
	changes storage.PlanChanges,
) (*types.Plan, error) {
	var status, cadence, amount *string
	if changes.Status != nil {
		v := string(*changes.Status)
		status = &v
	}
	if changes.Cadence != nil {
		v := string(*changes.Cadence)
		cadence = &v
	}
	if changes.Amount != nil {
		v := changes.Amount.String()
		amount = &v
	}

	plan, err := scanPlan(p.tx.Try(ctx).QueryRow(ctx, `
		UPDATE plans
		SET status = COALESCE($3::plan_status, status),
			cadence = COALESCE($4::plan_cadence, cadence),
			amount = COALESCE($5::numeric, amount),
			next_execution = COALESCE($6, next_execution),
			updated_at = NOW()
		WHERE id = $1 AND wallet_id = $2
		RETURNING `+planColumns,
		id,
		walletID,
		status,
		cadence,
		amount,
		changes.NextExecution,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", notFound(id, err))
	}
	return plan, nil
}

func (p *PostgresBackend) SetPlanStatus(ctx context.Context, id uuid.UUID, status types.PlanStatus) (*types.Plan, error) {
	plan, err := scanPlan(p.tx.Try(ctx).QueryRow(ctx, `
		UPDATE plans
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+planColumns,
		id,
		string(status),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to set plan status: %w", notFound(id, err))
	}
	return plan, nil
}

func (p *PostgresBackend) DeletePlan(ctx context.Context, id uuid.UUID, walletID string) error {
	tag, err := p.tx.Try(ctx).Exec(ctx, `
		DELETE FROM plans
		WHERE id = $1 AND wallet_id = $2
	`, id, walletID)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to delete plan %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func (p *PostgresBackend) RecordExecution(
	ctx context.Context,
	id uuid.UUID,
	trade types.Trade,
	executedAt, next time.Time,
) (_ *types.Plan, err error) {
	ctx, err = p.tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rbErr := p.tx.Rollback(ctx); rbErr != nil {
			p.logger.WithError(rbErr).Error("failed to rollback execution bookkeeping")
		}
	}()

	plan, err := scanPlan(p.tx.Try(ctx).QueryRow(ctx, `
		UPDATE plans
		SET last_execution = $2,
			next_execution = $3,
			total_executions = total_executions + 1,
			status = 'active',
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+planColumns,
		id,
		executedAt,
		next,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to update plan bookkeeping: %w", notFound(id, err))
	}

	var txHash *string
	if trade.TxHash != "" {
		txHash = &trade.TxHash
	}
	_, err = p.tx.Try(ctx).Exec(ctx, `
		INSERT INTO plan_executions (plan_id, trade_id, tx_hash, amount, executed_at)
		VALUES ($1, $2, $3, $4::numeric, $5)
	`, id, trade.TradeID, txHash, plan.Amount.String(), executedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert plan execution: %w", err)
	}

	if err := p.tx.Commit(ctx); err != nil {
		return nil, err
	}
	return plan, nil
}

func (p *PostgresBackend) ListExecutions(ctx context.Context, planID uuid.UUID) ([]types.PlanExecution, error) {
	rows, err := p.tx.Try(ctx).Query(ctx, `
		SELECT id, plan_id, trade_id, COALESCE(tx_hash, ''), amount::text, executed_at
		FROM plan_executions
		WHERE plan_id = $1
		ORDER BY executed_at DESC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan executions: %w", err)
	}
	defer rows.Close()

	var executions []types.PlanExecution
	for rows.Next() {
		var (
			e      types.PlanExecution
			amount string
		)
		if err := rows.Scan(&e.ID, &e.PlanID, &e.TradeID, &e.TxHash, &amount, &e.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan execution: %w", err)
		}
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse execution amount %q: %w", amount, err)
		}
		executions = append(executions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over plan executions: %w", err)
	}
	return executions, nil
}
