package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/sip/internal/storage"
)

var _ storage.PlanStorage = (*PostgresBackend)(nil)

type PostgresBackend struct {
	pool   *pgxpool.Pool
	tx     *TxHandler
	logger *logrus.Logger
}

const defaultTimeout = 10 * time.Second

func NewPostgresBackend(logger *logrus.Logger, dsn string, migrate bool) (*PostgresBackend, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	backend := &PostgresBackend{
		pool:   pool,
		tx:     NewTxHandler(pool),
		logger: logger.WithField("pkg", "postgres.PostgresBackend").Logger,
	}

	if migrate {
		if err := NewMigrationManager(logger, pool).Migrate(); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return backend, nil
}

func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresBackend) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
