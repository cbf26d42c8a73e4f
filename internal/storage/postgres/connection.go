package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/easyvinted/publisher/internal/common"
)

// psql builds statements with $n placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresDB manages the connection pool
type PostgresDB struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// NewPostgresDB opens a pool against config.DSN and pings it
func NewPostgresDB(ctx context.Context, logger arbor.ILogger, config *common.PostgresConfig) (*PostgresDB, error) {
	cfg, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	maxConns := config.MaxConns
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = maxConns
	if config.ViaPooler {
		// transaction poolers drop prepared statements between transactions
		cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Debug().
		Str("host", cfg.ConnConfig.Host).
		Int("max_conns", int(maxConns)).
		Bool("via_pooler", config.ViaPooler).
		Msg("Postgres pool initialized")

	return &PostgresDB{pool: pool, logger: logger}, nil
}

// Pool returns the underlying pool
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}

// EnsureSchema creates missing tables; existing ones are left alone
func (d *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the pool
func (d *PostgresDB) Close() error {
	if d.pool != nil {
		d.pool.Close()
	}
	return nil
}
