// Package postgres wraps pgxpool behind the DatabaseConnection interface the
// Introspector and Query Synthesizer depend on, so neither ever imports pgx
// directly.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DatabaseConnection is the collaborator interface of §6: connect-by-URL,
// execute with params, pool-managed.
type DatabaseConnection interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	Health(ctx context.Context) error
	Stats() PoolStats

	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PostgresPool implements DatabaseConnection over a pgxpool.Pool.
type PostgresPool struct {
	pool     *pgxpool.Pool
	config   *PostgresConfig
	logger   *slog.Logger
	metrics  *PoolMetrics
	health   HealthChecker
	isClosed atomic.Bool
}

// NewPostgresPool builds an unconnected pool wrapper; call Connect to dial.
func NewPostgresPool(config *PostgresConfig, logger *slog.Logger) *PostgresPool {
	if logger == nil {
		logger = slog.Default()
	}

	p := &PostgresPool{
		config:  config,
		logger:  logger,
		metrics: NewPoolMetrics(),
	}
	p.health = NewHealthChecker(p)
	return p
}

// Connect dials Postgres and starts the periodic health checker.
func (p *PostgresPool) Connect(ctx context.Context) error {
	if p.isClosed.Load() {
		return ErrConnectionClosed
	}

	if err := p.config.Validate(); err != nil {
		p.logger.Error("invalid database configuration", "error", err)
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	p.logger.Info("connecting to postgres",
		"host", p.config.Host,
		"port", p.config.Port,
		"database", p.config.Database,
		"ssl_mode", p.config.SSLMode,
		"max_conns", p.config.MaxConns,
		"min_conns", p.config.MinConns)

	poolConfig, err := pgxpool.ParseConfig(p.config.DSN())
	if err != nil {
		p.metrics.RecordConnectionError()
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	poolConfig.MaxConns = p.config.MaxConns
	poolConfig.MinConns = p.config.MinConns
	poolConfig.MaxConnLifetime = p.config.MaxConnLifetime
	poolConfig.MaxConnIdleTime = p.config.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = p.config.HealthCheckPeriod

	connectCtx, cancel := context.WithTimeout(ctx, p.config.ConnectTimeout)
	defer cancel()

	start := time.Now()
	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		p.metrics.RecordConnectionError()
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		p.metrics.RecordConnectionError()
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	p.pool = pool
	p.metrics.RecordConnectionWait(time.Since(start))
	p.metrics.RecordSuccessfulConnection()
	p.logger.Info("connected to postgres", "connection_time", time.Since(start))

	go NewPeriodicHealthChecker(p.health, p.config.HealthCheckPeriod).Start(ctx)

	return nil
}

// Disconnect closes the underlying pool.
func (p *PostgresPool) Disconnect(ctx context.Context) error {
	if p.pool == nil {
		return nil
	}
	if p.isClosed.Load() {
		return ErrConnectionClosed
	}

	p.pool.Close()
	p.isClosed.Store(true)
	p.logger.Info("disconnected from postgres")
	return nil
}

// IsConnected reports whether the pool holds at least one live connection.
func (p *PostgresPool) IsConnected() bool {
	if p.isClosed.Load() || p.pool == nil {
		return false
	}
	return p.pool.Stat().TotalConns() > 0
}

// Health delegates to the configured HealthChecker.
func (p *PostgresPool) Health(ctx context.Context) error {
	if p.isClosed.Load() {
		return ErrConnectionClosed
	}
	if p.pool == nil {
		return ErrNotConnected
	}
	return p.health.CheckHealth(ctx)
}

// Stats returns a metrics snapshot, refreshed from the live pgxpool stats.
func (p *PostgresPool) Stats() PoolStats {
	if p.pool == nil {
		return PoolStats{}
	}
	p.metrics.UpdateConnectionStats(int64(p.pool.Stat().TotalConns()))
	return p.metrics.Snapshot()
}

// Exec runs a statement that returns no rows.
func (p *PostgresPool) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	if p.pool == nil {
		return pgconn.CommandTag{}, ErrNotConnected
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, sql, args...)
	duration := time.Since(start)

	if err != nil {
		p.metrics.RecordQueryError()
		p.logger.Error("exec failed", "sql", sql, "duration", duration, "error", err)
		return tag, err
	}

	p.metrics.RecordQueryExecution(duration)
	return tag, nil
}

// Query runs a statement that returns rows.
func (p *PostgresPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	if p.pool == nil {
		return nil, ErrNotConnected
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, sql, args...)
	duration := time.Since(start)

	if err != nil {
		p.metrics.RecordQueryError()
		p.logger.Error("query failed", "sql", sql, "duration", duration, "error", err)
		return nil, err
	}

	p.metrics.RecordQueryExecution(duration)
	return rows, nil
}

// QueryRow runs a statement expected to return at most one row.
func (p *PostgresPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if p.pool == nil {
		return &errorRow{err: ErrNotConnected}
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, sql, args...)
	p.metrics.RecordQueryExecution(time.Since(start))
	return row
}

// Close is an alias for Disconnect with a background context, matching the
// io.Closer-shaped cleanup the server entrypoint defers.
func (p *PostgresPool) Close() error {
	return p.Disconnect(context.Background())
}

type errorRow struct{ err error }

func (r *errorRow) Scan(dest ...interface{}) error { return r.err }
