// Package postgres provides a PostgreSQL-backed implementation of
// pkg/partial.Store and the batch merge-result store, for deployments that
// need partial results and final summaries to survive a process restart.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
)

// DatabaseConfig holds the connection and migration settings for Store.
type DatabaseConfig struct {
	ConnectionString string
	MaxConnections    int32
	ConnectTimeout    time.Duration
	MigrationsPath    string
}

// Store is a pgxpool-backed persistence layer for PartialResult and
// MergeResult rows.
type Store struct {
	pool   *pgxpool.Pool
	config *DatabaseConfig
}

// New opens a connection pool against config.ConnectionString and verifies
// it with a ping before returning.
func New(ctx context.Context, config *DatabaseConfig) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("postgres: database config is required")
	}
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("postgres: connection string is required")
	}

	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.MigrationsPath == "" {
		config.MigrationsPath = "file://migrations"
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse connection string: %w", err)
	}
	poolConfig.MaxConns = config.MaxConnections
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	timeoutCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(timeoutCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: create connection pool: %w", err)
	}
	if err := pool.Ping(timeoutCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping database: %w", err)
	}

	return &Store{pool: pool, config: config}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// MigrateToLatest applies all pending migrations under config.MigrationsPath.
func (s *Store) MigrateToLatest(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("postgres: acquire connection for migration: %w", err)
	}
	defer conn.Release()

	migrationDB, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return fmt.Errorf("postgres: open migration connection: %w", err)
	}
	defer migrationDB.Close()

	driver, err := postgres.WithInstance(migrationDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("postgres: create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(s.config.MigrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("postgres: create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("postgres: apply migrations: %w", err)
	}
	return nil
}

// HealthCheck confirms the pool has live connections and can round-trip a
// trivial query.
func (s *Store) HealthCheck(ctx context.Context) error {
	stats := s.pool.Stat()
	if stats.TotalConns() == 0 {
		return fmt.Errorf("postgres: no database connections available")
	}

	var result int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("postgres: health check query failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("postgres: unexpected health check result: %d", result)
	}
	return nil
}
