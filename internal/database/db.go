// Package database provides the PostgreSQL layer: connection pooling,
// schema migrations, and the repositories the analytics and end-of-day
// engines read from.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"pos-analytics/config"
	"pos-analytics/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool         *pgxpool.Pool
	queryTimeout time.Duration
	log          *logging.Logger
}

// NewDB creates a new database connection pool and verifies it.
func NewDB(cfg config.DatabaseConfig) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	queryTimeout := cfg.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logging.WithComponent("database")
	log.Info("connected to PostgreSQL", "database", cfg.Database, "host", cfg.Host)

	return &DB{Pool: pool, queryTimeout: queryTimeout, log: log}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info("database connection closed")
	}
}

// HealthCheck verifies the database is reachable within the configured
// query timeout.
func (db *DB) HealthCheck(ctx context.Context) error {
	timeout := db.queryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.Pool.Ping(ctx)
}

// RunMigrations executes the schema migrations in order. Each statement is
// idempotent so the full list can run on every boot.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.log.Info("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS businesses (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			timezone TEXT NOT NULL DEFAULT 'UTC',
			currency TEXT NOT NULL DEFAULT 'USD',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS products (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			business_id UUID NOT NULL REFERENCES businesses(id),
			sku TEXT NOT NULL,
			name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			unit_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			unit_cost NUMERIC(12,2) NOT NULL DEFAULT 0,
			stock_quantity INTEGER NOT NULL DEFAULT 0,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (business_id, sku)
		)`,

		`CREATE TABLE IF NOT EXISTS customers (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			business_id UUID NOT NULL REFERENCES businesses(id),
			name TEXT NOT NULL DEFAULT '',
			email TEXT,
			phone TEXT,
			first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_customers_business_email
			ON customers (business_id, email) WHERE email IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS shifts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			business_id UUID NOT NULL REFERENCES businesses(id),
			register_id TEXT NOT NULL,
			staff_id UUID,
			staff_name TEXT NOT NULL DEFAULT '',
			opening_float NUMERIC(12,2) NOT NULL DEFAULT 0,
			cash_in NUMERIC(12,2) NOT NULL DEFAULT 0,
			cash_out NUMERIC(12,2) NOT NULL DEFAULT 0,
			expected_cash NUMERIC(12,2),
			actual_cash NUMERIC(12,2),
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			business_id UUID NOT NULL REFERENCES businesses(id),
			shift_id UUID REFERENCES shifts(id),
			customer_id UUID REFERENCES customers(id),
			staff_id UUID,
			status TEXT NOT NULL DEFAULT 'completed',
			subtotal NUMERIC(12,2) NOT NULL DEFAULT 0,
			discount_total NUMERIC(12,2) NOT NULL DEFAULT 0,
			tax_total NUMERIC(12,2) NOT NULL DEFAULT 0,
			tip_total NUMERIC(12,2) NOT NULL DEFAULT 0,
			total NUMERIC(12,2) NOT NULL DEFAULT 0,
			completed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_orders_business_completed
			ON orders (business_id, completed_at)`,

		`CREATE TABLE IF NOT EXISTS order_items (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			product_id UUID NOT NULL REFERENCES products(id),
			quantity INTEGER NOT NULL,
			unit_price NUMERIC(12,2) NOT NULL,
			unit_cost NUMERIC(12,2) NOT NULL DEFAULT 0,
			line_total NUMERIC(12,2) NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id)`,

		`CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			business_id UUID NOT NULL REFERENCES businesses(id),
			order_id UUID NOT NULL REFERENCES orders(id),
			method TEXT NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			captured_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_payments_business_captured
			ON payments (business_id, captured_at)`,

		`CREATE TABLE IF NOT EXISTS refunds (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			business_id UUID NOT NULL REFERENCES businesses(id),
			order_id UUID NOT NULL REFERENCES orders(id),
			amount NUMERIC(12,2) NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			refunded_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_refunds_business_refunded
			ON refunds (business_id, refunded_at)`,

		`CREATE TABLE IF NOT EXISTS eod_reports (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			business_id UUID NOT NULL REFERENCES businesses(id),
			report_date DATE NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payload JSONB,
			discrepancy_notes TEXT,
			reviewed_by TEXT,
			reviewed_at TIMESTAMPTZ,
			generated_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (business_id, report_date)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_eod_reports_status
			ON eod_reports (status, report_date)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.log.Info("database migrations completed", "count", len(migrations))
	return nil
}
