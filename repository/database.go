package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the bills table if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS bills (
	id BIGSERIAL PRIMARY KEY,
	form_no TEXT,
	serial_no TEXT,
	invoice_no TEXT,
	issued_date DATE,
	seller_name TEXT,
	seller_tax_code TEXT,
	item_name TEXT,
	unit TEXT,
	quantity DOUBLE PRECISION,
	unit_price DOUBLE PRECISION,
	total_amount DOUBLE PRECISION,
	vat_rate DOUBLE PRECISION,
	vat_amount DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_bills_invoice_no ON bills(invoice_no);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
