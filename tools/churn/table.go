package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// OpenDB opens the churn connection pool. One pool, one database;
// the daemon under test watches exactly one.
func OpenDB(cfg *Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.Threads)
	db.SetMaxIdleConns(cfg.Threads)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// CreateTable creates the churn table in the shape the daemon expects:
// a key column it orders by and a value column it renders.
func CreateTable(ctx context.Context, db *sql.DB, cfg *Config) error {
	table := cfg.QualifiedTable()

	if cfg.DropExisting {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%q TEXT PRIMARY KEY,
		%q TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, table, cfg.KeyColumn, cfg.ValueColumn)

	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	return nil
}

// RowCount returns the number of rows in the churn table.
func RowCount(ctx context.Context, db *sql.DB, cfg *Config) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s", cfg.QualifiedTable())).Scan(&count)
	return count, err
}

// DeleteByPrefix removes rows whose key starts with the prefix,
// used to clean probe rows up after a measure run.
func DeleteByPrefix(ctx context.Context, db *sql.DB, cfg *Config, prefix string) (int64, error) {
	res, err := db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %q LIKE $1`, cfg.QualifiedTable(), cfg.KeyColumn),
		prefix+"%")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
