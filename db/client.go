package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Row is one result row keyed by column name
type Row map[string]any

// Result holds a fully materialized query result with the column order
// of the statement that produced it
type Result struct {
	Columns []string
	Rows    []Row
}

// Client runs read queries for sync runs. It holds a single logical
// connection; the daemon processes work strictly sequentially, so a
// pool would only hide connection failures from the health check.
type Client struct {
	db *sql.DB
}

// NewClient opens the query connection. The DSN is any conninfo string
// or postgres:// URL accepted by lib/pq.
func NewClient(dsn string) (*Client, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return &Client{db: sqlDB}, nil
}

// Ping verifies the query connection with a round trip
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the query connection
func (c *Client) Close() error {
	return c.db.Close()
}

// Query runs a read statement and materializes the full result set
func (c *Client) Query(ctx context.Context, query string, args ...any) (Result, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	return scanRows(rows)
}

func scanRows(rows *sql.Rows) (Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read column names: %w", err)
	}

	result := Result{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	return result, nil
}

// normalizeValue keeps template data printable; lib/pq hands text
// columns back as []byte
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
