package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// scanRows is driver-agnostic; sqlite gives the tests a real driver
// without needing a server.
func TestScanRows(t *testing.T) {
	sqlDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	defer sqlDB.Close()

	stmts := []string{
		`CREATE TABLE records (name TEXT, ttl INTEGER, payload BLOB)`,
		`INSERT INTO records VALUES ('example.com', 300, x'6869')`,
		`INSERT INTO records VALUES ('example.org', 600, NULL)`,
	}
	for _, stmt := range stmts {
		if _, err := sqlDB.Exec(stmt); err != nil {
			t.Fatalf("failed to execute %q: %v", stmt, err)
		}
	}

	rows, err := sqlDB.Query(`SELECT name, ttl, payload FROM records ORDER BY ttl`)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	defer rows.Close()

	res, err := scanRows(rows)
	if err != nil {
		t.Fatalf("scanRows failed: %v", err)
	}

	wantCols := []string{"name", "ttl", "payload"}
	if len(res.Columns) != len(wantCols) {
		t.Fatalf("expected %d columns, got %d", len(wantCols), len(res.Columns))
	}
	for i, col := range wantCols {
		if res.Columns[i] != col {
			t.Errorf("expected column %d to be %s, got %s", i, col, res.Columns[i])
		}
	}

	if len(res.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(res.Rows))
	}

	first := res.Rows[0]
	if first["name"] != "example.com" {
		t.Errorf("expected name example.com, got %v", first["name"])
	}
	if first["ttl"] != int64(300) {
		t.Errorf("expected ttl 300, got %v (%T)", first["ttl"], first["ttl"])
	}
	// Blob columns come back as []byte and must be usable as text
	if first["payload"] != "hi" {
		t.Errorf("expected payload hi, got %v (%T)", first["payload"], first["payload"])
	}

	second := res.Rows[1]
	if second["payload"] != nil {
		t.Errorf("expected NULL payload to stay nil, got %v", second["payload"])
	}
}

func TestNormalizeValue(t *testing.T) {
	if got := normalizeValue([]byte("abc")); got != "abc" {
		t.Errorf("expected string abc, got %v (%T)", got, got)
	}
	if got := normalizeValue(int64(5)); got != int64(5) {
		t.Errorf("expected int64 5 unchanged, got %v (%T)", got, got)
	}
	if got := normalizeValue(nil); got != nil {
		t.Errorf("expected nil unchanged, got %v", got)
	}
}
