package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/rs/zerolog/log"
)

// SchemaError reports a target table or column missing from the
// database. It is fatal; syncing against a wrong schema would fail
// with a cryptic query error on every event instead.
type SchemaError struct {
	Target  string
	Schema  string
	Table   string
	Missing []string // empty when the table itself is missing
}

func (e *SchemaError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("target %q: table %s.%s does not exist", e.Target, e.Schema, e.Table)
	}
	return fmt.Sprintf("target %q: table %s.%s is missing columns: %s",
		e.Target, e.Schema, e.Table, strings.Join(e.Missing, ", "))
}

// TableSpec is what the verifier needs to know about one target
type TableSpec struct {
	Name    string // target name, for error reporting
	Schema  string
	Table   string
	Columns []string
}

// SchemaVerifier checks every target's table and columns against the
// database catalog. Runs at startup and after every reconnect.
type SchemaVerifier struct {
	client *Client
}

// NewSchemaVerifier creates a verifier backed by the query client
func NewSchemaVerifier(client *Client) *SchemaVerifier {
	return &SchemaVerifier{client: client}
}

// VerifyAll checks each spec in order and returns the first mismatch
// as a *SchemaError. Connection-level failures come back unwrapped so
// the caller can distinguish them from a true mismatch.
func (v *SchemaVerifier) VerifyAll(ctx context.Context, specs []TableSpec) error {
	for _, spec := range specs {
		if err := v.verify(ctx, spec); err != nil {
			return err
		}
	}

	log.Debug().Int("targets", len(specs)).Msg("Schema verified")
	return nil
}

func (v *SchemaVerifier) verify(ctx context.Context, spec TableSpec) error {
	query, args, err := catalogQuery(spec.Schema, spec.Table)
	if err != nil {
		return fmt.Errorf("failed to build catalog query: %w", err)
	}

	res, err := v.client.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("catalog lookup for %s.%s: %w", spec.Schema, spec.Table, err)
	}

	if len(res.Rows) == 0 {
		return &SchemaError{Target: spec.Name, Schema: spec.Schema, Table: spec.Table}
	}

	actual := make(map[string]bool, len(res.Rows))
	for _, row := range res.Rows {
		if name, ok := row["column_name"].(string); ok {
			actual[name] = true
		}
	}

	if missing := missingColumns(spec.Columns, actual); len(missing) > 0 {
		return &SchemaError{
			Target:  spec.Name,
			Schema:  spec.Schema,
			Table:   spec.Table,
			Missing: missing,
		}
	}

	return nil
}

func catalogQuery(schema, table string) (string, []interface{}, error) {
	return goqu.Dialect("postgres").
		From(goqu.T("columns").Schema("information_schema")).
		Select("column_name").
		Where(goqu.Ex{
			"table_schema": schema,
			"table_name":   table,
		}).
		Prepared(true).
		ToSQL()
}

func missingColumns(configured []string, actual map[string]bool) []string {
	var missing []string
	for _, col := range configured {
		if !actual[col] {
			missing = append(missing, col)
		}
	}
	return missing
}
