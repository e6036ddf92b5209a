package render

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifile/notifile/db"
)

func TestParseFileAndRender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zone.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("{{range .Rows}}Zone: {{.name}}\n{{end}}"), 0644))

	tmpl, err := ParseFile("domains_modified", path)
	require.NoError(t, err)
	assert.Equal(t, path, tmpl.Path())

	out, err := tmpl.Render(db.Result{
		Columns: []string{"name"},
		Rows: []db.Row{
			{"name": "example.com"},
			{"name": "example.org"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Zone: example.com\nZone: example.org\n", string(out))
}

func TestParseFile_MissingFile(t *testing.T) {
	_, err := ParseFile("domains_modified", "/nonexistent/zone.tmpl")
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "domains_modified", rerr.Target)
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := Parse("domains_modified", "zone.tmpl", "{{range .Rows}}unterminated")
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Contains(t, rerr.Error(), "domains_modified")
}

func TestRender_MissingColumn(t *testing.T) {
	tmpl, err := Parse("domains_modified", "zone.tmpl", "{{range .Rows}}{{.absent}}{{end}}")
	require.NoError(t, err)

	_, err = tmpl.Render(db.Result{
		Columns: []string{"name"},
		Rows:    []db.Row{{"name": "example.com"}},
	})
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
}

func TestRender_EmptyResult(t *testing.T) {
	tmpl, err := Parse("domains_modified", "zone.tmpl", "; generated for {{.Target}}\n{{range .Rows}}{{.name}}\n{{end}}")
	require.NoError(t, err)

	out, err := tmpl.Render(db.Result{Columns: []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, "; generated for domains_modified\n", string(out))
}

func TestRender_ColumnsAvailable(t *testing.T) {
	tmpl, err := Parse("t", "cols.tmpl", "{{range .Columns}}{{.}} {{end}}")
	require.NoError(t, err)

	out, err := tmpl.Render(db.Result{Columns: []string{"name", "ttl"}})
	require.NoError(t, err)
	assert.Equal(t, "name ttl ", string(out))
}
