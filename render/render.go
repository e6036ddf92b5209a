package render

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/notifile/notifile/db"
)

// Error marks a template defect: unreadable file, bad syntax, or a
// reference that cannot be resolved against the query result. These
// are configuration mistakes; the caller exits rather than retries.
type Error struct {
	Target string
	Path   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("template for target %q (%s): %v", e.Target, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Data is the root object a template executes against. Row fields are
// reached by ranging: {{range .Rows}}{{.name}}{{end}}.
type Data struct {
	Target    string
	Columns   []string
	Rows      []db.Row
	Generated time.Time
}

// Template is a parsed template bound to one target
type Template struct {
	target string
	path   string
	tmpl   *template.Template
}

// ParseFile reads and parses a target's template. Parse failures are
// surfaced as *Error.
func ParseFile(target, path string) (*Template, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Target: target, Path: path, Err: err}
	}
	return Parse(target, path, string(text))
}

// Parse parses template text. Split out from ParseFile so tests can
// feed templates without touching the filesystem.
func Parse(target, path, text string) (*Template, error) {
	tmpl, err := template.New(filepath.Base(path)).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, &Error{Target: target, Path: path, Err: err}
	}

	return &Template{target: target, path: path, tmpl: tmpl}, nil
}

// Path returns the file the template was loaded from
func (t *Template) Path() string {
	return t.path
}

// Render executes the template once over the full result set and
// returns the bytes destined for the output file
func (t *Template) Render(res db.Result) ([]byte, error) {
	data := Data{
		Target:    t.target,
		Columns:   res.Columns,
		Rows:      res.Rows,
		Generated: time.Now().UTC(),
	}

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return nil, &Error{Target: t.target, Path: t.path, Err: err}
	}

	return buf.Bytes(), nil
}
