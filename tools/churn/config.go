package main

import (
	"fmt"
	"regexp"
	"time"
)

// validIdentifier limits table and column names to plain identifiers
// so they can be interpolated into DDL safely.
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type Config struct {
	// Connection
	DSN     string
	Channel string

	// The watched table and the notification payload that targets it
	Target      string
	Schema      string
	Table       string
	KeyColumn   string
	ValueColumn string

	// Load options
	Records      int
	CreateTable  bool
	DropExisting bool

	// Run options
	Workload   string
	Operations int
	Duration   time.Duration
	Threads    int

	// Workload percentages (-1 means use workload default)
	InsertPct int
	UpdatePct int
	DeletePct int

	// Notification emission: one NOTIFY per N successful writes
	NotifyEvery int

	// Retry
	Retry      bool
	MaxRetries int

	// Measure options
	Output       string
	Probes       int
	ProbeGap     time.Duration
	PollInterval time.Duration
	ProbeTimeout time.Duration
	KeepProbes   bool
}

func (c *Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("dsn cannot be empty")
	}

	if c.Channel == "" {
		return fmt.Errorf("channel cannot be empty")
	}

	if c.Target == "" {
		return fmt.Errorf("target cannot be empty")
	}

	for _, ident := range []string{c.Schema, c.Table, c.KeyColumn, c.ValueColumn} {
		if !validIdentifier.MatchString(ident) {
			return fmt.Errorf("invalid identifier: %q (must be alphanumeric with underscores, starting with letter or underscore)", ident)
		}
	}

	if c.Records < 0 {
		return fmt.Errorf("records must be non-negative")
	}

	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1")
	}

	if c.Operations < 0 {
		return fmt.Errorf("operations must be non-negative")
	}

	if c.NotifyEvery < 1 {
		c.NotifyEvery = 1
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must be non-negative")
	}

	switch c.Workload {
	case "mixed", "insert-only", "update-heavy":
		// valid
	case "":
		c.Workload = "mixed"
	default:
		return fmt.Errorf("invalid workload: %s (must be mixed|insert-only|update-heavy)", c.Workload)
	}

	return nil
}

// QualifiedTable returns the schema-qualified table name for SQL text
func (c *Config) QualifiedTable() string {
	return fmt.Sprintf("%q.%q", c.Schema, c.Table)
}

func (c *Config) GetWorkloadDistribution() WorkloadDistribution {
	var dist WorkloadDistribution

	// Defaults per workload type; all three generate notifications,
	// only the row churn profile differs
	switch c.Workload {
	case "mixed":
		dist = WorkloadDistribution{Insert: 40, Update: 45, Delete: 15}
	case "insert-only":
		dist = WorkloadDistribution{Insert: 100, Update: 0, Delete: 0}
	case "update-heavy":
		dist = WorkloadDistribution{Insert: 15, Update: 75, Delete: 10}
	}

	// Override with explicit percentages if provided
	if c.InsertPct >= 0 {
		dist.Insert = c.InsertPct
	}
	if c.UpdatePct >= 0 {
		dist.Update = c.UpdatePct
	}
	if c.DeletePct >= 0 {
		dist.Delete = c.DeletePct
	}

	return dist
}

type WorkloadDistribution struct {
	Insert int
	Update int
	Delete int
}

func (w WorkloadDistribution) Total() int {
	return w.Insert + w.Update + w.Delete
}

func (w WorkloadDistribution) Validate() error {
	total := w.Total()
	if total != 100 {
		return fmt.Errorf("workload percentages must sum to 100, got %d", total)
	}
	return nil
}
