package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"time"
)

// ProbeResult holds one end-to-end measurement.
type ProbeResult struct {
	Key      string
	Latency  time.Duration
	TimedOut bool
}

// MeasureResult holds a full measure run.
type MeasureResult struct {
	Probes    []ProbeResult
	Delivered int
	Timeouts  int
}

// Prober measures notification-to-file latency. Each probe inserts a
// row with a unique key, raises a notification and polls the daemon's
// output file until the key shows up in the rendered content.
type Prober struct {
	db  *sql.DB
	cfg *Config
}

// NewProber creates a new Prober.
func NewProber(db *sql.DB, cfg *Config) *Prober {
	return &Prober{db: db, cfg: cfg}
}

// Run executes the configured number of probes sequentially. Probe
// keys are unique per run so a stale file can never satisfy a later
// probe.
func (p *Prober) Run(ctx context.Context) (*MeasureResult, error) {
	if _, err := os.Stat(p.cfg.Output); err != nil {
		return nil, fmt.Errorf("output file not readable, is the daemon running: %w", err)
	}

	prefix := fmt.Sprintf("probe_%d", time.Now().Unix())
	result := &MeasureResult{
		Probes: make([]ProbeResult, 0, p.cfg.Probes),
	}

	for i := 0; i < p.cfg.Probes; i++ {
		key := fmt.Sprintf("%s_%06d", prefix, i)

		probe, err := p.probe(ctx, key)
		if err != nil {
			return nil, err
		}

		result.Probes = append(result.Probes, probe)
		if probe.TimedOut {
			result.Timeouts++
			fmt.Printf("  probe %3d/%d  TIMEOUT after %s\n", i+1, p.cfg.Probes, p.cfg.ProbeTimeout)
		} else {
			result.Delivered++
			fmt.Printf("  probe %3d/%d  %.1fms\n", i+1, p.cfg.Probes, float64(probe.Latency.Microseconds())/1000)
		}

		if i < p.cfg.Probes-1 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(p.cfg.ProbeGap):
			}
		}
	}

	if !p.cfg.KeepProbes {
		if err := p.cleanup(ctx, prefix); err != nil {
			fmt.Printf("Warning: probe cleanup failed: %v\n", err)
		}
	}

	return result, nil
}

// probe runs one insert-notify-poll round trip. The latency clock
// starts when the notification is raised, matching what a trigger
// based setup would see.
func (p *Prober) probe(ctx context.Context, key string) (ProbeResult, error) {
	result := ProbeResult{Key: key}

	op := Operation{Type: OpInsert, Key: key, Value: key}
	if err := ExecuteOp(ctx, p.db, p.cfg, op); err != nil {
		return result, fmt.Errorf("probe insert failed: %w", err)
	}

	start := time.Now()
	if err := Notify(ctx, p.db, p.cfg.Channel, p.cfg.Target); err != nil {
		return result, fmt.Errorf("probe notify failed: %w", err)
	}

	deadline := start.Add(p.cfg.ProbeTimeout)
	needle := []byte(key)

	for {
		// A read error mid-poll usually means the daemon is renaming
		// the file right now; treat it like a miss and poll again
		data, err := os.ReadFile(p.cfg.Output)
		if err == nil && bytes.Contains(data, needle) {
			result.Latency = time.Since(start)
			return result, nil
		}

		if time.Now().After(deadline) {
			result.TimedOut = true
			return result, nil
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// cleanup deletes the probe rows and announces the deletion so the
// output file converges back to its pre-measure content.
func (p *Prober) cleanup(ctx context.Context, prefix string) error {
	if _, err := DeleteByPrefix(ctx, p.db, p.cfg, prefix); err != nil {
		return err
	}
	return Notify(ctx, p.db, p.cfg.Channel, p.cfg.Target)
}

// PrintMeasure prints the measure summary.
func PrintMeasure(result *MeasureResult) {
	fmt.Println()
	fmt.Printf("Probes:    %d\n", len(result.Probes))
	fmt.Printf("Delivered: %d\n", result.Delivered)
	fmt.Printf("Timeouts:  %d\n", result.Timeouts)

	if result.Delivered == 0 {
		return
	}

	latencies := make([]time.Duration, 0, result.Delivered)
	for _, probe := range result.Probes {
		if !probe.TimedOut {
			latencies = append(latencies, probe.Latency)
		}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	n := len(latencies)
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

	fmt.Println()
	fmt.Println("End-to-end latency (milliseconds):")
	fmt.Printf("  Min:   %.1f\n", ms(latencies[0]))
	fmt.Printf("  Avg:   %.1f\n", ms(sum/time.Duration(n)))
	fmt.Printf("  Max:   %.1f\n", ms(latencies[n-1]))
	fmt.Printf("  P50:   %.1f\n", ms(latencies[n*50/100]))
	fmt.Printf("  P90:   %.1f\n", ms(latencies[n*90/100]))
	fmt.Printf("  P99:   %.1f\n", ms(latencies[n*99/100]))
}
