package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "load":
		runLoad(args)
	case "run":
		runChurn(args)
	case "measure":
		runMeasure(args)
	case "version":
		fmt.Printf("churn version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`churn - notifile load generator and latency probe

Usage:
  churn <command> [options]

Commands:
  load      Seed the watched table with records
  run       Churn rows and raise notifications
  measure   Measure notification-to-file latency end to end
  version   Print version
  help      Show this help

Common Options:
  --dsn           PostgreSQL conninfo or URL (default: postgres://localhost:5432/postgres?sslmode=disable)
  --channel       Notification channel the daemon listens on (default: notifile)
  --target        Target name sent as the notification payload (default: churn)
  --schema        Table schema (default: public)
  --table         Watched table (default: churn)
  --key-column    Primary key column (default: name)
  --value-column  Value column (default: value)

Load Options:
  --records       Number of records to seed (default: 10000)
  --threads       Number of concurrent threads (default: 10)
  --create-table  Create table before loading (default: true)
  --drop-existing Drop existing table before creating (default: false)

Run Options:
  --workload      Workload type: mixed|insert-only|update-heavy (default: mixed)
  --operations    Total operations to execute (default: 50000)
  --duration      Duration to run (e.g., 60s), overrides --operations
  --threads       Number of concurrent threads (default: 20)
  --insert-pct    Insert percentage (overrides workload default)
  --update-pct    Update percentage (overrides workload default)
  --delete-pct    Delete percentage (overrides workload default)
  --notify-every  Raise one NOTIFY per N successful writes (default: 1)
  --retry         Retry on serialization failure or deadlock (default: true)
  --max-retries   Maximum retry attempts (default: 3)

Measure Options:
  --output        Path of the daemon's rendered output file (required)
  --probes        Number of probes to run (default: 100)
  --probe-gap     Pause between probes (default: 250ms)
  --poll-interval How often to re-read the output file (default: 25ms)
  --probe-timeout Give up on a probe after this long (default: 10s)
  --keep-probes   Leave probe rows in the table afterwards (default: false)`)
}

func addCommonFlags(fs *flag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.DSN, "dsn", "postgres://localhost:5432/postgres?sslmode=disable", "PostgreSQL conninfo or URL")
	fs.StringVar(&cfg.Channel, "channel", "notifile", "Notification channel")
	fs.StringVar(&cfg.Target, "target", "churn", "Target name sent as the notification payload")
	fs.StringVar(&cfg.Schema, "schema", "public", "Table schema")
	fs.StringVar(&cfg.Table, "table", "churn", "Watched table")
	fs.StringVar(&cfg.KeyColumn, "key-column", "name", "Primary key column")
	fs.StringVar(&cfg.ValueColumn, "value-column", "value", "Value column")
}

func runLoad(args []string) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	cfg := &Config{}
	addCommonFlags(fs, cfg)
	fs.IntVar(&cfg.Records, "records", 10000, "Number of records to seed")
	fs.IntVar(&cfg.Threads, "threads", 10, "Number of concurrent threads")
	fs.BoolVar(&cfg.CreateTable, "create-table", true, "Create table before loading")
	fs.BoolVar(&cfg.DropExisting, "drop-existing", false, "Drop existing table before creating")
	fs.Parse(args)

	if err := cfg.Validate(); err != nil {
		fatalf("Invalid configuration: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	db, err := OpenDB(cfg)
	if err != nil {
		fatalf("%v", err)
	}
	defer db.Close()

	if cfg.CreateTable {
		if err := CreateTable(ctx, db, cfg); err != nil {
			fatalf("%v", err)
		}
	}

	fmt.Printf("Loading %d records into %s.%s with %d threads...\n",
		cfg.Records, cfg.Schema, cfg.Table, cfg.Threads)

	stats := NewStats()
	keyGen := NewKeyGenerator("rec", 0)
	start := time.Now()

	var wg sync.WaitGroup
	perWorker := cfg.Records / cfg.Threads
	for i := 0; i < cfg.Threads; i++ {
		startKey := i*perWorker + 1
		endKey := startKey + perWorker
		if i == cfg.Threads-1 {
			endKey = cfg.Records + 1
		}

		worker := NewWorker(i, db, cfg, keyGen, nil, stats)
		wg.Add(1)
		go worker.RunLoad(ctx, startKey, endKey, &wg)
	}
	wg.Wait()

	// One notification for the whole load; the daemon resyncs the
	// target once instead of once per row
	if err := Notify(ctx, db, cfg.Channel, cfg.Target); err != nil {
		fmt.Printf("Warning: failed to notify after load: %v\n", err)
	} else {
		stats.RecordNotify()
	}

	if count, err := RowCount(ctx, db, cfg); err == nil {
		fmt.Printf("Table %s.%s now has %d rows\n", cfg.Schema, cfg.Table, count)
	}

	stats.PrintFinal(time.Since(start))
}

func runChurn(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg := &Config{}
	addCommonFlags(fs, cfg)
	fs.StringVar(&cfg.Workload, "workload", "mixed", "Workload type: mixed|insert-only|update-heavy")
	fs.IntVar(&cfg.Operations, "operations", 50000, "Total operations to execute")
	fs.DurationVar(&cfg.Duration, "duration", 0, "Duration to run, overrides --operations")
	fs.IntVar(&cfg.Threads, "threads", 20, "Number of concurrent threads")
	fs.IntVar(&cfg.InsertPct, "insert-pct", -1, "Insert percentage")
	fs.IntVar(&cfg.UpdatePct, "update-pct", -1, "Update percentage")
	fs.IntVar(&cfg.DeletePct, "delete-pct", -1, "Delete percentage")
	fs.IntVar(&cfg.NotifyEvery, "notify-every", 1, "Raise one NOTIFY per N successful writes")
	fs.BoolVar(&cfg.Retry, "retry", true, "Retry on serialization failure or deadlock")
	fs.IntVar(&cfg.MaxRetries, "max-retries", 3, "Maximum retry attempts")
	fs.Parse(args)

	if err := cfg.Validate(); err != nil {
		fatalf("Invalid configuration: %v", err)
	}

	dist := cfg.GetWorkloadDistribution()
	if err := dist.Validate(); err != nil {
		fatalf("Invalid workload: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	db, err := OpenDB(cfg)
	if err != nil {
		fatalf("%v", err)
	}
	defer db.Close()

	existing, err := RowCount(ctx, db, cfg)
	if err != nil {
		fatalf("Failed to count rows, run load first: %v", err)
	}
	keyGen := NewKeyGenerator("rec", existing)

	runCtx := ctx
	if cfg.Duration > 0 {
		var runCancel context.CancelFunc
		runCtx, runCancel = context.WithTimeout(ctx, cfg.Duration)
		defer runCancel()
		fmt.Printf("Running %s workload for %s with %d threads (notify every %d writes)...\n",
			cfg.Workload, cfg.Duration, cfg.Threads, cfg.NotifyEvery)
	} else {
		fmt.Printf("Running %s workload, %d operations with %d threads (notify every %d writes)...\n",
			cfg.Workload, cfg.Operations, cfg.Threads, cfg.NotifyEvery)
	}

	opsChan := make(chan struct{}, cfg.Threads*4)
	go func() {
		defer close(opsChan)
		if cfg.Duration > 0 {
			for {
				select {
				case <-runCtx.Done():
					return
				case opsChan <- struct{}{}:
				}
			}
		}
		for i := 0; i < cfg.Operations; i++ {
			select {
			case <-runCtx.Done():
				return
			case opsChan <- struct{}{}:
			}
		}
	}()

	stats := NewStats()

	reportCtx, stopReport := context.WithCancel(context.Background())
	go reportProgress(reportCtx, stats)

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < cfg.Threads; i++ {
		selector := NewOpSelector(dist, time.Now().UnixNano()+int64(i))
		worker := NewWorker(i, db, cfg, keyGen, selector, stats)
		wg.Add(1)
		go worker.RunChurn(runCtx, opsChan, &wg)
	}
	wg.Wait()
	stopReport()

	stats.PrintFinal(time.Since(start))
}

func runMeasure(args []string) {
	fs := flag.NewFlagSet("measure", flag.ExitOnError)
	cfg := &Config{}
	addCommonFlags(fs, cfg)
	fs.StringVar(&cfg.Output, "output", "", "Path of the daemon's rendered output file")
	fs.IntVar(&cfg.Probes, "probes", 100, "Number of probes to run")
	fs.DurationVar(&cfg.ProbeGap, "probe-gap", 250*time.Millisecond, "Pause between probes")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", 25*time.Millisecond, "How often to re-read the output file")
	fs.DurationVar(&cfg.ProbeTimeout, "probe-timeout", 10*time.Second, "Give up on a probe after this long")
	fs.BoolVar(&cfg.KeepProbes, "keep-probes", false, "Leave probe rows in the table afterwards")
	fs.Parse(args)

	cfg.Threads = 1
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid configuration: %v", err)
	}
	if cfg.Output == "" {
		fatalf("Invalid configuration: output path is required")
	}
	if cfg.Probes < 1 {
		fatalf("Invalid configuration: probes must be at least 1")
	}

	ctx, cancel := signalContext()
	defer cancel()

	db, err := OpenDB(cfg)
	if err != nil {
		fatalf("%v", err)
	}
	defer db.Close()

	fmt.Printf("Probing %s via channel %q, %d probes...\n", cfg.Output, cfg.Channel, cfg.Probes)

	prober := NewProber(db, cfg)
	result, err := prober.Run(ctx)
	if err != nil {
		fatalf("Measure failed: %v", err)
	}

	PrintMeasure(result)

	if result.Timeouts > 0 {
		os.Exit(1)
	}
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			fmt.Println("\nInterrupted, finishing up...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
