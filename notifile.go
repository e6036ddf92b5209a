package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/notifile/notifile/admin"
	"github.com/notifile/notifile/cfg"
	"github.com/notifile/notifile/db"
	"github.com/notifile/notifile/engine"
	"github.com/notifile/notifile/journal"
	"github.com/notifile/notifile/publisher"
	"github.com/notifile/notifile/reload"
	"github.com/notifile/notifile/render"
	"github.com/notifile/notifile/status"
	"github.com/notifile/notifile/target"
	"github.com/notifile/notifile/telemetry"

	// Sinks and transformers register themselves with the publisher
	_ "github.com/notifile/notifile/publisher/sink"
	_ "github.com/notifile/notifile/publisher/transformer"
)

func main() {
	flag.Parse()

	// Load configuration
	if err := cfg.Load(*cfg.ConfigPathFlag); err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	setupLogging()

	log.Info().
		Str("channel", cfg.Config.Postgres.Channel).
		Int("targets", len(cfg.Config.Targets)).
		Msg("notifile - PostgreSQL-driven file synchronization")

	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	// Sync journal; an unusable journal costs history, never syncing
	var store *journal.Store
	if cfg.Config.Journal.Enabled {
		opened, err := journal.Open(cfg.Config.Journal.Path,
			cfg.Config.Journal.History, cfg.Config.Journal.Snapshots)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to open sync journal, continuing without it")
		} else {
			store = opened
			defer store.Close()
		}
	}

	// Sync event sinks
	events, err := publisher.NewRegistry(cfg.Config.InstanceID, cfg.Config.Sinks)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build sync event sinks")
		exitAfterDelay(1)
	}
	if err := events.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start sync event sinks")
		exitAfterDelay(1)
	}
	defer events.Stop()

	// Target registry; template defects are configuration mistakes
	registry, err := target.Build(cfg.Config.Targets)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build targets")
		exitAfterDelay(exitCode(err))
	}

	// Database connections
	client, err := db.NewClient(cfg.Config.Postgres.DSN)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open query connection")
		exitAfterDelay(1)
	}
	defer client.Close()

	listener := db.NewListener(cfg.Config.Postgres.DSN, cfg.Config.Postgres.Channel)
	tracker := status.NewTracker()

	eng, err := engine.NewEngine(engine.Config{
		Source:          listener,
		Querier:         client,
		Verifier:        db.NewSchemaVerifier(client),
		Registry:        registry,
		Invoker:         reload.NewInvoker(),
		Tracker:         tracker,
		Journal:         store,
		Events:          events,
		Rebuild:         rebuildTargets,
		KeepaliveWindow: time.Duration(cfg.Config.Daemon.KeepaliveSeconds) * time.Second,
		UpdateFrequency: cfg.Config.Daemon.UpdateFrequency,
		RetryDelay:      time.Duration(cfg.Config.Daemon.RetrySeconds) * time.Second,
		ReconnectPause:  time.Duration(cfg.Config.Daemon.ReconnectPauseSeconds) * time.Second,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to assemble event loop")
		exitAfterDelay(1)
	}

	// Polled gauges
	collector := telemetry.NewCollector(&engineStats{listener: listener, tracker: tracker}, 5*time.Second)
	collector.Start()
	defer collector.Stop()

	// Admin API
	if cfg.Config.Admin.Enabled {
		handlers := admin.NewHandlers(cfg.Config.InstanceID, eng, listener,
			tracker, store, telemetry.GetMetricsHandler())
		adminServer := admin.NewServer(cfg.Config.Admin.BindAddress, cfg.Config.Admin.Port,
			admin.NewRouter(handlers, cfg.Config.Admin.Token))
		if err := adminServer.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start admin API")
			exitAfterDelay(1)
		}
		defer adminServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- eng.Run(ctx)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				log.Info().Msg("SIGHUP received, scheduling configuration reload")
				eng.RequestReload()
				continue
			}
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
			cancel()
			if err := <-runErr; err != nil {
				exitWithError(err)
			}
			return

		case err := <-runErr:
			if err != nil {
				exitWithError(err)
			}
			log.Info().Msg("Event loop finished")
			return
		}
	}
}

func setupLogging() {
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Str("instance_id", cfg.Config.InstanceID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}
}

// rebuildTargets re-reads the configuration file for a reload request.
// Only the target set takes effect without a restart; connection,
// journal and sink changes apply on the next start.
func rebuildTargets() (*target.Registry, error) {
	if err := cfg.Load(*cfg.ConfigPathFlag); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return target.Build(cfg.Config.Targets)
}

// exitCode maps fatal errors to their exit codes: 2 for template
// defects, 3 for schema mismatches, 1 otherwise
func exitCode(err error) int {
	var renderErr *render.Error
	if errors.As(err, &renderErr) {
		return 2
	}
	var schemaErr *db.SchemaError
	if errors.As(err, &schemaErr) {
		return 3
	}
	return 1
}

func exitWithError(err error) {
	code := exitCode(err)
	log.Error().Err(err).Int("exit_code", code).Msg("Fatal error")
	exitAfterDelay(code)
}

// exitAfterDelay applies the configured exit delay so a crash-looping
// daemon does not hammer its supervisor, then exits
func exitAfterDelay(code int) {
	if delay := cfg.Config.Daemon.ExitDelaySeconds; delay > 0 {
		log.Info().Int("seconds", delay).Msg("Delaying exit")
		time.Sleep(time.Duration(delay) * time.Second)
	}
	os.Exit(code)
}

// engineStats adapts live daemon state to the telemetry collector
type engineStats struct {
	listener *db.Listener
	tracker  *status.Tracker
}

func (s *engineStats) ConnectionUp() bool {
	return s.listener.State() == db.StateListening
}

func (s *engineStats) LastSyncTimes() map[string]time.Time {
	snapshot := s.tracker.Snapshot()
	times := make(map[string]time.Time, len(snapshot))
	for _, st := range snapshot {
		times[st.Target] = st.SyncedAt
	}
	return times
}
