// Package engine drives the daemon: it owns the notification
// connection lifecycle, the keepalive countdown, and the dispatch from
// events to per-target sync runs. Everything executes on one goroutine;
// syncs never overlap and the registry and connections are only ever
// replaced wholesale by the loop itself.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/notifile/notifile/common"
	"github.com/notifile/notifile/db"
	"github.com/notifile/notifile/journal"
	"github.com/notifile/notifile/publisher"
	"github.com/notifile/notifile/reload"
	"github.com/notifile/notifile/render"
	"github.com/notifile/notifile/status"
	"github.com/notifile/notifile/target"
	"github.com/notifile/notifile/telemetry"
)

const (
	// Default notification wait window
	DefaultKeepaliveWindow = 30 * time.Second
	// Default delay between reconnect attempts
	DefaultRetryDelay = 30 * time.Second
	// Default pause before the first reconnect attempt
	DefaultReconnectPause = time.Second
)

// errWaitInterrupted signals that an operator request arrived while the
// loop was blocked waiting for a notification
var errWaitInterrupted = errors.New("wait interrupted")

// ErrResyncPending is returned when an identical resync request is
// already queued and has not run yet
var ErrResyncPending = errors.New("resync already pending")

// EventSource is the notification side of the database connection,
// satisfied by db.Listener
type EventSource interface {
	Connect(ctx context.Context) error
	NextEvent(ctx context.Context, timeout time.Duration) (db.Event, error)
	Ping() error
	Close()
}

// SchemaChecker verifies configured tables against the live catalog,
// satisfied by db.SchemaVerifier
type SchemaChecker interface {
	VerifyAll(ctx context.Context, specs []db.TableSpec) error
}

// RebuildFunc re-reads the configuration and builds a fresh target
// registry. Invoked by the configuration reload request; the old
// registry stays active when it fails.
type RebuildFunc func() (*target.Registry, error)

// Config wires an Engine
type Config struct {
	Source   EventSource
	Querier  Querier
	Verifier SchemaChecker
	Registry *target.Registry
	Invoker  *reload.Invoker
	Tracker  *status.Tracker
	Journal  *journal.Store      // may be nil when the journal is disabled
	Events   *publisher.Registry // may be nil when no sinks are configured
	Rebuild  RebuildFunc         // may be nil; reload requests then resync only

	KeepaliveWindow time.Duration
	UpdateFrequency int // full resync every N timeouts; 0 disables
	RetryDelay      time.Duration
	ReconnectPause  time.Duration
}

// Engine is the event loop
type Engine struct {
	source    EventSource
	querier   Querier
	verifier  SchemaChecker
	syncer    *Syncer
	tracker   *status.Tracker
	rebuild   RebuildFunc
	keepalive *KeepaliveCounter

	keepaliveWindow time.Duration
	retryDelay      time.Duration
	reconnectPause  time.Duration

	registryMu sync.RWMutex
	registry   *target.Registry

	reqMu          sync.Mutex
	pendingReload  bool
	pendingResyncs []string

	waitMu     sync.Mutex
	waitCancel context.CancelFunc
}

// NewEngine creates the event loop around an established configuration
func NewEngine(config Config) (*Engine, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("event source is required")
	}
	if config.Querier == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if config.Verifier == nil {
		return nil, fmt.Errorf("schema verifier is required")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("target registry is required")
	}
	if config.Invoker == nil {
		return nil, fmt.Errorf("reload invoker is required")
	}
	if config.Tracker == nil {
		return nil, fmt.Errorf("status tracker is required")
	}

	if config.KeepaliveWindow <= 0 {
		config.KeepaliveWindow = DefaultKeepaliveWindow
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = DefaultRetryDelay
	}
	// Zero is a legal pause; only reject nonsense
	if config.ReconnectPause < 0 {
		config.ReconnectPause = DefaultReconnectPause
	}

	e := &Engine{
		source:          config.Source,
		querier:         config.Querier,
		verifier:        config.Verifier,
		tracker:         config.Tracker,
		rebuild:         config.Rebuild,
		keepalive:       NewKeepaliveCounter(config.UpdateFrequency),
		keepaliveWindow: config.KeepaliveWindow,
		retryDelay:      config.RetryDelay,
		reconnectPause:  config.ReconnectPause,
		registry:        config.Registry,
	}
	e.syncer = NewSyncer(config.Querier, config.Invoker, config.Tracker, config.Journal, config.Events)

	return e, nil
}

// Registry returns the active target registry
func (e *Engine) Registry() *target.Registry {
	e.registryMu.RLock()
	defer e.registryMu.RUnlock()
	return e.registry
}

func (e *Engine) setRegistry(r *target.Registry) {
	e.registryMu.Lock()
	e.registry = r
	e.registryMu.Unlock()
}

// RequestResync schedules a resync for the targets matching pattern,
// or all targets when pattern is empty. The sync runs on the event
// loop after any in-flight work finishes; an identical queued request
// comes back as ErrResyncPending. Returns how many targets the pattern
// matches right now.
func (e *Engine) RequestResync(pattern string) (int, error) {
	registry := e.Registry()

	count := registry.Len()
	if pattern != "" {
		matched, err := registry.Match(pattern)
		if err != nil {
			return 0, err
		}
		count = len(matched)
	}

	e.reqMu.Lock()
	for _, p := range e.pendingResyncs {
		if p == pattern {
			e.reqMu.Unlock()
			return count, ErrResyncPending
		}
	}
	e.pendingResyncs = append(e.pendingResyncs, pattern)
	e.reqMu.Unlock()

	e.wake()
	return count, nil
}

// RequestReload schedules a configuration re-read followed by a full
// resync. Like RequestResync it never preempts in-flight work.
func (e *Engine) RequestReload() {
	e.reqMu.Lock()
	e.pendingReload = true
	e.reqMu.Unlock()

	e.wake()
}

// Run is the daemon's main loop. It returns nil on context
// cancellation and an error only for fatal conditions (schema mismatch,
// template defect); connection loss is handled inside by reconnecting
// indefinitely.
func (e *Engine) Run(ctx context.Context) error {
	defer e.source.Close()

	reason := common.ReasonStartup
	initial := true
	for {
		if err := e.connect(ctx, initial); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		initial = false

		err := e.listen(ctx, reason)
		if err == nil {
			log.Info().Msg("Event loop stopped")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if isFatalSync(err) {
			return err
		}

		log.Warn().Err(err).Msg("Connection lost, reconnecting")
		reason = common.ReasonReconnect
	}
}

// connect establishes both database connections and verifies the
// schema, retrying indefinitely on connection failures. A schema
// mismatch is returned as a fatal error.
func (e *Engine) connect(ctx context.Context, initial bool) error {
	if !initial {
		e.source.Close()
		e.tracker.CountReconnect()
		telemetry.ReconnectsTotal.Inc()

		// Short pause first: a pooling proxy restart drops every
		// connection at once but usually comes back within a moment.
		if !e.sleep(ctx, e.reconnectPause) {
			return ctx.Err()
		}
	}

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempt++
		err := e.source.Connect(ctx)
		if err == nil {
			err = e.querier.Ping(ctx)
		}
		if err == nil {
			err = e.verifySchema(ctx)
			if err == nil {
				break
			}
			if !db.IsConnErr(err) {
				return err
			}
		}

		e.source.Close()
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("retry_in", e.retryDelay).
			Msg("Database connection failed")
		if !e.sleep(ctx, e.retryDelay) {
			return ctx.Err()
		}
	}

	e.tracker.MarkConnected()
	log.Info().Msg("Connected, channel subscribed, schema verified")
	return nil
}

func (e *Engine) verifySchema(ctx context.Context) error {
	if err := e.verifier.VerifyAll(ctx, e.Registry().TableSpecs()); err != nil {
		telemetry.SchemaVerificationsTotal.With("failed").Inc()
		return err
	}
	telemetry.SchemaVerificationsTotal.With("success").Inc()
	return nil
}

// listen runs the event dispatch loop until the connection breaks, a
// fatal error surfaces, or the context is cancelled. entryReason names
// what brought us here and tags the entry full resync.
func (e *Engine) listen(ctx context.Context, entryReason common.Reason) error {
	if err := e.fullResync(ctx, entryReason); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := e.processPending(ctx); err != nil {
			return err
		}

		ev, err := e.nextEvent(ctx, e.keepaliveWindow)
		if errors.Is(err, errWaitInterrupted) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		e.tracker.CountEvent()

		switch ev.Kind {
		case db.EventTimeout:
			if err := e.handleTimeout(ctx); err != nil {
				return err
			}
		case db.EventNotify:
			if err := e.handleNotify(ctx, ev.Target); err != nil {
				return err
			}
		}
	}
}

// nextEvent waits for the next notification or timeout. Operator
// requests interrupt the wait so they do not sit behind an idle
// keepalive window.
func (e *Engine) nextEvent(ctx context.Context, timeout time.Duration) (db.Event, error) {
	waitCtx, cancel := context.WithCancel(ctx)
	e.waitMu.Lock()
	e.waitCancel = cancel
	e.waitMu.Unlock()
	defer func() {
		e.waitMu.Lock()
		e.waitCancel = nil
		e.waitMu.Unlock()
		cancel()
	}()

	// A request that raced the cancel registration would otherwise wait
	// out the full window.
	if e.hasPending() {
		return db.Event{}, errWaitInterrupted
	}

	ev, err := e.source.NextEvent(waitCtx, timeout)
	if err != nil && ctx.Err() == nil && waitCtx.Err() != nil {
		return db.Event{}, errWaitInterrupted
	}
	return ev, err
}

// wake interrupts a wait in progress, if any
func (e *Engine) wake() {
	e.waitMu.Lock()
	if e.waitCancel != nil {
		e.waitCancel()
	}
	e.waitMu.Unlock()
}

func (e *Engine) hasPending() bool {
	e.reqMu.Lock()
	defer e.reqMu.Unlock()
	return e.pendingReload || len(e.pendingResyncs) > 0
}

func (e *Engine) takePending() (bool, []string) {
	e.reqMu.Lock()
	defer e.reqMu.Unlock()
	reloadPending := e.pendingReload
	patterns := e.pendingResyncs
	e.pendingReload = false
	e.pendingResyncs = nil
	return reloadPending, patterns
}

// processPending runs queued operator requests between events
func (e *Engine) processPending(ctx context.Context) error {
	reloadPending, patterns := e.takePending()

	if reloadPending {
		if err := e.reloadConfig(ctx); err != nil {
			return err
		}
	}

	for _, pattern := range patterns {
		if err := e.manualResync(ctx, pattern); err != nil {
			return err
		}
	}
	return nil
}

// handleTimeout processes one elapsed keepalive window
func (e *Engine) handleTimeout(ctx context.Context) error {
	e.tracker.CountTimeout()
	telemetry.EventsTotal.With("timeout").Inc()

	// A pooling proxy can close idle sockets without either end
	// noticing; round-trip both connections before trusting them.
	if err := e.source.Ping(); err != nil {
		return fmt.Errorf("notification connection ping failed: %w", err)
	}
	if err := e.querier.Ping(ctx); err != nil {
		return fmt.Errorf("query connection ping failed: %w", err)
	}

	if e.keepalive.Tick() {
		log.Info().Msg("Keepalive countdown elapsed, running full resync")
		if err := e.fullResync(ctx, common.ReasonKeepalive); err != nil {
			return err
		}
	}
	telemetry.KeepaliveRemaining.Set(float64(e.keepalive.Remaining()))

	return nil
}

// handleNotify processes one named notification
func (e *Engine) handleNotify(ctx context.Context, name string) error {
	e.tracker.CountNotification()
	telemetry.EventsTotal.With("notify").Inc()

	t, ok := e.Registry().Lookup(name)
	if !ok {
		e.tracker.CountUnknownEvent()
		telemetry.UnknownEventsTotal.Inc()
		log.Info().Str("payload", name).Msg("Notification for unknown target ignored")
		return nil
	}

	return e.syncTarget(ctx, t, common.ReasonNotify)
}

// syncTarget runs one sync and classifies its error: connection loss
// and fatal defects propagate, anything else stays contained to the
// target.
func (e *Engine) syncTarget(ctx context.Context, t *target.Target, reason common.Reason) error {
	// Shutdown waits for the in-flight sync rather than cancelling it;
	// a half-applied sync would leave a stray temp file behind.
	err := e.syncer.Sync(context.WithoutCancel(ctx), t, reason)
	if err == nil {
		return nil
	}
	if db.IsConnErr(err) || isFatalSync(err) {
		return err
	}

	log.Warn().Err(err).Str("target", t.Name).Msg("Target sync failed")
	return nil
}

// fullResync syncs every target in registry order and rearms the
// keepalive countdown
func (e *Engine) fullResync(ctx context.Context, reason common.Reason) error {
	e.tracker.CountFullResync()
	telemetry.FullResyncsTotal.With(string(reason)).Inc()

	targets := e.Registry().All()
	started := time.Now()
	log.Info().
		Str("reason", string(reason)).
		Int("targets", len(targets)).
		Msg("Full resync started")

	for _, t := range targets {
		if err := e.syncTarget(ctx, t, reason); err != nil {
			return err
		}
	}

	e.keepalive.Reset()
	telemetry.KeepaliveRemaining.Set(float64(e.keepalive.Remaining()))

	log.Info().
		Str("reason", string(reason)).
		Dur("duration", time.Since(started)).
		Msg("Full resync completed")
	return nil
}

// manualResync serves one queued resync request
func (e *Engine) manualResync(ctx context.Context, pattern string) error {
	if pattern == "" {
		return e.fullResync(ctx, common.ReasonManual)
	}

	targets, err := e.Registry().Match(pattern)
	if err != nil {
		log.Warn().Err(err).Str("pattern", pattern).Msg("Resync request ignored")
		return nil
	}

	log.Info().Str("pattern", pattern).Int("targets", len(targets)).Msg("Subset resync requested")
	for _, t := range targets {
		if err := e.syncTarget(ctx, t, common.ReasonManual); err != nil {
			return err
		}
	}
	return nil
}

// reloadConfig rebuilds the target registry from the configuration
// file and resyncs everything. All-or-nothing: when the new
// configuration cannot be loaded or fails schema verification, the old
// registry stays active.
func (e *Engine) reloadConfig(ctx context.Context) error {
	if e.rebuild == nil {
		return e.fullResync(ctx, common.ReasonReload)
	}

	registry, err := e.rebuild()
	if err != nil {
		log.Error().Err(err).Msg("Configuration reload failed, keeping previous configuration")
		return nil
	}

	// New targets need their tables verified before the first sync
	old := e.Registry()
	e.setRegistry(registry)
	if err := e.verifySchema(ctx); err != nil {
		e.setRegistry(old)
		if db.IsConnErr(err) {
			// Run the reload again once the connection is back
			e.reqMu.Lock()
			e.pendingReload = true
			e.reqMu.Unlock()
			return err
		}
		log.Error().Err(err).Msg("Reloaded configuration failed schema verification, keeping previous configuration")
		return nil
	}

	log.Info().Int("targets", registry.Len()).Msg("Configuration reloaded")
	return e.fullResync(ctx, common.ReasonReload)
}

// isFatalSync reports whether an error is a process-level defect that
// must stop the daemon rather than be retried
func isFatalSync(err error) bool {
	var renderErr *render.Error
	if errors.As(err, &renderErr) {
		return true
	}
	var schemaErr *db.SchemaError
	return errors.As(err, &schemaErr)
}

// sleep waits for d unless the context ends first
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
