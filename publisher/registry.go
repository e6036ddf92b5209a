package publisher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/notifile/notifile/cfg"
	"github.com/notifile/notifile/common"
)

// Registry owns one worker per configured sink and fans sync events
// out to all of them.
type Registry struct {
	instance string
	workers  []*Worker
	running  atomic.Bool
	mu       sync.Mutex
}

// NewRegistry builds a registry from the configured sinks. instance
// tags every published event with the daemon's instance id. A partial
// failure closes the sinks opened so far.
func NewRegistry(instance string, sinkConfigs []cfg.SinkConfiguration) (*Registry, error) {
	registry := &Registry{
		instance: instance,
		workers:  make([]*Worker, 0, len(sinkConfigs)),
	}

	for _, sinkCfg := range sinkConfigs {
		if err := registry.AddSink(sinkCfg); err != nil {
			registry.closeSinks()
			return nil, fmt.Errorf("failed to add sink %q: %w", sinkCfg.Name, err)
		}
	}

	log.Info().
		Int("workers", len(registry.workers)).
		Msg("Publisher registry initialized")

	return registry, nil
}

// AddSink wires a worker for one sink configuration. The filter and
// transformer are stateless, so they are built first and the sink is
// opened last, keeping the error paths free of cleanup.
func (r *Registry) AddSink(config cfg.SinkConfiguration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	filter, err := NewGlobFilter(config.FilterTargets)
	if err != nil {
		return fmt.Errorf("failed to create filter: %w", err)
	}

	trans, err := createTransformer(config.Format)
	if err != nil {
		return fmt.Errorf("failed to create transformer: %w", err)
	}

	snk, err := createSink(config)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	worker, err := NewWorker(WorkerConfig{
		Name:            config.Name,
		Sink:            snk,
		Transformer:     trans,
		Filter:          filter,
		TopicPrefix:     config.TopicPrefix,
		QueueSize:       config.QueueSize,
		RetryInitial:    time.Duration(config.RetryInitialMS) * time.Millisecond,
		RetryMax:        time.Duration(config.RetryMaxMS) * time.Millisecond,
		RetryMultiplier: config.RetryMultiplier,
		MaxRetries:      config.MaxRetries,
	})
	if err != nil {
		snk.Close()
		return fmt.Errorf("failed to create worker: %w", err)
	}

	r.workers = append(r.workers, worker)

	log.Info().
		Str("sink", config.Name).
		Str("type", config.Type).
		Str("format", config.Format).
		Msg("Added sync event sink")

	return nil
}

// Start launches the worker pumps. Safe on a nil registry so callers
// without any sinks configured need not branch.
func (r *Registry) Start() error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return fmt.Errorf("registry already running")
	}

	if len(r.workers) > 0 {
		log.Info().Int("workers", len(r.workers)).Msg("Starting publisher registry")
	}

	for _, worker := range r.workers {
		worker.Start()
	}

	r.running.Store(true)

	return nil
}

// Stop drains the workers then closes their sinks. Idempotent.
func (r *Registry) Stop() {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.Swap(false) {
		return
	}

	for _, worker := range r.workers {
		worker.Stop()
	}
	r.closeSinks()

	if len(r.workers) > 0 {
		log.Info().Msg("Publisher registry stopped")
	}
}

func (r *Registry) closeSinks() {
	for _, worker := range r.workers {
		if worker.config.Sink == nil {
			continue
		}
		if err := worker.config.Sink.Close(); err != nil {
			log.Warn().Err(err).Str("worker", worker.config.Name).Msg("Failed to close sink")
		}
	}
}

// Publish fans a sync record out to every worker. Non-blocking: each
// worker queues the event and drains it on its own schedule. Safe on a
// nil registry and while stopped.
func (r *Registry) Publish(rec common.SyncRecord) {
	if r == nil || !r.running.Load() {
		return
	}

	event := FromRecord(r.instance, rec)
	for _, worker := range r.workers {
		worker.Enqueue(event)
	}
}

// Workers returns the number of configured sink workers
func (r *Registry) Workers() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// SinkFactory builds a Sink from its configuration section.
type SinkFactory func(cfg.SinkConfiguration) (Sink, error)

// TransformerFactory builds a Transformer for one output format.
type TransformerFactory func() Transformer

var (
	sinkFactories        = make(map[string]SinkFactory)
	transformerFactories = make(map[string]TransformerFactory)
	factoryMu            sync.RWMutex
)

// RegisterSink makes a sink type available to the config loader.
// Sinks call this from init.
func RegisterSink(sinkType string, factory SinkFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	sinkFactories[sinkType] = factory
}

// RegisterTransformer makes an output format available to the config
// loader. Transformers call this from init.
func RegisterTransformer(format string, factory TransformerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	transformerFactories[format] = factory
}

func createSink(config cfg.SinkConfiguration) (Sink, error) {
	factoryMu.RLock()
	build, ok := sinkFactories[config.Type]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}
	return build(config)
}

func createTransformer(format string) (Transformer, error) {
	factoryMu.RLock()
	build, ok := transformerFactories[format]
	factoryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown format: %s", format)
	}
	return build(), nil
}
