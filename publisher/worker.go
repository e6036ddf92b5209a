package publisher

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/notifile/notifile/telemetry"
)

const (
	// DefaultQueueSize is the per-sink queue capacity.
	DefaultQueueSize = 1024
	// DefaultRetryInitial is the first backoff delay after a failed publish.
	DefaultRetryInitial = 100 * time.Millisecond
	// DefaultRetryMax caps the backoff delay.
	DefaultRetryMax = 30 * time.Second
	// DefaultRetryMultiplier grows the delay between attempts.
	DefaultRetryMultiplier = 2.0
	// DefaultMaxRetries bounds publish attempts before an event is dropped.
	DefaultMaxRetries = 10
)

// WorkerConfig configures a sync event publisher worker
type WorkerConfig struct {
	Name            string        // Sink name
	Sink            Sink          // Destination sink
	Transformer     Transformer   // Event transformer
	Filter          Filter        // Event filter
	TopicPrefix     string        // Topic prefix (e.g., "notifile.sync")
	QueueSize       int           // Queue capacity
	RetryInitial    time.Duration // Initial retry delay
	RetryMax        time.Duration // Max retry delay
	RetryMultiplier float64       // Backoff multiplier
	MaxRetries      int           // Maximum retry attempts (0 = use default)
}

func (c *WorkerConfig) validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("worker name is required")
	case c.Sink == nil:
		return fmt.Errorf("sink is required")
	case c.Transformer == nil:
		return fmt.Errorf("transformer is required")
	case c.Filter == nil:
		return fmt.Errorf("filter is required")
	}
	return nil
}

func (c *WorkerConfig) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = DefaultRetryInitial
	}
	if c.RetryMax <= 0 {
		c.RetryMax = DefaultRetryMax
	}
	if c.RetryMultiplier <= 0 {
		c.RetryMultiplier = DefaultRetryMultiplier
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// Worker drains a bounded event queue into a sink. Enqueue never blocks
// the caller: when the queue is full the oldest event is dropped, so a
// slow or dead sink cannot stall the sync loop.
type Worker struct {
	config      WorkerConfig
	queue       chan Event
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     atomic.Bool
	lifecycleMu sync.Mutex // Serializes Start and Stop
}

// NewWorker creates a new sync event publisher worker
func NewWorker(config WorkerConfig) (*Worker, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	return &Worker{
		config: config,
		queue:  make(chan Event, config.QueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start launches the drain goroutine. No-op on a running worker.
func (w *Worker) Start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running.Load() {
		return
	}

	w.running.Store(true)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	log.Info().
		Str("worker", w.config.Name).
		Int("queue_size", w.config.QueueSize).
		Msg("Starting publisher worker")

	go w.drainLoop()
}

// Stop stops the worker and waits for the drain goroutine to exit.
// Queued events that have not been published yet are discarded.
func (w *Worker) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.running.Load() {
		return
	}

	log.Info().Str("worker", w.config.Name).Msg("Stopping publisher worker")

	close(w.stopCh)
	<-w.doneCh
	w.running.Store(false)

	log.Info().Str("worker", w.config.Name).Msg("Publisher worker stopped")
}

// Enqueue hands an event to the worker without blocking. Filtered
// events are discarded up front. When the queue is full the oldest
// queued event is dropped to make room.
func (w *Worker) Enqueue(event Event) {
	if !w.config.Filter.Match(event.Target) {
		return
	}

	for {
		select {
		case w.queue <- event:
			telemetry.PublishQueueDepth.With(w.config.Name).Set(float64(len(w.queue)))
			return
		default:
		}

		// Queue full: drop the oldest event to make room for the newest
		select {
		case dropped := <-w.queue:
			telemetry.DroppedEventsTotal.With(w.config.Name).Inc()
			log.Warn().
				Str("worker", w.config.Name).
				Str("target", dropped.Target).
				Msg("Publish queue full, dropped oldest event")
		default:
		}
	}
}

// QueueDepth returns the number of events waiting to be published
func (w *Worker) QueueDepth() int {
	return len(w.queue)
}

// drainLoop feeds queued events to the sink until stopped.
func (w *Worker) drainLoop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case event := <-w.queue:
			telemetry.PublishQueueDepth.With(w.config.Name).Set(float64(len(w.queue)))
			if err := w.publishEvent(event); err != nil {
				telemetry.PublishedEventsTotal.With(w.config.Name, "failed").Inc()
				log.Error().
					Err(err).
					Str("worker", w.config.Name).
					Str("target", event.Target).
					Msg("Dropping sync event after failed publish")
				continue
			}
			telemetry.PublishedEventsTotal.With(w.config.Name, "success").Inc()
		}
	}
}

// publishEvent transforms and publishes a single sync event
func (w *Worker) publishEvent(event Event) error {
	data, err := w.config.Transformer.Transform(event)
	if err != nil {
		return fmt.Errorf("failed to transform event: %w", err)
	}

	topic := w.buildTopic(event.Target)
	return w.publishWithRetry(topic, event.Target, data)
}

func (w *Worker) buildTopic(target string) string {
	if w.config.TopicPrefix == "" {
		return target
	}
	return fmt.Sprintf("%s.%s", w.config.TopicPrefix, target)
}

// publishWithRetry delivers one payload to the sink, backing off
// between attempts. Gives up after MaxRetries attempts or when the
// worker is stopped mid-wait.
func (w *Worker) publishWithRetry(topic, key string, data []byte) error {
	delay := w.config.RetryInitial

	for attempt := 1; ; attempt++ {
		err := w.config.Sink.Publish(topic, key, data)
		if err == nil {
			return nil
		}
		if attempt >= w.config.MaxRetries {
			return fmt.Errorf("exhausted max retries (%d) for topic %s: %w", w.config.MaxRetries, topic, err)
		}

		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Str("topic", topic).
			Int("attempt", attempt).
			Dur("retry_delay", delay).
			Msg("Failed to publish event, retrying")

		if !w.pause(delay) {
			return fmt.Errorf("worker stopped during retry")
		}

		delay = time.Duration(float64(delay) * w.config.RetryMultiplier)
		if delay > w.config.RetryMax {
			delay = w.config.RetryMax
		}
	}
}

// pause waits out a backoff delay. Returns false if the worker was
// stopped before the delay elapsed.
func (w *Worker) pause(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
