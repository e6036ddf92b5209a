package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// SyncBuckets for a full target sync (query + render + file replace)
	SyncBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

	// ReloadBuckets for external reload commands
	ReloadBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

	// QueryBuckets for PostgreSQL round trips
	QueryBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
)

// Listener Metrics
var (
	// EventsTotal counts listener wakeups by kind (notify, timeout)
	EventsTotal CounterVec = noopCounterVec{}

	// UnknownEventsTotal counts notifications naming no configured target
	UnknownEventsTotal Counter = NoopStat{}

	// ReconnectsTotal counts notification connection rebuilds
	ReconnectsTotal Counter = NoopStat{}

	// ConnectionUp indicates whether the LISTEN connection is live (1=yes, 0=no)
	ConnectionUp Gauge = NoopStat{}

	// KeepaliveRemaining tracks timeouts left before the next forced full resync
	KeepaliveRemaining Gauge = NoopStat{}
)

// Sync Metrics
var (
	// SyncsTotal counts target syncs by result (unchanged, written, failed)
	SyncsTotal CounterVec = noopCounterVec{}

	// SyncDurationSeconds measures per-target sync latency
	SyncDurationSeconds HistogramVec = noopHistogramVec{}

	// QueryDurationSeconds measures per-target query latency
	QueryDurationSeconds HistogramVec = noopHistogramVec{}

	// FilesWrittenTotal counts atomic file replacements that changed content
	FilesWrittenTotal Counter = NoopStat{}

	// FullResyncsTotal counts full resyncs by trigger (startup, keepalive, reconnect, manual, reload)
	FullResyncsTotal CounterVec = noopCounterVec{}

	// LastSyncUnix records the unix time of the most recent sync per target
	LastSyncUnix GaugeVec = noopGaugeVec{}

	// SchemaVerificationsTotal counts startup schema checks by result
	SchemaVerificationsTotal CounterVec = noopCounterVec{}
)

// Reload Metrics
var (
	// ReloadsTotal counts reload command invocations by result (success, failed)
	ReloadsTotal CounterVec = noopCounterVec{}

	// ReloadDurationSeconds measures reload command run time
	ReloadDurationSeconds Histogram = NoopStat{}
)

// Publisher Metrics
var (
	// PublishedEventsTotal counts sync events handed to sinks by sink and result
	PublishedEventsTotal CounterVec = noopCounterVec{}

	// PublishQueueDepth tracks buffered events per sink worker
	PublishQueueDepth GaugeVec = noopGaugeVec{}

	// DroppedEventsTotal counts events discarded because a sink queue was full
	DroppedEventsTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	// Listener Metrics
	EventsTotal = NewCounterVec(
		"events_total",
		"Listener wakeups by kind",
		[]string{"kind"},
	)
	UnknownEventsTotal = NewCounter(
		"unknown_events_total",
		"Notifications naming no configured target",
	)
	ReconnectsTotal = NewCounter(
		"reconnects_total",
		"Notification connection rebuilds",
	)
	ConnectionUp = NewGauge(
		"connection_up",
		"Whether the LISTEN connection is live (1=yes, 0=no)",
	)
	KeepaliveRemaining = NewGauge(
		"keepalive_remaining",
		"Timeouts left before the next forced full resync",
	)

	// Sync Metrics
	SyncsTotal = NewCounterVec(
		"syncs_total",
		"Target syncs by result",
		[]string{"target", "result"},
	)
	SyncDurationSeconds = NewHistogramVec(
		"sync_duration_seconds",
		"Per-target sync duration in seconds",
		[]string{"target"},
		SyncBuckets,
	)
	QueryDurationSeconds = NewHistogramVec(
		"query_duration_seconds",
		"Per-target query duration in seconds",
		[]string{"target"},
		QueryBuckets,
	)
	FilesWrittenTotal = NewCounter(
		"files_written_total",
		"Atomic file replacements that changed content",
	)
	FullResyncsTotal = NewCounterVec(
		"full_resyncs_total",
		"Full resyncs by trigger",
		[]string{"trigger"},
	)
	LastSyncUnix = NewGaugeVec(
		"last_sync_unix",
		"Unix time of most recent sync per target",
		[]string{"target"},
	)
	SchemaVerificationsTotal = NewCounterVec(
		"schema_verifications_total",
		"Startup schema checks by result",
		[]string{"result"},
	)

	// Reload Metrics
	ReloadsTotal = NewCounterVec(
		"reloads_total",
		"Reload command invocations by result",
		[]string{"result"},
	)
	ReloadDurationSeconds = NewHistogramWithBuckets(
		"reload_duration_seconds",
		"Reload command run time in seconds",
		ReloadBuckets,
	)

	// Publisher Metrics
	PublishedEventsTotal = NewCounterVec(
		"published_events_total",
		"Sync events handed to sinks by sink and result",
		[]string{"sink", "result"},
	)
	PublishQueueDepth = NewGaugeVec(
		"publish_queue_depth",
		"Buffered events per sink worker",
		[]string{"sink"},
	)
	DroppedEventsTotal = NewCounterVec(
		"dropped_events_total",
		"Events discarded because a sink queue was full",
		[]string{"sink"},
	)
}
