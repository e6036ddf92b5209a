package status

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/notifile/notifile/common"
)

// TargetStatus is the last observed sync state for one target
type TargetStatus struct {
	Target     string         `json:"target"`
	Outcome    common.Outcome `json:"outcome"`
	Reason     common.Reason  `json:"reason"`
	Checksum   string         `json:"checksum"`
	Bytes      int            `json:"bytes"`
	DurationMS int64          `json:"duration_ms"`
	Reloaded   bool           `json:"reloaded"`
	Error      string         `json:"error,omitempty"`
	SyncedAt   time.Time      `json:"synced_at"`
}

// Counters is a point-in-time snapshot of daemon counters
type Counters struct {
	Events        uint64 `json:"events"`
	Timeouts      uint64 `json:"timeouts"`
	Notifications uint64 `json:"notifications"`
	UnknownEvents uint64 `json:"unknown_events"`
	Reconnects    uint64 `json:"reconnects"`
	FullResyncs   uint64 `json:"full_resyncs"`
	SyncFailures  uint64 `json:"sync_failures"`
}

// Tracker holds live daemon state. The event loop writes; the admin
// API reads concurrently, so per-target state lives in a lock-free map
// and counters are atomics.
type Tracker struct {
	targets *xsync.MapOf[string, TargetStatus]

	events        atomic.Uint64
	timeouts      atomic.Uint64
	notifications atomic.Uint64
	unknownEvents atomic.Uint64
	reconnects    atomic.Uint64
	fullResyncs   atomic.Uint64
	syncFailures  atomic.Uint64

	startedAt   time.Time
	connectedAt atomic.Int64 // unix nanos, 0 = never connected
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		targets:   xsync.NewMapOf[string, TargetStatus](),
		startedAt: time.Now(),
	}
}

// RecordSync stores the latest result for a target
func (t *Tracker) RecordSync(rec common.SyncRecord) {
	if rec.Failed() {
		t.syncFailures.Add(1)
	}

	t.targets.Store(rec.Target, TargetStatus{
		Target:     rec.Target,
		Outcome:    rec.Outcome,
		Reason:     rec.Reason,
		Checksum:   fmt.Sprintf("%016x", rec.Checksum),
		Bytes:      rec.Bytes,
		DurationMS: rec.Duration.Milliseconds(),
		Reloaded:   rec.Reloaded,
		Error:      rec.Error,
		SyncedAt:   rec.StartedAt,
	})
}

// Get returns the last status for one target
func (t *Tracker) Get(name string) (TargetStatus, bool) {
	return t.targets.Load(name)
}

// Snapshot returns all target statuses sorted by name
func (t *Tracker) Snapshot() []TargetStatus {
	var statuses []TargetStatus
	t.targets.Range(func(_ string, st TargetStatus) bool {
		statuses = append(statuses, st)
		return true
	})

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Target < statuses[j].Target
	})
	return statuses
}

// CountEvent tallies one consumed notification-loop event
func (t *Tracker) CountEvent() { t.events.Add(1) }

// CountTimeout tallies one keepalive timeout
func (t *Tracker) CountTimeout() { t.timeouts.Add(1) }

// CountNotification tallies one named event
func (t *Tracker) CountNotification() { t.notifications.Add(1) }

// CountUnknownEvent tallies a payload with no matching target
func (t *Tracker) CountUnknownEvent() { t.unknownEvents.Add(1) }

// CountReconnect tallies one completed reconnect cycle
func (t *Tracker) CountReconnect() { t.reconnects.Add(1) }

// CountFullResync tallies one full resync pass
func (t *Tracker) CountFullResync() { t.fullResyncs.Add(1) }

// MarkConnected records when the listener last reached the listening
// state
func (t *Tracker) MarkConnected() {
	t.connectedAt.Store(time.Now().UnixNano())
}

// Counters returns a snapshot of all counters
func (t *Tracker) Counters() Counters {
	return Counters{
		Events:        t.events.Load(),
		Timeouts:      t.timeouts.Load(),
		Notifications: t.notifications.Load(),
		UnknownEvents: t.unknownEvents.Load(),
		Reconnects:    t.reconnects.Load(),
		FullResyncs:   t.fullResyncs.Load(),
		SyncFailures:  t.syncFailures.Load(),
	}
}

// StartedAt is when the tracker (the daemon) came up
func (t *Tracker) StartedAt() time.Time {
	return t.startedAt
}

// ConnectedAt is when the listener last connected; zero time when it
// never has
func (t *Tracker) ConnectedAt() time.Time {
	nanos := t.connectedAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}
