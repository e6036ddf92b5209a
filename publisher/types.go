package publisher

import (
	"fmt"

	"github.com/notifile/notifile/common"
)

// Event is one completed sync run as handed to sinks
type Event struct {
	Instance   string `msgpack:"ins" json:"instance"`    // Daemon instance id
	Target     string `msgpack:"tgt" json:"target"`      // Target name
	Outcome    string `msgpack:"out" json:"outcome"`     // unchanged, written or failed
	Reason     string `msgpack:"rsn" json:"reason"`      // What triggered the sync
	Checksum   string `msgpack:"sum" json:"checksum"`    // xxhash64 of the rendered content, hex
	Bytes      int    `msgpack:"len" json:"bytes"`       // Rendered content size
	DurationUS int64  `msgpack:"dur" json:"duration_us"` // Sync duration in microseconds
	Reloaded   bool   `msgpack:"rld" json:"reloaded"`    // Reload command ran and exited zero
	Error      string `msgpack:"err" json:"error,omitempty"`
	SyncedAt   int64  `msgpack:"ts" json:"synced_at"` // Sync start time (unix ms)
}

// FromRecord builds the published form of a sync record
func FromRecord(instance string, rec common.SyncRecord) Event {
	return Event{
		Instance:   instance,
		Target:     rec.Target,
		Outcome:    string(rec.Outcome),
		Reason:     string(rec.Reason),
		Checksum:   fmt.Sprintf("%016x", rec.Checksum),
		Bytes:      rec.Bytes,
		DurationUS: rec.Duration.Microseconds(),
		Reloaded:   rec.Reloaded,
		Error:      rec.Error,
		SyncedAt:   rec.StartedAt.UnixMilli(),
	}
}

// Sink represents a destination for sync events (e.g., Kafka, NATS)
type Sink interface {
	// Publish sends an event to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// Transformer converts sync events to sink-specific formats
type Transformer interface {
	// Transform converts a sync event to bytes for publishing
	Transform(event Event) ([]byte, error)
}

// Filter determines whether a sync event should be published
type Filter interface {
	// Match returns true if the event should be published
	Match(target string) bool
}
