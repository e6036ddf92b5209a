// Package common provides shared types used across the codebase.
package common

import "time"

// Outcome classifies one sync run
type Outcome string

const (
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeWritten   Outcome = "written"
	OutcomeFailed    Outcome = "failed"
)

// Reason says what triggered a sync run
type Reason string

const (
	ReasonStartup   Reason = "startup"   // first sync after initial connect
	ReasonNotify    Reason = "notify"    // named notification event
	ReasonKeepalive Reason = "keepalive" // periodic full resync
	ReasonReconnect Reason = "reconnect" // forced resync after reconnect
	ReasonManual    Reason = "manual"    // operator-requested resync
	ReasonReload    Reason = "reload"    // configuration reload
)

// SyncRecord is the outcome of one target sync run. Produced by the
// engine, consumed by the status tracker, the journal and the event
// publisher.
type SyncRecord struct {
	Target    string
	Outcome   Outcome
	Reason    Reason
	Checksum  uint64
	Bytes     int
	Duration  time.Duration
	Reloaded  bool   // reload command ran and exited zero
	Error     string // non-empty for OutcomeFailed
	StartedAt time.Time
}

// Failed reports whether the run ended in an error
func (r SyncRecord) Failed() bool {
	return r.Outcome == OutcomeFailed
}
