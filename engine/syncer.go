package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/notifile/notifile/common"
	"github.com/notifile/notifile/db"
	"github.com/notifile/notifile/filesync"
	"github.com/notifile/notifile/journal"
	"github.com/notifile/notifile/publisher"
	"github.com/notifile/notifile/reload"
	"github.com/notifile/notifile/status"
	"github.com/notifile/notifile/target"
	"github.com/notifile/notifile/telemetry"
)

// Querier is the query side of the database connection
type Querier interface {
	Query(ctx context.Context, query string, args ...any) (db.Result, error)
	Ping(ctx context.Context) error
}

// Syncer executes single target sync runs: query, render, publish the
// file, conditionally reload. Every run, successful or not, is recorded
// to the status tracker, the journal and the event publisher.
type Syncer struct {
	querier Querier
	invoker *reload.Invoker
	tracker *status.Tracker
	journal *journal.Store
	events  *publisher.Registry
}

// NewSyncer wires a syncer. journal and events may be nil when those
// subsystems are disabled.
func NewSyncer(querier Querier, invoker *reload.Invoker, tracker *status.Tracker,
	store *journal.Store, events *publisher.Registry) *Syncer {
	return &Syncer{
		querier: querier,
		invoker: invoker,
		tracker: tracker,
		journal: store,
		events:  events,
	}
}

// Sync runs one target end to end. The returned error is the raw cause;
// the event loop classifies it (connection loss, fatal template defect,
// or an isolated per-target failure).
func (s *Syncer) Sync(ctx context.Context, t *target.Target, reason common.Reason) error {
	rec := common.SyncRecord{
		Target:    t.Name,
		Reason:    reason,
		StartedAt: time.Now(),
	}

	content, err := s.produce(ctx, t)
	if err != nil {
		rec.Outcome = common.OutcomeFailed
		rec.Error = err.Error()
		rec.Duration = time.Since(rec.StartedAt)
		s.record(rec, nil)
		return err
	}

	report, err := filesync.Publish(t.OutputPath, content, t.File)
	rec.Checksum = report.Checksum
	rec.Bytes = report.Bytes
	if err != nil {
		rec.Outcome = common.OutcomeFailed
		rec.Error = err.Error()
		rec.Duration = time.Since(rec.StartedAt)
		s.record(rec, nil)
		return err
	}

	if report.Changed {
		rec.Outcome = common.OutcomeWritten
		telemetry.FilesWrittenTotal.Inc()
		s.reload(ctx, t, &rec)
	} else {
		rec.Outcome = common.OutcomeUnchanged
	}

	rec.Duration = time.Since(rec.StartedAt)
	s.record(rec, content)

	log.Debug().
		Str("target", t.Name).
		Str("outcome", string(rec.Outcome)).
		Str("reason", string(reason)).
		Int("bytes", rec.Bytes).
		Dur("duration", rec.Duration).
		Msg("Target synced")

	return nil
}

// produce queries the target's table and renders the file content
func (s *Syncer) produce(ctx context.Context, t *target.Target) ([]byte, error) {
	queryStart := time.Now()
	result, err := s.querier.Query(ctx, t.Query)
	telemetry.QueryDurationSeconds.With(t.Name).Observe(time.Since(queryStart).Seconds())
	if err != nil {
		return nil, err
	}

	return t.Template.Render(result)
}

// reload invokes the target's reload command after a changed write
func (s *Syncer) reload(ctx context.Context, t *target.Target, rec *common.SyncRecord) {
	if t.ReloadCommand == "" {
		return
	}

	result := s.invoker.Invoke(ctx, t.Name, t.ReloadCommand)
	rec.Reloaded = result.OK() && result.Ran
	telemetry.ReloadDurationSeconds.Observe(result.Duration.Seconds())
	if result.OK() {
		telemetry.ReloadsTotal.With("success").Inc()
	} else {
		telemetry.ReloadsTotal.With("failed").Inc()
	}
}

// record fans the run's outcome out to the tracker, journal and sinks
func (s *Syncer) record(rec common.SyncRecord, content []byte) {
	telemetry.SyncsTotal.With(rec.Target, string(rec.Outcome)).Inc()
	telemetry.SyncDurationSeconds.With(rec.Target).Observe(rec.Duration.Seconds())

	s.tracker.RecordSync(rec)

	if err := s.journal.Record(rec, content); err != nil {
		log.Warn().Err(err).Str("target", rec.Target).Msg("Failed to journal sync run")
	}

	s.events.Publish(rec)
}
