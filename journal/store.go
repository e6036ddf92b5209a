// Package journal persists a per-target history of sync runs in a local
// SQLite database, optionally with zstd-compressed snapshots of the
// rendered content. The journal is an operator aid: failures here are
// logged and swallowed, they never stop the daemon.
package journal

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/notifile/notifile/common"

	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/mattn/go-sqlite3"
)

const busyTimeoutMS = 5000

var dialect = goqu.Dialect("sqlite3")

// Entry is one recorded sync run
type Entry struct {
	ID        int64          `json:"id"`
	Target    string         `json:"target"`
	Outcome   common.Outcome `json:"outcome"`
	Reason    common.Reason  `json:"reason"`
	Checksum  string         `json:"checksum"`
	Bytes     int64          `json:"bytes"`
	Duration  time.Duration  `json:"duration_ns"`
	Reloaded  bool           `json:"reloaded"`
	Error     string         `json:"error,omitempty"`
	Snapshot  bool           `json:"snapshot"`
	StartedAt time.Time      `json:"started_at"`
}

// Store is a SQLite-backed sync journal
type Store struct {
	writeDB   *sql.DB
	readDB    *sql.DB
	path      string
	history   int
	snapshots bool
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

var schemas = []string{
	`CREATE TABLE IF NOT EXISTS sync_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT NOT NULL,
		checksum TEXT NOT NULL,
		bytes INTEGER NOT NULL,
		duration_us INTEGER NOT NULL,
		reloaded INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		content BLOB,
		started_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_log_target ON sync_log(target, id)`,
}

// Open creates or opens the journal database at path, keeping at most
// history entries per target. When snapshots is true the rendered file
// content of written syncs is stored alongside each entry.
func Open(path string, history int, snapshots bool) (*Store, error) {
	isMemoryDB := strings.Contains(path, ":memory:")

	// Write connection (1 connection)
	writeDSN := path
	if !isMemoryDB {
		if strings.Contains(writeDSN, "?") {
			writeDSN += fmt.Sprintf("&_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate", busyTimeoutMS)
		} else {
			writeDSN += fmt.Sprintf("?_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate", busyTimeoutMS)
		}
	}

	writeDB, err := sql.Open("sqlite3", writeDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal write database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(0)

	// Read connection pool (2 connections)
	readDSN := path
	if !isMemoryDB {
		if strings.Contains(readDSN, "?") {
			readDSN += fmt.Sprintf("&_journal_mode=WAL&_busy_timeout=%d", busyTimeoutMS)
		} else {
			readDSN += fmt.Sprintf("?_journal_mode=WAL&_busy_timeout=%d", busyTimeoutMS)
		}
	}

	readDB, err := sql.Open("sqlite3", readDSN)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("failed to open journal read database: %w", err)
	}
	readDB.SetMaxOpenConns(2)
	readDB.SetMaxIdleConns(2)
	readDB.SetConnMaxLifetime(0)

	// Configure both connections
	for _, db := range []*sql.DB{writeDB, readDB} {
		if !isMemoryDB {
			if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
				writeDB.Close()
				readDB.Close()
				return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
			}
			if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
				writeDB.Close()
				readDB.Close()
				return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
			}
		}
	}

	// Initialize schema
	for _, schema := range schemas {
		if _, err := writeDB.Exec(schema); err != nil {
			writeDB.Close()
			readDB.Close()
			return nil, fmt.Errorf("failed to create journal schema: %w", err)
		}
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &Store{
		writeDB:   writeDB,
		readDB:    readDB,
		path:      path,
		history:   history,
		snapshots: snapshots,
		encoder:   encoder,
		decoder:   decoder,
	}, nil
}

// Close closes both database connections. Safe on a nil store.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var writeErr, readErr error
	if s.writeDB != nil {
		writeErr = s.writeDB.Close()
	}
	if s.readDB != nil {
		readErr = s.readDB.Close()
	}
	if writeErr != nil {
		return writeErr
	}
	return readErr
}

// Record appends one sync run and prunes that target's history down to
// the configured limit. content is the rendered file body of the run;
// it is stored compressed only for written syncs when snapshots are on.
// Safe on a nil store.
func (s *Store) Record(rec common.SyncRecord, content []byte) error {
	if s == nil {
		return nil
	}

	var snapshot []byte
	if s.snapshots && rec.Outcome == common.OutcomeWritten && len(content) > 0 {
		snapshot = s.encoder.EncodeAll(content, nil)
	}

	_, err := s.writeDB.Exec(`
		INSERT INTO sync_log
		(target, outcome, reason, checksum, bytes, duration_us, reloaded, error, content, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.Target, string(rec.Outcome), string(rec.Reason), fmt.Sprintf("%016x", rec.Checksum),
		rec.Bytes, rec.Duration.Microseconds(), rec.Reloaded, rec.Error, snapshot,
		rec.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}

	return s.prune(rec.Target)
}

// prune removes the oldest entries of a target beyond the history limit
func (s *Store) prune(target string) error {
	if s.history <= 0 {
		return nil
	}

	result, err := s.writeDB.Exec(`
		DELETE FROM sync_log
		WHERE target = ? AND id NOT IN (
			SELECT id FROM sync_log WHERE target = ? ORDER BY id DESC LIMIT ?
		)
	`, target, target, s.history)
	if err != nil {
		return fmt.Errorf("failed to prune journal: %w", err)
	}

	if pruned, _ := result.RowsAffected(); pruned > 0 {
		log.Debug().Str("target", target).Int64("pruned", pruned).Msg("Journal pruned")
	}
	return nil
}

// Latest returns the most recent entry for a target, or nil when the
// target has no history yet. Safe on a nil store.
func (s *Store) Latest(target string) (*Entry, error) {
	if s == nil {
		return nil, nil
	}

	entries, err := s.queryEntries(goqu.Ex{"target": target}, 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// History returns up to limit entries for a target, newest first.
// Safe on a nil store.
func (s *Store) History(target string, limit int) ([]Entry, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 || limit > s.history {
		limit = s.history
	}
	return s.queryEntries(goqu.Ex{"target": target}, limit)
}

// LastContent returns the newest stored content snapshot for a target,
// decompressed. The second return is false when no snapshot exists.
// Safe on a nil store.
func (s *Store) LastContent(target string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, nil
	}

	query, args, err := dialect.From("sync_log").
		Select("content").
		Where(goqu.Ex{"target": target}, goqu.C("content").IsNotNull()).
		Order(goqu.C("id").Desc()).
		Limit(1).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, false, fmt.Errorf("failed to build snapshot query: %w", err)
	}

	var compressed []byte
	err = s.readDB.QueryRow(query, args...).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	content, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	return content, true, nil
}

func (s *Store) queryEntries(where goqu.Ex, limit int) ([]Entry, error) {
	query, args, err := dialect.From("sync_log").
		Select("id", "target", "outcome", "reason", "checksum", "bytes", "duration_us",
			"reloaded", "error", goqu.L("content IS NOT NULL").As("snapshot"), "started_at").
		Where(where).
		Order(goqu.C("id").Desc()).
		Limit(uint(limit)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build history query: %w", err)
	}

	rows, err := s.readDB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var outcome, reason string
		var durationUS, startedAt int64
		if err := rows.Scan(&e.ID, &e.Target, &outcome, &reason, &e.Checksum, &e.Bytes,
			&durationUS, &e.Reloaded, &e.Error, &e.Snapshot, &startedAt); err != nil {
			return nil, err
		}
		e.Outcome = common.Outcome(outcome)
		e.Reason = common.Reason(reason)
		e.Duration = time.Duration(durationUS) * time.Microsecond
		e.StartedAt = time.Unix(0, startedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
