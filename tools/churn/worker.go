package main

import (
	"context"
	"database/sql"
	"math/rand"
	"sync"
	"time"
)

// Worker executes row mutations against the watched table and raises
// notifications for them.
type Worker struct {
	id         int
	db         *sql.DB
	cfg        *Config
	keyGen     *KeyGenerator
	opSelector *OpSelector
	stats      *Stats
	rng        *rand.Rand

	// Writes since the last NOTIFY; flushed every cfg.NotifyEvery
	sinceNotify int
}

// NewWorker creates a new worker.
func NewWorker(id int, db *sql.DB, cfg *Config, keyGen *KeyGenerator, opSelector *OpSelector, stats *Stats) *Worker {
	return &Worker{
		id:         id,
		db:         db,
		cfg:        cfg,
		keyGen:     keyGen,
		opSelector: opSelector,
		stats:      stats,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
	}
}

// RunLoad inserts the worker's slice of the seed range.
func (w *Worker) RunLoad(ctx context.Context, startKey, endKey int, wg *sync.WaitGroup) {
	defer wg.Done()

	for i := startKey; i < endKey; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		op := Operation{
			Type:  OpInsert,
			Key:   w.keyGen.SeedKey(i),
			Value: generateFieldValue(w.rng),
		}

		start := time.Now()
		err := w.executeWithRetry(ctx, op)
		latency := time.Since(start)

		if err != nil {
			w.stats.RecordError(OpInsert)
		} else {
			w.stats.RecordOp(OpInsert, latency)
		}
	}
}

// RunChurn executes workload operations until the channel closes or
// the context expires. Each operation picks its type from the
// distribution and its key from the seeded range.
func (w *Worker) RunChurn(ctx context.Context, opsChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.flushNotify()
			return
		case _, ok := <-opsChan:
			if !ok {
				w.flushNotify()
				return
			}

			opType := w.opSelector.Select()
			op := w.generateOp(opType)

			start := time.Now()
			err := w.executeWithRetry(ctx, op)
			latency := time.Since(start)

			if err != nil {
				w.stats.RecordError(opType)
				continue
			}

			w.stats.RecordOp(opType, latency)
			w.sinceNotify++
			if w.sinceNotify >= w.cfg.NotifyEvery {
				w.notify(ctx)
			}
		}
	}
}

func (w *Worker) generateOp(opType OpType) Operation {
	var key string
	switch opType {
	case OpInsert:
		key = w.keyGen.NextInsertKey()
	default:
		key = w.keyGen.RandomExistingKey(w.rng)
	}

	return Operation{
		Type:  opType,
		Key:   key,
		Value: generateFieldValue(w.rng),
	}
}

func (w *Worker) notify(ctx context.Context) {
	if err := Notify(ctx, w.db, w.cfg.Channel, w.cfg.Target); err != nil {
		w.stats.RecordNotifyError()
	} else {
		w.stats.RecordNotify()
	}
	w.sinceNotify = 0
}

// flushNotify raises a final notification for writes that have not
// been announced yet, so the daemon converges on the end state. The
// run context may already be cancelled at this point.
func (w *Worker) flushNotify() {
	if w.sinceNotify == 0 {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.notify(flushCtx)
}

func (w *Worker) executeWithRetry(ctx context.Context, op Operation) error {
	var lastErr error
	maxAttempts := 1
	if w.cfg.Retry {
		maxAttempts = w.cfg.MaxRetries + 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff with jitter
			backoff := time.Duration(1<<uint(attempt-1)) * 10 * time.Millisecond
			jitter := time.Duration(w.rng.Int63n(int64(backoff/2) + 1))
			time.Sleep(backoff + jitter)
			w.stats.RecordRetry()
		}

		err := ExecuteOp(ctx, w.db, w.cfg, op)
		if err == nil {
			return nil
		}

		lastErr = err
		if !IsRetryableError(err) {
			return err
		}
	}

	return lastErr
}
