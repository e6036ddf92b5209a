package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"

	"github.com/lib/pq"
)

type OpType int

const (
	OpInsert OpType = iota
	OpUpdate
	OpDelete
)

func (o OpType) String() string {
	switch o {
	case OpInsert:
		return "INSERT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// KeyGenerator generates sequential keys for uniform distribution.
// Thread-safe: uses atomic operations for counter/maxKey, caller
// provides the rng.
type KeyGenerator struct {
	prefix  string
	counter uint64
	maxKey  uint64 // Highest seeded key; updates and deletes pick below it
}

// NewKeyGenerator creates a key generator over an already loaded key
// range.
func NewKeyGenerator(prefix string, existingRows int64) *KeyGenerator {
	return &KeyGenerator{
		prefix: prefix,
		maxKey: uint64(existingRows),
	}
}

// NextInsertKey generates a fresh key past the seeded range.
func (g *KeyGenerator) NextInsertKey() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s_%012d", g.prefix, atomic.LoadUint64(&g.maxKey)+n)
}

// RandomExistingKey returns a random key from the seeded range.
// rng must be provided by the caller (each worker has its own).
func (g *KeyGenerator) RandomExistingKey(rng *rand.Rand) string {
	max := atomic.LoadUint64(&g.maxKey)
	if max == 0 {
		return g.NextInsertKey()
	}
	n := uint64(rng.Int63n(int64(max))) + 1
	return fmt.Sprintf("%s_%012d", g.prefix, n)
}

// SeedKey returns the deterministic key for seeded row i, used by the
// load phase.
func (g *KeyGenerator) SeedKey(i int) string {
	return fmt.Sprintf("%s_%012d", g.prefix, i)
}

// Operation represents a single row mutation.
type Operation struct {
	Type  OpType
	Key   string
	Value string
}

// OpSelector selects operations based on the workload distribution.
type OpSelector struct {
	dist       WorkloadDistribution
	thresholds [3]int
	rng        *rand.Rand
}

// NewOpSelector creates an operation selector.
func NewOpSelector(dist WorkloadDistribution, seed int64) *OpSelector {
	s := &OpSelector{
		dist: dist,
		rng:  rand.New(rand.NewSource(seed)),
	}

	s.thresholds[0] = dist.Insert
	s.thresholds[1] = s.thresholds[0] + dist.Update
	s.thresholds[2] = s.thresholds[1] + dist.Delete

	return s
}

// Select returns a random operation type based on the distribution.
func (s *OpSelector) Select() OpType {
	r := s.rng.Intn(100)

	if r < s.thresholds[0] {
		return OpInsert
	}
	if r < s.thresholds[1] {
		return OpUpdate
	}
	return OpDelete
}

// generateFieldValue generates a random value for the value column.
func generateFieldValue(rng *rand.Rand) string {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 64
	b := make([]byte, length)
	for i := range b {
		b[i] = chars[rng.Intn(len(chars))]
	}
	return string(b)
}

// ExecuteOp executes a single operation. Inserts upsert on the key so
// a replayed key does not fail the workload.
func ExecuteOp(ctx context.Context, db *sql.DB, cfg *Config, op Operation) error {
	table := cfg.QualifiedTable()
	switch op.Type {
	case OpInsert:
		_, err := db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (%q, %q) VALUES ($1, $2) ON CONFLICT (%q) DO UPDATE SET %q = EXCLUDED.%q`,
				table, cfg.KeyColumn, cfg.ValueColumn, cfg.KeyColumn, cfg.ValueColumn, cfg.ValueColumn),
			op.Key, op.Value)
		return err
	case OpUpdate:
		_, err := db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %s SET %q = $1 WHERE %q = $2`, table, cfg.ValueColumn, cfg.KeyColumn),
			op.Value, op.Key)
		return err
	case OpDelete:
		_, err := db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE %q = $1`, table, cfg.KeyColumn),
			op.Key)
		return err
	default:
		return fmt.Errorf("unknown operation type: %v", op.Type)
	}
}

// Notify raises a notification carrying the target name, exactly what
// a trigger on the watched table would send. NOTIFY itself takes no
// bind parameters, pg_notify does.
func Notify(ctx context.Context, db *sql.DB, channel, payload string) error {
	_, err := db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, payload)
	return err
}

// IsRetryableError checks if an error is worth retrying.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001": // serialization_failure
			return true
		case "40P01": // deadlock_detected
			return true
		case "55P03": // lock_not_available
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "deadlock") || strings.Contains(errStr, "could not serialize")
}
