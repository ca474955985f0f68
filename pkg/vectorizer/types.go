// Package vectorizer holds the domain types shared by the schema
// provisioner, worker runtime, and registry: the Vectorizer record
// itself and the physical row shapes it governs.
package vectorizer

import (
	"time"

	"github.com/timescale/pgvectorizer/pkg/vconfig"
)

// PKColumn is one column of a source table's primary key, as
// introspected from pg_catalog at creation time and frozen into the
// Vectorizer record (spec.md §3: "primary key is required").
type PKColumn struct {
	AttNum int16
	AttName string
	AttType string
	PKNum  int16 // 1-based ordinal position within the primary key
}

// Vectorizer is the immutable control-plane record describing one
// source-to-target synchronization pipeline. Its physical objects
// (target table, queue table, trigger, view) exist iff this row exists;
// creation and deletion are transactional with that DDL (pkg/provisioner).
type Vectorizer struct {
	ID int64

	SourceSchema string
	SourceTable  string
	SourcePK     []PKColumn

	TargetSchema string
	TargetTable  string
	ViewSchema   string
	ViewName     string

	QueueSchema string
	QueueTable  string
	TriggerName string

	Config vconfig.Document

	CreatedAt time.Time
}

// QueueKey is the primary-key tuple of a queue row: exactly the source
// table's primary key columns, keyed by column name to stay agnostic of
// the source table's actual key shape.
type QueueKey map[string]any

// TargetRow is one row of a vectorizer's target (embedding) table. Rows
// are unique by (SourcePK, ChunkSeq); replacing embeddings for a source
// key means deleting all of its rows and inserting the new set
// (spec.md §3).
type TargetRow struct {
	EmbeddingUUID string
	SourcePK      QueueKey
	ChunkSeq      int
	Chunk         string
	Embedding     []float32
}

// WorkerProcess is a live or historical worker identity, used for
// liveness checks and progress attribution (spec.md §3, §4.E).
type WorkerProcess struct {
	ID                       string // uuid
	Version                  string
	StartedAt                time.Time
	ExpectedHeartbeatInterval time.Duration
	LastHeartbeat            time.Time
	HeartbeatCount           int64
	SuccessCount             int64
	ErrorCount               int64
	LastErrorAt              *time.Time
	LastErrorMessage         string
}

// IsLive reports whether the process is considered alive under the
// spec's liveness rule: last_heartbeat + 3*expected_heartbeat_interval > now.
func (w WorkerProcess) IsLive(now time.Time) bool {
	return w.LastHeartbeat.Add(3 * w.ExpectedHeartbeatInterval).After(now)
}

// WorkerProgress tracks the last success/error for one vectorizer
// across all worker processes that have ever worked it (spec.md §3).
type WorkerProgress struct {
	VectorizerID        int64
	LastSuccessAt       *time.Time
	LastSuccessProcessID string
	LastErrorAt         *time.Time
	LastErrorProcessID  string
	LastErrorMessage    string
	SuccessCount        int64
	ErrorCount          int64
}
