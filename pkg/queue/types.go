// Package queue implements spec.md §4.D: the worker runtime that claims
// batches from a vectorizer's queue table, loads/parses/chunks/embeds the
// referenced source rows, and upserts the resulting embeddings.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/timescale/pgvectorizer/pkg/vconfig"
	"github.com/timescale/pgvectorizer/pkg/vectorizer"
)

// Sentinel errors surfaced by a pass.
var (
	// ErrNoRowsClaimed indicates the queue was empty at claim time.
	ErrNoRowsClaimed = errors.New("no rows claimed")

	// ErrNoWorkAvailable indicates no vectorizer currently has queue depth,
	// so the worker should sleep before polling again.
	ErrNoWorkAvailable = errors.New("no work available")
)

// Chunk is one piece of source content after splitting, before formatting
// or embedding.
type Chunk struct {
	Seq  int
	Text string
}

// EmbedOptions carries embedding-provider-specific knobs threaded through
// from the embedding config sub-block (e.g. voyageai's input_type).
type EmbedOptions struct {
	InputType string
}

// SourceLoader fetches the raw content to chunk for a claimed pk —
// the row's own column (loading=row) or a referenced external document
// (loading=document), per spec.md §4.D step 3.
type SourceLoader interface {
	Load(ctx context.Context, row map[string]any, cfg vconfig.LoadingConfig) (content []byte, isBinary bool, err error)
}

// ContentParser converts loaded content to plain text. "auto" sniffs the
// %PDF- magic bytes; "pymupdf" handles PDF bytes; "none" passes text
// through unchanged.
type ContentParser interface {
	Parse(ctx context.Context, content []byte, isBinary bool, cfg vconfig.ParsingConfig) (string, error)
}

// Chunker splits parsed text into strictly-increasing-chunk_seq pieces
// per the chosen splitter and its size/overlap/separator settings.
type Chunker interface {
	Chunk(text string, cfg vconfig.ChunkingConfig) ([]Chunk, error)
}

// Formatter renders the text payload actually embedded for one chunk,
// e.g. substituting "$chunk" and other row columns into a template.
type Formatter interface {
	Format(chunk Chunk, row map[string]any, cfg vconfig.FormattingConfig) (string, error)
}

// EmbeddingProvider calls out to the configured embedding backend. It
// must report per-input errors distinctly from transport errors so the
// pass can apply spec.md §4.D's differing failure semantics.
type EmbeddingProvider interface {
	Embed(ctx context.Context, model string, texts []string, opts EmbedOptions) ([][]float32, error)
}

// TransportError marks an EmbeddingProvider (or ChatProvider) failure as
// retriable — a network error, HTTP 429, or HTTP 5xx — per spec.md
// §4.D's "Failure semantics" table. Providers wrap the underlying error
// in this type; anything not wrapped is treated as a deterministic,
// non-retriable failure.
type TransportError struct {
	Err        error
	StatusCode int
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// ProgressReporter is the subset of pkg/registry a pass reports through:
// heartbeats during long passes and a terminal progress record per batch.
type ProgressReporter interface {
	Heartbeat(ctx context.Context, successDelta, errorDelta int, lastErr error) error
	ReportProgress(ctx context.Context, vectorizerID int64, successes int, lastErr error) error
}

// PassResult summarizes the outcome of a single claim→upsert cycle.
type PassResult struct {
	Claimed    int
	Embedded   int
	Skipped    int
	Errored    int
	Err        error
}

// Done reports whether the queue was empty at claim time — the signal a
// worker uses to stop looping over a vectorizer until its next wakeup.
func (r PassResult) Done() bool {
	return r.Claimed == 0
}

// PoolHealth mirrors the teacher's pool-wide health snapshot, generalized
// from "active sessions" to "vectorizers with workers currently passing
// over them".
type PoolHealth struct {
	IsHealthy      bool           `json:"is_healthy"`
	DBReachable    bool           `json:"db_reachable"`
	DBError        string         `json:"db_error,omitempty"`
	PodID          string         `json:"pod_id"`
	ActiveWorkers  int            `json:"active_workers"`
	TotalWorkers   int            `json:"total_workers"`
	WorkerStats    []WorkerHealth `json:"worker_stats"`
}

// WorkerHealth mirrors a single worker's health snapshot.
type WorkerHealth struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"` // "idle" or "working"
	CurrentVectorizerID int64 `json:"current_vectorizer_id,omitempty"`
	PassesCompleted int       `json:"passes_completed"`
	LastActivity    time.Time `json:"last_activity"`
}

// activeVectorizer is a (id, queue location, config) tuple the worker
// pool discovers by scanning ai.vectorizer for queue depth > 0.
type activeVectorizer struct {
	v     *vectorizer.Vectorizer
	depth int
}
