package registry

import (
	"context"

	"github.com/google/uuid"
)

// WorkerReporter adapts a Registry, bound to one already-started worker's
// id, to pkg/queue.ProgressReporter — the seam a Pass reports heartbeats
// and terminal progress through without knowing about worker identity.
type WorkerReporter struct {
	registry *Registry
	workerID uuid.UUID
}

// NewWorkerReporter builds a WorkerReporter for a worker id obtained from
// Registry.Start.
func NewWorkerReporter(registry *Registry, workerID uuid.UUID) *WorkerReporter {
	return &WorkerReporter{registry: registry, workerID: workerID}
}

// Heartbeat implements pkg/queue.ProgressReporter.
func (w *WorkerReporter) Heartbeat(ctx context.Context, successDelta, errorDelta int, lastErr error) error {
	return w.registry.Heartbeat(ctx, w.workerID, successDelta, errorDelta, lastErr)
}

// ReportProgress implements pkg/queue.ProgressReporter.
func (w *WorkerReporter) ReportProgress(ctx context.Context, vectorizerID int64, successes int, lastErr error) error {
	return w.registry.ReportProgress(ctx, w.workerID, vectorizerID, successes, lastErr)
}
