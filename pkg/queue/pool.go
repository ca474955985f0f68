package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// WorkerPool manages a pool of queue workers within one process,
// mirroring the teacher's session worker pool shape: spawn N workers,
// track health, graceful Stop.
type WorkerPool struct {
	podID   string
	cfg     Config
	lister  VectorizerLister
	runner  PassRunner
	workers []*Worker

	newRegistry func(workerID string) ProgressReporter

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

// NewWorkerPool builds a WorkerPool. newRegistry, when non-nil, is
// called once per worker to obtain a ProgressReporter bound to that
// worker's own registry row (each worker registers itself separately
// via pkg/registry.Start before the pool starts it).
func NewWorkerPool(podID string, cfg Config, lister VectorizerLister, runner PassRunner, newRegistry func(workerID string) ProgressReporter) *WorkerPool {
	return &WorkerPool{
		podID:       podID,
		cfg:         cfg,
		lister:      lister,
		runner:      runner,
		newRegistry: newRegistry,
		stopCh:      make(chan struct{}),
	}
}

// Start spawns the configured number of worker goroutines. Safe to call
// once; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return
	}
	p.started = true

	slog.Info("starting worker pool", "pod_id", p.podID, "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		id := fmt.Sprintf("%s-worker-%d", p.podID, i)
		var registry ProgressReporter
		if p.newRegistry != nil {
			registry = p.newRegistry(id)
		}
		worker := NewWorker(id, p.cfg, p.lister, p.runner, registry)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
	slog.Info("worker pool started")
}

// Stop signals all workers to stop and waits for their current pass to
// finish.
func (p *WorkerPool) Stop() {
	slog.Info("stopping worker pool gracefully")
	for _, w := range p.workers {
		w.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	slog.Info("worker pool stopped gracefully")
}

// Health reports aggregate pool health.
func (p *WorkerPool) Health() *PoolHealth {
	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		h := w.Health()
		stats[i] = h
		if h.Status == string(WorkerStatusWorking) {
			active++
		}
	}
	return &PoolHealth{
		IsHealthy:     len(p.workers) > 0,
		DBReachable:   true,
		PodID:         p.podID,
		ActiveWorkers: active,
		TotalWorkers:  len(p.workers),
		WorkerStats:   stats,
	}
}
