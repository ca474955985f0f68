package registry

import (
	"context"
	"log/slog"
	"time"
)

// PruneService periodically deletes worker_process rows that have been
// dead well past any plausible liveness window, keeping the registry from
// accumulating one row per worker restart forever. It does not touch
// vectorizer_worker_progress, which is keyed by vectorizer and is meant to
// persist across worker restarts.
type PruneService struct {
	pool     Pool
	maxAge   time.Duration
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPruneService builds a PruneService. maxAge is how long past its last
// heartbeat a worker_process row is kept around for observability before
// being pruned; interval is how often the sweep runs.
func NewPruneService(pool Pool, maxAge, interval time.Duration) *PruneService {
	return &PruneService{pool: pool, maxAge: maxAge, interval: interval}
}

// Start launches the background prune loop.
func (s *PruneService) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("worker process prune service started", "max_age", s.maxAge, "interval", s.interval)
}

// Stop signals the prune loop to exit and waits for it to finish.
func (s *PruneService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("worker process prune service stopped")
}

func (s *PruneService) run(ctx context.Context) {
	defer close(s.done)

	s.pruneOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneOnce(ctx)
		}
	}
}

func (s *PruneService) pruneOnce(ctx context.Context) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM ai.vectorizer_worker_process
		WHERE last_heartbeat < clock_timestamp() - $1::interval`,
		s.maxAge,
	)
	if err != nil {
		slog.Error("worker process prune failed", "error", err)
		return
	}
	if n := tag.RowsAffected(); n > 0 {
		slog.Info("pruned dead worker processes", "count", n)
	}
}
