package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/timescale/pgvectorizer/pkg/vectorizer"
)

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// VectorizerLister discovers vectorizers with queue depth greater than
// zero, so workers know what to poll for in the absence of a per-
// vectorizer external timer (spec.md §1 leaves scheduling that timer out
// of scope; something still has to pick the next vectorizer to pass
// over within this process).
type VectorizerLister interface {
	ActiveVectorizers(ctx context.Context) ([]*vectorizer.Vectorizer, error)
}

// PassRunner builds a runnable Pass for one vectorizer. Injected so
// Worker does not need to know how providers are wired per vectorizer
// (embedding model, chunker, etc. all vary by config).
type PassRunner interface {
	NewPass(v *vectorizer.Vectorizer) (*Pass, error)
}

// Config holds the worker-runtime tunables read from process config
// (pkg/config.QueueConfig), generalized from session polling to
// vectorizer-queue polling.
type Config struct {
	WorkerCount             int
	BatchSize               int
	MaxRetries              int
	PollInterval            time.Duration
	PollIntervalJitter      time.Duration
	HeartbeatInterval       time.Duration
	EmbedConcurrency        int
}

// Worker is a single loop that repeatedly finds a vectorizer with
// pending queue rows and runs passes over it until the queue drains,
// then polls again. Shape mirrors the teacher's session-queue worker:
// status tracking, stop channel, heartbeat goroutine.
type Worker struct {
	id       string
	cfg      Config
	lister   VectorizerLister
	runner   PassRunner
	registry ProgressReporter
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu                  sync.RWMutex
	status              WorkerStatus
	currentVectorizerID int64
	passesCompleted     int
	lastActivity        time.Time

	heartbeatMu      sync.Mutex
	successSinceBeat int
	errorSinceBeat   int
}

// NewWorker builds a Worker. registry may be nil (registry reporting
// disabled, e.g. in isolated tests).
func NewWorker(id string, cfg Config, lister VectorizerLister, runner PassRunner, registry ProgressReporter) *Worker {
	return &Worker{
		id:           id,
		cfg:          cfg,
		lister:       lister,
		runner:       runner,
		registry:     registry,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's poll loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for its current pass to
// finish. Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Health returns the worker's current health snapshot.
func (w *Worker) Health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:                  w.id,
		Status:              string(w.status),
		CurrentVectorizerID: w.currentVectorizerID,
		PassesCompleted:     w.passesCompleted,
		LastActivity:        w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("worker_id", w.id)
	log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, worker shutting down")
			return
		default:
			if err := w.pollAndProcess(ctx); err != nil {
				if errors.Is(err, ErrNoWorkAvailable) {
					w.sleep(w.pollInterval())
					continue
				}
				log.Error("error processing vectorizer queue", "error", err)
				w.sleep(time.Second)
			}
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess picks a vectorizer with pending work and runs passes
// over it until it reports an empty claim, mirroring ExecuteVectorizer's
// documented "loop until a pass reports zero claimed rows" behavior.
func (w *Worker) pollAndProcess(ctx context.Context) error {
	active, err := w.lister.ActiveVectorizers(ctx)
	if err != nil {
		return fmt.Errorf("listing active vectorizers: %w", err)
	}
	if len(active) == 0 {
		return ErrNoWorkAvailable
	}

	v := active[0]
	w.setStatus(WorkerStatusWorking, v.ID)
	defer w.setStatus(WorkerStatusIdle, 0)

	pass, err := w.runner.NewPass(v)
	if err != nil {
		return fmt.Errorf("building pass for vectorizer %d: %w", v.ID, err)
	}

	heartbeatCtx, cancelHeartbeat := context.WithCancel(ctx)
	defer cancelHeartbeat()
	if w.registry != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.runHeartbeat(heartbeatCtx)
		}()
	}

	for {
		result, err := pass.Run(ctx)
		if err != nil {
			cancelHeartbeat()
			w.recordBeatCounts(0, 1)
			if w.registry != nil {
				_ = w.registry.ReportProgress(context.Background(), v.ID, result.Embedded, err)
			}
			return fmt.Errorf("running pass over vectorizer %d: %w", v.ID, err)
		}
		w.recordBeatCounts(result.Embedded, result.Errored)
		if w.registry != nil {
			_ = w.registry.ReportProgress(context.Background(), v.ID, result.Embedded, result.Err)
		}

		w.mu.Lock()
		w.passesCompleted++
		w.mu.Unlock()

		if result.Done() {
			cancelHeartbeat()
			return nil
		}
	}
}

// recordBeatCounts accumulates successes/errors since the last heartbeat
// tick, so runHeartbeat can report real cumulative deltas instead of
// hardcoded zeros.
func (w *Worker) recordBeatCounts(successes, errored int) {
	w.heartbeatMu.Lock()
	w.successSinceBeat += successes
	w.errorSinceBeat += errored
	w.heartbeatMu.Unlock()
}

// takeBeatCounts returns the accumulated counts since the last call and
// resets them, so each heartbeat reports only what happened in its own
// interval (spec.md §4.D: "cumulative success and error counts since the
// last heartbeat").
func (w *Worker) takeBeatCounts() (successes, errored int) {
	w.heartbeatMu.Lock()
	defer w.heartbeatMu.Unlock()
	successes, errored = w.successSinceBeat, w.errorSinceBeat
	w.successSinceBeat, w.errorSinceBeat = 0, 0
	return successes, errored
}

// runHeartbeat periodically reports liveness at an interval at most half
// of expected_heartbeat_interval per spec.md §4.D.
func (w *Worker) runHeartbeat(ctx context.Context) {
	interval := w.cfg.HeartbeatInterval / 2
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			successes, errored := w.takeBeatCounts()
			if err := w.registry.Heartbeat(ctx, successes, errored, nil); err != nil {
				slog.Warn("heartbeat failed", "worker_id", w.id, "error", err)
			}
		}
	}
}

// pollInterval returns the poll duration with jitter, identical in shape
// to the teacher's session-worker poll jitter.
func (w *Worker) pollInterval() time.Duration {
	base := w.cfg.PollInterval
	jitter := w.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (w *Worker) setStatus(status WorkerStatus, vectorizerID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentVectorizerID = vectorizerID
	w.lastActivity = time.Now()
}
