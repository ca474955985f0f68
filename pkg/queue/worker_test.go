package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timescale/pgvectorizer/pkg/vectorizer"
)

func testWorkerConfig() Config {
	return Config{
		WorkerCount:        5,
		BatchSize:          50,
		MaxRetries:         3,
		PollInterval:       1 * time.Second,
		PollIntervalJitter: 500 * time.Millisecond,
		HeartbeatInterval:  30 * time.Second,
		EmbedConcurrency:   4,
	}
}

func TestWorkerPollInterval(t *testing.T) {
	w := NewWorker("test-worker", testWorkerConfig(), nil, nil, nil)
	for i := 0; i < 100; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestWorkerPollIntervalNoJitter(t *testing.T) {
	cfg := testWorkerConfig()
	cfg.PollIntervalJitter = 0
	w := NewWorker("test-worker", cfg, nil, nil, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, time.Second, w.pollInterval())
	}
}

func TestWorkerHealth(t *testing.T) {
	w := NewWorker("worker-1", testWorkerConfig(), nil, nil, nil)

	h := w.Health()
	assert.Equal(t, "worker-1", h.ID)
	assert.Equal(t, string(WorkerStatusIdle), h.Status)
	assert.Equal(t, int64(0), h.CurrentVectorizerID)

	w.setStatus(WorkerStatusWorking, 7)
	h = w.Health()
	assert.Equal(t, string(WorkerStatusWorking), h.Status)
	assert.Equal(t, int64(7), h.CurrentVectorizerID)

	w.setStatus(WorkerStatusIdle, 0)
	h = w.Health()
	assert.Equal(t, string(WorkerStatusIdle), h.Status)
}

type fakeLister struct {
	vectorizers []*vectorizer.Vectorizer
}

func (f *fakeLister) ActiveVectorizers(context.Context) ([]*vectorizer.Vectorizer, error) {
	return f.vectorizers, nil
}

type fakeRunner struct {
	pass *Pass
	err  error
}

func (f *fakeRunner) NewPass(*vectorizer.Vectorizer) (*Pass, error) {
	return f.pass, f.err
}

type fakeRegistry struct {
	heartbeats       int
	progresses       int
	lastErr          error
	lastSuccessDelta int
	lastErrorDelta   int
}

func (f *fakeRegistry) Heartbeat(_ context.Context, successDelta, errorDelta int, _ error) error {
	f.heartbeats++
	f.lastSuccessDelta = successDelta
	f.lastErrorDelta = errorDelta
	return nil
}

func (f *fakeRegistry) ReportProgress(_ context.Context, _ int64, _ int, lastErr error) error {
	f.progresses++
	f.lastErr = lastErr
	return nil
}

func TestPollAndProcessReturnsErrNoWorkAvailableWhenQueueEmpty(t *testing.T) {
	w := NewWorker("worker-1", testWorkerConfig(), &fakeLister{}, &fakeRunner{}, nil)
	err := w.pollAndProcess(context.Background())
	assert.ErrorIs(t, err, ErrNoWorkAvailable)
}

func TestRecordBeatCountsAccumulatesAndResetsOnTake(t *testing.T) {
	w := NewWorker("worker-1", testWorkerConfig(), nil, nil, nil)

	w.recordBeatCounts(3, 1)
	w.recordBeatCounts(2, 0)

	successes, errored := w.takeBeatCounts()
	assert.Equal(t, 5, successes)
	assert.Equal(t, 1, errored)

	// a second read before any further recording sees a reset, empty window.
	successes, errored = w.takeBeatCounts()
	assert.Equal(t, 0, successes)
	assert.Equal(t, 0, errored)
}

// stopAfterFirstHeartbeat wraps fakeRegistry to cancel the heartbeat
// loop's context as soon as the first Heartbeat call lands, so the test
// observes exactly one tick's deltas regardless of timer granularity.
type stopAfterFirstHeartbeat struct {
	*fakeRegistry
	cancel context.CancelFunc
}

func (f *stopAfterFirstHeartbeat) Heartbeat(ctx context.Context, successDelta, errorDelta int, lastErr error) error {
	err := f.fakeRegistry.Heartbeat(ctx, successDelta, errorDelta, lastErr)
	f.cancel()
	return err
}

func TestRunHeartbeatReportsAccumulatedDeltas(t *testing.T) {
	cfg := testWorkerConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	w := NewWorker("worker-1", cfg, nil, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	registry := &stopAfterFirstHeartbeat{fakeRegistry: &fakeRegistry{}, cancel: cancel}
	w.registry = registry

	w.recordBeatCounts(7, 2)
	w.runHeartbeat(ctx)

	require.Equal(t, 1, registry.heartbeats)
	assert.Equal(t, 7, registry.lastSuccessDelta)
	assert.Equal(t, 2, registry.lastErrorDelta)
}

func TestPollAndProcessReportsProgressOnEmptyPass(t *testing.T) {
	v := &vectorizer.Vectorizer{ID: 3, SourcePK: samplePK()}
	pool := &fakePool{tx: &fakeTx{}}
	pass := NewPass(pool, v, Providers{}, 50, 3)
	registry := &fakeRegistry{}

	w := NewWorker("worker-1", testWorkerConfig(), &fakeLister{vectorizers: []*vectorizer.Vectorizer{v}}, &fakeRunner{pass: pass}, registry)
	err := w.pollAndProcess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, registry.progresses)
	assert.Equal(t, WorkerStatusIdle, w.status)
}
