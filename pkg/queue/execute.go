package queue

import (
	"context"
	"fmt"

	"github.com/timescale/pgvectorizer/pkg/vectorizer"
)

// VectorizerLoader fetches a single vectorizer record by id, used by
// ExecuteVectorizer when called directly (outside the worker pool) by an
// external timer, per spec.md §4.D's "Public entry: execute_vectorizer(vectorizer_id)".
type VectorizerLoader interface {
	LoadVectorizer(ctx context.Context, id int64) (*vectorizer.Vectorizer, error)
}

// ExecuteOptions overrides the per-process defaults for a single call,
// e.g. a smaller batch_size for an ad hoc backfill run.
type ExecuteOptions struct {
	BatchSize  int
	MaxRetries int
}

// ExecuteVectorizer is the external-timer-facing entry point named
// directly after spec.md §4.D: it loops running passes over one
// vectorizer's queue until a pass reports zero claimed rows, then
// returns. It does not schedule itself — callers (a cron job, the
// worker pool, a one-off CLI invocation) decide when to call it again.
func ExecuteVectorizer(ctx context.Context, loader VectorizerLoader, runner PassRunner, vectorizerID int64, opts ExecuteOptions) (PassResult, error) {
	v, err := loader.LoadVectorizer(ctx, vectorizerID)
	if err != nil {
		return PassResult{}, fmt.Errorf("loading vectorizer %d: %w", vectorizerID, err)
	}

	pass, err := runner.NewPass(v)
	if err != nil {
		return PassResult{}, fmt.Errorf("building pass for vectorizer %d: %w", vectorizerID, err)
	}

	var total PassResult
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		result, err := pass.Run(ctx)
		if err != nil {
			return total, err
		}
		total.Claimed += result.Claimed
		total.Embedded += result.Embedded
		total.Skipped += result.Skipped
		total.Errored += result.Errored
		if result.Err != nil {
			total.Err = result.Err
		}
		if result.Done() {
			return total, nil
		}
	}
}
