// Package registry implements spec.md §4.E: worker process bookkeeping
// (liveness via heartbeats) and per-vectorizer progress attribution,
// queried back out as a combined vectorizer/queue-depth status.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/timescale/pgvectorizer/pkg/sqlident"
	"github.com/timescale/pgvectorizer/pkg/vectorizer"
)

// ErrVectorizerNotFound is returned by VectorizerStatus when no vectorizer
// with the given id exists.
var ErrVectorizerNotFound = errors.New("vectorizer not found")

// Pool is the subset of pgxpool.Pool the registry needs.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Registry implements spec.md §4.E's worker-identity and progress
// bookkeeping against ai.vectorizer_worker_process / _worker_progress.
type Registry struct {
	pool Pool
}

// New builds a Registry over an already-migrated database.
func New(pool Pool) *Registry {
	return &Registry{pool: pool}
}

// Start registers a new worker process, returning its generated id.
// Mirrors spec.md §4.E's "_worker_start(version, expected_heartbeat_interval)
// -> worker_id".
func (r *Registry) Start(ctx context.Context, version string, heartbeatInterval time.Duration) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ai.vectorizer_worker_process (id, version, expected_heartbeat_interval)
		VALUES ($1, $2, $3)`,
		id, version, heartbeatInterval,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("registering worker process: %w", err)
	}
	return id, nil
}

// Heartbeat bumps a worker's counters and last_heartbeat, per spec.md
// §4.E's "_worker_heartbeat(worker_id, successes_delta, errors_delta,
// error?)". A non-nil lastErr also records last_error_at/last_error_message.
func (r *Registry) Heartbeat(ctx context.Context, workerID uuid.UUID, successDelta, errorDelta int, lastErr error) error {
	var errMsg *string
	if lastErr != nil {
		msg := lastErr.Error()
		errMsg = &msg
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE ai.vectorizer_worker_process
		SET last_heartbeat = clock_timestamp(),
		    heartbeat_count = heartbeat_count + 1,
		    success_count = success_count + $2,
		    error_count = error_count + $3,
		    last_error_at = CASE WHEN $4::text IS NOT NULL THEN clock_timestamp() ELSE last_error_at END,
		    last_error_message = COALESCE($4, last_error_message)
		WHERE id = $1`,
		workerID, successDelta, errorDelta, errMsg,
	)
	if err != nil {
		return fmt.Errorf("recording heartbeat for worker %s: %w", workerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("heartbeat for unknown worker %s", workerID)
	}
	return nil
}

// ReportProgress upserts a worker's outcome for one vectorizer, per
// spec.md §4.E's "_worker_progress(worker_id, vectorizer_id, successes,
// error?) ... updating either last_success_* or last_error_* fields
// depending on whether error is null".
func (r *Registry) ReportProgress(ctx context.Context, workerID uuid.UUID, vectorizerID int64, successes int, lastErr error) error {
	if lastErr != nil {
		msg := lastErr.Error()
		_, err := r.pool.Exec(ctx, `
			INSERT INTO ai.vectorizer_worker_progress (vectorizer_id, last_error_at, last_error_process_id, last_error_message, error_count)
			VALUES ($1, clock_timestamp(), $2, $3, 1)
			ON CONFLICT (vectorizer_id) DO UPDATE SET
			    last_error_at = clock_timestamp(),
			    last_error_process_id = $2,
			    last_error_message = $3,
			    error_count = ai.vectorizer_worker_progress.error_count + 1`,
			vectorizerID, workerID, msg,
		)
		if err != nil {
			return fmt.Errorf("recording error progress for vectorizer %d: %w", vectorizerID, err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO ai.vectorizer_worker_progress (vectorizer_id, last_success_at, last_success_process_id, success_count)
		VALUES ($1, clock_timestamp(), $2, $3)
		ON CONFLICT (vectorizer_id) DO UPDATE SET
		    last_success_at = clock_timestamp(),
		    last_success_process_id = $2,
		    success_count = ai.vectorizer_worker_progress.success_count + $3`,
		vectorizerID, workerID, successes,
	)
	if err != nil {
		return fmt.Errorf("recording success progress for vectorizer %d: %w", vectorizerID, err)
	}
	return nil
}

// Status mirrors spec.md §4.E's vectorizer_status view: a vectorizer's
// identity alongside its current queue depth and last-known progress.
type Status struct {
	VectorizerID   int64
	SourceSchema   string
	SourceTable    string
	QueuePending   int64
	LastSuccessAt  *time.Time
	LastErrorAt    *time.Time
	LastErrorMessage string
	SuccessCount   int64
	ErrorCount     int64
}

// VectorizerStatus joins a vectorizer's identity and progress row with a
// live count of its pending queue rows. The queue table name is looked up
// from ai.vectorizer (never taken from caller input) and quoted via
// pkg/sqlident before being interpolated into the count subquery, since
// it cannot be parametrized as a literal.
func (r *Registry) VectorizerStatus(ctx context.Context, vectorizerID int64) (Status, error) {
	var queueSchema, queueTable string
	var st Status
	st.VectorizerID = vectorizerID

	err := r.pool.QueryRow(ctx, `
		SELECT source_schema, source_table, queue_schema, queue_table
		FROM ai.vectorizer WHERE id = $1`, vectorizerID,
	).Scan(&st.SourceSchema, &st.SourceTable, &queueSchema, &queueTable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Status{}, ErrVectorizerNotFound
		}
		return Status{}, fmt.Errorf("loading vectorizer %d: %w", vectorizerID, err)
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM %s", sqlident.Qualify(queueSchema, queueTable))
	if err := r.pool.QueryRow(ctx, countSQL).Scan(&st.QueuePending); err != nil {
		return Status{}, fmt.Errorf("counting pending queue rows for vectorizer %d: %w", vectorizerID, err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT last_success_at, last_error_at, last_error_message, success_count, error_count
		FROM ai.vectorizer_worker_progress WHERE vectorizer_id = $1`, vectorizerID,
	).Scan(&st.LastSuccessAt, &st.LastErrorAt, &st.LastErrorMessage, &st.SuccessCount, &st.ErrorCount)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Status{}, fmt.Errorf("loading progress for vectorizer %d: %w", vectorizerID, err)
	}
	// pgx.ErrNoRows: no worker has ever processed this vectorizer yet;
	// Status keeps its zero-value progress fields.

	return st, nil
}

const vectorizerColumns = `id, source_schema, source_table, source_pk, target_schema, target_table,
	       view_schema, view_name, queue_schema, queue_table, trigger_name, config, created_at`

// scanVectorizer unmarshals the JSONB source_pk/config columns shared by
// ActiveVectorizers and LoadVectorizer, selected via vectorizerColumns.
func scanVectorizer(row pgx.Row) (*vectorizer.Vectorizer, error) {
	v := &vectorizer.Vectorizer{}
	var pkJSON, configJSON []byte
	if err := row.Scan(
		&v.ID, &v.SourceSchema, &v.SourceTable, &pkJSON, &v.TargetSchema, &v.TargetTable,
		&v.ViewSchema, &v.ViewName, &v.QueueSchema, &v.QueueTable, &v.TriggerName, &configJSON, &v.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(pkJSON, &v.SourcePK); err != nil {
		return nil, fmt.Errorf("unmarshaling source_pk for vectorizer %d: %w", v.ID, err)
	}
	if err := json.Unmarshal(configJSON, &v.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling config for vectorizer %d: %w", v.ID, err)
	}
	return v, nil
}

// LoadVectorizer implements pkg/queue.VectorizerLoader, fully hydrating a
// single vectorizer by id for ExecuteVectorizer's external-timer entry
// point (spec.md §1: "an external timer invokes execute_vectorizer(id)").
func (r *Registry) LoadVectorizer(ctx context.Context, id int64) (*vectorizer.Vectorizer, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+vectorizerColumns+" FROM ai.vectorizer WHERE id = $1", id)
	v, err := scanVectorizer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVectorizerNotFound
		}
		return nil, fmt.Errorf("loading vectorizer %d: %w", id, err)
	}
	return v, nil
}

// ActiveVectorizers implements pkg/queue.VectorizerLister: every
// vectorizer currently known to the control plane. Worker polling decides
// for itself which of these have queue depth worth a pass.
func (r *Registry) ActiveVectorizers(ctx context.Context) ([]*vectorizer.Vectorizer, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+vectorizerColumns+" FROM ai.vectorizer ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing vectorizers: %w", err)
	}
	defer rows.Close()

	var out []*vectorizer.Vectorizer
	for rows.Next() {
		v, err := scanVectorizer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning vectorizer row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
