// Package sqlvalidator implements spec.md §4.H: plan-and-explain
// validation of a candidate SQL statement without executing it. Used by
// pkg/agent to gate the text-to-sql loop's answer tool.
package sqlvalidator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/tidwall/gjson"

	"github.com/timescale/pgvectorizer/pkg/sqlident"
)

// Pool is the subset of pgxpool.Pool the validator needs: transactions,
// because EXPLAIN must run inside a transaction that is always rolled
// back so the candidate SQL's side effects (if any slip past EXPLAIN)
// never commit.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Result is spec.md §4.H's output shape.
type Result struct {
	Valid     bool
	Error     string
	QueryPlan json.RawMessage
	EstCost   float64
	EstRows   float64
}

// Validator runs EXPLAIN (FORMAT JSON) under a caller-supplied search
// path and reports whether the statement plans successfully.
type Validator struct {
	pool Pool
}

// New builds a Validator over an open pool.
func New(pool Pool) *Validator {
	return &Validator{pool: pool}
}

// Explain plans sql under searchPath without executing it. The
// transaction is rolled back unconditionally — EXPLAIN without ANALYZE
// never executes the statement, but the rollback also protects against
// a misclassified command_type slipping a DML statement through to
// EXPLAIN, which does plan (but not run) DML.
func (v *Validator) Explain(ctx context.Context, sql string, searchPath []string) (Result, error) {
	tx, err := v.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("begin explain transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if len(searchPath) > 0 {
		quoted := make([]string, len(searchPath))
		for i, schema := range searchPath {
			quoted[i] = sqlident.Quote(schema)
		}
		setPath := fmt.Sprintf("SET LOCAL search_path = %s", strings.Join(quoted, ", "))
		if _, err := tx.Exec(ctx, setPath); err != nil {
			return Result{}, fmt.Errorf("set local search_path: %w", err)
		}
	}

	var planJSON string
	row := tx.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+sql)
	if err := row.Scan(&planJSON); err != nil {
		return Result{Valid: false, Error: err.Error()}, nil
	}

	plan := gjson.Parse(planJSON)
	root := plan.Get("0.Plan")

	return Result{
		Valid:     true,
		QueryPlan: json.RawMessage(planJSON),
		EstCost:   root.Get("Total Cost").Float(),
		EstRows:   root.Get("Plan Rows").Float(),
	}, nil
}
