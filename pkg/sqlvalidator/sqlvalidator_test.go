package sqlvalidator

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	tx *fakeTx
}

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) {
	return p.tx, nil
}

type fakeTx struct {
	pgx.Tx
	execErr      error
	execStmts    []string
	scanVal      string
	scanErr      error
	rolledBack   bool
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgx.CommandTag, error) {
	f.execStmts = append(f.execStmts, sql)
	return pgx.CommandTag{}, f.execErr
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	return &fakeRow{val: f.scanVal, err: f.scanErr}
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeRow struct {
	val string
	err error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.val
	return nil
}

const samplePlan = `[{"Plan": {"Node Type": "Seq Scan", "Total Cost": 12.5, "Plan Rows": 100}}]`

func TestExplainValidStatementParsesCostAndRows(t *testing.T) {
	tx := &fakeTx{scanVal: samplePlan}
	v := New(&fakePool{tx: tx})

	result, err := v.Explain(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, 12.5, result.EstCost)
	assert.Equal(t, 100.0, result.EstRows)
	assert.NotEmpty(t, result.QueryPlan)
	assert.True(t, tx.rolledBack, "explain transaction must always roll back")
}

func TestExplainSetsLocalSearchPath(t *testing.T) {
	tx := &fakeTx{scanVal: samplePlan}
	v := New(&fakePool{tx: tx})

	_, err := v.Explain(context.Background(), "SELECT 1", []string{"public", "ai"})
	require.NoError(t, err)
	require.Len(t, tx.execStmts, 1)
	assert.Contains(t, tx.execStmts[0], `SET LOCAL search_path`)
	assert.Contains(t, tx.execStmts[0], `"public"`)
	assert.Contains(t, tx.execStmts[0], `"ai"`)
}

func TestExplainInvalidStatementReturnsErrorNotGoError(t *testing.T) {
	tx := &fakeTx{scanErr: assert.AnError}
	v := New(&fakePool{tx: tx})

	result, err := v.Explain(context.Background(), "SELECT bogus_column FROM nowhere", nil)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Error)
	assert.True(t, tx.rolledBack)
}
