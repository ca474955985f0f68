package embedprovider

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// PgxPool is the subset of pgxpool.Pool a live BatchPool adapts.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxBatchPool adapts a PgxPool to BatchPool, so batchEmbedder depends
// only on the narrow shape it actually uses and its tests can fake that
// shape without pulling in pgx.
type pgxBatchPool struct {
	pool PgxPool
}

// NewPgxBatchPool builds the live BatchPool used by cmd/vectorizer-worker.
func NewPgxBatchPool(pool PgxPool) BatchPool {
	return &pgxBatchPool{pool: pool}
}

func (p *pgxBatchPool) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *pgxBatchPool) QueryRow(ctx context.Context, sql string, args ...any) BatchRow {
	return p.pool.QueryRow(ctx, sql, args...)
}
