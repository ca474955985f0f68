package agent

import (
	"context"
	"reflect"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timescale/pgvectorizer/pkg/catalog"
)

// fakeCatalogRow scans a fixed value slice via reflection, mirroring
// pkg/catalog/catalog_test.go's fakeRow.
type fakeCatalogRow struct {
	vals []any
}

func (r fakeCatalogRow) Scan(dest ...any) error {
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.vals[i]))
	}
	return nil
}

// fakeCatalogRows embeds pgx.Rows so it satisfies the full interface
// without implementing every method; only Next/Scan/Err/Close are
// actually exercised, again mirroring pkg/catalog's own test fake.
type fakeCatalogRows struct {
	pgx.Rows
	rows []fakeCatalogRow
	idx  int
}

func (f *fakeCatalogRows) Next() bool { return f.idx < len(f.rows) }
func (f *fakeCatalogRows) Scan(dest ...any) error {
	row := f.rows[f.idx]
	f.idx++
	return row.Scan(dest...)
}
func (f *fakeCatalogRows) Err() error { return nil }
func (f *fakeCatalogRows) Close()     {}

type fakeCatalogPool struct {
	queryRows []fakeCatalogRow
}

func (p *fakeCatalogPool) Exec(context.Context, string, ...any) (pgx.CommandTag, error) {
	return pgx.CommandTag{}, nil
}
func (p *fakeCatalogPool) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (p *fakeCatalogPool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return &fakeCatalogRows{rows: p.queryRows}, nil
}

type fakeIdentifier struct{}

func (fakeIdentifier) Identify(context.Context, uint32, uint32, int) (string, []string, []string, error) {
	return "", nil, nil, nil
}
func (fakeIdentifier) Address(context.Context, string, []string, []string) (uint32, uint32, int, error) {
	return 0, 0, 0, nil
}

func TestCatalogRetrieverConvertsTopLevelObjects(t *testing.T) {
	pool := &fakeCatalogPool{queryRows: []fakeCatalogRow{
		{vals: []any{int64(5), "table", []string{"public", "posts"}, []string{}, uint32(1), uint32(2), 0, "blog posts"}},
	}}
	c := catalog.New(pool, fakeIdentifier{}, nil, "")
	r := CatalogRetriever{Catalog: c}

	objs, err := r.TopLevelObjects(context.Background())
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, int64(5), objs[0].ID)
	assert.Equal(t, "table", objs[0].ObjType)
	assert.Equal(t, []string{"public", "posts"}, objs[0].ObjNames)
	assert.Equal(t, "blog posts", objs[0].Description)
}

func TestCatalogRetrieverConvertsSQLExamples(t *testing.T) {
	pool := &fakeCatalogPool{queryRows: []fakeCatalogRow{
		{vals: []any{int64(9), "select 1", "trivial"}},
	}}
	c := catalog.New(pool, fakeIdentifier{}, nil, "")
	r := CatalogRetriever{Catalog: c}

	examples, err := r.SearchSQLExamples(context.Background(), [][]float32{{0.1}}, 5, nil)
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, int64(9), examples[0].ID)
	assert.Equal(t, "select 1", examples[0].SQL)
}
