package agent

import "context"

// CatalogObject mirrors pkg/catalog.CatalogObject, kept as a distinct
// type so this package does not import pkg/catalog for struct shapes
// alone — the same narrow-interface-at-point-of-use split pkg/catalog
// itself uses for its own Embedder.
type CatalogObject struct {
	ID          int64
	ObjType     string
	ObjNames    []string
	ObjArgs     []string
	ClassID     uint32
	ObjID       uint32
	ObjSubID    int
	Description string
}

// SQLExample mirrors pkg/catalog.SQLExample.
type SQLExample struct {
	ID          int64
	SQL         string
	Description string
}

// Retriever is the subset of pkg/catalog.Catalog the agent loop needs
// for spec.md §4.G step 2's three retrieval modes.
type Retriever interface {
	TopLevelObjects(ctx context.Context) ([]CatalogObject, error)
	ObjectsByID(ctx context.Context, ids []int64) ([]CatalogObject, error)
	SearchObjects(ctx context.Context, vectors [][]float32, maxResults int, maxVectorDist *float64) ([]CatalogObject, error)
	SearchSQLExamples(ctx context.Context, vectors [][]float32, maxResults int, maxVectorDist *float64) ([]SQLExample, error)
}

// Embedder produces embedding vectors for the pending questions of
// spec.md §4.G step 1.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}
