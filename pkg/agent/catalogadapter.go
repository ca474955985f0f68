package agent

import (
	"context"

	"github.com/timescale/pgvectorizer/pkg/catalog"
)

// CatalogRetriever adapts a live *catalog.Catalog to this package's
// Retriever interface, converting catalog.CatalogObject/SQLExample to
// this package's own copies the same way pkg/embedprovider.CatalogAdapter
// bridges queue.EmbeddingProvider to catalog.Embedder.
type CatalogRetriever struct {
	Catalog *catalog.Catalog
}

func (r CatalogRetriever) TopLevelObjects(ctx context.Context) ([]CatalogObject, error) {
	objs, err := r.Catalog.TopLevelObjects(ctx)
	if err != nil {
		return nil, err
	}
	return convertObjects(objs), nil
}

func (r CatalogRetriever) ObjectsByID(ctx context.Context, ids []int64) ([]CatalogObject, error) {
	objs, err := r.Catalog.ObjectsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	return convertObjects(objs), nil
}

func (r CatalogRetriever) SearchObjects(ctx context.Context, vectors [][]float32, maxResults int, maxVectorDist *float64) ([]CatalogObject, error) {
	objs, err := r.Catalog.SearchObjects(ctx, vectors, maxResults, maxVectorDist)
	if err != nil {
		return nil, err
	}
	return convertObjects(objs), nil
}

func (r CatalogRetriever) SearchSQLExamples(ctx context.Context, vectors [][]float32, maxResults int, maxVectorDist *float64) ([]SQLExample, error) {
	examples, err := r.Catalog.SearchSQLExamples(ctx, vectors, maxResults, maxVectorDist)
	if err != nil {
		return nil, err
	}
	out := make([]SQLExample, len(examples))
	for i, e := range examples {
		out[i] = SQLExample{ID: e.ID, SQL: e.SQL, Description: e.Description}
	}
	return out, nil
}

func convertObjects(objs []catalog.CatalogObject) []CatalogObject {
	out := make([]CatalogObject, len(objs))
	for i, o := range objs {
		out[i] = CatalogObject{
			ID:          o.ID,
			ObjType:     o.ObjType,
			ObjNames:    o.ObjNames,
			ObjArgs:     o.ObjArgs,
			ClassID:     o.ClassID,
			ObjID:       o.ObjID,
			ObjSubID:    o.ObjSubID,
			Description: o.Description,
		}
	}
	return out
}
