package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// TopLevelObjects returns every objsubid=0 catalog object, backing
// spec.md §4.G step 2's include_entire_schema=true retrieval mode.
func (c *Catalog) TopLevelObjects(ctx context.Context) ([]CatalogObject, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT id, objtype, objnames, objargs, classid, objid, objsubid, description
		FROM ai.semantic_catalog_obj WHERE objsubid = 0`)
	if err != nil {
		return nil, fmt.Errorf("listing top-level catalog objects: %w", err)
	}
	defer rows.Close()
	return scanCatalogObjects(rows)
}

// ObjectsByID returns the catalog objects with the given ids, backing
// spec.md §4.G step 2's only_these_objects retrieval mode.
func (c *Catalog) ObjectsByID(ctx context.Context, ids []int64) ([]CatalogObject, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := c.pool.Query(ctx, `
		SELECT id, objtype, objnames, objargs, classid, objid, objsubid, description
		FROM ai.semantic_catalog_obj WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("listing catalog objects by id: %w", err)
	}
	defer rows.Close()
	return scanCatalogObjects(rows)
}

// SearchObjects finds, for each question vector, the max_results nearest
// catalog objects by cosine distance, optionally bounded by
// maxVectorDist, and unions the results across all vectors (spec.md
// §4.G step 2's default retrieval mode). A match on a column row is
// promoted to its owning table/view — the table/view's own objsubid=0
// row is substituted for it if one exists, and the matched column row
// itself is not returned. A column whose owner has no catalog row is
// returned as is.
func (c *Catalog) SearchObjects(ctx context.Context, vectors [][]float32, maxResults int, maxVectorDist *float64) ([]CatalogObject, error) {
	if maxResults <= 0 {
		maxResults = 10
	}

	seen := make(map[int64]struct{})
	var out []CatalogObject
	for _, v := range vectors {
		rows, err := c.pool.Query(ctx, `
			SELECT id, objtype, objnames, objargs, classid, objid, objsubid, description
			FROM ai.semantic_catalog_obj
			WHERE $2::float8 IS NULL OR embedding <=> $1 <= $2
			ORDER BY embedding <=> $1
			LIMIT $3`,
			pgvector.NewVector(v), maxVectorDist, maxResults,
		)
		if err != nil {
			return nil, fmt.Errorf("searching catalog objects: %w", err)
		}
		matches, err := scanCatalogObjects(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}

		for _, m := range matches {
			promoted, err := c.promoteColumnMatch(ctx, m)
			if err != nil {
				return nil, err
			}
			if _, ok := seen[promoted.ID]; ok {
				continue
			}
			seen[promoted.ID] = struct{}{}
			out = append(out, promoted)
		}
	}
	return out, nil
}

// promoteColumnMatch substitutes a column-row match with its owning
// table/view's own objsubid=0 row, if one has a description. A column
// match whose owner has never been described is kept as-is — some
// context about it beats none.
func (c *Catalog) promoteColumnMatch(ctx context.Context, obj CatalogObject) (CatalogObject, error) {
	if obj.ObjSubID == 0 {
		return obj, nil
	}
	var owner CatalogObject
	err := c.pool.QueryRow(ctx, `
		SELECT id, objtype, objnames, objargs, classid, objid, objsubid, description
		FROM ai.semantic_catalog_obj WHERE classid = $1 AND objid = $2 AND objsubid = 0`,
		obj.ClassID, obj.ObjID,
	).Scan(&owner.ID, &owner.ObjType, &owner.ObjNames, &owner.ObjArgs, &owner.ClassID, &owner.ObjID, &owner.ObjSubID, &owner.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return obj, nil
		}
		return CatalogObject{}, fmt.Errorf("loading owner of column match: %w", err)
	}
	return owner, nil
}

// SearchSQLExamples finds, for each question vector, the max_results
// nearest worked SQL examples by cosine distance, optionally bounded by
// maxVectorDist, unioned across all vectors (spec.md §4.G step 2).
func (c *Catalog) SearchSQLExamples(ctx context.Context, vectors [][]float32, maxResults int, maxVectorDist *float64) ([]SQLExample, error) {
	if maxResults <= 0 {
		maxResults = 10
	}

	seen := make(map[int64]struct{})
	var out []SQLExample
	for _, v := range vectors {
		rows, err := c.pool.Query(ctx, `
			SELECT id, sql, description FROM ai.semantic_catalog_sql
			WHERE $2::float8 IS NULL OR embedding <=> $1 <= $2
			ORDER BY embedding <=> $1
			LIMIT $3`,
			pgvector.NewVector(v), maxVectorDist, maxResults,
		)
		if err != nil {
			return nil, fmt.Errorf("searching sql examples: %w", err)
		}
		for rows.Next() {
			var ex SQLExample
			if err := rows.Scan(&ex.ID, &ex.SQL, &ex.Description); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning sql example row: %w", err)
			}
			if _, ok := seen[ex.ID]; !ok {
				seen[ex.ID] = struct{}{}
				out = append(out, ex)
			}
		}
		closeErr := rows.Err()
		rows.Close()
		if closeErr != nil {
			return nil, closeErr
		}
	}
	return out, nil
}

// rowScanner is the subset of pgx.Rows that scanCatalogObjects needs,
// satisfied directly by pgx.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanCatalogObjects(rows rowScanner) ([]CatalogObject, error) {
	var out []CatalogObject
	for rows.Next() {
		var o CatalogObject
		if err := rows.Scan(&o.ID, &o.ObjType, &o.ObjNames, &o.ObjArgs, &o.ClassID, &o.ObjID, &o.ObjSubID, &o.Description); err != nil {
			return nil, fmt.Errorf("scanning catalog object row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
