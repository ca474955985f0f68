package vdb

import (
	"context"
	"fmt"

	"github.com/timescale/pgvectorizer/pkg/vconfig"
	"github.com/timescale/pgvectorizer/pkg/vectorizer"
)

// TableExists reports whether a table exists in the given schema, used
// by pkg/vconfig's batch-table-collision rule and by pkg/provisioner's
// destination-table collision checks.
func (c *Client) TableExists(ctx context.Context, schema, table string) (bool, error) {
	var exists bool
	err := c.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_catalog.pg_tables
			WHERE schemaname = $1 AND tablename = $2
		)`, schema, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking table existence: %w", err)
	}
	return exists, nil
}

// SourceColumns returns the column name/type pairs of a table, for
// pkg/vconfig validation of chunk_column / loading column_name.
func (c *Client) SourceColumns(ctx context.Context, schema, table string) ([]vconfig.ColumnInfo, error) {
	rows, err := c.Pool.Query(ctx, `
		SELECT a.attname, format_type(a.atttypid, a.atttypmod)
		FROM pg_catalog.pg_attribute a
		JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2
		  AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("listing columns of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var cols []vconfig.ColumnInfo
	for rows.Next() {
		var c vconfig.ColumnInfo
		if err := rows.Scan(&c.Name, &c.DataType); err != nil {
			return nil, fmt.Errorf("scanning column row: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// SourcePrimaryKey derives the ordered primary key column list of a
// table via pg_catalog, required by spec.md §3 ("primary key is
// required") and §4.B step 1.
func (c *Client) SourcePrimaryKey(ctx context.Context, schema, table string) ([]vectorizer.PKColumn, error) {
	rows, err := c.Pool.Query(ctx, `
		SELECT a.attnum, a.attname, format_type(a.atttypid, a.atttypmod), k.ord
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class c ON c.oid = con.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_catalog.pg_attribute a ON a.attrelid = c.oid AND a.attnum = k.attnum
		WHERE con.contype = 'p' AND n.nspname = $1 AND c.relname = $2
		ORDER BY k.ord`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("deriving primary key of %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	var pk []vectorizer.PKColumn
	for rows.Next() {
		var col vectorizer.PKColumn
		if err := rows.Scan(&col.AttNum, &col.AttName, &col.AttType, &col.PKNum); err != nil {
			return nil, fmt.Errorf("scanning primary key column: %w", err)
		}
		pk = append(pk, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pk) == 0 {
		return nil, fmt.Errorf("%s.%s has no primary key", schema, table)
	}
	return pk, nil
}

// IsTableOwner reports whether the given role owns the table, used by
// pkg/provisioner before issuing DDL against a source table it did not
// create (spec.md §4.B ownership check).
func (c *Client) IsTableOwner(ctx context.Context, schema, table, role string) (bool, error) {
	var owner string
	err := c.Pool.QueryRow(ctx, `
		SELECT tableowner FROM pg_catalog.pg_tables
		WHERE schemaname = $1 AND tablename = $2`, schema, table).Scan(&owner)
	if err != nil {
		return false, fmt.Errorf("looking up owner of %s.%s: %w", schema, table, err)
	}
	return owner == role, nil
}

// RoleExists reports whether a role exists, used by pkg/provisioner's
// grant_to=explicit handling ("grant to existing roles only, with a
// warning" per spec.md §4.B).
func (c *Client) RoleExists(ctx context.Context, role string) (bool, error) {
	var exists bool
	err := c.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_catalog.pg_roles WHERE rolname = $1)`, role).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking role existence: %w", err)
	}
	return exists, nil
}
