// Package catalog implements spec.md §4.F: the semantic catalog that
// attaches free-text descriptions (and their embeddings) to live
// database objects, keeping those descriptions attached to the right
// object as the schema evolves underneath them.
//
// Identity is carried two ways at once: the object's current
// (classid, objid, objsubid) oid triple, for fast lookups while the
// schema is stable, and its (objtype, objnames, objargs) textual
// address, which survives a dump/restore that reassigns oids. Writes
// always resolve and store both; the two DDL hooks and PostRestore exist
// to keep them in sync with each other as the schema changes.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// ErrObjectNotFound is returned when a (classid, objid, objsubid) triple
// no longer identifies a live catalog object.
var ErrObjectNotFound = errors.New("catalog object not found")

// Pool is the subset of pgxpool.Pool the catalog needs.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Embedder produces embedding vectors for catalog description text. It is
// the same shape as pkg/queue.EmbeddingProvider but kept separate so this
// package does not import pkg/queue for a single method's sake.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// NativeObjectIdentifier wraps Postgres's own object-identification
// routines: pg_identify_object_as_address (oid triple -> textual
// address) and its inverse pg_get_object_address (textual address ->
// oid triple), the "database's native object-identification routine"
// spec.md §4.F requires rather than a hand-rolled catalog traversal.
type NativeObjectIdentifier interface {
	Identify(ctx context.Context, classid, objid uint32, objsubid int) (objtype string, objnames, objargs []string, err error)
	Address(ctx context.Context, objtype string, objnames, objargs []string) (classid, objid uint32, objsubid int, err error)
}

// PgNativeIdentifier is the live NativeObjectIdentifier, implemented
// directly against pg_catalog's address-resolution functions.
type PgNativeIdentifier struct {
	pool Pool
}

// NewPgNativeIdentifier builds a PgNativeIdentifier over an open pool.
func NewPgNativeIdentifier(pool Pool) *PgNativeIdentifier {
	return &PgNativeIdentifier{pool: pool}
}

func (p *PgNativeIdentifier) Identify(ctx context.Context, classid, objid uint32, objsubid int) (string, []string, []string, error) {
	var objtype string
	var objnames, objargs []string
	err := p.pool.QueryRow(ctx, `
		SELECT type, object_names, object_args
		FROM pg_catalog.pg_identify_object_as_address($1, $2, $3)`,
		classid, objid, objsubid,
	).Scan(&objtype, &objnames, &objargs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, nil, ErrObjectNotFound
		}
		return "", nil, nil, fmt.Errorf("identifying object (%d,%d,%d): %w", classid, objid, objsubid, err)
	}
	return objtype, objnames, objargs, nil
}

func (p *PgNativeIdentifier) Address(ctx context.Context, objtype string, objnames, objargs []string) (uint32, uint32, int, error) {
	var classid, objid uint32
	var objsubid int
	err := p.pool.QueryRow(ctx, `
		SELECT classid, objid, objsubid
		FROM pg_catalog.pg_get_object_address($1, $2, $3)`,
		objtype, objnames, objargs,
	).Scan(&classid, &objid, &objsubid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, 0, ErrObjectNotFound
		}
		return 0, 0, 0, fmt.Errorf("resolving address for %s %v %v: %w", objtype, objnames, objargs, err)
	}
	return classid, objid, objsubid, nil
}

// CatalogObject is one row of ai.semantic_catalog_obj.
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

// SQLExample is one row of ai.semantic_catalog_sql.
type SQLExample struct {
	ID          int64
	SQL         string
	Description string
}

// Catalog implements spec.md §4.F over ai.semantic_catalog_obj and
// ai.semantic_catalog_sql.
type Catalog struct {
	pool       Pool
	identifier NativeObjectIdentifier
	embedder   Embedder
	embedModel string
}

// New builds a Catalog. embedder/embedModel back the description
// embedding computed by SetDescription and SetSQLExample; a nil embedder
// is valid for read-only use (e.g. PostRestore, the DDL hooks), which
// never need to re-embed.
func New(pool Pool, identifier NativeObjectIdentifier, embedder Embedder, embedModel string) *Catalog {
	return &Catalog{pool: pool, identifier: identifier, embedder: embedder, embedModel: embedModel}
}

// embedOne embeds a single description, the common case for every write
// path in this package.
func (c *Catalog) embedOne(ctx context.Context, text string) (pgvector.Vector, error) {
	if c.embedder == nil {
		return pgvector.Vector{}, errors.New("catalog: no embedder configured")
	}
	vecs, err := c.embedder.Embed(ctx, c.embedModel, []string{text})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding description: %w", err)
	}
	return pgvector.NewVector(vecs[0]), nil
}

// SetDescription is spec.md §4.F's single write primitive: it resolves
// (objtype, objnames, objargs) from the given oid triple via the native
// identifier and upserts the description (and its embedding) keyed on
// that textual address.
func (c *Catalog) SetDescription(ctx context.Context, classid, objid uint32, objsubid int, description string) error {
	objtype, objnames, objargs, err := c.identifier.Identify(ctx, classid, objid, objsubid)
	if err != nil {
		return fmt.Errorf("resolving object address: %w", err)
	}
	vec, err := c.embedOne(ctx, description)
	if err != nil {
		return err
	}
	_, err = c.pool.Exec(ctx, `
		INSERT INTO ai.semantic_catalog_obj (objtype, objnames, objargs, classid, objid, objsubid, description, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (objtype, objnames, objargs) DO UPDATE SET
		    classid = $4, objid = $5, objsubid = $6, description = $7, embedding = $8`,
		objtype, objnames, objargs, classid, objid, objsubid, description, vec,
	)
	if err != nil {
		return fmt.Errorf("upserting description for %s %v: %w", objtype, objnames, err)
	}
	return nil
}

// SetSQLExample stores (or replaces, by id) a worked SQL example used by
// the text-to-sql agent's retrieval step (spec.md §4.G step 2). id <= 0
// inserts a new row; otherwise the existing row is updated.
func (c *Catalog) SetSQLExample(ctx context.Context, id int64, sql, description string) (int64, error) {
	vec, err := c.embedOne(ctx, description)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		var newID int64
		err := c.pool.QueryRow(ctx, `
			INSERT INTO ai.semantic_catalog_sql (sql, description, embedding)
			VALUES ($1, $2, $3) RETURNING id`,
			sql, description, vec,
		).Scan(&newID)
		if err != nil {
			return 0, fmt.Errorf("inserting sql example: %w", err)
		}
		return newID, nil
	}
	_, err = c.pool.Exec(ctx, `
		UPDATE ai.semantic_catalog_sql SET sql = $2, description = $3, embedding = $4 WHERE id = $1`,
		id, sql, description, vec,
	)
	if err != nil {
		return 0, fmt.Errorf("updating sql example %d: %w", id, err)
	}
	return id, nil
}

// DroppedObject is one row of pg_event_trigger_dropped_objects() as seen
// by an sql_drop event trigger: the dropped object's last-known address,
// supplied directly since the object itself no longer exists to
// re-resolve.
type DroppedObject struct {
	ClassID  uint32
	ObjID    uint32
	ObjSubID int
	ObjType  string
	ObjNames []string
	ObjArgs  []string
}

// OnSQLDrop implements spec.md §4.F's sql_drop hook: delete catalog rows
// matching a dropped object's textual address, and for dropped
// tables/views/materialized views, also delete all column rows keyed on
// the same (classid, objid).
func (c *Catalog) OnSQLDrop(ctx context.Context, dropped []DroppedObject) error {
	for _, d := range dropped {
		_, err := c.pool.Exec(ctx, `
			DELETE FROM ai.semantic_catalog_obj WHERE objtype = $1 AND objnames = $2 AND objargs = $3`,
			d.ObjType, d.ObjNames, d.ObjArgs,
		)
		if err != nil {
			return fmt.Errorf("deleting dropped object %s %v: %w", d.ObjType, d.ObjNames, err)
		}

		if isRelationType(d.ObjType) {
			_, err := c.pool.Exec(ctx, `
				DELETE FROM ai.semantic_catalog_obj WHERE classid = $1 AND objid = $2 AND objsubid <> 0`,
				d.ClassID, d.ObjID,
			)
			if err != nil {
				return fmt.Errorf("deleting columns of dropped relation %v: %w", d.ObjNames, err)
			}
		}
	}
	return nil
}

func isRelationType(objtype string) bool {
	switch objtype {
	case "table", "view", "materialized view", "foreign table":
		return true
	default:
		return false
	}
}

// TouchedObject is one row of pg_event_trigger_ddl_commands() as seen by
// a ddl_command_end event trigger. CommandTag drives the ALTER SCHEMA
// RENAME cascade; for every other command it is informational only.
type TouchedObject struct {
	ClassID    uint32
	ObjID      uint32
	ObjSubID   int
	CommandTag string // e.g. "CREATE TABLE", "ALTER TABLE", "ALTER SCHEMA"
}

// OnDDLCommandEnd implements spec.md §4.F's ddl_command_end hook: for
// each touched object, re-resolve its textual address and write it back
// if it changed (a rename). ALTER SCHEMA RENAME additionally cascades to
// every table, view, and function whose namespace is that schema, and to
// all of their columns.
func (c *Catalog) OnDDLCommandEnd(ctx context.Context, touched []TouchedObject) error {
	for _, t := range touched {
		if t.CommandTag == "ALTER SCHEMA" {
			if err := c.cascadeSchemaRename(ctx, t.ObjID); err != nil {
				return fmt.Errorf("cascading schema rename for namespace %d: %w", t.ObjID, err)
			}
			continue
		}
		if err := c.reresolve(ctx, t.ClassID, t.ObjID, t.ObjSubID); err != nil {
			return fmt.Errorf("re-resolving touched object (%d,%d,%d): %w", t.ClassID, t.ObjID, t.ObjSubID, err)
		}
	}
	return nil
}

// reresolve re-derives (objtype, objnames, objargs) for a single
// (classid, objid, objsubid) and writes it back if it changed. A row
// that has gone missing from the catalog (never described) is silently
// skipped — there is nothing to keep in sync.
func (c *Catalog) reresolve(ctx context.Context, classid, objid uint32, objsubid int) error {
	var currentType string
	var currentNames, currentArgs []string
	err := c.pool.QueryRow(ctx, `
		SELECT objtype, objnames, objargs FROM ai.semantic_catalog_obj
		WHERE classid = $1 AND objid = $2 AND objsubid = $3`,
		classid, objid, objsubid,
	).Scan(&currentType, &currentNames, &currentArgs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading catalog row: %w", err)
	}

	objtype, objnames, objargs, err := c.identifier.Identify(ctx, classid, objid, objsubid)
	if errors.Is(err, ErrObjectNotFound) {
		// The object was dropped within the same transaction as other DDL;
		// OnSQLDrop will have handled (or will handle) its removal.
		return nil
	}
	if err != nil {
		return err
	}
	if objtype == currentType && stringsEqual(objnames, currentNames) && stringsEqual(objargs, currentArgs) {
		return nil
	}

	_, err = c.pool.Exec(ctx, `
		UPDATE ai.semantic_catalog_obj SET objtype = $4, objnames = $5, objargs = $6
		WHERE classid = $1 AND objid = $2 AND objsubid = $3`,
		classid, objid, objsubid, objtype, objnames, objargs,
	)
	if err != nil {
		return fmt.Errorf("writing back resolved address: %w", err)
	}
	return nil
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// cascadeSchemaRename re-resolves every catalog row belonging to the
// given namespace oid — both relations (tables/views) and functions —
// plus all columns of any touched relation.
func (c *Catalog) cascadeSchemaRename(ctx context.Context, namespaceOID uint32) error {
	rows, err := c.pool.Query(ctx, `
		SELECT o.classid, o.objid, o.objsubid
		FROM ai.semantic_catalog_obj o
		WHERE (o.classid = 'pg_catalog.pg_class'::regclass::oid
		       AND EXISTS (SELECT 1 FROM pg_catalog.pg_class r WHERE r.oid = o.objid AND r.relnamespace = $1))
		   OR (o.classid = 'pg_catalog.pg_proc'::regclass::oid
		       AND EXISTS (SELECT 1 FROM pg_catalog.pg_proc p WHERE p.oid = o.objid AND p.pronamespace = $1))`,
		namespaceOID,
	)
	if err != nil {
		return fmt.Errorf("listing schema members: %w", err)
	}
	type touched struct {
		classid, objid uint32
		objsubid       int
	}
	var members []touched
	for rows.Next() {
		var m touched
		if err := rows.Scan(&m.classid, &m.objid, &m.objsubid); err != nil {
			rows.Close()
			return fmt.Errorf("scanning schema member: %w", err)
		}
		members = append(members, m)
	}
	closeErr := rows.Err()
	rows.Close()
	if closeErr != nil {
		return closeErr
	}

	for _, m := range members {
		if err := c.reresolve(ctx, m.classid, m.objid, m.objsubid); err != nil {
			return err
		}
		if m.objsubid == 0 {
			if err := c.reresolveColumns(ctx, m.classid, m.objid); err != nil {
				return err
			}
		}
	}
	return nil
}

// reresolveColumns re-resolves every column row (objsubid <> 0) of a
// single relation, used by the schema-rename cascade above.
func (c *Catalog) reresolveColumns(ctx context.Context, classid, objid uint32) error {
	rows, err := c.pool.Query(ctx, `
		SELECT objsubid FROM ai.semantic_catalog_obj WHERE classid = $1 AND objid = $2 AND objsubid <> 0`,
		classid, objid,
	)
	if err != nil {
		return fmt.Errorf("listing columns of relation %d: %w", objid, err)
	}
	var subids []int
	for rows.Next() {
		var sub int
		if err := rows.Scan(&sub); err != nil {
			rows.Close()
			return err
		}
		subids = append(subids, sub)
	}
	closeErr := rows.Err()
	rows.Close()
	if closeErr != nil {
		return closeErr
	}

	for _, sub := range subids {
		if err := c.reresolve(ctx, classid, objid, sub); err != nil {
			return err
		}
	}
	return nil
}

// PostRestore implements spec.md §4.F's post_restore(): after a
// dump/restore, oids are reassigned, so every catalog row's
// (classid, objid, objsubid) is re-derived from its still-valid textual
// address instead. View columns and materialized-view columns take a
// special path because pg_get_object_address does not support them
// directly: objnames is split into (relation, attname) and attnum is
// looked up from pg_attribute.
func (c *Catalog) PostRestore(ctx context.Context) error {
	rows, err := c.pool.Query(ctx, `SELECT id, objtype, objnames, objargs FROM ai.semantic_catalog_obj`)
	if err != nil {
		return fmt.Errorf("listing catalog rows: %w", err)
	}
	type row struct {
		id               int64
		objtype          string
		objnames, objargs []string
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.objtype, &r.objnames, &r.objargs); err != nil {
			rows.Close()
			return fmt.Errorf("scanning catalog row: %w", err)
		}
		all = append(all, r)
	}
	closeErr := rows.Err()
	rows.Close()
	if closeErr != nil {
		return closeErr
	}

	for _, r := range all {
		var classid, objid uint32
		var objsubid int
		var err error

		switch r.objtype {
		case "view column", "materialized view column":
			if len(r.objnames) < 2 {
				return fmt.Errorf("catalog row %d: %s with malformed objnames %v", r.id, r.objtype, r.objnames)
			}
			relation := r.objnames[:len(r.objnames)-1]
			attname := r.objnames[len(r.objnames)-1]
			relType := "view"
			if r.objtype == "materialized view column" {
				relType = "materialized view"
			}
			classid, objid, _, err = c.identifier.Address(ctx, relType, relation, nil)
			if err != nil {
				return fmt.Errorf("resolving relation for catalog row %d: %w", r.id, err)
			}
			err = c.pool.QueryRow(ctx, `
				SELECT attnum FROM pg_catalog.pg_attribute
				WHERE attrelid = $1 AND attname = $2 AND NOT attisdropped`,
				objid, attname,
			).Scan(&objsubid)
			if err != nil {
				return fmt.Errorf("resolving column %q of relation for catalog row %d: %w", attname, r.id, err)
			}
		default:
			classid, objid, objsubid, err = c.identifier.Address(ctx, r.objtype, r.objnames, r.objargs)
			if err != nil {
				if errors.Is(err, ErrObjectNotFound) {
					// The object no longer exists in the restored database;
					// leave the stale row for an operator to prune rather
					// than silently discarding a human-written description.
					continue
				}
				return fmt.Errorf("resolving address for catalog row %d: %w", r.id, err)
			}
		}

		_, err = c.pool.Exec(ctx, `
			UPDATE ai.semantic_catalog_obj SET classid = $2, objid = $3, objsubid = $4 WHERE id = $1`,
			r.id, classid, objid, objsubid,
		)
		if err != nil {
			return fmt.Errorf("writing back resolved oids for catalog row %d: %w", r.id, err)
		}
	}
	return nil
}
