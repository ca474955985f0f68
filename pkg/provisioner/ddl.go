package provisioner

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/timescale/pgvectorizer/pkg/vectorizer"
)

// quote safely quotes a single identifier.
func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

// qualify safely quotes a schema-qualified identifier.
func qualify(schema, ident string) string {
	return pgx.Identifier{schema, ident}.Sanitize()
}

// pkColumnList renders the primary key columns as a comma-joined,
// individually quoted identifier list.
func pkColumnList(pk []vectorizer.PKColumn) string {
	names := make([]string, len(pk))
	for i, c := range pk {
		names[i] = quote(c.AttName)
	}
	return strings.Join(names, ", ")
}

// createTargetTableSQL builds the DDL for the target embedding table:
// the source primary key columns, chunk_seq, chunk, and the pgvector
// embedding column, unique on (source pk, chunk_seq) per spec.md §3.
func createTargetTableSQL(targetSchema, targetTable string, pk []vectorizer.PKColumn, dimensions int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", qualify(targetSchema, targetTable))
	b.WriteString("    embedding_uuid uuid NOT NULL DEFAULT gen_random_uuid(),\n")
	for _, c := range pk {
		fmt.Fprintf(&b, "    %s %s NOT NULL,\n", quote(c.AttName), c.AttType)
	}
	b.WriteString("    chunk_seq integer NOT NULL,\n")
	b.WriteString("    chunk text NOT NULL,\n")
	fmt.Fprintf(&b, "    embedding vector(%d) NOT NULL,\n", dimensions)
	fmt.Fprintf(&b, "    PRIMARY KEY (embedding_uuid),\n")
	fmt.Fprintf(&b, "    UNIQUE (%s, chunk_seq)\n", pkColumnList(pk))
	b.WriteString(")")
	return b.String()
}

// createQueueTableSQL builds the DDL for the queue table: exactly the
// source primary key columns plus queued_at (spec.md §4.B step 4).
func createQueueTableSQL(queueSchema, queueTable string, pk []vectorizer.PKColumn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", qualify(queueSchema, queueTable))
	for _, c := range pk {
		fmt.Fprintf(&b, "    %s %s NOT NULL,\n", quote(c.AttName), c.AttType)
	}
	b.WriteString("    queued_at timestamptz NOT NULL DEFAULT now()\n")
	b.WriteString(")")
	return b.String()
}

// createViewSQL builds the DDL for the view joining target and source on
// the primary key (spec.md §4.B step 4).
func createViewSQL(viewSchema, viewName, sourceSchema, sourceTable, targetSchema, targetTable string, pk []vectorizer.PKColumn) string {
	joinCond := make([]string, len(pk))
	for i, c := range pk {
		joinCond[i] = fmt.Sprintf("s.%s = t.%s", quote(c.AttName), quote(c.AttName))
	}
	// s.* carries every source column including the pk; only the
	// target's non-pk columns are added, to avoid duplicate column
	// names in the resulting view (the pk columns already exist on s).
	return fmt.Sprintf(
		"CREATE VIEW %s AS SELECT s.*, t.embedding_uuid, t.chunk_seq, t.chunk, t.embedding FROM %s s JOIN %s t ON %s",
		qualify(viewSchema, viewName),
		qualify(sourceSchema, sourceTable),
		qualify(targetSchema, targetTable),
		strings.Join(joinCond, " AND "),
	)
}

// createTriggerSQL builds the DDL for the single AFTER ROW trigger
// function and trigger that keep the queue synchronized with the source
// table (spec.md §4.C): INSERT/UPDATE write the pk into the queue,
// DELETE removes the matching target rows.
func createTriggerSQL(funcName, triggerName, queueSchema, queueTable, targetSchema, targetTable, sourceSchema, sourceTable string, pk []vectorizer.PKColumn) []string {
	insertCols := pkColumnList(pk)
	newValues := make([]string, len(pk))
	oldDeleteCond := make([]string, len(pk))
	for i, c := range pk {
		newValues[i] = "NEW." + quote(c.AttName)
		oldDeleteCond[i] = fmt.Sprintf("%s = OLD.%s", quote(c.AttName), quote(c.AttName))
	}

	fn := fmt.Sprintf(`CREATE FUNCTION %s() RETURNS trigger AS $$
BEGIN
    IF (TG_OP = 'DELETE') THEN
        DELETE FROM %s WHERE %s;
        RETURN OLD;
    ELSE
        INSERT INTO %s (%s) VALUES (%s);
        RETURN NEW;
    END IF;
END;
$$ LANGUAGE plpgsql`,
		qualify(sourceSchema, funcName),
		qualify(targetSchema, targetTable), strings.Join(oldDeleteCond, " AND "),
		qualify(queueSchema, queueTable), insertCols, strings.Join(newValues, ", "),
	)

	trg := fmt.Sprintf(
		"CREATE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION %s()",
		quote(triggerName),
		qualify(sourceSchema, sourceTable),
		qualify(sourceSchema, funcName),
	)

	return []string{fn, trg}
}

// dropTriggerSQL builds the DDL to drop a vectorizer's trigger and its
// backing function. Must run before dropping the queue table so no
// dangling trigger references remain (spec.md §4.C).
func dropTriggerSQL(funcName, triggerName, sourceSchema, sourceTable string) []string {
	return []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", quote(triggerName), qualify(sourceSchema, sourceTable)),
		fmt.Sprintf("DROP FUNCTION IF EXISTS %s()", qualify(sourceSchema, funcName)),
	}
}

// dropQueueTableSQL builds the DDL to drop the queue table.
func dropQueueTableSQL(queueSchema, queueTable string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", qualify(queueSchema, queueTable))
}

// enqueueExistingSQL builds the single statement that copies all current
// source primary keys into the queue (spec.md §4.B step 6).
func enqueueExistingSQL(queueSchema, queueTable, sourceSchema, sourceTable string, pk []vectorizer.PKColumn) string {
	cols := pkColumnList(pk)
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s",
		qualify(queueSchema, queueTable), cols, cols, qualify(sourceSchema, sourceTable),
	)
}

// grantSQL builds the grant statements for one role: SELECT on source,
// and SELECT/INSERT/UPDATE/DELETE on queue and target (spec.md §4.B step 5).
func grantSQL(role, sourceSchema, sourceTable, queueSchema, queueTable, targetSchema, targetTable string) []string {
	roleIdent := quote(role)
	return []string{
		fmt.Sprintf("GRANT SELECT ON %s TO %s", qualify(sourceSchema, sourceTable), roleIdent),
		fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON %s TO %s", qualify(queueSchema, queueTable), roleIdent),
		fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON %s TO %s", qualify(targetSchema, targetTable), roleIdent),
	}
}
