package provisioner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/timescale/pgvectorizer/pkg/vectorizer"
)

func samplePK() []vectorizer.PKColumn {
	return []vectorizer.PKColumn{{AttNum: 1, AttName: "id", AttType: "bigint", PKNum: 1}}
}

func TestCreateTargetTableSQLQuotesIdentifiers(t *testing.T) {
	sql := createTargetTableSQL("public", "weird table", samplePK(), 1536)
	assert.Contains(t, sql, `"public"."weird table"`)
	assert.Contains(t, sql, "vector(1536)")
	assert.Contains(t, sql, `UNIQUE ("id", chunk_seq)`)
}

func TestCreateQueueTableSQL(t *testing.T) {
	sql := createQueueTableSQL("ai", "_vectorizer_q_1", samplePK())
	assert.Contains(t, sql, `CREATE TABLE "ai"."_vectorizer_q_1"`)
	assert.Contains(t, sql, "queued_at timestamptz NOT NULL DEFAULT now()")
}

func TestCreateTriggerSQLHandlesDeleteAndUpsert(t *testing.T) {
	stmts := createTriggerSQL("trg_fn", "trg", "ai", "q1", "public", "target1", "public", "articles", samplePK())
	assert.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "TG_OP = 'DELETE'")
	assert.Contains(t, stmts[0], "INSERT INTO")
	assert.Contains(t, stmts[1], "CREATE TRIGGER")
	assert.Contains(t, stmts[1], "AFTER INSERT OR UPDATE OR DELETE")
}

func TestDropTriggerSQLOrder(t *testing.T) {
	stmts := dropTriggerSQL("trg_fn", "trg", "public", "articles")
	assert.Contains(t, stmts[0], "DROP TRIGGER IF EXISTS")
	assert.Contains(t, stmts[1], "DROP FUNCTION IF EXISTS")
}

func TestCreateViewSQLAvoidsDuplicateColumns(t *testing.T) {
	sql := createViewSQL("public", "articles_embedding", "public", "articles", "public", "articles_embedding_store", samplePK())
	assert.Contains(t, sql, "s.*")
	assert.Contains(t, sql, "t.embedding_uuid")
	assert.NotContains(t, sql, "t.*")
}

func TestDeriveNamesUsesDestinationOverride(t *testing.T) {
	n := deriveNames(7, "public", "articles", "custom_schema", "custom_target")
	assert.Equal(t, "custom_schema", n.TargetSchema)
	assert.Equal(t, "custom_target", n.TargetTable)
	assert.Equal(t, "_vectorizer_q_7", n.QueueTable)
}

func TestDeriveNamesDefaultsTargetToSourceSchema(t *testing.T) {
	n := deriveNames(3, "public", "articles", "", "")
	assert.Equal(t, "public", n.TargetSchema)
	assert.Equal(t, "articles_embedding_store", n.TargetTable)
	assert.Equal(t, "articles_embedding", n.ViewName)
}
