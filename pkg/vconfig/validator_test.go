package vconfig

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func baseColumns() []ColumnInfo {
	return []ColumnInfo{
		{Name: "body", DataType: "text"},
		{Name: "pdf_bytes", DataType: "bytea"},
		{Name: "id", DataType: "int4"},
	}
}

func baseDocument() *Document {
	return &Document{
		Embedding:   EmbeddingConfig{ConfigType: "embedding", Implementation: EmbeddingOpenAI, Model: "text-embedding-3-small"},
		Chunking:    ChunkingConfig{ConfigType: "chunking", Implementation: ChunkingRecursiveCharacterTextSplitter, ChunkColumn: "body", ChunkSize: 800},
		Loading:     LoadingConfig{ConfigType: "loading", Implementation: LoadingRow, ColumnName: "body"},
		Parsing:     ParsingConfig{ConfigType: "parsing", Implementation: ParsingAuto},
		Formatting:  FormattingConfig{ConfigType: "formatting", Implementation: "python_template", Template: "$chunk"},
		Destination: DestinationConfig{ConfigType: "destination", Implementation: DestinationDefault},
		Scheduling:  SchedulingConfig{ConfigType: "scheduling", Implementation: SchedulingTimescaleDB},
		Indexing:    IndexingConfig{ConfigType: "indexing", Implementation: IndexingDiskANN},
		GrantTo:     GrantToConfig{ConfigType: "grant_to", Implementation: GrantToDefault},
	}
}

func TestValidateAllAcceptsWellFormedDocument(t *testing.T) {
	failures := NewValidator(baseDocument(), baseColumns(), nil).ValidateAll(context.Background())
	assert.Empty(t, failures)
}

func TestValidateRejectsUnknownImplementation(t *testing.T) {
	doc := baseDocument()
	doc.Embedding.Implementation = "made-up"
	failures := NewValidator(doc, baseColumns(), nil).ValidateAll(context.Background())
	assertHasKind(t, failures, KindUnknownImplementation)
}

func TestValidateRejectsMissingChunkColumn(t *testing.T) {
	doc := baseDocument()
	doc.Chunking.ChunkColumn = "does_not_exist"
	failures := NewValidator(doc, baseColumns(), nil).ValidateAll(context.Background())
	assertHasKind(t, failures, KindColumnNotFound)
}

func TestValidateRejectsByteaChunkColumn(t *testing.T) {
	doc := baseDocument()
	doc.Chunking.ChunkColumn = "pdf_bytes"
	failures := NewValidator(doc, baseColumns(), nil).ValidateAll(context.Background())
	assertHasKind(t, failures, KindColumnType)
}

func TestValidatePymupdfRequiresBytea(t *testing.T) {
	doc := baseDocument()
	doc.Parsing.Implementation = ParsingPymupdf
	doc.Loading.ColumnName = "body" // textual, not bytea
	failures := NewValidator(doc, baseColumns(), nil).ValidateAll(context.Background())
	assertHasKind(t, failures, KindPymupdfRequiresBytea)
}

func TestValidatePymupdfAcceptsBytea(t *testing.T) {
	doc := baseDocument()
	doc.Parsing.Implementation = ParsingPymupdf
	doc.Loading.ColumnName = "pdf_bytes"
	failures := NewValidator(doc, baseColumns(), nil).ValidateAll(context.Background())
	assertNoKind(t, failures, KindPymupdfRequiresBytea)
}

func TestValidateLoadingDocumentIncompatibleWithParsingNone(t *testing.T) {
	doc := baseDocument()
	doc.Loading.Implementation = LoadingDocument
	doc.Parsing.Implementation = ParsingNone
	failures := NewValidator(doc, baseColumns(), nil).ValidateAll(context.Background())
	assertHasKind(t, failures, KindLoadingParsingConflict)
}

func TestValidateVoyageInputType(t *testing.T) {
	doc := baseDocument()
	doc.Embedding.Implementation = EmbeddingVoyageAI
	doc.Embedding.InputType = "not-a-real-type"
	failures := NewValidator(doc, baseColumns(), nil).ValidateAll(context.Background())
	assertHasKind(t, failures, KindVoyageInputType)
}

func TestValidateVoyageInputTypeAcceptsEmpty(t *testing.T) {
	doc := baseDocument()
	doc.Embedding.Implementation = EmbeddingVoyageAI
	doc.Embedding.InputType = ""
	failures := NewValidator(doc, baseColumns(), nil).ValidateAll(context.Background())
	assertNoKind(t, failures, KindVoyageInputType)
}

func TestValidateSchedulingNoneRequiresIndexingNone(t *testing.T) {
	doc := baseDocument()
	doc.Scheduling.Implementation = SchedulingNone
	doc.Indexing.Implementation = IndexingHNSW
	failures := NewValidator(doc, baseColumns(), nil).ValidateAll(context.Background())
	assertHasKind(t, failures, KindSchedulingIndexing)
}

func TestValidateRejectsConfigTypeMismatch(t *testing.T) {
	doc := baseDocument()
	doc.Chunking.ConfigType = "embedding"
	failures := NewValidator(doc, baseColumns(), nil).ValidateAll(context.Background())
	assertHasKind(t, failures, KindConfigTypeMismatch)
}

func TestValidateAcceptsMatchingConfigTypes(t *testing.T) {
	failures := NewValidator(baseDocument(), baseColumns(), nil).ValidateAll(context.Background())
	assertNoKind(t, failures, KindConfigTypeMismatch)
}

func TestDocumentUnmarshalJSONRejectsUnknownTopLevelField(t *testing.T) {
	raw := []byte(`{
		"embedding": {"config_type": "embedding", "implementation": "openai", "model": "text-embedding-3-small"},
		"chunking": {"config_type": "chunking", "implementation": "recursive_character_text_splitter", "chunk_column": "body", "chunk_size": 800},
		"loading": {"config_type": "loading", "implementation": "row", "column_name": "body"},
		"parsing": {"config_type": "parsing", "implementation": "auto"},
		"formatting": {"config_type": "formatting", "implementation": "python_template", "template": "$chunk"},
		"destination": {"config_type": "destination", "implementation": "default"},
		"scheduling": {"config_type": "scheduling", "implementation": "timescaledb"},
		"indexing": {"config_type": "indexing", "implementation": "diskann"},
		"grant_to": {"config_type": "grant_to", "implementation": "default"},
		"extra_field": "not part of the document"
	}`)
	var doc Document
	err := json.Unmarshal(raw, &doc)
	assert.Error(t, err)
}

func TestDocumentUnmarshalJSONRejectsUnknownSubBlockField(t *testing.T) {
	raw := []byte(`{
		"embedding": {"config_type": "embedding", "implementation": "openai", "model": "text-embedding-3-small", "made_up_field": true},
		"chunking": {"config_type": "chunking", "implementation": "recursive_character_text_splitter", "chunk_column": "body", "chunk_size": 800},
		"loading": {"config_type": "loading", "implementation": "row", "column_name": "body"},
		"parsing": {"config_type": "parsing", "implementation": "auto"},
		"formatting": {"config_type": "formatting", "implementation": "python_template", "template": "$chunk"},
		"destination": {"config_type": "destination", "implementation": "default"},
		"scheduling": {"config_type": "scheduling", "implementation": "timescaledb"},
		"indexing": {"config_type": "indexing", "implementation": "diskann"},
		"grant_to": {"config_type": "grant_to", "implementation": "default"}
	}`)
	var doc Document
	err := json.Unmarshal(raw, &doc)
	assert.Error(t, err)
}

func TestDocumentUnmarshalJSONAcceptsWellFormedDocument(t *testing.T) {
	raw := []byte(`{
		"embedding": {"config_type": "embedding", "implementation": "openai", "model": "text-embedding-3-small"},
		"chunking": {"config_type": "chunking", "implementation": "recursive_character_text_splitter", "chunk_column": "body", "chunk_size": 800},
		"loading": {"config_type": "loading", "implementation": "row", "column_name": "body"},
		"parsing": {"config_type": "parsing", "implementation": "auto"},
		"formatting": {"config_type": "formatting", "implementation": "python_template", "template": "$chunk"},
		"destination": {"config_type": "destination", "implementation": "default"},
		"scheduling": {"config_type": "scheduling", "implementation": "timescaledb"},
		"indexing": {"config_type": "indexing", "implementation": "diskann"},
		"grant_to": {"config_type": "grant_to", "implementation": "default"}
	}`)
	var doc Document
	err := json.Unmarshal(raw, &doc)
	assert.NoError(t, err)
	assert.Equal(t, EmbeddingOpenAI, doc.Embedding.Implementation)
}

func TestValidateCollectsMultipleFailures(t *testing.T) {
	doc := baseDocument()
	doc.Embedding.Implementation = "bogus"
	doc.Chunking.ChunkColumn = "missing"
	failures := NewValidator(doc, baseColumns(), nil).ValidateAll(context.Background())
	assertHasKind(t, failures, KindUnknownImplementation)
	assertHasKind(t, failures, KindColumnNotFound)
}

type fakeTableChecker struct {
	exists map[string]bool
}

func (f fakeTableChecker) TableExists(_ context.Context, schema, table string) (bool, error) {
	return f.exists[schema+"."+table], nil
}

func TestValidateBatchAPITableCollision(t *testing.T) {
	doc := baseDocument()
	doc.Embedding.UseBatchAPI = true
	doc.Embedding.BatchTableName = "batch_queue"
	checker := fakeTableChecker{exists: map[string]bool{"ai.batch_queue": true}}
	failures := NewValidator(doc, baseColumns(), checker).ValidateAll(context.Background())
	assertHasKind(t, failures, KindBatchTableExists)
}

func assertHasKind(t *testing.T, failures []ValidationFailure, kind Kind) {
	t.Helper()
	for _, f := range failures {
		if f.Kind == kind {
			return
		}
	}
	t.Fatalf("expected a failure of kind %s, got %+v", kind, failures)
}

func assertNoKind(t *testing.T, failures []ValidationFailure, kind Kind) {
	t.Helper()
	for _, f := range failures {
		if f.Kind == kind {
			t.Fatalf("did not expect a failure of kind %s, got %+v", kind, f)
		}
	}
}
