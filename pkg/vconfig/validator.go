package vconfig

import "context"

// TableExistsChecker reports whether a table already exists, used to
// reject openai batch-mode configs that would collide with an existing
// table. Implemented by pkg/vdb against pg_catalog.
type TableExistsChecker interface {
	TableExists(ctx context.Context, schema, table string) (bool, error)
}

// Validator validates a configuration Document against the source
// column set and, for rules that need to consult the database, an
// injected TableExistsChecker. It collects every failure instead of
// stopping at the first one, mirroring the teacher's ValidateAll shape
// but gathering rather than fail-fast, since create_vectorizer must
// surface every problem kind to the caller at once.
type Validator struct {
	doc     *Document
	columns map[string]ColumnInfo
	tables  TableExistsChecker
}

// NewValidator builds a Validator for doc against the given source
// columns (keyed by column name) and an optional table-existence checker
// (nil disables the batch-table-collision rule, e.g. in offline tests).
func NewValidator(doc *Document, columns []ColumnInfo, tables TableExistsChecker) *Validator {
	byName := make(map[string]ColumnInfo, len(columns))
	for _, c := range columns {
		byName[c.Name] = c
	}
	return &Validator{doc: doc, columns: byName, tables: tables}
}

// ValidateAll runs every validation rule and returns all failures found.
// A nil/empty return means the document is valid.
func (v *Validator) ValidateAll(ctx context.Context) []ValidationFailure {
	var failures []ValidationFailure

	failures = append(failures, v.validateConfigTypes()...)
	failures = append(failures, v.validateImplementations()...)
	failures = append(failures, v.validateChunkColumn()...)
	failures = append(failures, v.validateLoadingColumn()...)
	failures = append(failures, v.validatePymupdfRequiresBytea()...)
	failures = append(failures, v.validateLoadingParsingCompat()...)
	failures = append(failures, v.validateVoyageInputType()...)
	failures = append(failures, v.validateSchedulingIndexingPair()...)
	failures = append(failures, v.validateBatchAPITables(ctx)...)

	return failures
}

// validateConfigTypes checks that every sub-block's config_type
// discriminator matches the slot it was placed in, catching a block
// copy-pasted into the wrong position (spec.md §4.A).
func (v *Validator) validateConfigTypes() []ValidationFailure {
	var failures []ValidationFailure

	check := func(block, configType string) {
		want := expectedConfigTypes[block]
		if configType != want {
			failures = append(failures, newFailure(KindConfigTypeMismatch, block, "config_type",
				"config_type must be %q, got %q", want, configType))
		}
	}

	check("embedding", v.doc.Embedding.ConfigType)
	check("chunking", v.doc.Chunking.ConfigType)
	check("loading", v.doc.Loading.ConfigType)
	check("parsing", v.doc.Parsing.ConfigType)
	check("formatting", v.doc.Formatting.ConfigType)
	check("destination", v.doc.Destination.ConfigType)
	check("scheduling", v.doc.Scheduling.ConfigType)
	check("indexing", v.doc.Indexing.ConfigType)
	check("grant_to", v.doc.GrantTo.ConfigType)

	return failures
}

// validateImplementations checks that every sub-block's implementation
// value is a member of its fixed allowed set.
func (v *Validator) validateImplementations() []ValidationFailure {
	var failures []ValidationFailure

	if !v.doc.Embedding.Implementation.IsValid() {
		failures = append(failures, newFailure(KindUnknownImplementation, "embedding", "implementation",
			"unknown implementation %q", v.doc.Embedding.Implementation))
	}
	if !v.doc.Chunking.Implementation.IsValid() {
		failures = append(failures, newFailure(KindUnknownImplementation, "chunking", "implementation",
			"unknown implementation %q", v.doc.Chunking.Implementation))
	}
	if !v.doc.Loading.Implementation.IsValid() {
		failures = append(failures, newFailure(KindUnknownImplementation, "loading", "implementation",
			"unknown implementation %q", v.doc.Loading.Implementation))
	}
	if !v.doc.Parsing.Implementation.IsValid() {
		failures = append(failures, newFailure(KindUnknownImplementation, "parsing", "implementation",
			"unknown implementation %q", v.doc.Parsing.Implementation))
	}
	if !v.doc.Destination.Implementation.IsValid() {
		failures = append(failures, newFailure(KindUnknownImplementation, "destination", "implementation",
			"unknown implementation %q", v.doc.Destination.Implementation))
	}
	if !v.doc.Scheduling.Implementation.IsValid() {
		failures = append(failures, newFailure(KindUnknownImplementation, "scheduling", "implementation",
			"unknown implementation %q", v.doc.Scheduling.Implementation))
	}
	if !v.doc.Indexing.Implementation.IsValid() {
		failures = append(failures, newFailure(KindUnknownImplementation, "indexing", "implementation",
			"unknown implementation %q", v.doc.Indexing.Implementation))
	}
	if !v.doc.GrantTo.Implementation.IsValid() {
		failures = append(failures, newFailure(KindUnknownImplementation, "grant_to", "implementation",
			"unknown implementation %q", v.doc.GrantTo.Implementation))
	}

	return failures
}

// validateChunkColumn checks chunking.chunk_column exists on the source
// and has a textual type, forbidding bytea outright (bytea is only ever
// valid as the *loading* column feeding a pymupdf parser, not as the
// column chunking reads directly).
func (v *Validator) validateChunkColumn() []ValidationFailure {
	col, ok := v.columns[v.doc.Chunking.ChunkColumn]
	if !ok {
		return []ValidationFailure{newFailure(KindColumnNotFound, "chunking", "chunk_column",
			"column %q does not exist on source table", v.doc.Chunking.ChunkColumn)}
	}
	if col.DataType == "bytea" {
		return []ValidationFailure{newFailure(KindColumnType, "chunking", "chunk_column",
			"chunk_column %q must be a textual type, got bytea", col.Name)}
	}
	if !col.IsTextual() {
		return []ValidationFailure{newFailure(KindColumnType, "chunking", "chunk_column",
			"chunk_column %q must be a textual type, got %s", col.Name, col.DataType)}
	}
	return nil
}

// validateLoadingColumn checks loading.column_name exists and, for
// parsing=none, is not bytea (bytea content needs a parser to become text).
func (v *Validator) validateLoadingColumn() []ValidationFailure {
	if v.doc.Loading.ColumnName == "" {
		return nil
	}
	col, ok := v.columns[v.doc.Loading.ColumnName]
	if !ok {
		return []ValidationFailure{newFailure(KindColumnNotFound, "loading", "column_name",
			"column %q does not exist on source table", v.doc.Loading.ColumnName)}
	}
	if v.doc.Parsing.Implementation == ParsingNone && col.DataType == "bytea" {
		return []ValidationFailure{newFailure(KindColumnType, "loading", "column_name",
			"column %q is bytea but parsing=none cannot decode binary content", col.Name)}
	}
	if v.doc.Parsing.Implementation == ParsingNone && !col.IsTextual() {
		return []ValidationFailure{newFailure(KindColumnType, "loading", "column_name",
			"column %q must be a textual type for parsing=none, got %s", col.Name, col.DataType)}
	}
	return nil
}

// validatePymupdfRequiresBytea enforces that parsing=pymupdf is only
// paired with a bytea loading column (pymupdf parses raw PDF bytes).
func (v *Validator) validatePymupdfRequiresBytea() []ValidationFailure {
	if v.doc.Parsing.Implementation != ParsingPymupdf {
		return nil
	}
	col, ok := v.columns[v.doc.Loading.ColumnName]
	if !ok {
		return nil // already reported by validateLoadingColumn
	}
	if col.DataType != "bytea" {
		return []ValidationFailure{newFailure(KindPymupdfRequiresBytea, "parsing", "implementation",
			"parsing=pymupdf requires the loading column to be bytea, got %s", col.DataType)}
	}
	return nil
}

// validateLoadingParsingCompat enforces loading=document incompatible
// with parsing=none: a document load implies bytes that must be parsed.
func (v *Validator) validateLoadingParsingCompat() []ValidationFailure {
	if v.doc.Loading.Implementation == LoadingDocument && v.doc.Parsing.Implementation == ParsingNone {
		return []ValidationFailure{newFailure(KindLoadingParsingConflict, "loading", "implementation",
			"loading=document is incompatible with parsing=none")}
	}
	return nil
}

// validateVoyageInputType enforces voyageai.input_type ∈ {query, document}
// when set.
func (v *Validator) validateVoyageInputType() []ValidationFailure {
	if v.doc.Embedding.Implementation != EmbeddingVoyageAI {
		return nil
	}
	switch v.doc.Embedding.InputType {
	case "", "query", "document":
		return nil
	default:
		return []ValidationFailure{newFailure(KindVoyageInputType, "embedding", "input_type",
			"input_type must be %q, %q, or absent, got %q", "query", "document", v.doc.Embedding.InputType)}
	}
}

// validateSchedulingIndexingPair enforces "no automatic indexing without
// a scheduler": scheduling=none requires indexing=none.
func (v *Validator) validateSchedulingIndexingPair() []ValidationFailure {
	if v.doc.Scheduling.Implementation == SchedulingNone && v.doc.Indexing.Implementation != IndexingNone {
		return []ValidationFailure{newFailure(KindSchedulingIndexing, "scheduling", "implementation",
			"scheduling=none requires indexing=none, got indexing=%s", v.doc.Indexing.Implementation)}
	}
	return nil
}

// validateBatchAPITables enforces that openai use_batch_api=true names a
// batch table that does not already exist.
func (v *Validator) validateBatchAPITables(ctx context.Context) []ValidationFailure {
	if v.doc.Embedding.Implementation != EmbeddingOpenAI || !v.doc.Embedding.UseBatchAPI {
		return nil
	}
	if v.tables == nil || v.doc.Embedding.BatchTableName == "" {
		return nil
	}
	exists, err := v.tables.TableExists(ctx, "ai", v.doc.Embedding.BatchTableName)
	if err != nil {
		return []ValidationFailure{newFailure(KindBatchTableExists, "embedding", "batch_table_name",
			"could not check for existing batch table: %v", err)}
	}
	if exists {
		return []ValidationFailure{newFailure(KindBatchTableExists, "embedding", "batch_table_name",
			"batch table %q already exists", v.doc.Embedding.BatchTableName)}
	}
	return nil
}
