package vconfig

import "fmt"

// Kind identifies which validation rule a ValidationFailure came from, so
// callers of create_vectorizer can report failures by kind rather than
// aborting at the first one (spec requirement: "failures are reported by
// kind, not aborted silently").
type Kind string

const (
	KindRootShape            Kind = "root_shape"
	KindUnknownImplementation Kind = "unknown_implementation"
	KindColumnNotFound       Kind = "column_not_found"
	KindColumnType           Kind = "column_type"
	KindPymupdfRequiresBytea Kind = "pymupdf_requires_bytea"
	KindLoadingParsingConflict Kind = "loading_parsing_conflict"
	KindBatchTableExists     Kind = "batch_table_exists"
	KindVoyageInputType      Kind = "voyage_input_type"
	KindSchedulingIndexing   Kind = "scheduling_indexing"
	KindConfigTypeMismatch   Kind = "config_type_mismatch"
)

// ValidationFailure is a single validation failure tagged with the rule
// that produced it and the sub-block it applies to.
type ValidationFailure struct {
	Kind    Kind
	Block   string // "embedding", "chunking", "loading", ...
	Field   string
	Message string
}

func (f ValidationFailure) Error() string {
	if f.Field != "" {
		return fmt.Sprintf("%s.%s: %s", f.Block, f.Field, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Block, f.Message)
}

func newFailure(kind Kind, block, field, format string, args ...any) ValidationFailure {
	return ValidationFailure{
		Kind:    kind,
		Block:   block,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}
