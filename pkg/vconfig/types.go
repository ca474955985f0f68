// Package vconfig validates the per-vectorizer configuration document
// supplied to create_vectorizer: the embedding, chunking, loading,
// parsing, formatting, destination, scheduling, indexing, and grant_to
// sub-blocks.
package vconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ColumnInfo describes a source table column as introspected from
// pg_catalog, used to check that configured column references exist and
// carry a compatible type.
type ColumnInfo struct {
	Name     string
	DataType string // simplified: text|varchar|char|bpchar|bytea|... (pg_catalog.format_type output)
}

// IsTextual reports whether the column's type is one of the textual
// types the spec allows for chunk_column / loading column_name.
func (c ColumnInfo) IsTextual() bool {
	switch c.DataType {
	case "text", "varchar", "char", "bpchar":
		return true
	default:
		return false
	}
}

// EmbeddingImplementation enumerates the fixed set of embedding provider
// bindings accepted by the embedding sub-block.
type EmbeddingImplementation string

const (
	EmbeddingOpenAI   EmbeddingImplementation = "openai"
	EmbeddingOllama   EmbeddingImplementation = "ollama"
	EmbeddingVoyageAI EmbeddingImplementation = "voyageai"
)

func (e EmbeddingImplementation) IsValid() bool {
	switch e {
	case EmbeddingOpenAI, EmbeddingOllama, EmbeddingVoyageAI:
		return true
	default:
		return false
	}
}

// ChunkingImplementation enumerates the fixed set of chunking strategies.
type ChunkingImplementation string

const (
	ChunkingCharacterTextSplitter          ChunkingImplementation = "character_text_splitter"
	ChunkingRecursiveCharacterTextSplitter ChunkingImplementation = "recursive_character_text_splitter"
)

func (c ChunkingImplementation) IsValid() bool {
	switch c {
	case ChunkingCharacterTextSplitter, ChunkingRecursiveCharacterTextSplitter:
		return true
	default:
		return false
	}
}

// LoadingImplementation enumerates how the raw content for chunking is
// obtained from the source row.
type LoadingImplementation string

const (
	LoadingRow      LoadingImplementation = "row"
	LoadingDocument LoadingImplementation = "document"
)

func (l LoadingImplementation) IsValid() bool {
	switch l {
	case LoadingRow, LoadingDocument:
		return true
	default:
		return false
	}
}

// ParsingImplementation enumerates how loaded content is converted to text.
type ParsingImplementation string

const (
	ParsingAuto    ParsingImplementation = "auto"
	ParsingNone    ParsingImplementation = "none"
	ParsingPymupdf ParsingImplementation = "pymupdf"
)

func (p ParsingImplementation) IsValid() bool {
	switch p {
	case ParsingAuto, ParsingNone, ParsingPymupdf:
		return true
	default:
		return false
	}
}

// DestinationImplementation enumerates where embeddings are written.
type DestinationImplementation string

const (
	DestinationDefault DestinationImplementation = "default"
	DestinationCustom  DestinationImplementation = "custom"
	DestinationSource  DestinationImplementation = "source"
)

func (d DestinationImplementation) IsValid() bool {
	switch d {
	case DestinationDefault, DestinationCustom, DestinationSource:
		return true
	default:
		return false
	}
}

// SchedulingImplementation enumerates how a vectorizer's pass is triggered.
type SchedulingImplementation string

const (
	SchedulingNone         SchedulingImplementation = "none"
	SchedulingTimescaleDB  SchedulingImplementation = "timescaledb"
)

func (s SchedulingImplementation) IsValid() bool {
	switch s {
	case SchedulingNone, SchedulingTimescaleDB:
		return true
	default:
		return false
	}
}

// IndexingImplementation enumerates the vector index kind created on the
// target table's embedding column.
type IndexingImplementation string

const (
	IndexingNone    IndexingImplementation = "none"
	IndexingDefault IndexingImplementation = "default"
	IndexingDiskANN IndexingImplementation = "diskann"
	IndexingHNSW    IndexingImplementation = "hnsw"
)

func (i IndexingImplementation) IsValid() bool {
	switch i {
	case IndexingNone, IndexingDefault, IndexingDiskANN, IndexingHNSW:
		return true
	default:
		return false
	}
}

// GrantToImplementation enumerates how read grants on generated objects
// are assigned.
type GrantToImplementation string

const (
	GrantToDefault   GrantToImplementation = "default"
	GrantToExplicit  GrantToImplementation = "explicit"
	GrantToTimescale GrantToImplementation = "timescale"
)

func (g GrantToImplementation) IsValid() bool {
	switch g {
	case GrantToDefault, GrantToExplicit, GrantToTimescale:
		return true
	default:
		return false
	}
}

// EmbeddingConfig is the embedding sub-block.
type EmbeddingConfig struct {
	ConfigType     string                  `json:"config_type" yaml:"config_type"`
	Implementation EmbeddingImplementation `json:"implementation" yaml:"implementation"`
	Model          string                  `json:"model" yaml:"model"`
	Dimensions     int                     `json:"dimensions" yaml:"dimensions"`

	// openai-specific
	UseBatchAPI    bool   `json:"use_batch_api,omitempty" yaml:"use_batch_api,omitempty"`
	BatchTableName string `json:"batch_table_name,omitempty" yaml:"batch_table_name,omitempty"`

	// voyageai-specific
	InputType string `json:"input_type,omitempty" yaml:"input_type,omitempty"` // query|document|""

	APIKeyName string `json:"api_key_name,omitempty" yaml:"api_key_name,omitempty"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// ChunkingConfig is the chunking sub-block.
type ChunkingConfig struct {
	ConfigType     string                 `json:"config_type" yaml:"config_type"`
	Implementation ChunkingImplementation `json:"implementation" yaml:"implementation"`
	ChunkColumn    string                 `json:"chunk_column" yaml:"chunk_column"`
	ChunkSize      int                    `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap   int                    `json:"chunk_overlap" yaml:"chunk_overlap"`
	Separator      string                 `json:"separator,omitempty" yaml:"separator,omitempty"`
	Separators     []string               `json:"separators,omitempty" yaml:"separators,omitempty"`
	IsSeparatorRegex bool                 `json:"is_separator_regex,omitempty" yaml:"is_separator_regex,omitempty"`
}

// LoadingConfig is the loading sub-block.
type LoadingConfig struct {
	ConfigType     string                 `json:"config_type" yaml:"config_type"`
	Implementation LoadingImplementation  `json:"implementation" yaml:"implementation"`
	ColumnName     string                 `json:"column_name" yaml:"column_name"`
	FileLoaderColumn string               `json:"file_loader_column,omitempty" yaml:"file_loader_column,omitempty"`
	RetrieveComments bool                 `json:"retrieve_comments,omitempty" yaml:"retrieve_comments,omitempty"`
}

// ParsingConfig is the parsing sub-block.
type ParsingConfig struct {
	ConfigType     string                `json:"config_type" yaml:"config_type"`
	Implementation ParsingImplementation `json:"implementation" yaml:"implementation"`
}

// FormattingConfig is the formatting sub-block: a template string with
// $ placeholders substituted per chunk (e.g. "$title\n\n$chunk").
type FormattingConfig struct {
	ConfigType     string `json:"config_type" yaml:"config_type"`
	Implementation string `json:"implementation" yaml:"implementation"` // python_template
	Template       string `json:"template" yaml:"template"`
}

// DestinationConfig is the destination sub-block.
type DestinationConfig struct {
	ConfigType     string                     `json:"config_type" yaml:"config_type"`
	Implementation DestinationImplementation `json:"implementation" yaml:"implementation"`
	TargetSchema   string                     `json:"target_schema,omitempty" yaml:"target_schema,omitempty"`
	TargetTable    string                     `json:"target_table,omitempty" yaml:"target_table,omitempty"`
	ViewSchema     string                     `json:"view_schema,omitempty" yaml:"view_schema,omitempty"`
	ViewName       string                     `json:"view_name,omitempty" yaml:"view_name,omitempty"`
	EmbeddingColumn string                    `json:"embedding_column,omitempty" yaml:"embedding_column,omitempty"`
}

// SchedulingConfig is the scheduling sub-block.
type SchedulingConfig struct {
	ConfigType       string                   `json:"config_type" yaml:"config_type"`
	Implementation   SchedulingImplementation `json:"implementation" yaml:"implementation"`
	ScheduleInterval string                   `json:"schedule_interval,omitempty" yaml:"schedule_interval,omitempty"`
	// JobID is populated by the provisioner after registering a
	// scheduling=timescaledb job and stored back into the config
	// (spec.md §4.B step 7: "store its id back into the config").
	JobID int64 `json:"job_id,omitempty" yaml:"job_id,omitempty"`
}

// IndexingConfig is the indexing sub-block.
type IndexingConfig struct {
	ConfigType     string                  `json:"config_type" yaml:"config_type"`
	Implementation IndexingImplementation `json:"implementation" yaml:"implementation"`
	MinRows        int                     `json:"min_rows,omitempty" yaml:"min_rows,omitempty"`
}

// GrantToConfig is the grant_to sub-block.
type GrantToConfig struct {
	ConfigType     string                `json:"config_type" yaml:"config_type"`
	Implementation GrantToImplementation `json:"implementation" yaml:"implementation"`
	Roles          []string              `json:"roles,omitempty" yaml:"roles,omitempty"`
}

// Document is the full per-vectorizer configuration document passed to
// create_vectorizer, gathering every sub-block.
type Document struct {
	Embedding   EmbeddingConfig   `json:"embedding" yaml:"embedding"`
	Chunking    ChunkingConfig    `json:"chunking" yaml:"chunking"`
	Loading     LoadingConfig     `json:"loading" yaml:"loading"`
	Parsing     ParsingConfig     `json:"parsing" yaml:"parsing"`
	Formatting  FormattingConfig  `json:"formatting" yaml:"formatting"`
	Destination DestinationConfig `json:"destination" yaml:"destination"`
	Scheduling  SchedulingConfig  `json:"scheduling" yaml:"scheduling"`
	Indexing    IndexingConfig    `json:"indexing" yaml:"indexing"`
	GrantTo     GrantToConfig     `json:"grant_to" yaml:"grant_to"`
}

// expectedConfigTypes maps each sub-block's Document field name to the
// config_type discriminator it must carry — spec.md §4.A: "config_type
// matches the expected slot". A document built with, say, a chunking
// block whose config_type reads "embedding" (copy-pasted from the wrong
// slot) is rejected even though every other field validates cleanly.
var expectedConfigTypes = map[string]string{
	"embedding":   "embedding",
	"chunking":    "chunking",
	"loading":     "loading",
	"parsing":     "parsing",
	"formatting":  "formatting",
	"destination": "destination",
	"scheduling":  "scheduling",
	"indexing":    "indexing",
	"grant_to":    "grant_to",
}

// document is Document's field layout without its methods, so
// UnmarshalJSON can decode into it without recursing into itself.
type document Document

// UnmarshalJSON rejects unknown fields anywhere in the document,
// including inside each sub-block (json.Decoder.DisallowUnknownFields
// recurses into nested structs automatically). spec.md §6: "unknown
// fields are rejected at validation" — a misspelled key like
// "chunk_collumn" or a field copied from a different implementation's
// shape must fail loudly rather than silently zero-value.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decoding config document: %w", err)
	}
	*d = Document(doc)
	return nil
}
