package vectorizer

import "github.com/timescale/pgvectorizer/pkg/vconfig"

// CreateVectorizerSpec is the caller-supplied request to create a new
// vectorizer: the source table to watch plus its full configuration
// document. Everything else (target/queue/view names, the source
// primary key) is derived by the provisioner unless explicitly
// overridden in Config.Destination.
type CreateVectorizerSpec struct {
	SourceSchema string           `json:"source_schema"`
	SourceTable  string           `json:"source_table"`
	Config       vconfig.Document `json:"config"`

	// EnqueueExisting, when true, copies every current source primary
	// key into the queue immediately after creation (spec.md §4.B
	// step 6), so existing rows get embedded without waiting for a
	// source write to trigger them.
	EnqueueExisting bool `json:"enqueue_existing,omitempty"`
}

// Warning is a non-fatal note surfaced alongside a successful
// CreateVectorizer call, e.g. "grant_to role does not exist, skipped"
// (spec.md §4.B: "grant to existing roles only, with a warning").
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
