// Package formatting implements spec.md §4.D step 3's final rendering
// step: substituting "$chunk" and the source row's own columns into the
// vectorizer's configured template to produce the text that actually gets
// embedded.
package formatting

import (
	"fmt"
	"os"

	"github.com/timescale/pgvectorizer/pkg/queue"
	"github.com/timescale/pgvectorizer/pkg/vconfig"
)

// chunkPlaceholder is the one substitution variable formatting always
// supplies, independent of which row columns are configured for
// substitution; every other variable in the template is a source row
// column.
const chunkPlaceholder = "chunk"

// Formatter implements pkg/queue.Formatter.
type Formatter struct{}

// New builds a Formatter. It carries no state — substitution is a pure
// function of the chunk, the source row, and the template.
func New() *Formatter {
	return &Formatter{}
}

// Format renders a chunk's template, using the same $name / ${name}
// shell-style substitution syntax the control plane already uses for
// environment variable expansion in configuration files (see
// pkg/config.ExpandEnv), generalized here to pull values from the source
// row and the chunk itself instead of the process environment.
func (f *Formatter) Format(chunk queue.Chunk, row map[string]any, cfg vconfig.FormattingConfig) (string, error) {
	if cfg.Template == "" {
		return chunk.Text, nil
	}

	var missing error
	rendered := os.Expand(cfg.Template, func(name string) string {
		if name == chunkPlaceholder {
			return chunk.Text
		}
		val, ok := row[name]
		if !ok {
			if missing == nil {
				missing = fmt.Errorf("formatting template references unknown column %q", name)
			}
			return ""
		}
		return stringify(val)
	})
	if missing != nil {
		return "", missing
	}
	return rendered, nil
}

func stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
