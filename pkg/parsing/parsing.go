// Package parsing implements spec.md §4.D step 3's content-to-text half:
// converting the bytes a loader fetched into the plain text a chunker can
// split. "none" passes text through unchanged; "pymupdf" extracts text
// from PDF bytes; "auto" sniffs the content and picks one of the two.
package parsing

import (
	"bytes"
	"context"
	"fmt"

	"github.com/timescale/pgvectorizer/pkg/vconfig"
)

// Parser implements pkg/queue.ContentParser.
type Parser struct{}

// New builds a Parser. It carries no state — every parsing mode is a pure
// function of its input bytes.
func New() *Parser {
	return &Parser{}
}

// Parse converts loaded content to plain text per the configured parsing
// implementation.
func (p *Parser) Parse(_ context.Context, content []byte, isBinary bool, cfg vconfig.ParsingConfig) (string, error) {
	_ = isBinary
	switch cfg.Implementation {
	case vconfig.ParsingNone:
		return string(content), nil
	case vconfig.ParsingPymupdf:
		return ExtractPDFText(content)
	case vconfig.ParsingAuto:
		if looksLikePDF(content) {
			return ExtractPDFText(content)
		}
		return string(content), nil
	default:
		return "", fmt.Errorf("unsupported parsing implementation %q", cfg.Implementation)
	}
}

// looksLikePDF sniffs the standard "%PDF-" magic bytes at the start of a
// PDF file. This is the sniff "auto" parsing uses instead of the
// loader-reported content type, since pkg/queue.ContentParser only
// receives raw bytes.
func looksLikePDF(content []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(content, "\x00\xef\xbb\xbf"), []byte("%PDF-"))
}
