package parsing

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ExtractPDFText pulls the visible text out of a PDF file's content
// streams. No library in the retrieval pack provides PDF parsing, so this
// walks the small subset of the PDF object model needed to recover text:
// find each content stream, Flate-decompress it if compressed, and read
// off the operands of the Tj/TJ text-showing operators. Embedded fonts,
// vector graphics, and PDF structural metadata are ignored — this is a
// text extractor, not a renderer.
func ExtractPDFText(data []byte) (string, error) {
	if !bytes.Contains(data, []byte("%PDF-")) {
		return "", fmt.Errorf("not a PDF file")
	}

	var out strings.Builder
	for _, stream := range findStreams(data) {
		text := extractTextOperators(stream)
		if text == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(text)
	}
	return out.String(), nil
}

var streamPattern = regexp.MustCompile(`(?s)(<<.*?>>)\s*stream\r?\n(.*?)\r?\nendstream`)

// findStreams returns the decoded bytes of every content stream in the
// file, decompressing ones declared FlateDecode and passing the rest
// through unchanged.
func findStreams(data []byte) [][]byte {
	matches := streamPattern.FindAllSubmatch(data, -1)
	streams := make([][]byte, 0, len(matches))
	for _, m := range matches {
		dict, raw := m[1], m[2]
		if bytes.Contains(dict, []byte("/FlateDecode")) {
			decoded, err := inflate(raw)
			if err != nil {
				// Corrupt or truncated stream: skip it rather than fail the
				// whole document, since other streams may still decode.
				continue
			}
			streams = append(streams, decoded)
			continue
		}
		streams = append(streams, raw)
	}
	return streams
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// tjPattern and tjaPattern match the two PDF text-showing operators this
// extractor understands: "(literal string) Tj" and
// "[(str1) -120 (str2) ...] TJ"; tjaString picks the strings out of a TJ array.
var (
	tjPattern  = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)\s*Tj`)
	tjaPattern = regexp.MustCompile(`\[((?:[^\[\]]|\\.)*)\]\s*TJ`)
	tjaString  = regexp.MustCompile(`\(((?:[^()\\]|\\.)*)\)`)
)

// extractTextOperators scans a decoded content stream for Tj/TJ operator
// invocations and returns their concatenated, unescaped string operands.
func extractTextOperators(stream []byte) string {
	var out strings.Builder
	for _, m := range tjPattern.FindAllSubmatch(stream, -1) {
		writeUnescaped(&out, m[1])
		out.WriteByte(' ')
	}
	for _, m := range tjaPattern.FindAllSubmatch(stream, -1) {
		for _, s := range tjaString.FindAllSubmatch(m[1], -1) {
			writeUnescaped(&out, s[1])
		}
		out.WriteByte('\n')
	}
	return strings.TrimSpace(out.String())
}

// writeUnescaped resolves the PDF string-literal escapes this extractor
// cares about (parens and backslash) and writes the result.
func writeUnescaped(out *strings.Builder, raw []byte) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				out.WriteByte('\n')
			case 'r':
				out.WriteByte('\r')
			case 't':
				out.WriteByte('\t')
			case '(', ')', '\\':
				out.WriteByte(raw[i])
			default:
				out.WriteByte(raw[i])
			}
			continue
		}
		out.WriteByte(raw[i])
	}
}
