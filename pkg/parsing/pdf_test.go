package parsing

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deflate(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err := w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func buildPDF(t *testing.T, streamContent string, compressed bool) []byte {
	t.Helper()
	var streamBytes []byte
	dict := "<< /Length 0 >>"
	if compressed {
		streamBytes = deflate(t, streamContent)
		dict = "<< /Filter /FlateDecode /Length 0 >>"
	} else {
		streamBytes = []byte(streamContent)
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("4 0 obj\n")
	buf.WriteString(dict)
	buf.WriteString("\nstream\n")
	buf.Write(streamBytes)
	buf.WriteString("\nendstream\nendobj\n")
	buf.WriteString("%%EOF")
	return buf.Bytes()
}

func TestExtractPDFTextUncompressedTj(t *testing.T) {
	pdf := buildPDF(t, `BT /F1 12 Tf (Hello World) Tj ET`, false)

	text, err := ExtractPDFText(pdf)
	require.NoError(t, err)
	assert.Contains(t, text, "Hello World")
}

func TestExtractPDFTextCompressedStream(t *testing.T) {
	pdf := buildPDF(t, `BT (Compressed text) Tj ET`, true)

	text, err := ExtractPDFText(pdf)
	require.NoError(t, err)
	assert.Contains(t, text, "Compressed text")
}

func TestExtractPDFTextTJArray(t *testing.T) {
	pdf := buildPDF(t, `BT [(Hello)-250(World)] TJ ET`, false)

	text, err := ExtractPDFText(pdf)
	require.NoError(t, err)
	assert.Contains(t, text, "Hello")
	assert.Contains(t, text, "World")
}

func TestExtractPDFTextEscapedParens(t *testing.T) {
	pdf := buildPDF(t, `BT (A \(note\) here) Tj ET`, false)

	text, err := ExtractPDFText(pdf)
	require.NoError(t, err)
	assert.Contains(t, text, "A (note) here")
}

func TestExtractPDFTextRejectsNonPDF(t *testing.T) {
	_, err := ExtractPDFText([]byte("not a pdf at all"))
	assert.Error(t, err)
}

func TestExtractPDFTextSkipsCorruptStream(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n4 0 obj\n<< /Filter /FlateDecode /Length 0 >>\nstream\n")
	buf.WriteString("not actually deflate data")
	buf.WriteString("\nendstream\nendobj\n%%EOF")

	text, err := ExtractPDFText(buf.Bytes())
	require.NoError(t, err)
	assert.Empty(t, text)
}
