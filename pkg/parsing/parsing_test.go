package parsing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timescale/pgvectorizer/pkg/vconfig"
)

func TestParseNonePassesTextThrough(t *testing.T) {
	p := New()
	text, err := p.Parse(context.Background(), []byte("raw text"), false, vconfig.ParsingConfig{Implementation: vconfig.ParsingNone})
	require.NoError(t, err)
	assert.Equal(t, "raw text", text)
}

func TestParseAutoDetectsPDF(t *testing.T) {
	pdf := buildPDF(t, `BT (Auto detected) Tj ET`, false)
	p := New()

	text, err := p.Parse(context.Background(), pdf, true, vconfig.ParsingConfig{Implementation: vconfig.ParsingAuto})
	require.NoError(t, err)
	assert.Contains(t, text, "Auto detected")
}

func TestParseAutoFallsBackToPlainText(t *testing.T) {
	p := New()
	text, err := p.Parse(context.Background(), []byte("just text"), false, vconfig.ParsingConfig{Implementation: vconfig.ParsingAuto})
	require.NoError(t, err)
	assert.Equal(t, "just text", text)
}

func TestParsePymupdfRequiresPDFBytes(t *testing.T) {
	pdf := buildPDF(t, `BT (PDF content) Tj ET`, false)
	p := New()

	text, err := p.Parse(context.Background(), pdf, true, vconfig.ParsingConfig{Implementation: vconfig.ParsingPymupdf})
	require.NoError(t, err)
	assert.Contains(t, text, "PDF content")
}

func TestParseUnsupportedImplementationErrors(t *testing.T) {
	p := New()
	_, err := p.Parse(context.Background(), []byte("x"), false, vconfig.ParsingConfig{Implementation: "bogus"})
	assert.Error(t, err)
}
