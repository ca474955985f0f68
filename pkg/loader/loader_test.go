package loader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timescale/pgvectorizer/pkg/vconfig"
)

func rowCfg(column string) vconfig.LoadingConfig {
	return vconfig.LoadingConfig{Implementation: vconfig.LoadingRow, ColumnName: column}
}

func TestLoadRowText(t *testing.T) {
	l := New(nil, time.Minute)
	content, isBinary, err := l.Load(context.Background(), map[string]any{"body": "hello world"}, rowCfg("body"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
	assert.False(t, isBinary)
}

func TestLoadRowBytea(t *testing.T) {
	l := New(nil, time.Minute)
	content, isBinary, err := l.Load(context.Background(), map[string]any{"body": []byte{0x25, 0x50, 0x44, 0x46}}, rowCfg("body"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x25, 0x50, 0x44, 0x46}, content)
	assert.True(t, isBinary)
}

func TestLoadRowMissingColumnErrors(t *testing.T) {
	l := New(nil, time.Minute)
	_, _, err := l.Load(context.Background(), map[string]any{}, rowCfg("body"))
	assert.Error(t, err)
}

func TestLoadRowNullColumnErrors(t *testing.T) {
	l := New(nil, time.Minute)
	_, _, err := l.Load(context.Background(), map[string]any{"body": nil}, rowCfg("body"))
	assert.Error(t, err)
}

func TestLoadDocumentFetchesAndCaches(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/markdown")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("# doc"))
	}))
	defer server.Close()

	l := New(nil, time.Minute)
	cfg := vconfig.LoadingConfig{Implementation: vconfig.LoadingDocument, ColumnName: "source_url"}
	row := map[string]any{"source_url": server.URL + "/doc.md"}

	content, isBinary, err := l.Load(context.Background(), row, cfg)
	require.NoError(t, err)
	assert.Equal(t, "# doc", string(content))
	assert.False(t, isBinary)

	// Second load of the same URL must be served from cache, not a
	// second round trip.
	_, _, err = l.Load(context.Background(), row, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}

func TestLoadDocumentUsesFileLoaderColumnOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte{0x25, 0x50, 0x44, 0x46})
	}))
	defer server.Close()

	l := New(nil, time.Minute)
	cfg := vconfig.LoadingConfig{
		Implementation:   vconfig.LoadingDocument,
		ColumnName:       "title",
		FileLoaderColumn: "file_url",
	}
	row := map[string]any{"title": "Some Report", "file_url": server.URL + "/report.pdf"}

	content, isBinary, err := l.Load(context.Background(), row, cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x25, 0x50, 0x44, 0x46}, content)
	assert.True(t, isBinary)
}

func TestLoadDocumentRejectsDisallowedDomain(t *testing.T) {
	l := New([]string{"docs.example.com"}, time.Minute)
	cfg := vconfig.LoadingConfig{Implementation: vconfig.LoadingDocument, ColumnName: "source_url"}
	row := map[string]any{"source_url": "https://evil.example.net/payload"}

	_, _, err := l.Load(context.Background(), row, cfg)
	assert.Error(t, err)
}

func TestLoadDocumentRejectsNonHTTPScheme(t *testing.T) {
	l := New(nil, time.Minute)
	cfg := vconfig.LoadingConfig{Implementation: vconfig.LoadingDocument, ColumnName: "source_url"}
	row := map[string]any{"source_url": "file:///etc/passwd"}

	_, _, err := l.Load(context.Background(), row, cfg)
	assert.Error(t, err)
}

func TestLoadDocumentPropagatesNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	l := New(nil, time.Minute)
	cfg := vconfig.LoadingConfig{Implementation: vconfig.LoadingDocument, ColumnName: "source_url"}
	row := map[string]any{"source_url": server.URL + "/missing.md"}

	_, _, err := l.Load(context.Background(), row, cfg)
	assert.Error(t, err)
}

func TestLoadUnsupportedImplementationErrors(t *testing.T) {
	l := New(nil, time.Minute)
	_, _, err := l.Load(context.Background(), map[string]any{}, vconfig.LoadingConfig{Implementation: "bogus"})
	assert.Error(t, err)
}

func TestIsTextContentType(t *testing.T) {
	assert.True(t, isTextContentType(""))
	assert.True(t, isTextContentType("text/plain; charset=utf-8"))
	assert.True(t, isTextContentType("application/json"))
	assert.False(t, isTextContentType("application/pdf"))
	assert.False(t, isTextContentType("application/octet-stream"))
}
