// Package loader implements spec.md §4.D step 3's content-loading half:
// for loading=row, the source row's own column is the content; for
// loading=document, the column holds a URL and the referenced document is
// fetched over HTTP, with the same allowlist-and-cache discipline the
// runbook fetcher applies to externally hosted content.
package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/timescale/pgvectorizer/pkg/vconfig"
)

// Loader implements pkg/queue.SourceLoader.
type Loader struct {
	httpClient     *http.Client
	cache          *cache
	allowedDomains []string
}

// New builds a Loader. allowedDomains restricts loading=document fetches
// to those hosts; an empty slice allows any http(s) URL. cacheTTL bounds
// how long a fetched document is reused across claims that reference the
// same URL.
func New(allowedDomains []string, cacheTTL time.Duration) *Loader {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Loader{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		cache:          newCache(cacheTTL),
		allowedDomains: allowedDomains,
	}
}

// Load fetches the raw content to chunk for one claimed row.
func (l *Loader) Load(ctx context.Context, row map[string]any, cfg vconfig.LoadingConfig) ([]byte, bool, error) {
	switch cfg.Implementation {
	case vconfig.LoadingRow:
		return loadFromRow(row, cfg.ColumnName)
	case vconfig.LoadingDocument:
		return l.loadDocument(ctx, row, cfg)
	default:
		return nil, false, fmt.Errorf("unsupported loading implementation %q", cfg.Implementation)
	}
}

// loadFromRow reads the chunk content directly out of the claimed row: a
// text column is returned as-is, a bytea column is returned with
// isBinary=true so the parser knows not to treat it as UTF-8 text.
func loadFromRow(row map[string]any, columnName string) ([]byte, bool, error) {
	val, ok := row[columnName]
	if !ok {
		return nil, false, fmt.Errorf("loading column %q not present in source row", columnName)
	}
	switch v := val.(type) {
	case nil:
		return nil, false, fmt.Errorf("loading column %q is null", columnName)
	case string:
		return []byte(v), false, nil
	case []byte:
		return v, true, nil
	default:
		return nil, false, fmt.Errorf("loading column %q has unsupported type %T", columnName, val)
	}
}

// loadDocument resolves the URL to fetch — file_loader_column overrides
// column_name when both are configured, letting a table keep a
// human-readable title in one column and the fetch location in another —
// validates it against the allowlist, and serves it from cache before
// falling back to an HTTP GET.
func (l *Loader) loadDocument(ctx context.Context, row map[string]any, cfg vconfig.LoadingConfig) ([]byte, bool, error) {
	urlColumn := cfg.ColumnName
	if cfg.FileLoaderColumn != "" {
		urlColumn = cfg.FileLoaderColumn
	}

	val, ok := row[urlColumn]
	if !ok {
		return nil, false, fmt.Errorf("loading column %q not present in source row", urlColumn)
	}
	rawURL, ok := val.(string)
	if !ok {
		return nil, false, fmt.Errorf("loading column %q must be a text URL, got %T", urlColumn, val)
	}

	if err := validateURL(rawURL, l.allowedDomains); err != nil {
		return nil, false, err
	}

	if content, isBinary, ok := l.cache.get(rawURL); ok {
		return content, isBinary, nil
	}

	content, isBinary, err := l.fetch(ctx, rawURL)
	if err != nil {
		return nil, false, err
	}
	l.cache.set(rawURL, content, isBinary)
	return content, isBinary, nil
}

func (l *Loader) fetch(ctx context.Context, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create document request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("fetch document from %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("document fetch returned HTTP %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read document body: %w", err)
	}

	return body, !isTextContentType(resp.Header.Get("Content-Type")), nil
}

// isTextContentType reports whether a response's Content-Type indicates
// content the "auto" parser can treat as UTF-8 text outright, rather than
// bytes needing a binary-aware parser such as pymupdf.
func isTextContentType(contentType string) bool {
	if contentType == "" {
		// No header to go on — assume text, the common case for
		// markdown/plaintext documents served without one.
		return true
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/json", mediaType == "application/xml", mediaType == "application/yaml":
		return true
	default:
		return false
	}
}
