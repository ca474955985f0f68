package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/timescale/pgvectorizer/pkg/sqlident"
	"github.com/timescale/pgvectorizer/pkg/vectorizer"
)

// Pool is the subset of pgxpool.Pool a pass needs to run its claim
// transaction.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Providers bundles the capability seams a pass calls out to. Each field
// is injected so a pass can be exercised with fakes.
type Providers struct {
	Loader    SourceLoader
	Parser    ContentParser
	Chunker   Chunker
	Formatter Formatter
	Embedder  EmbeddingProvider
}

// Pass runs one claim→embed→upsert cycle over a single vectorizer's
// queue, implementing spec.md §4.D steps 1–7 (step 8, progress
// reporting, is the caller's responsibility — it happens outside the
// claim transaction per the spec).
type Pass struct {
	pool             Pool
	v                *vectorizer.Vectorizer
	providers        Providers
	batchSize        int
	maxRetries       int
	embedConcurrency int
}

// NewPass builds a Pass for one vectorizer. batchSize defaults to 50 and
// maxRetries to 3 when zero, matching spec.md §4.D's stated defaults.
func NewPass(pool Pool, v *vectorizer.Vectorizer, providers Providers, batchSize, maxRetries int) *Pass {
	return NewPassWithConcurrency(pool, v, providers, batchSize, maxRetries, 1)
}

// NewPassWithConcurrency is NewPass plus an explicit embed_concurrency,
// the number of rows embedded in parallel per pass (spec.md §5:
// "embedding/LLM HTTP calls are performed in parallel using a
// bounded-concurrency executor; batch claim and upsert are serial
// per-claim").
func NewPassWithConcurrency(pool Pool, v *vectorizer.Vectorizer, providers Providers, batchSize, maxRetries, embedConcurrency int) *Pass {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if embedConcurrency <= 0 {
		embedConcurrency = 1
	}
	return &Pass{pool: pool, v: v, providers: providers, batchSize: batchSize, maxRetries: maxRetries, embedConcurrency: embedConcurrency}
}

// Run executes one pass. A zero-Claimed result with a nil error means the
// queue was empty; the caller should stop looping over this vectorizer.
func (p *Pass) Run(ctx context.Context) (PassResult, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return PassResult{}, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	keys, err := p.claimBatch(ctx, tx)
	if err != nil {
		return PassResult{}, fmt.Errorf("claiming batch: %w", err)
	}
	if len(keys) == 0 {
		if err := tx.Commit(ctx); err != nil {
			return PassResult{}, fmt.Errorf("committing empty claim: %w", err)
		}
		return PassResult{}, nil
	}
	keys = dedupePKs(keys)

	rows, err := p.loadRows(ctx, tx, keys)
	if err != nil {
		return PassResult{}, fmt.Errorf("loading source rows: %w", err)
	}

	result := PassResult{Claimed: len(keys)}

	// Parse and chunk sequentially (cheap, in-process); only the pks that
	// survive become embed candidates.
	type candidate struct {
		key    vectorizer.QueueKey
		row    map[string]any
		chunks []Chunk
	}
	candidates := make([]candidate, 0, len(keys))
	for _, key := range keys {
		row, ok := rows[pkCacheKey(key)]
		if !ok {
			// Source row vanished between enqueue and load (concurrent
			// delete already handled by the trigger); treat as a skip.
			result.Skipped++
			continue
		}
		chunks, err := p.parseAndChunk(ctx, row)
		if err != nil {
			// Deterministic data error: skip this pk, delete its queue
			// row so it does not loop, bump the error count — spec.md
			// §4.D "Failure semantics".
			result.Errored++
			result.Err = err
			continue
		}
		candidates = append(candidates, candidate{key: key, row: row, chunks: chunks})
	}

	// Embed concurrently across rows, bounded by embed_concurrency; a
	// provider failure after retries aborts the whole batch so claimed
	// pks return to the queue untouched.
	embeddedByIndex := make([][]embeddedChunk, len(candidates))
	err = boundedEmbed(ctx, p.embedConcurrency, len(candidates), func(ctx context.Context, i int) error {
		embedded, err := p.embedChunks(ctx, candidates[i].chunks, candidates[i].row)
		if err != nil {
			return fmt.Errorf("embedding chunks for pk %v: %w", candidates[i].key, err)
		}
		embeddedByIndex[i] = embedded
		return nil
	})
	if err != nil {
		return PassResult{}, err
	}

	// Upsert serially, each pk its own delete+insert within the batch tx.
	for i, c := range candidates {
		if err := p.upsertTarget(ctx, tx, c.key, embeddedByIndex[i]); err != nil {
			return PassResult{}, fmt.Errorf("upserting target for pk %v: %w", c.key, err)
		}
		result.Embedded++
	}

	if err := p.deleteQueueRows(ctx, tx, keys); err != nil {
		return PassResult{}, fmt.Errorf("deleting consumed queue rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return PassResult{}, fmt.Errorf("committing pass: %w", err)
	}
	return result, nil
}

// pkCacheKey renders a QueueKey as a stable map key for row lookups
// within a single pass, sorting by column name so the same pk always
// produces the same string regardless of map iteration order.
func pkCacheKey(k vectorizer.QueueKey) string {
	names := make([]string, 0, len(k))
	for name := range k {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s=%v\x1f", name, k[name])
	}
	return b.String()
}

// dedupePKs collapses by pk, keeping only the latest occurrence — a
// queue may hold several rows for the same pk if it was updated multiple
// times since the last pass (spec.md §4.D step 2).
func dedupePKs(keys []vectorizer.QueueKey) []vectorizer.QueueKey {
	seen := make(map[string]int, len(keys))
	out := make([]vectorizer.QueueKey, 0, len(keys))
	for _, k := range keys {
		ck := pkCacheKey(k)
		if idx, ok := seen[ck]; ok {
			out[idx] = k
			continue
		}
		seen[ck] = len(out)
		out = append(out, k)
	}
	return out
}

// claimBatch selects up to batchSize pks from the queue, locking them
// SKIP LOCKED, within the pass's already-open transaction.
func (p *Pass) claimBatch(ctx context.Context, tx pgx.Tx) ([]vectorizer.QueueKey, error) {
	pkCols := pkColumnNames(p.v.SourcePK)
	quoted := make([]string, len(pkCols))
	for i, c := range pkCols {
		quoted[i] = sqlident.Quote(c)
	}
	sql := fmt.Sprintf(
		"SELECT %s FROM %s LIMIT %d FOR UPDATE SKIP LOCKED",
		strings.Join(quoted, ", "),
		sqlident.Qualify(p.v.QueueSchema, p.v.QueueTable),
		p.batchSize,
	)
	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []vectorizer.QueueKey
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		key := make(vectorizer.QueueKey, len(pkCols))
		for i, c := range pkCols {
			key[c] = vals[i]
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

// loadRows fetches the full source row for every claimed pk in one query.
func (p *Pass) loadRows(ctx context.Context, tx pgx.Tx, keys []vectorizer.QueueKey) (map[string]map[string]any, error) {
	pkCols := pkColumnNames(p.v.SourcePK)
	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*len(pkCols))
	argN := 1
	for _, key := range keys {
		parts := make([]string, len(pkCols))
		for i, c := range pkCols {
			parts[i] = fmt.Sprintf("%s = $%d", sqlident.Quote(c), argN)
			args = append(args, key[c])
			argN++
		}
		conds = append(conds, "("+strings.Join(parts, " AND ")+")")
	}

	sql := fmt.Sprintf(
		"SELECT * FROM %s WHERE %s",
		sqlident.Qualify(p.v.SourceSchema, p.v.SourceTable),
		strings.Join(conds, " OR "),
	)
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	out := make(map[string]map[string]any, len(keys))
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[fd.Name] = vals[i]
		}
		key := make(vectorizer.QueueKey, len(pkCols))
		for _, c := range pkCols {
			key[c] = row[c]
		}
		out[pkCacheKey(key)] = row
	}
	return out, rows.Err()
}

// parseAndChunk runs the load→parse→chunk→format stages (steps 3–5) for
// one already-fetched source row, producing formatted chunk text ready
// for embedding.
func (p *Pass) parseAndChunk(ctx context.Context, row map[string]any) ([]Chunk, error) {
	content, isBinary, err := p.providers.Loader.Load(ctx, row, p.v.Config.Loading)
	if err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}
	text, err := p.providers.Parser.Parse(ctx, content, isBinary, p.v.Config.Parsing)
	if err != nil {
		return nil, fmt.Errorf("parsing content: %w", err)
	}
	chunks, err := p.providers.Chunker.Chunk(text, p.v.Config.Chunking)
	if err != nil {
		return nil, fmt.Errorf("chunking content: %w", err)
	}
	for i := range chunks {
		formatted, err := p.providers.Formatter.Format(chunks[i], row, p.v.Config.Formatting)
		if err != nil {
			return nil, fmt.Errorf("formatting chunk %d: %w", chunks[i].Seq, err)
		}
		chunks[i].Text = formatted
	}
	return chunks, nil
}

// embeddedChunk pairs a formatted chunk with its vector.
type embeddedChunk struct {
	Chunk
	Vector []float32
}

// embedChunks calls the embedding provider for every chunk of a single
// row, retrying transport/429/5xx errors with exponential backoff and
// jitter up to maxRetries (spec.md §4.D step 6). The row's own call runs
// inside whatever concurrency bound Run applies across rows.
func (p *Pass) embedChunks(ctx context.Context, chunks []Chunk, row map[string]any) ([]embeddedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := embedWithRetry(ctx, p.providers.Embedder, p.v.Config.Embedding.Model, texts, EmbedOptions{
		InputType: p.v.Config.Embedding.InputType,
	}, p.maxRetries)
	if err != nil {
		return nil, err
	}
	out := make([]embeddedChunk, len(chunks))
	for i, c := range chunks {
		out[i] = embeddedChunk{Chunk: c, Vector: vectors[i]}
	}
	return out, nil
}

// upsertTarget deletes existing embedding rows for pk then inserts the
// freshly embedded chunks, all within the pass's transaction (spec.md
// §4.D step 7: "one statement per pk... delete then insert").
func (p *Pass) upsertTarget(ctx context.Context, tx pgx.Tx, key vectorizer.QueueKey, chunks []embeddedChunk) error {
	pkCols := pkColumnNames(p.v.SourcePK)
	conds := make([]string, len(pkCols))
	args := make([]any, 0, len(pkCols))
	for i, c := range pkCols {
		conds[i] = fmt.Sprintf("%s = $%d", sqlident.Quote(c), i+1)
		args = append(args, key[c])
	}
	deleteSQL := fmt.Sprintf(
		"DELETE FROM %s WHERE %s",
		sqlident.Qualify(p.v.TargetSchema, p.v.TargetTable),
		strings.Join(conds, " AND "),
	)
	if _, err := tx.Exec(ctx, deleteSQL, args...); err != nil {
		return fmt.Errorf("deleting existing embeddings: %w", err)
	}

	for _, c := range chunks {
		cols := append(append([]string{}, pkCols...), "chunk_seq", "chunk", "embedding")
		quotedCols := make([]string, len(cols))
		placeholders := make([]string, len(cols))
		insertArgs := make([]any, 0, len(cols))
		for i, col := range cols {
			quotedCols[i] = sqlident.Quote(col)
			placeholders[i] = fmt.Sprintf("$%d", i+1)
		}
		for _, pc := range pkCols {
			insertArgs = append(insertArgs, key[pc])
		}
		insertArgs = append(insertArgs, c.Seq, c.Text, pgvector.NewVector(c.Vector))

		insertSQL := fmt.Sprintf(
			"INSERT INTO %s (%s) VALUES (%s)",
			sqlident.Qualify(p.v.TargetSchema, p.v.TargetTable),
			strings.Join(quotedCols, ", "),
			strings.Join(placeholders, ", "),
		)
		if _, err := tx.Exec(ctx, insertSQL, insertArgs...); err != nil {
			return fmt.Errorf("inserting embedding chunk %d: %w", c.Seq, err)
		}
	}
	return nil
}

// deleteQueueRows removes every claimed-and-processed pk from the queue,
// within the same transaction as the target upsert (spec.md §4.D step 7).
func (p *Pass) deleteQueueRows(ctx context.Context, tx pgx.Tx, keys []vectorizer.QueueKey) error {
	pkCols := pkColumnNames(p.v.SourcePK)
	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*len(pkCols))
	argN := 1
	for _, key := range keys {
		parts := make([]string, len(pkCols))
		for i, c := range pkCols {
			parts[i] = fmt.Sprintf("%s = $%d", sqlident.Quote(c), argN)
			args = append(args, key[c])
			argN++
		}
		conds = append(conds, "("+strings.Join(parts, " AND ")+")")
	}
	sql := fmt.Sprintf(
		"DELETE FROM %s WHERE %s",
		sqlident.Qualify(p.v.QueueSchema, p.v.QueueTable),
		strings.Join(conds, " OR "),
	)
	_, err := tx.Exec(ctx, sql, args...)
	return err
}

// embedWithRetry calls the embedder, retrying only TransportError
// failures with exponential backoff (200ms doubling per attempt, waiting
// half the backoff plus a random share of it), up to maxRetries retries
// after the first attempt (spec.md §4.D: "transport or rate-limit error
// triggers exponential backoff with jitter up to max_retries").
func embedWithRetry(ctx context.Context, embedder EmbeddingProvider, model string, texts []string, opts EmbedOptions, maxRetries int) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		vectors, err := embedder.Embed(ctx, model, texts, opts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		var transportErr *TransportError
		if !errors.As(err, &transportErr) || attempt == maxRetries {
			return nil, err
		}

		backoff := time.Duration(1<<attempt) * 200 * time.Millisecond
		jitter := time.Duration(rand.Int64N(int64(backoff)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff/2 + jitter):
		}
	}
	return nil, lastErr
}

// pkColumnNames extracts column names in primary-key order.
func pkColumnNames(pk []vectorizer.PKColumn) []string {
	names := make([]string, len(pk))
	for i, c := range pk {
		names[i] = c.AttName
	}
	return names
}

// boundedEmbed fans rows out across a bounded pool of goroutines via
// errgroup; Run uses it to embed candidates with at most
// embed_concurrency calls in flight.
func boundedEmbed(ctx context.Context, concurrency int, n int, fn func(ctx context.Context, i int) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error { return fn(ctx, i) })
	}
	return g.Wait()
}
