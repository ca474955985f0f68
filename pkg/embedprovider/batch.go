package embedprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"

	"github.com/timescale/pgvectorizer/pkg/queue"
	"github.com/timescale/pgvectorizer/pkg/sqlident"
)

// BatchPool is the subset of pgxpool.Pool the batch embedder needs to
// persist and poll OpenAI batch jobs against two batch tables: the one
// named by the embedding config's batch_table_name, and a chunk table
// named that name plus "_chunks". Neither name is derived from the
// vectorizer id.
type BatchPool interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	QueryRow(ctx context.Context, sql string, args ...any) BatchRow
}

// BatchRow is the minimal pgx.Row-shaped scanner BatchPool needs —
// kept separate from pgx.Row so this package's tests can fake it
// without importing pgx.
type BatchRow interface {
	Scan(dest ...any) error
}

const pollInterval = 5 * time.Second

// batchEmbedder implements OpenAI's optional batch embedding mode
// (spec.md §4.D step 6) as a polling state machine: submit, then poll
// the batch job until it completes, rather than a webhook — there is
// no public HTTP callback endpoint in this worker runtime for OpenAI to
// call back into (see DESIGN.md's Open Question decision).
type batchEmbedder struct {
	sync      *openaiEmbedder
	client    openai.Client
	pool      BatchPool
	tableName string
}

func newBatchEmbedder(sync *openaiEmbedder, pool BatchPool, tableName string) *batchEmbedder {
	return &batchEmbedder{sync: sync, client: sync.client, pool: pool, tableName: tableName}
}

type batchChunkRequest struct {
	CustomID string                        `json:"custom_id"`
	Method   string                        `json:"method"`
	URL      string                        `json:"url"`
	Body     openai.EmbeddingNewParams     `json:"body"`
}

type batchChunkOutput struct {
	CustomID string `json:"custom_id"`
	Response struct {
		Body openai.CreateEmbeddingResponse `json:"body"`
	} `json:"response"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed submits texts as a single OpenAI batch job, records it in the
// batch tables, and polls until OpenAI reports the job complete (or
// ctx is cancelled). It returns vectors in the same order as texts.
func (b *batchEmbedder) Embed(ctx context.Context, model string, texts []string, _ queue.EmbedOptions) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batchID, customIDs, err := b.submit(ctx, model, texts)
	if err != nil {
		return nil, err
	}

	outputs, err := b.pollUntilComplete(ctx, batchID)
	if err != nil {
		return nil, err
	}

	byCustomID := make(map[string]openai.CreateEmbeddingResponse, len(outputs))
	for _, out := range outputs {
		if out.Error != nil {
			return nil, fmt.Errorf("embedprovider: openai batch item %s failed: %s", out.CustomID, out.Error.Message)
		}
		byCustomID[out.CustomID] = out.Response.Body
	}

	vectors := make([][]float32, len(texts))
	for i, id := range customIDs {
		resp, ok := byCustomID[id]
		if !ok || len(resp.Data) == 0 {
			return nil, fmt.Errorf("embedprovider: openai batch response missing item %s", id)
		}
		vec := make([]float32, len(resp.Data[0].Embedding))
		for j, v := range resp.Data[0].Embedding {
			vec[j] = float32(v)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// submit uploads the JSONL request file and creates the OpenAI batch
// job, then writes one batch row (the job's id and status) and one
// pending chunk row per text.
func (b *batchEmbedder) submit(ctx context.Context, model string, texts []string) (batchID string, customIDs []string, err error) {
	var buf bytes.Buffer
	customIDs = make([]string, len(texts))
	for i, text := range texts {
		customIDs[i] = uuid.NewString()
		line := batchChunkRequest{
			CustomID: customIDs[i],
			Method:   "POST",
			URL:      "/v1/embeddings",
			Body: openai.EmbeddingNewParams{
				Model: model,
				Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
			},
		}
		encoded, marshalErr := json.Marshal(line)
		if marshalErr != nil {
			return "", nil, fmt.Errorf("embedprovider: marshal batch request line: %w", marshalErr)
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}

	file, err := b.client.Files.New(ctx, openai.FileNewParams{
		File:    io.NopCloser(&buf),
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return "", nil, &queue.TransportError{Err: fmt.Errorf("embedprovider: upload batch input file: %w", err)}
	}

	batch, err := b.client.Batches.New(ctx, openai.BatchNewParams{
		InputFileID:      file.ID,
		Endpoint:         openai.BatchNewParamsEndpointV1Embeddings,
		CompletionWindow: openai.BatchNewParamsCompletionWindow24h,
	})
	if err != nil {
		return "", nil, &queue.TransportError{Err: fmt.Errorf("embedprovider: create batch job: %w", err)}
	}

	tableQ := sqlident.Quote(b.tableName)
	insertBatch := fmt.Sprintf(
		`INSERT INTO %s (batch_id, input_file_id, status, created_at) VALUES ($1, $2, $3, now())`,
		tableQ,
	)
	if _, err := b.pool.Exec(ctx, insertBatch, batch.ID, file.ID, string(batch.Status)); err != nil {
		return "", nil, fmt.Errorf("embedprovider: record batch row: %w", err)
	}

	chunkTableQ := sqlident.Quote(b.tableName + "_chunks")
	for i, id := range customIDs {
		insertChunk := fmt.Sprintf(
			`INSERT INTO %s (batch_id, custom_id, chunk_index, status) VALUES ($1, $2, $3, 'pending')`,
			chunkTableQ,
		)
		if _, err := b.pool.Exec(ctx, insertChunk, batch.ID, id, i); err != nil {
			return "", nil, fmt.Errorf("embedprovider: record batch chunk row: %w", err)
		}
	}

	return batch.ID, customIDs, nil
}

// pollUntilComplete polls OpenAI's batch status at pollInterval until
// the job reaches a terminal state, then downloads and parses the
// output file. It respects ctx cancellation between polls so a worker
// shutdown doesn't block on a long-running batch.
func (b *batchEmbedder) pollUntilComplete(ctx context.Context, batchID string) ([]batchChunkOutput, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		batch, err := b.client.Batches.Get(ctx, batchID)
		if err != nil {
			return nil, &queue.TransportError{Err: fmt.Errorf("embedprovider: poll batch status: %w", err)}
		}

		tableQ := sqlident.Quote(b.tableName)
		updateStatus := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE batch_id = $2`, tableQ)
		_, _ = b.pool.Exec(ctx, updateStatus, string(batch.Status), batchID)

		switch batch.Status {
		case openai.BatchStatusCompleted:
			if batch.OutputFileID == "" {
				return nil, fmt.Errorf("embedprovider: batch %s completed with no output file", batchID)
			}
			return b.downloadOutputs(ctx, batch.OutputFileID)
		case openai.BatchStatusFailed, openai.BatchStatusExpired, openai.BatchStatusCancelled:
			return nil, fmt.Errorf("embedprovider: batch %s ended with status %s", batchID, batch.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *batchEmbedder) downloadOutputs(ctx context.Context, fileID string) ([]batchChunkOutput, error) {
	content, err := b.client.Files.Content(ctx, fileID)
	if err != nil {
		return nil, &queue.TransportError{Err: fmt.Errorf("embedprovider: download batch output: %w", err)}
	}
	defer content.Body.Close()

	raw, err := io.ReadAll(content.Body)
	if err != nil {
		return nil, fmt.Errorf("embedprovider: read batch output: %w", err)
	}

	var outputs []batchChunkOutput
	for _, line := range bytes.Split(raw, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var out batchChunkOutput
		if err := json.Unmarshal(line, &out); err != nil {
			return nil, fmt.Errorf("embedprovider: parse batch output line: %w", err)
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}
