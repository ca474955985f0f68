package chunking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timescale/pgvectorizer/pkg/vconfig"
)

func TestChunkRecursiveProducesSequentialSeqs(t *testing.T) {
	c := New()
	cfg := vconfig.ChunkingConfig{
		Implementation: vconfig.ChunkingRecursiveCharacterTextSplitter,
		ChunkSize:      20,
		ChunkOverlap:   0,
	}
	text := strings.Repeat("word ", 40)

	chunks, err := c.Chunk(text, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Seq)
		assert.NotEmpty(t, strings.TrimSpace(ch.Text))
	}
}

func TestChunkCharacterSplitsOnSeparator(t *testing.T) {
	c := New()
	cfg := vconfig.ChunkingConfig{
		Implementation: vconfig.ChunkingCharacterTextSplitter,
		ChunkSize:      1000,
		ChunkOverlap:   0,
		Separator:      "\n\n",
	}
	text := "first paragraph\n\nsecond paragraph\n\nthird paragraph"

	chunks, err := c.Chunk(text, cfg)
	require.NoError(t, err)
	require.Len(t, chunks, 1) // all fit under chunk_size, so they merge into one
	assert.Contains(t, chunks[0].Text, "first paragraph")
	assert.Contains(t, chunks[0].Text, "third paragraph")
}

func TestChunkCharacterRespectsChunkSize(t *testing.T) {
	c := New()
	cfg := vconfig.ChunkingConfig{
		Implementation: vconfig.ChunkingCharacterTextSplitter,
		ChunkSize:      20,
		ChunkOverlap:   0,
		Separator:      "\n\n",
	}
	text := "first paragraph is long\n\nsecond paragraph is also long\n\nthird one too"

	chunks, err := c.Chunk(text, cfg)
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Seq)
	}
}

func TestChunkCharacterAppliesOverlap(t *testing.T) {
	c := New()
	cfg := vconfig.ChunkingConfig{
		Implementation: vconfig.ChunkingCharacterTextSplitter,
		ChunkSize:      15,
		ChunkOverlap:   5,
		Separator:      " ",
	}
	text := "aaaaa bbbbb ccccc ddddd eeeee"

	chunks, err := c.Chunk(text, cfg)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	// The overlap carries the tail of one chunk into the start of the next.
	tail := chunks[0].Text[len(chunks[0].Text)-5:]
	assert.True(t, strings.HasPrefix(chunks[1].Text, tail))
}

func TestChunkDropsBlankPieces(t *testing.T) {
	c := New()
	cfg := vconfig.ChunkingConfig{
		Implementation: vconfig.ChunkingCharacterTextSplitter,
		ChunkSize:      1000,
		ChunkOverlap:   0,
		Separator:      "\n\n",
	}
	chunks, err := c.Chunk("   \n\n   ", cfg)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkUnsupportedImplementationErrors(t *testing.T) {
	c := New()
	_, err := c.Chunk("text", vconfig.ChunkingConfig{Implementation: "bogus"})
	assert.Error(t, err)
}
