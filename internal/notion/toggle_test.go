package notion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextSplitsAtWhitespace(t *testing.T) {
	// Words of 4 chars, max 10: "aaaa bbbb" fits, "cccc" starts a new chunk.
	chunks := ChunkText("aaaa bbbb cccc dddd", 10)
	assert.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, chunks)
}

func TestChunkTextSingleChunk(t *testing.T) {
	chunks := ChunkText("short text", 2000)
	assert.Equal(t, []string{"short text"}, chunks)
}

func TestChunkTextHardSplitsLongWord(t *testing.T) {
	word := strings.Repeat("x", 25)
	chunks := ChunkText(word, 10)
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("x", 10), chunks[0])
	assert.Equal(t, strings.Repeat("x", 10), chunks[1])
	assert.Equal(t, strings.Repeat("x", 5), chunks[2])
}

func TestChunkTextEmpty(t *testing.T) {
	assert.Nil(t, ChunkText("", 10))
	assert.Nil(t, ChunkText(" \n\t ", 10))
}

func TestChunkTextNeverExceedsMax(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 500)
	chunks := ChunkText(text, 2000)
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), 2000, "chunk %d", i)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
	// Reassembled text preserves every word in order.
	assert.Equal(t, strings.Fields(text), strings.Fields(strings.Join(chunks, " ")))
}
