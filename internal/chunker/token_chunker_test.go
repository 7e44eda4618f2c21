package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeWords(n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return words
}

func TestNewTokenChunkerValidation(t *testing.T) {
	_, err := NewTokenChunker(0, 0)
	require.Error(t, err)

	_, err = NewTokenChunker(100, 100)
	require.Error(t, err, "overlap equal to unit size must fail fast")

	_, err = NewTokenChunker(100, 150)
	require.Error(t, err)

	_, err = NewTokenChunker(100, -1)
	require.Error(t, err)

	_, err = NewTokenChunker(100, 99)
	require.NoError(t, err)
}

func TestChunkShortContentSingleChunk(t *testing.T) {
	c, err := NewTokenChunker(100, 10)
	require.NoError(t, err)

	chunks, err := c.Chunk("just a few words here")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just a few words here", chunks[0])
}

func TestChunkEmptyContent(t *testing.T) {
	c, err := NewTokenChunker(100, 10)
	require.NoError(t, err)

	chunks, err := c.Chunk("   \n\t ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkOverlapInvariant(t *testing.T) {
	c, err := NewTokenChunker(10, 3)
	require.NoError(t, err)

	chunks, err := c.Chunk(strings.Join(makeWords(35), " "))
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 0; i < len(chunks)-1; i++ {
		cur := SplitTokens(chunks[i])
		next := SplitTokens(chunks[i+1])
		shared := cur[len(cur)-3:]
		assert.Equal(t, next[:3], shared,
			"chunk %d must share its trailing overlap with the head of chunk %d", i, i+1)
	}
}

func TestChunkThreeThousandTokens(t *testing.T) {
	c, err := NewTokenChunker(1024, 100)
	require.NoError(t, err)

	chunks, err := c.Chunk(strings.Join(makeWords(3000), " "))
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Len(t, SplitTokens(chunks[0]), 1124)
	assert.Len(t, SplitTokens(chunks[1]), 1124)
	assert.Len(t, SplitTokens(chunks[2]), 3000-2*1024)
}

func TestChunkDeterminism(t *testing.T) {
	c, err := NewTokenChunker(7, 2)
	require.NoError(t, err)

	content := strings.Join(makeWords(50), " ")
	a, err := c.Chunk(content)
	require.NoError(t, err)
	b, err := c.Chunk(content)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplitTokensCJK(t *testing.T) {
	tokens := SplitTokens("hello 世界 world")
	assert.Equal(t, []string{"hello", "世", "界", "world"}, tokens)

	tokens = SplitTokens("混ぜるmixed文字")
	assert.Equal(t, []string{"混", "ぜ", "る", "mixed", "文", "字"}, tokens)
}

func TestJoinTokensCJK(t *testing.T) {
	assert.Equal(t, "hello 世界 world", JoinTokens([]string{"hello", "世", "界", "world"}))
	assert.Equal(t, "a b", JoinTokens([]string{"a", "b"}))
	assert.Equal(t, "", JoinTokens(nil))
}

func TestTermsLowercases(t *testing.T) {
	assert.Equal(t, []string{"hybrid", "search"}, Terms("Hybrid SEARCH"))
}
