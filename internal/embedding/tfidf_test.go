package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTFIDFRequiresPrepare(t *testing.T) {
	e := NewTFIDFEmbedder()
	_, err := e.Embed(context.Background(), []string{"text"})
	assert.Error(t, err)
	assert.Error(t, e.Prepare(nil))
}

func TestTFIDFDimensionIsVocabularySize(t *testing.T) {
	e := NewTFIDFEmbedder()
	require.NoError(t, e.Prepare([]string{"alpha beta", "beta gamma"}))
	assert.Equal(t, 3, e.Dimension())
}

func TestTFIDFEmbedVectorsAreNormalized(t *testing.T) {
	e := NewTFIDFEmbedder()
	require.NoError(t, e.Prepare([]string{
		"fusion merges ranked lists",
		"vectors capture semantics",
		"fusion ranks vectors",
	}))

	vectors, err := e.Embed(context.Background(), []string{"fusion merges lists", "unknownword"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Len(t, vectors[0], e.Dimension())

	norm := 0.0
	for _, v := range vectors[0] {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)

	// Out-of-vocabulary text embeds to the zero vector instead of failing.
	for _, v := range vectors[1] {
		assert.Zero(t, v)
	}
}

func TestTFIDFSimilarTextsCloser(t *testing.T) {
	e := NewTFIDFEmbedder()
	require.NoError(t, e.Prepare([]string{
		"databases use indexes for fast lookups",
		"gardening requires patience sunlight water",
	}))

	vecs, err := e.Embed(context.Background(), []string{
		"fast database indexes",
		"databases use indexes for fast lookups",
		"gardening requires patience sunlight water",
	})
	require.NoError(t, err)

	simDB := dot(vecs[0], vecs[1])
	simGarden := dot(vecs[0], vecs[2])
	assert.Greater(t, simDB, simGarden)
}

func TestTFIDFDeterministicOrdering(t *testing.T) {
	corpus := []string{"c b a", "a d"}
	e1 := NewTFIDFEmbedder()
	e2 := NewTFIDFEmbedder()
	require.NoError(t, e1.Prepare(corpus))
	require.NoError(t, e2.Prepare(corpus))

	v1, err := e1.Embed(context.Background(), []string{"a b"})
	require.NoError(t, err)
	v2, err := e2.Embed(context.Background(), []string{"a b"})
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
