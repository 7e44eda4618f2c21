package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-media-search/internal/domain"
)

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Name() string                  { return "stub" }
func (s *stubEmbedder) Prepare(corpus []string) error { return nil }
func (s *stubEmbedder) Dimension() int                { return 2 }
func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i := range out {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

type stubStore struct {
	keyword    []domain.RankedResult
	vector     []domain.RankedResult
	keywordErr error
	vectorErr  error
	terms      []string
}

func (s *stubStore) Init(ctx context.Context, dim int) error               { return nil }
func (s *stubStore) Upsert(ctx context.Context, chunks []domain.Chunk) error { return nil }
func (s *stubStore) Clear(ctx context.Context) error                       { return nil }
func (s *stubStore) List(ctx context.Context, f domain.ChunkFilter) ([]domain.Chunk, error) {
	return nil, nil
}
func (s *stubStore) KeywordSearch(ctx context.Context, terms []string, topK int) ([]domain.RankedResult, error) {
	s.terms = terms
	return s.keyword, s.keywordErr
}
func (s *stubStore) VectorSearch(ctx context.Context, vector []float64, topK int) ([]domain.RankedResult, error) {
	return s.vector, s.vectorErr
}

func TestRetrieveFusesBothPaths(t *testing.T) {
	store := &stubStore{keyword: ranked("a", "b"), vector: ranked("b", "c")}
	r := NewHybridRetriever(&stubEmbedder{}, store, 10, 60, nil)

	results, err := r.Retrieve(context.Background(), "Some Query")
	require.NoError(t, err)
	assert.Equal(t, "b", results[0].Chunk.ID)
	assert.Len(t, results, 3)
	assert.Equal(t, []string{"some", "query"}, store.terms, "query terms are lowercased")
}

func TestRetrieveDegradesToVector(t *testing.T) {
	store := &stubStore{keywordErr: errors.New("lexical down"), vector: ranked("v1", "v2")}
	r := NewHybridRetriever(&stubEmbedder{}, store, 10, 60, nil)

	results, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err, "one failing path must not fail the query")
	assert.Equal(t, []string{"v1", "v2"}, ids(results))
}

func TestRetrieveDegradesToKeyword(t *testing.T) {
	store := &stubStore{keyword: ranked("k1")}
	r := NewHybridRetriever(&stubEmbedder{err: errors.New("embed down")}, store, 10, 60, nil)

	results, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, ids(results))
}

func TestRetrieveBothPathsFail(t *testing.T) {
	store := &stubStore{keywordErr: errors.New("down"), vectorErr: errors.New("down")}
	r := NewHybridRetriever(&stubEmbedder{}, store, 10, 60, nil)

	_, err := r.Retrieve(context.Background(), "q")
	assert.Error(t, err)
}

func TestRetrieveCapsTopK(t *testing.T) {
	store := &stubStore{keyword: ranked("a", "b", "c"), vector: ranked("d", "e", "f")}
	r := NewHybridRetriever(&stubEmbedder{}, store, 2, 60, nil)

	results, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
