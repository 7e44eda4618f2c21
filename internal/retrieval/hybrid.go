package retrieval

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"rag-media-search/internal/chunker"
	"rag-media-search/internal/domain"
)

// HybridRetriever runs keyword and vector search concurrently and fuses the
// two lists with RRF. A single failing path degrades to the other; only both
// paths failing is an error.
type HybridRetriever struct {
	embedder domain.Embedder
	store    domain.SearchStore
	topK     int
	rrfK     int
	log      *zap.Logger
}

func NewHybridRetriever(embedder domain.Embedder, store domain.SearchStore, topK, rrfK int, log *zap.Logger) *HybridRetriever {
	if topK <= 0 {
		topK = 10
	}
	if rrfK <= 0 {
		rrfK = DefaultRRFK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HybridRetriever{embedder: embedder, store: store, topK: topK, rrfK: rrfK, log: log}
}

// Retrieve returns the fused ranked results for the query, best first.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string) ([]domain.RankedResult, error) {
	var (
		wg          sync.WaitGroup
		keyword     []domain.RankedResult
		vector      []domain.RankedResult
		kwErr, vErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		keyword, kwErr = r.store.KeywordSearch(ctx, chunker.Terms(query), r.topK)
	}()
	go func() {
		defer wg.Done()
		vector, vErr = r.vectorSearch(ctx, query)
	}()
	wg.Wait()

	if kwErr != nil && vErr != nil {
		return nil, fmt.Errorf("both retrieval paths failed: keyword: %v; vector: %w", kwErr, vErr)
	}
	if kwErr != nil {
		r.log.Warn("keyword search failed, using vector results only", zap.Error(kwErr))
	}
	if vErr != nil {
		r.log.Warn("vector search failed, using keyword results only", zap.Error(vErr))
	}

	fused := FuseRRF(r.rrfK,
		SourceList{Name: "keyword", Results: keyword},
		SourceList{Name: "vector", Results: vector},
	)
	if r.topK < len(fused) {
		fused = fused[:r.topK]
	}
	return fused, nil
}

func (r *HybridRetriever) vectorSearch(ctx context.Context, query string) ([]domain.RankedResult, error) {
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}
	return r.store.VectorSearch(ctx, vectors[0], r.topK)
}
