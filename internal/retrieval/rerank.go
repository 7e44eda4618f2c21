package retrieval

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"rag-media-search/internal/domain"
)

// Reranker reorders the head of a fused result list with a cross-encoder
// style scorer. The scorer is optional; without one, or when it fails, the
// fused order passes through and the degraded flag reports the fallback.
type Reranker struct {
	scorer     domain.RerankScorer
	candidates int
	log        *zap.Logger
}

func NewReranker(scorer domain.RerankScorer, candidates int, log *zap.Logger) *Reranker {
	if candidates <= 0 {
		candidates = 20
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reranker{scorer: scorer, candidates: candidates, log: log}
}

// Rerank returns the results reordered by scorer relevance. Only the top
// candidates are rescored; the tail keeps its fused order behind them. The
// second return value is true when the scorer failed and the fused order was
// returned unchanged.
func (r *Reranker) Rerank(ctx context.Context, query string, results []domain.RankedResult) ([]domain.RankedResult, bool) {
	if r.scorer == nil || len(results) < 2 {
		return results, false
	}
	head := results
	if r.candidates < len(head) {
		head = head[:r.candidates]
	}
	texts := make([]string, len(head))
	for i, res := range head {
		texts[i] = res.Chunk.Text
	}
	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil || len(scores) != len(head) {
		r.log.Warn("rerank failed, keeping fused order", zap.Error(err))
		return results, true
	}

	reranked := make([]domain.RankedResult, len(results))
	copy(reranked, results)
	for i := range head {
		reranked[i].Score = scores[i]
	}
	sort.SliceStable(reranked[:len(head)], func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return reranked, false
}
