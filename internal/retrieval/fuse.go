// Package retrieval runs hybrid search: keyword and vector lookups in
// parallel, reciprocal rank fusion over the result lists, and an optional
// rerank pass over the fused head.
package retrieval

import (
	"sort"

	"rag-media-search/internal/domain"
)

// DefaultRRFK is the standard smoothing constant for reciprocal rank fusion.
const DefaultRRFK = 60

// SourceList is one ranked result list entering fusion, tagged with the name
// of the retrieval path that produced it.
type SourceList struct {
	Name    string
	Results []domain.RankedResult
}

// FuseRRF merges ranked lists with reciprocal rank fusion: each appearance at
// 1-indexed rank r contributes 1/(k+r) to the chunk's fused score. Ties break
// first on how many lists returned the chunk, then on first appearance across
// the input lists. Fusing a single list preserves its order.
func FuseRRF(k int, lists ...SourceList) []domain.RankedResult {
	if k <= 0 {
		k = DefaultRRFK
	}
	type entry struct {
		result  domain.RankedResult
		score   float64
		sources []string
	}
	byID := make(map[string]*entry)
	var order []string

	for _, list := range lists {
		counted := make(map[string]struct{}, len(list.Results))
		for rank, r := range list.Results {
			e, ok := byID[r.Chunk.ID]
			if !ok {
				e = &entry{result: r}
				byID[r.Chunk.ID] = e
				order = append(order, r.Chunk.ID)
			}
			// A duplicate within one list keeps only its best rank.
			if _, dup := counted[r.Chunk.ID]; dup {
				continue
			}
			counted[r.Chunk.ID] = struct{}{}
			e.score += 1.0 / float64(k+rank+1)
			e.sources = append(e.sources, list.Name)
		}
	}

	fused := make([]domain.RankedResult, 0, len(order))
	for _, id := range order {
		e := byID[id]
		r := e.result
		r.Score = e.score
		r.Sources = e.sources
		fused = append(fused, r)
	}
	// fused is in first-seen order, so the stable sort leaves first-seen as
	// the final tie-break after score and source count.
	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		return len(fused[i].Sources) > len(fused[j].Sources)
	})
	return fused
}
