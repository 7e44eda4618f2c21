// Package memory is an in-process SearchStore used by tests and the offline
// demo path. Keyword queries score with BM25, vector queries with cosine
// similarity, both brute force.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"rag-media-search/internal/chunker"
	"rag-media-search/internal/domain"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Store keeps chunks keyed by ID; re-upserting an ID overwrites in place, so
// indexing is idempotent per (collection, id).
type Store struct {
	mu        sync.RWMutex
	dimension int
	chunks    map[string]domain.Chunk
	order     []string // insertion order, for deterministic listing and ties
}

func NewStore() *Store {
	return &Store{chunks: make(map[string]domain.Chunk)}
}

func (s *Store) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrConfiguration, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.chunks = make(map[string]domain.Chunk)
	s.order = nil
	return nil
}

func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chunks {
		if ch.ID == "" {
			return fmt.Errorf("%w: chunk without id", domain.ErrConfiguration)
		}
		if s.dimension > 0 && len(ch.Vector) != s.dimension {
			return fmt.Errorf("%w: vector dimension %d does not match collection dimension %d",
				domain.ErrConfiguration, len(ch.Vector), s.dimension)
		}
		if _, exists := s.chunks[ch.ID]; !exists {
			s.order = append(s.order, ch.ID)
		}
		s.chunks[ch.ID] = ch
	}
	return nil
}

// KeywordSearch ranks chunks by BM25 over the given terms. Chunks that match
// no term are omitted.
func (s *Store) KeywordSearch(ctx context.Context, terms []string, topK int) ([]domain.RankedResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 || len(terms) == 0 || len(s.order) == 0 {
		return nil, nil
	}

	// Corpus statistics are recomputed per query; collections in this store
	// are small enough that consistency beats caching.
	docTokens := make(map[string][]string, len(s.order))
	docFreq := make(map[string]int)
	totalLen := 0
	for _, id := range s.order {
		tokens := chunker.Terms(s.chunks[id].Text)
		docTokens[id] = tokens
		totalLen += len(tokens)
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			docFreq[tok]++
		}
	}
	n := float64(len(s.order))
	avgLen := float64(totalLen) / n

	var results []domain.RankedResult
	for _, id := range s.order {
		tokens := docTokens[id]
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		score := 0.0
		for _, term := range terms {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			df := float64(docFreq[term])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1.0)
			denom := f + bm25K1*(1-bm25B+bm25B*float64(len(tokens))/avgLen)
			score += idf * f * (bm25K1 + 1) / denom
		}
		if score > 0 {
			results = append(results, domain.RankedResult{Chunk: s.chunks[id], Score: score})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// VectorSearch ranks chunks by cosine similarity to the query vector.
func (s *Store) VectorSearch(ctx context.Context, vector []float64, topK int) ([]domain.RankedResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 || len(s.order) == 0 {
		return nil, nil
	}
	results := make([]domain.RankedResult, 0, len(s.order))
	for _, id := range s.order {
		ch := s.chunks[id]
		results = append(results, domain.RankedResult{Chunk: ch, Score: cosine(ch.Vector, vector)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// List returns chunks matching the filter in insertion order.
func (s *Store) List(ctx context.Context, filter domain.ChunkFilter) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Chunk
	for _, id := range s.order {
		ch := s.chunks[id]
		if filter.ContentType != "" && ch.Metadata.ContentType != filter.ContentType {
			continue
		}
		if filter.Window != nil && !filter.Window.Overlaps(ch.Metadata.StartTime, ch.Metadata.EndTime) {
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = make(map[string]domain.Chunk)
	s.order = nil
	return nil
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
