// Package elastic is a minimal REST client to an Elasticsearch-compatible
// backend. One index holds text, vector and metadata per chunk; documents
// are keyed by chunk ID so re-indexing overwrites instead of duplicating.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"rag-media-search/internal/domain"
)

// Store is the Elasticsearch-backed SearchStore.
type Store struct {
	url       string
	apiKey    string
	index     string
	dimension int
	client    *http.Client
}

type Config struct {
	URL     string
	APIKey  string
	Index   string
	Timeout time.Duration
}

func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		index:  cfg.Index,
		client: &http.Client{Timeout: timeout},
	}
}

type esDocument struct {
	DocumentID string     `json:"document_id"`
	Text       string     `json:"text"`
	Vector     []float64  `json:"vector"`
	Metadata   esMetadata `json:"metadata"`
}

type esMetadata struct {
	FileName    string  `json:"file_name"`
	Page        int     `json:"page"`
	ContentType string  `json:"content_type"`
	ChunkIndex  int     `json:"chunk_index"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
}

// Init creates the index with a dense_vector mapping if it does not exist.
func (s *Store) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrConfiguration, dimension)
	}
	s.dimension = dimension
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url+"/"+s.index, nil)
	if err != nil {
		return err
	}
	s.auth(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"document_id": map[string]any{"type": "keyword"},
				"text":        map[string]any{"type": "text"},
				"vector": map[string]any{
					"type":       "dense_vector",
					"dims":       dimension,
					"index":      true,
					"similarity": "cosine",
				},
				"metadata": map[string]any{
					"properties": map[string]any{
						"file_name":    map[string]any{"type": "keyword"},
						"page":         map[string]any{"type": "integer"},
						"content_type": map[string]any{"type": "keyword"},
						"chunk_index":  map[string]any{"type": "integer"},
						"start_time":   map[string]any{"type": "double"},
						"end_time":     map[string]any{"type": "double"},
					},
				},
			},
		},
	}
	return s.sendJSON(ctx, http.MethodPut, s.url+"/"+s.index, body, nil)
}

// Upsert bulk-indexes chunks keyed by chunk ID. When only some items fail,
// the returned error is a PartialIndexError naming them so the caller can
// retry at item granularity.
func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ch := range chunks {
		action := map[string]any{"index": map[string]any{"_index": s.index, "_id": ch.ID}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		doc := esDocument{
			DocumentID: ch.DocumentID,
			Text:       ch.Text,
			Vector:     ch.Vector,
			Metadata: esMetadata{
				FileName:    ch.Metadata.FileName,
				Page:        ch.Metadata.Page,
				ContentType: string(ch.Metadata.ContentType),
				ChunkIndex:  ch.Metadata.ChunkIndex,
				StartTime:   ch.Metadata.StartTime,
				EndTime:     ch.Metadata.EndTime,
			},
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url+"/_bulk?refresh=wait_for", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	s.auth(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: bulk index: %v", domain.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: bulk index failed: %s", domain.ErrServiceUnavailable, resp.Status)
	}
	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if !out.Errors {
		return nil
	}
	perr := &domain.PartialIndexError{}
	for _, item := range out.Items {
		for _, res := range item {
			if res.Status >= 300 {
				reason := "unknown"
				if res.Error != nil {
					reason = res.Error.Reason
				}
				perr.Failed = append(perr.Failed, domain.ChunkFailure{
					ChunkID: res.ID,
					Err:     fmt.Errorf("status %d: %s", res.Status, reason),
				})
			} else {
				perr.Committed++
			}
		}
	}
	return perr
}

// KeywordSearch issues a full-text match query over the chunk text.
func (s *Store) KeywordSearch(ctx context.Context, terms []string, topK int) ([]domain.RankedResult, error) {
	if len(terms) == 0 || topK <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"size": topK,
		"query": map[string]any{
			"match": map[string]any{
				"text": map[string]any{"query": strings.Join(terms, " ")},
			},
		},
	}
	return s.search(ctx, body)
}

// VectorSearch issues a kNN query against the dense vector field.
func (s *Store) VectorSearch(ctx context.Context, vector []float64, topK int) ([]domain.RankedResult, error) {
	if len(vector) == 0 || topK <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"size": topK,
		"knn": map[string]any{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": topK * 4,
		},
	}
	return s.search(ctx, body)
}

// List fetches chunks matching the filter, ordered by start time then chunk
// index. The fixed page size follows the original pipeline's full-scan use.
func (s *Store) List(ctx context.Context, filter domain.ChunkFilter) ([]domain.Chunk, error) {
	var filters []map[string]any
	if filter.ContentType != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"metadata.content_type": string(filter.ContentType)},
		})
	}
	if filter.Window != nil {
		filters = append(filters, map[string]any{
			"range": map[string]any{"metadata.start_time": map[string]any{"lt": filter.Window.End}},
		})
		filters = append(filters, map[string]any{
			"range": map[string]any{"metadata.end_time": map[string]any{"gt": filter.Window.Start}},
		})
	}
	query := map[string]any{"match_all": map[string]any{}}
	if len(filters) > 0 {
		query = map[string]any{"bool": map[string]any{"filter": filters}}
	}
	body := map[string]any{
		"size":  1000,
		"query": query,
		"sort": []any{
			map[string]any{"metadata.start_time": "asc"},
			map[string]any{"metadata.chunk_index": "asc"},
		},
	}
	results, err := s.search(ctx, body)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.Chunk
	}
	return chunks, nil
}

// Clear drops the index. Best effort: a missing index is not an error.
func (s *Store) Clear(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.url+"/"+s.index, nil)
	if err != nil {
		return err
	}
	s.auth(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: delete index failed: %s", domain.ErrServiceUnavailable, resp.Status)
	}
	return nil
}

func (s *Store) search(ctx context.Context, body map[string]any) ([]domain.RankedResult, error) {
	var resp struct {
		Hits struct {
			Hits []struct {
				ID     string     `json:"_id"`
				Score  float64    `json:"_score"`
				Source esDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	url := fmt.Sprintf("%s/%s/_search", s.url, s.index)
	if err := s.sendJSON(ctx, http.MethodPost, url, body, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.RankedResult, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		results = append(results, domain.RankedResult{
			Chunk: domain.Chunk{
				ID:         hit.ID,
				DocumentID: hit.Source.DocumentID,
				Text:       hit.Source.Text,
				Vector:     hit.Source.Vector,
				Metadata: domain.SourceMetadata{
					FileName:    hit.Source.Metadata.FileName,
					Page:        hit.Source.Metadata.Page,
					ContentType: domain.ContentType(hit.Source.Metadata.ContentType),
					ChunkIndex:  hit.Source.Metadata.ChunkIndex,
					StartTime:   hit.Source.Metadata.StartTime,
					EndTime:     hit.Source.Metadata.EndTime,
				},
			},
			Score: hit.Score,
		})
	}
	return results, nil
}

func (s *Store) sendJSON(ctx context.Context, method, url string, body any, out any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	s.auth(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrServiceUnavailable, method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s failed: %s", domain.ErrServiceUnavailable, method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (s *Store) auth(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("Authorization", "ApiKey "+s.apiKey)
	}
}
