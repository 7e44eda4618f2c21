package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-media-search/internal/augment"
	"rag-media-search/internal/chunker"
	"rag-media-search/internal/domain"
	"rag-media-search/internal/embedding"
	"rag-media-search/internal/indexer"
	"rag-media-search/internal/querytransform"
	"rag-media-search/internal/retrieval"
	"rag-media-search/internal/searchstore/memory"
	"rag-media-search/internal/summarizer"
)

// promptGenerator answers each prompt kind with a canned response, keyed on
// the fixed prompt wording.
type promptGenerator struct {
	decompose string
	variants  string
	resolved  string
}

func (g *promptGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "Latest question:"):
		return g.resolved, nil
	case strings.Contains(prompt, "sub-questions"):
		return g.decompose, nil
	case strings.Contains(prompt, "alternative phrasings"):
		return g.variants, nil
	}
	return "", nil
}

func newTestService(t *testing.T, gen domain.Generator) *RAGService {
	t.Helper()
	return newTestServiceWith(t, gen, embedding.NewTFIDFEmbedder(), memory.NewStore())
}

func newTestServiceWith(t *testing.T, gen domain.Generator, emb domain.Embedder, store domain.SearchStore) *RAGService {
	t.Helper()
	tokenChunker, err := chunker.NewTokenChunker(16, 2)
	require.NoError(t, err)
	transcriptChunker, err := chunker.NewTranscriptChunker(60)
	require.NoError(t, err)

	return New(Deps{
		Chunker:       tokenChunker,
		Transcripts:   transcriptChunker,
		Augmenter:     augment.New(gen, nil),
		Embedder:      emb,
		Store:         store,
		Indexer:       indexer.New(emb, store, indexer.Config{BatchSize: 25, RetryDelay: time.Millisecond}, nil),
		Retriever:     retrieval.NewHybridRetriever(emb, store, 10, 60, nil),
		Reranker:      retrieval.NewReranker(nil, 20, nil),
		Transformer:   querytransform.New(gen, 4, 3, nil),
		Summarizer:    summarizer.NewFrequencySummarizer(),
		TopK:          10,
		BranchTimeout: time.Second,
		MaxSentences:  3,
	})
}

func TestQueryEmptyCollection(t *testing.T) {
	svc := newTestService(t, nil)
	res, err := svc.Query(context.Background(), "anything at all", QueryOptions{})
	require.NoError(t, err, "an empty collection is an empty result, not an error")
	assert.Empty(t, res.Results)
}

func TestIngestAndQueryText(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	docID, n, err := svc.IngestText(ctx, "notes.txt",
		"Reciprocal rank fusion merges ranked lists from keyword and vector search. "+
			"A completely unrelated sentence about gardening and tomatoes follows here now.")
	require.NoError(t, err)
	require.NotEmpty(t, docID)
	require.Greater(t, n, 0)

	res, err := svc.Query(ctx, "rank fusion", QueryOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	assert.Contains(t, res.Results[0].Chunk.Text, "fusion")
	assert.Equal(t, domain.ContentText, res.Results[0].Chunk.Metadata.ContentType)
}

func TestIngestWithRemoteEmbedder(t *testing.T) {
	// Remote embedders report dimension 0 until their first response; the
	// first ingest must still size the collection correctly.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"index": i, "embedding": []float64{1, 0, 0}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	t.Setenv("SERVICE_EMBED_TEST_KEY", "secret")
	emb, err := embedding.NewOpenAIClient(embedding.OpenAIConfig{
		BaseURL:   srv.URL,
		APIKeyEnv: "SERVICE_EMBED_TEST_KEY",
	})
	require.NoError(t, err)

	svc := newTestServiceWith(t, nil, emb, memory.NewStore())
	_, n, err := svc.IngestText(context.Background(), "notes.txt",
		"remote embeddings report their dimension only after the first call")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, emb.Dimension())
}

func TestQueryConcurrent(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, _, err := svc.IngestText(ctx, "notes.txt",
		"hybrid retrieval fuses keyword and vector search results")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Query(ctx, "hybrid retrieval", QueryOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	svc.histMu.Lock()
	turns := len(svc.history)
	svc.histMu.Unlock()
	assert.Equal(t, 4, turns, "every query records its own turn")
}

func TestIngestTextIdempotentIDs(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	docID, n, err := svc.IngestText(ctx, "a.txt", "some short document")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, domain.ChunkID(docID, domain.ContentText, 0), docID+":text:0")
}

func TestQueryDecompositionUnion(t *testing.T) {
	gen := &promptGenerator{decompose: "1. what is alpha\n2. what is beta"}
	svc := newTestService(t, gen)
	ctx := context.Background()

	_, _, err := svc.IngestText(ctx, "alpha.txt", "alpha is the first letter of the greek alphabet")
	require.NoError(t, err)
	_, _, err = svc.IngestText(ctx, "beta.txt", "beta is the second letter used widely in science")
	require.NoError(t, err)

	res, err := svc.Query(ctx, "what is the difference between alpha and beta", QueryOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"what is alpha", "what is beta"}, res.SubQueries)

	seen := map[string]int{}
	var files []string
	for _, r := range res.Results {
		seen[r.Chunk.ID]++
		files = append(files, r.Chunk.Metadata.FileName)
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "chunk %s duplicated across sub-query results", id)
	}
	assert.Contains(t, files, "alpha.txt")
	assert.Contains(t, files, "beta.txt")
}

func TestQueryCoreferenceUsesHistory(t *testing.T) {
	gen := &promptGenerator{resolved: "what are the principles of law x"}
	svc := newTestService(t, gen)
	ctx := context.Background()

	_, _, err := svc.IngestText(ctx, "law.txt", "the principles of law x are fairness and transparency")
	require.NoError(t, err)

	// First turn establishes history.
	_, err = svc.Query(ctx, "what is law x", QueryOptions{})
	require.NoError(t, err)

	res, err := svc.Query(ctx, "what about its principles", QueryOptions{})
	require.NoError(t, err)
	assert.Equal(t, "what are the principles of law x", res.ResolvedQuery)
	require.NotEmpty(t, res.Results)
}

func TestIngestTranscriptAndWindowQuery(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	segments := []domain.TranscriptSegment{
		{Text: "welcome to the lecture about databases", Start: 0, End: 50},
		{Text: "indexes speed up lookups significantly", Start: 130, End: 170},
		{Text: "finally we cover transactions and locking", Start: 400, End: 450},
	}
	_, n, err := svc.IngestTranscript(ctx, "lecture.mp3", segments)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	window := domain.TimeWindow{Start: 120, End: 300}
	res, err := svc.Query(ctx, "indexes lookups", QueryOptions{
		ContentType: domain.ContentAudio,
		Window:      &window,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Results)
	for _, r := range res.Results {
		assert.Equal(t, domain.ContentAudio, r.Chunk.Metadata.ContentType)
		assert.True(t, window.Overlaps(r.Chunk.Metadata.StartTime, r.Chunk.Metadata.EndTime))
	}
}

func TestSummarizeWindow(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	segments := []domain.TranscriptSegment{
		{Text: "The lecture introduces relational databases and their history.", Start: 0, End: 50},
		{Text: "Indexes make queries on large tables much faster.", Start: 130, End: 170},
	}
	_, _, err := svc.IngestTranscript(ctx, "lecture.mp3", segments)
	require.NoError(t, err)

	summary, err := svc.SummarizeWindow(ctx, domain.TimeWindow{Start: 120, End: 300})
	require.NoError(t, err)
	assert.Contains(t, summary, "Indexes")
	assert.NotContains(t, summary, "relational databases", "out-of-window content must not leak into the summary")
}

func TestSummarizeWindowEmpty(t *testing.T) {
	svc := newTestService(t, nil)
	summary, err := svc.SummarizeWindow(context.Background(), domain.TimeWindow{Start: 0, End: 60})
	require.NoError(t, err)
	assert.Empty(t, summary)
}

func TestTranscriptStats(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	segments := []domain.TranscriptSegment{
		{Text: "one two three four five six. seven eight nine ten eleven twelve.", Start: 0, End: 6},
	}
	_, _, err := svc.IngestTranscript(ctx, "clip.wav", segments)
	require.NoError(t, err)

	stats, err := svc.TranscriptStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Words)
	assert.Equal(t, 2, stats.Sentences)
	assert.Equal(t, 6.0, stats.DurationSecs)
}

func TestReset(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, _, err := svc.IngestText(ctx, "a.txt", "some content to forget")
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx))

	res, err := svc.Query(ctx, "content", QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
}
