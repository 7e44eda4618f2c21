// Package service wires the pipeline together: ingestion (chunk, augment,
// embed, index) and querying (transform, hybrid retrieve, fuse, rerank).
package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rag-media-search/internal/audio"
	"rag-media-search/internal/augment"
	"rag-media-search/internal/chunker"
	"rag-media-search/internal/domain"
	"rag-media-search/internal/indexer"
	"rag-media-search/internal/querytransform"
	"rag-media-search/internal/retrieval"
	"rag-media-search/internal/summarizer"
)

const answerPrompt = `Answer the question using only the excerpts below. If
they do not contain the answer, say so. Be concise.

Excerpts:
%s

Question: %s`

// Deps are the collaborators the service is assembled from. Transcriber,
// describer and generator are optional; the pipeline degrades to local
// behavior without them.
type Deps struct {
	Chunker     *chunker.TokenChunker
	Transcripts *chunker.TranscriptChunker
	Augmenter   *augment.Augmenter
	Embedder    domain.Embedder
	Store       domain.SearchStore
	Indexer     *indexer.Indexer
	Retriever   *retrieval.HybridRetriever
	Reranker    *retrieval.Reranker
	Transformer *querytransform.Transformer
	Summarizer  domain.Summarizer
	Transcriber domain.Transcriber
	Describer   domain.Describer
	Generator   domain.Generator

	TopK          int
	BranchTimeout time.Duration
	MaxSentences  int
	Log           *zap.Logger
}

// RAGService is the façade the TUI and demo binary talk to. It is not safe
// for concurrent ingestion; queries may run concurrently with each other.
// Concurrent queries each see the history committed before they started and
// append their own turn when they finish.
type RAGService struct {
	deps     Deps
	fallback *summarizer.FrequencySummarizer
	prepared bool
	log      *zap.Logger

	histMu  sync.Mutex
	history []domain.Turn
}

// QueryResult is the outcome of one query: the final ranking, the query as it
// was actually retrieved after coreference resolution, an optional generated
// answer, and whether any stage fell back to degraded behavior.
type QueryResult struct {
	Results       []domain.RankedResult
	ResolvedQuery string
	SubQueries    []string
	Answer        string
	Degraded      bool
}

// QueryOptions narrows a query to a content type and/or audio time window.
type QueryOptions struct {
	ContentType domain.ContentType
	Window      *domain.TimeWindow
}

func New(deps Deps) *RAGService {
	if deps.TopK <= 0 {
		deps.TopK = 10
	}
	if deps.BranchTimeout <= 0 {
		deps.BranchTimeout = 15 * time.Second
	}
	if deps.MaxSentences <= 0 {
		deps.MaxSentences = 5
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &RAGService{deps: deps, fallback: summarizer.NewFrequencySummarizer(), log: deps.Log}
}

// IngestText chunks and indexes a text document. It returns the document ID
// and committed chunk count. A PartialIndexError reports chunks that did not
// commit; re-ingesting is safe because chunk IDs are deterministic.
func (s *RAGService) IngestText(ctx context.Context, fileName, text string) (string, int, error) {
	pieces, err := s.deps.Chunker.Chunk(text)
	if err != nil {
		return "", 0, err
	}
	docID := uuid.NewString()
	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(docID, domain.ContentText, i),
			DocumentID: docID,
			Text:       piece,
			Metadata: domain.SourceMetadata{
				FileName:    fileName,
				ContentType: domain.ContentText,
				ChunkIndex:  i,
			},
		})
	}
	n, err := s.index(ctx, chunks)
	return docID, n, err
}

// IngestTable augments table markdown with its surrounding context and
// indexes the result as table chunks.
func (s *RAGService) IngestTable(ctx context.Context, fileName string, page int, tableMarkdown, surrounding string) (string, int, error) {
	described := s.deps.Augmenter.Augment(ctx, tableMarkdown, surrounding)
	if strings.TrimSpace(described) == "" {
		return "", 0, fmt.Errorf("table in %s produced no indexable text", fileName)
	}
	pieces, err := s.deps.Chunker.Chunk(described)
	if err != nil {
		return "", 0, err
	}
	docID := uuid.NewString()
	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(docID, domain.ContentTable, i),
			DocumentID: docID,
			Text:       piece,
			Metadata: domain.SourceMetadata{
				FileName:    fileName,
				Page:        page,
				ContentType: domain.ContentTable,
				ChunkIndex:  i,
			},
		})
	}
	n, err := s.index(ctx, chunks)
	return docID, n, err
}

// IngestImage describes the image, augments the description with surrounding
// context, and indexes it as a single image chunk.
func (s *RAGService) IngestImage(ctx context.Context, fileName string, page int, image []byte, mimeType, surrounding string) (string, int, error) {
	if s.deps.Describer == nil {
		return "", 0, fmt.Errorf("%w: no vision service configured", domain.ErrConfiguration)
	}
	raw, err := s.deps.Describer.Describe(ctx, image, mimeType)
	if err != nil {
		s.log.Warn("image description failed, indexing context only",
			zap.String("file", fileName), zap.Error(err))
		raw = ""
	}
	described := s.deps.Augmenter.Augment(ctx, raw, surrounding)
	if strings.TrimSpace(described) == "" {
		return "", 0, fmt.Errorf("image %s produced no indexable text", fileName)
	}
	docID := uuid.NewString()
	chunks := []domain.Chunk{{
		ID:         domain.ChunkID(docID, domain.ContentImage, 0),
		DocumentID: docID,
		Text:       described,
		Metadata: domain.SourceMetadata{
			FileName:    fileName,
			Page:        page,
			ContentType: domain.ContentImage,
			ChunkIndex:  0,
		},
	}}
	n, err := s.index(ctx, chunks)
	return docID, n, err
}

// IngestAudio transcribes the audio and indexes its transcript. The audio
// must fit the transcriber's upload limit; pre-split larger files.
func (s *RAGService) IngestAudio(ctx context.Context, fileName string, r io.Reader, size int64) (string, int, error) {
	if s.deps.Transcriber == nil {
		return "", 0, fmt.Errorf("%w: no transcription service configured", domain.ErrConfiguration)
	}
	segments, err := s.deps.Transcriber.Transcribe(ctx, fileName, r, size)
	if err != nil {
		return "", 0, err
	}
	return s.IngestTranscript(ctx, fileName, segments)
}

// IngestTranscript chunks timestamped transcript segments into time-windowed
// audio chunks and indexes them.
func (s *RAGService) IngestTranscript(ctx context.Context, fileName string, segments []domain.TranscriptSegment) (string, int, error) {
	timed := s.deps.Transcripts.ChunkSegments(segments)
	docID := uuid.NewString()
	chunks := make([]domain.Chunk, 0, len(timed))
	for i, tc := range timed {
		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(docID, domain.ContentAudio, i),
			DocumentID: docID,
			Text:       tc.Text,
			Metadata: domain.SourceMetadata{
				FileName:    fileName,
				ContentType: domain.ContentAudio,
				ChunkIndex:  i,
				StartTime:   tc.Start,
				EndTime:     tc.End,
			},
		})
	}
	n, err := s.index(ctx, chunks)
	return docID, n, err
}

func (s *RAGService) index(ctx context.Context, chunks []domain.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := s.ensurePrepared(ctx, chunks); err != nil {
		return 0, err
	}
	return s.deps.Indexer.Index(ctx, chunks)
}

// ensurePrepared builds the embedder on first ingestion and initializes the
// collection to its dimension. Corpus-derived embedders fix their vocabulary
// on the first committed corpus; later ingests reuse it.
func (s *RAGService) ensurePrepared(ctx context.Context, chunks []domain.Chunk) error {
	if s.prepared {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if err := s.deps.Embedder.Prepare(texts); err != nil {
		return fmt.Errorf("prepare embedder: %w", err)
	}
	dim := s.deps.Embedder.Dimension()
	if dim == 0 {
		// Remote embedders only learn their dimension from a response, so
		// embed one text before sizing the collection.
		if _, err := s.deps.Embedder.Embed(ctx, texts[:1]); err != nil {
			return fmt.Errorf("discover embedding dimension: %w", err)
		}
		dim = s.deps.Embedder.Dimension()
	}
	if err := s.deps.Store.Init(ctx, dim); err != nil {
		return fmt.Errorf("init collection: %w", err)
	}
	s.prepared = true
	return nil
}

// Query runs the full retrieval pipeline: coreference resolution against
// prior turns, decomposition or fusion-variant expansion, per-branch hybrid
// retrieval under a timeout, RRF across branches, filtering and reranking.
// A failing branch contributes an empty list instead of failing the query;
// an empty collection yields an empty result, not an error.
func (s *RAGService) Query(ctx context.Context, query string, opts QueryOptions) (QueryResult, error) {
	traceID := uuid.NewString()
	log := s.log.With(zap.String("query_id", traceID))

	s.histMu.Lock()
	history := append([]domain.Turn(nil), s.history...)
	s.histMu.Unlock()

	resolved := s.deps.Transformer.ResolveCoreference(ctx, query, history)
	if resolved != query {
		log.Info("resolved coreference", zap.String("rewritten", resolved))
	}

	branches := s.deps.Transformer.Decompose(ctx, resolved)
	if len(branches) == 1 {
		branches = s.deps.Transformer.FusionQueries(ctx, resolved)
	}
	log.Info("retrieving", zap.Int("branches", len(branches)))

	lists := make([]retrieval.SourceList, len(branches))
	var g errgroup.Group
	for i, branch := range branches {
		i, branch := i, branch
		lists[i].Name = fmt.Sprintf("branch-%d", i)
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(ctx, s.deps.BranchTimeout)
			defer cancel()
			results, err := s.deps.Retriever.Retrieve(bctx, branch)
			if err != nil {
				log.Warn("retrieval branch failed", zap.String("branch", branch), zap.Error(err))
				return nil
			}
			lists[i].Results = results
			return nil
		})
	}
	_ = g.Wait()

	fused := retrieval.FuseRRF(0, lists...)
	fused = filterResults(fused, opts)

	final, degraded := s.deps.Reranker.Rerank(ctx, resolved, fused)
	if s.deps.TopK < len(final) {
		final = final[:s.deps.TopK]
	}

	answer := s.answer(ctx, resolved, final)
	turnAnswer := answer
	if turnAnswer == "" && len(final) > 0 {
		turnAnswer = final[0].Chunk.Text
	}
	s.histMu.Lock()
	s.history = append(s.history, domain.Turn{Query: resolved, Answer: turnAnswer})
	s.histMu.Unlock()

	log.Info("query finished", zap.Int("results", len(final)), zap.Bool("degraded", degraded))
	return QueryResult{
		Results:       final,
		ResolvedQuery: resolved,
		SubQueries:    branches,
		Answer:        answer,
		Degraded:      degraded,
	}, nil
}

func (s *RAGService) answer(ctx context.Context, query string, results []domain.RankedResult) string {
	if s.deps.Generator == nil || len(results) == 0 {
		return ""
	}
	var b strings.Builder
	for i, r := range results {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "[%d] %s\n", i+1, r.Chunk.Text)
	}
	out, err := s.deps.Generator.Generate(ctx, fmt.Sprintf(answerPrompt, b.String(), query))
	if err != nil {
		s.log.Warn("answer generation failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(out)
}

// SummarizeWindow summarizes the audio transcript inside the time window.
// When the configured summarizer fails, the local frequency summarizer takes
// over rather than failing the request.
func (s *RAGService) SummarizeWindow(ctx context.Context, window domain.TimeWindow) (string, error) {
	chunks, err := s.deps.Store.List(ctx, domain.ChunkFilter{
		ContentType: domain.ContentAudio,
		Window:      &window,
	})
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", nil
	}
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Metadata.StartTime < chunks[j].Metadata.StartTime
	})
	var b strings.Builder
	for _, ch := range chunks {
		fmt.Fprintf(&b, "Time %.1f–%.1f minutes: %s\n",
			ch.Metadata.StartTime/60, ch.Metadata.EndTime/60, ch.Text)
	}
	summary, err := s.deps.Summarizer.Summarize(ctx, b.String(), s.deps.MaxSentences)
	if err != nil {
		s.log.Warn("summarizer failed, falling back to frequency ranking", zap.Error(err))
		return s.fallback.Summarize(ctx, b.String(), s.deps.MaxSentences)
	}
	return summary, nil
}

// TranscriptStats computes speaking statistics over all indexed audio chunks.
func (s *RAGService) TranscriptStats(ctx context.Context) (audio.Stats, error) {
	chunks, err := s.deps.Store.List(ctx, domain.ChunkFilter{ContentType: domain.ContentAudio})
	if err != nil {
		return audio.Stats{}, err
	}
	return audio.ComputeStats(chunks), nil
}

// Reset drops the collection and the conversation history.
func (s *RAGService) Reset(ctx context.Context) error {
	s.histMu.Lock()
	s.history = nil
	s.histMu.Unlock()
	s.prepared = false
	return s.deps.Store.Clear(ctx)
}

func filterResults(results []domain.RankedResult, opts QueryOptions) []domain.RankedResult {
	if opts.ContentType == "" && opts.Window == nil {
		return results
	}
	out := results[:0:0]
	for _, r := range results {
		if opts.ContentType != "" && r.Chunk.Metadata.ContentType != opts.ContentType {
			continue
		}
		if opts.Window != nil && !opts.Window.Overlaps(r.Chunk.Metadata.StartTime, r.Chunk.Metadata.EndTime) {
			continue
		}
		out = append(out, r)
	}
	return out
}
