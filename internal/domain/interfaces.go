package domain

import (
	"context"
	"io"
)

// Embedder converts free text into numeric vector representations.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Chunker splits raw content into retrieval units.
type Chunker interface {
	Chunk(content string) ([]string, error)
}

// SearchStore persists chunks and serves both lexical and vector queries
// over a single collection. Writes are keyed by chunk ID (last write wins).
type SearchStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk) error
	KeywordSearch(ctx context.Context, terms []string, topK int) ([]RankedResult, error)
	VectorSearch(ctx context.Context, vector []float64, topK int) ([]RankedResult, error)
	List(ctx context.Context, filter ChunkFilter) ([]Chunk, error)
	Clear(ctx context.Context) error
}

// RerankScorer scores (query, text) pairs, returning one score per text in
// input order.
type RerankScorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Generator is the narrow language-generation contract behind query
// transformation, augmentation and summarization. Tests inject a stub.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Transcriber converts an audio stream into timestamped segments.
// Callers must pre-split audio larger than the service's input limit.
type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, audio io.Reader, size int64) ([]TranscriptSegment, error)
}

// Describer produces a natural-language description of an image.
type Describer interface {
	Describe(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(ctx context.Context, text string, maxSentences int) (string, error)
}
