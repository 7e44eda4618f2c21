package domain

import (
	"fmt"
)

// ContentType identifies what kind of source content a chunk was extracted from.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentTable ContentType = "table"
	ContentAudio ContentType = "audio"
)

// SourceMetadata locates a chunk within its source file.
type SourceMetadata struct {
	FileName    string
	Page        int // 1-based page for document content; 0 when not applicable
	ContentType ContentType
	ChunkIndex  int
	StartTime   float64 // seconds, audio only
	EndTime     float64 // seconds, audio only
}

// Chunk is the smallest retrievable unit: text, its embedding, and where it came from.
// Chunks are immutable once indexed; re-ingesting a source overwrites by ID.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Vector     []float64
	Metadata   SourceMetadata
}

// ChunkID builds the deterministic chunk identifier. Re-indexing the same
// document produces the same IDs, which makes upserts idempotent.
func ChunkID(documentID string, ct ContentType, index int) string {
	return fmt.Sprintf("%s:%s:%d", documentID, ct, index)
}

// Duration returns the chunk's covered time in seconds (audio chunks only).
func (c Chunk) Duration() float64 {
	return c.Metadata.EndTime - c.Metadata.StartTime
}

// TranscriptSegment is one utterance from a speech-to-text service.
type TranscriptSegment struct {
	Text  string
	Start float64 // seconds
	End   float64 // seconds
}

// TimeWindow is a half-open interval [Start, End) in seconds.
type TimeWindow struct {
	Start float64
	End   float64
}

// Overlaps reports whether the window intersects [start, end).
func (w TimeWindow) Overlaps(start, end float64) bool {
	return start < w.End && end > w.Start
}

// RankedResult is a scored chunk produced by retrieval, fusion or reranking.
// Scores are comparable only within a single pass, never across passes.
type RankedResult struct {
	Chunk   Chunk
	Score   float64
	Sources []string // which rank lists contributed this chunk
}

// ChunkFilter narrows a store listing by content type and/or time window.
type ChunkFilter struct {
	ContentType ContentType // empty means all types
	Window      *TimeWindow // nil means no time restriction
}

// Turn is one prior exchange of a conversation, used for coreference resolution.
type Turn struct {
	Query  string
	Answer string
}
