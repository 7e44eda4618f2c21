package chunker

import (
	"fmt"
	"strings"

	"rag-media-search/internal/domain"
)

// TimedChunk is a transcript chunk with its covered time range in seconds.
type TimedChunk struct {
	Text  string
	Start float64
	End   float64
}

// TranscriptChunker groups timestamped transcript segments into chunks of at
// most window seconds. Chunk boundaries always fall on segment (utterance)
// boundaries; a single segment longer than the window becomes its own chunk.
type TranscriptChunker struct {
	window float64
}

// NewTranscriptChunker creates a transcript chunker with the given target
// window in seconds.
func NewTranscriptChunker(windowSecs float64) (*TranscriptChunker, error) {
	if windowSecs <= 0 {
		return nil, fmt.Errorf("%w: audio window must be positive, got %v",
			domain.ErrConfiguration, windowSecs)
	}
	return &TranscriptChunker{window: windowSecs}, nil
}

// ChunkSegments splits segments into timed chunks, preserving order. The
// result is deterministic for identical input.
func (c *TranscriptChunker) ChunkSegments(segments []domain.TranscriptSegment) []TimedChunk {
	if len(segments) == 0 {
		return nil
	}
	var chunks []TimedChunk
	var texts []string
	start := segments[0].Start
	end := segments[0].End

	flush := func() {
		text := strings.TrimSpace(strings.Join(texts, " "))
		if text != "" {
			chunks = append(chunks, TimedChunk{Text: text, Start: start, End: end})
		}
		texts = texts[:0]
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if len(texts) > 0 && seg.End-start > c.window {
			flush()
		}
		if len(texts) == 0 {
			start = seg.Start
		}
		texts = append(texts, text)
		end = seg.End
	}
	flush()
	return chunks
}
