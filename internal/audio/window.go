// Package audio holds the audio-specific retrieval pieces: time-window
// filtering over transcript chunks, speaking statistics, and the
// speech-to-text client.
package audio

import "rag-media-search/internal/domain"

// FilterWindow keeps the chunks whose [start, end) range intersects the
// window: start < window end and end > window start. A chunk touching the
// window only at its edge is excluded.
func FilterWindow(chunks []domain.Chunk, window domain.TimeWindow) []domain.Chunk {
	var out []domain.Chunk
	for _, ch := range chunks {
		if window.Overlaps(ch.Metadata.StartTime, ch.Metadata.EndTime) {
			out = append(out, ch)
		}
	}
	return out
}
