package audio

import (
	"strings"

	"rag-media-search/internal/chunker"
	"rag-media-search/internal/domain"
)

// Pacing labels for how fast the speaker talks, by words per minute.
const (
	PacingFast     = "fast"
	PacingModerate = "moderate"
	PacingSlow     = "slow"
)

// Stats summarizes speaking behavior over a set of transcript chunks.
type Stats struct {
	Words            int
	Sentences        int
	DurationSecs     float64
	WordsPerMinute   float64
	SentencesPerMin  float64
	AvgChunkDuration float64
	Pacing           string
}

// ComputeStats derives speaking statistics from transcript chunks. It is pure
// over its input; chunks without a positive duration contribute text counts
// but no time.
func ComputeStats(chunks []domain.Chunk) Stats {
	var s Stats
	for _, ch := range chunks {
		s.Words += len(chunker.SplitTokens(ch.Text))
		s.Sentences += countSentences(ch.Text)
		if d := ch.Duration(); d > 0 {
			s.DurationSecs += d
		}
	}
	if len(chunks) > 0 {
		s.AvgChunkDuration = s.DurationSecs / float64(len(chunks))
	}
	if s.DurationSecs > 0 {
		minutes := s.DurationSecs / 60
		s.WordsPerMinute = float64(s.Words) / minutes
		s.SentencesPerMin = float64(s.Sentences) / minutes
	}
	switch {
	case s.WordsPerMinute > 200:
		s.Pacing = PacingFast
	case s.WordsPerMinute > 150:
		s.Pacing = PacingModerate
	default:
		s.Pacing = PacingSlow
	}
	return s
}

func countSentences(text string) int {
	n := 0
	inRun := false
	for _, r := range text {
		switch r {
		case '.', '!', '?', '。', '！', '？':
			if !inRun {
				n++
			}
			inRun = true
		default:
			inRun = false
		}
	}
	if n == 0 && strings.TrimSpace(text) != "" {
		n = 1
	}
	return n
}
