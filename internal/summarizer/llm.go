package summarizer

import (
	"context"
	"fmt"
	"strings"

	"rag-media-search/internal/domain"
)

const summaryPrompt = `Summarize the content below in at most %d sentences.
Keep concrete facts, names and numbers. Answer with the summary only.

Content:
%s`

// LLMSummarizer summarizes through the generation service.
type LLMSummarizer struct {
	gen domain.Generator
}

func NewLLMSummarizer(gen domain.Generator) *LLMSummarizer {
	return &LLMSummarizer{gen: gen}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	out, err := s.gen.Generate(ctx, fmt.Sprintf(summaryPrompt, maxSentences, text))
	if err != nil {
		return "", fmt.Errorf("llm summarize: %w", err)
	}
	return strings.TrimSpace(out), nil
}
