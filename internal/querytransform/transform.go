// Package querytransform rewrites user queries before retrieval: compound
// queries decompose into sub-queries, single queries widen into paraphrased
// variants, and follow-up queries resolve their references against prior
// conversation turns. Every operation is a prompt against the generation
// service plus a tolerant parse of its numbered-list output.
package querytransform

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rag-media-search/internal/domain"
)

const decomposePrompt = `Break the question below into at most %d simpler,
self-contained sub-questions whose answers together address it. If the
question is already simple, repeat it as the only item. Answer with a
numbered list only.

Question: %s`

const fusionPrompt = `Write %d alternative phrasings of the search query
below. Keep the meaning, vary the wording. Answer with a numbered list only.

Query: %s`

const coreferencePrompt = `Rewrite the latest question so it is fully
self-contained, replacing pronouns and implicit references using the
conversation. If the question is already self-contained or the conversation
gives no antecedent, repeat it unchanged. Answer with the rewritten question
only.

Conversation:
%s

Latest question: %s`

// Transformer bounds fan-out: at most maxSubQueries sub-queries and
// maxVariants fusion variants per call.
type Transformer struct {
	gen           domain.Generator
	maxSubQueries int
	maxVariants   int
	log           *zap.Logger
}

func New(gen domain.Generator, maxSubQueries, maxVariants int, log *zap.Logger) *Transformer {
	if maxSubQueries <= 0 {
		maxSubQueries = 4
	}
	if maxVariants <= 0 {
		maxVariants = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Transformer{gen: gen, maxSubQueries: maxSubQueries, maxVariants: maxVariants, log: log}
}

// Decompose splits a compound query into ordered sub-queries. The original
// query alone comes back when no generator is configured, when it fails, or
// when the model finds nothing to split.
func (t *Transformer) Decompose(ctx context.Context, query string) []string {
	if t.gen == nil {
		return []string{query}
	}
	out, err := t.gen.Generate(ctx, fmt.Sprintf(decomposePrompt, t.maxSubQueries, query))
	if err != nil {
		t.log.Warn("query decomposition failed, using original query", zap.Error(err))
		return []string{query}
	}
	subs := parseNumberedList(out, t.maxSubQueries)
	if len(subs) == 0 {
		return []string{query}
	}
	return subs
}

// FusionQueries returns the original query followed by up to maxVariants
// paraphrases of it.
func (t *Transformer) FusionQueries(ctx context.Context, query string) []string {
	queries := []string{query}
	if t.gen == nil {
		return queries
	}
	out, err := t.gen.Generate(ctx, fmt.Sprintf(fusionPrompt, t.maxVariants, query))
	if err != nil {
		t.log.Warn("fusion query generation failed, using original query", zap.Error(err))
		return queries
	}
	for _, variant := range parseNumberedList(out, t.maxVariants) {
		if !strings.EqualFold(variant, query) {
			queries = append(queries, variant)
		}
	}
	return queries
}

// ResolveCoreference rewrites pronouns and implicit references in the query
// using prior turns. Without history, without a generator, or on failure the
// query comes back unchanged; intent is never silently replaced.
func (t *Transformer) ResolveCoreference(ctx context.Context, query string, history []domain.Turn) string {
	if t.gen == nil || len(history) == 0 {
		return query
	}
	var b strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", turn.Query, turn.Answer)
	}
	out, err := t.gen.Generate(ctx, fmt.Sprintf(coreferencePrompt, b.String(), query))
	if err != nil {
		t.log.Warn("coreference resolution failed, using original query", zap.Error(err))
		return query
	}
	resolved := strings.TrimSpace(out)
	if resolved == "" {
		return query
	}
	return resolved
}

// parseNumberedList extracts items from model output formatted as a numbered
// or bulleted list, tolerating stray prose lines and capping at limit.
func parseNumberedList(out string, limit int) []string {
	var items []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		item := strings.TrimLeft(line, "0123456789")
		if len(item) == len(line) {
			item = strings.TrimLeft(line, "-*•")
			if len(item) == len(line) {
				continue // prose line, not a list item
			}
		}
		item = strings.TrimSpace(strings.TrimLeft(item, ".)"))
		item = strings.Trim(item, `"`)
		if item == "" {
			continue
		}
		items = append(items, item)
		if len(items) == limit {
			break
		}
	}
	return items
}
