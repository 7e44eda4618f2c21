// Package augment turns raw extracted descriptions of non-text content
// (tables, image captions) into self-contained retrievable text by weaving in
// the surrounding document context.
package augment

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rag-media-search/internal/domain"
)

const augmentPrompt = `You are preparing document content for a search index.
Rewrite the extracted content below as one self-contained description.
Resolve references like "the table above" using the surrounding context.
Answer with the description only, no preamble.

Surrounding context:
%s

Extracted content:
%s`

// Augmenter produces indexable descriptions with an optional generator. A nil
// generator means plain local joining, so ingestion works fully offline.
type Augmenter struct {
	gen domain.Generator
	log *zap.Logger
}

func New(gen domain.Generator, log *zap.Logger) *Augmenter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Augmenter{gen: gen, log: log}
}

// Augment combines a raw extracted description with its surrounding context.
// An empty raw description returns the context unmodified so every extracted
// item still yields an indexable chunk. Generator failures fall back to a
// local join and are reported in the log, never to the caller.
func (a *Augmenter) Augment(ctx context.Context, raw, surrounding string) string {
	raw = strings.TrimSpace(raw)
	surrounding = strings.TrimSpace(surrounding)
	if raw == "" {
		return surrounding
	}
	if surrounding == "" {
		return raw
	}
	if a.gen != nil {
		out, err := a.gen.Generate(ctx, fmt.Sprintf(augmentPrompt, surrounding, raw))
		if err == nil && strings.TrimSpace(out) != "" {
			return strings.TrimSpace(out)
		}
		a.log.Warn("augmentation generator failed, joining locally", zap.Error(err))
	}
	return surrounding + "\n\n" + raw
}
