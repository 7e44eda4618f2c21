package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"rag-media-search/internal/domain"
)

// TokenChunker splits text into token-based chunks. Each chunk advances the
// cursor by unitSize tokens and carries the first overlap tokens of its
// successor, so adjacent chunks share exactly overlap tokens.
type TokenChunker struct {
	unitSize int
	overlap  int
}

// NewTokenChunker creates a token chunker. overlap >= unitSize is a
// configuration error and fails fast.
func NewTokenChunker(unitSize, overlap int) (*TokenChunker, error) {
	if unitSize <= 0 {
		return nil, fmt.Errorf("%w: unit size must be positive, got %d",
			domain.ErrConfiguration, unitSize)
	}
	if overlap < 0 || overlap >= unitSize {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, unit size %d)",
			domain.ErrConfiguration, overlap, unitSize)
	}
	return &TokenChunker{unitSize: unitSize, overlap: overlap}, nil
}

// Chunk splits content into chunk texts, preserving original token order.
// Content shorter than the unit size yields exactly one chunk. The split is
// deterministic: identical input and parameters yield identical output.
func (c *TokenChunker) Chunk(content string) ([]string, error) {
	tokens := SplitTokens(content)
	if len(tokens) == 0 {
		return nil, nil
	}
	if len(tokens) <= c.unitSize {
		return []string{JoinTokens(tokens)}, nil
	}
	var chunks []string
	for start := 0; start < len(tokens); start += c.unitSize {
		end := start + c.unitSize + c.overlap
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, JoinTokens(tokens[start:end]))
	}
	return chunks, nil
}

// SplitTokens splits content into retrieval units: whitespace-separated words
// for space-delimited scripts, individual runes for CJK scripts (which carry
// no word delimiters).
func SplitTokens(content string) []string {
	var tokens []string
	for _, field := range strings.Fields(content) {
		var current strings.Builder
		for _, r := range field {
			if isCJK(r) {
				if current.Len() > 0 {
					tokens = append(tokens, current.String())
					current.Reset()
				}
				tokens = append(tokens, string(r))
				continue
			}
			current.WriteRune(r)
		}
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
		}
	}
	return tokens
}

// JoinTokens reassembles tokens into text. A space separates two tokens only
// when both sides are non-CJK; CJK runes rejoin without separators.
func JoinTokens(tokens []string) string {
	var b strings.Builder
	for i, tok := range tokens {
		if i > 0 && !endsCJK(tokens[i-1]) && !startsCJK(tok) {
			b.WriteByte(' ')
		}
		b.WriteString(tok)
	}
	return b.String()
}

// Terms lowercases and tokenizes text for lexical matching. CJK runes become
// individual terms, which stands in for word segmentation on scripts without
// whitespace delimiters.
func Terms(text string) []string {
	return SplitTokens(strings.ToLower(text))
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func startsCJK(s string) bool {
	for _, r := range s {
		return isCJK(r)
	}
	return false
}

func endsCJK(s string) bool {
	var last rune
	for _, r := range s {
		last = r
	}
	return isCJK(last)
}
