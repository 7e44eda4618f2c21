package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStopwords(t *testing.T) {
	a := Stopwords()
	assert.Contains(t, a, "the")
	assert.NotContains(t, a, "fusion")

	b := Stopwords()
	delete(a, "the")
	assert.Contains(t, b, "the", "each call returns an independent copy")
}
