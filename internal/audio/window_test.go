package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rag-media-search/internal/domain"
)

func audioChunk(id string, start, end float64) domain.Chunk {
	return domain.Chunk{
		ID: id,
		Metadata: domain.SourceMetadata{
			ContentType: domain.ContentAudio,
			StartTime:   start,
			EndTime:     end,
		},
	}
}

func TestFilterWindow(t *testing.T) {
	chunks := []domain.Chunk{
		audioChunk("a", 0, 60),
		audioChunk("b", 120, 180),
		audioChunk("c", 290, 340),
		audioChunk("d", 400, 500),
	}

	// Minutes 2..5 keeps the [120,180) chunk and the one straddling 300s.
	got := FilterWindow(chunks, domain.TimeWindow{Start: 120, End: 300})
	ids := make([]string, len(got))
	for i, ch := range got {
		ids[i] = ch.ID
	}
	assert.Equal(t, []string{"b", "c"}, ids)

	// Minutes 6..10 excludes the [120,180) chunk.
	got = FilterWindow(chunks, domain.TimeWindow{Start: 360, End: 600})
	assert.Len(t, got, 1)
	assert.Equal(t, "d", got[0].ID)
}

func TestFilterWindowEdgeExclusive(t *testing.T) {
	chunks := []domain.Chunk{audioChunk("edge", 60, 120)}
	assert.Empty(t, FilterWindow(chunks, domain.TimeWindow{Start: 120, End: 300}))
	assert.Empty(t, FilterWindow(chunks, domain.TimeWindow{Start: 0, End: 60}))
	assert.Len(t, FilterWindow(chunks, domain.TimeWindow{Start: 119, End: 121}), 1)
}

func TestFilterWindowEmpty(t *testing.T) {
	assert.Empty(t, FilterWindow(nil, domain.TimeWindow{Start: 0, End: 100}))
}
