package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rag-media-search/internal/domain"
)

func TestScoreAlignsByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "why is the sky blue", req.Query)
		require.Len(t, req.Documents, 3)

		// Results come back in relevance order, not input order.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"index": 2, "relevance_score": 0.9},
				{"index": 0, "relevance_score": 0.4},
				{"index": 1, "relevance_score": 0.1},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL})
	require.NoError(t, err)

	scores, err := c.Score(context.Background(), "why is the sky blue", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.4, 0.1, 0.9}, scores)
}

func TestScoreServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL})
	require.NoError(t, err)

	_, err = c.Score(context.Background(), "q", []string{"a"})
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestScoreRejectsOutOfRangeIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"index": 7, "relevance_score": 1.0}},
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{URL: srv.URL})
	require.NoError(t, err)
	_, err = c.Score(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
}

func TestScoreEmptyInput(t *testing.T) {
	c, err := NewClient(Config{URL: "http://unused"})
	require.NoError(t, err)
	scores, err := c.Score(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewClient(Config{URL: "http://x", APIKeyEnv: "RERANK_TEST_KEY_UNSET"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	t.Setenv("RERANK_TEST_KEY", "secret")
	_, err = NewClient(Config{URL: "http://x", APIKeyEnv: "RERANK_TEST_KEY"})
	assert.NoError(t, err)
}
