package wikipedia_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/search/adapters/wikipedia"
)

func TestSearchParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "docker", r.URL.Query().Get("srsearch"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"query": {
				"search": [
					{"title": "Docker (software)", "snippet": "<span>Docker</span> is a containerization platform.", "pageid": 38747786}
				]
			}
		}`))
	}))
	defer server.Close()

	provider := wikipedia.NewProvider(wikipedia.Config{BaseURL: server.URL})
	results, err := provider.Search(context.Background(), "docker", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Docker (software)", results[0].Title)
	assert.Equal(t, "Docker is a containerization platform.", results[0].Snippet)
	assert.Equal(t, "wikipedia", results[0].Source)
	assert.Contains(t, results[0].URL, "38747786")
}

func TestSearchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider := wikipedia.NewProvider(wikipedia.Config{BaseURL: server.URL})
	_, err := provider.Search(context.Background(), "docker", 5)
	assert.ErrorIs(t, err, errors.ErrProviderUnavailable)
}
