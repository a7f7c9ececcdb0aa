// Package wikipedia implements a search provider over the MediaWiki
// search API.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/search"
)

const apiURL = "https://en.wikipedia.org/w/api.php"

// Config contains the configuration for the Wikipedia provider.
type Config struct {
	// Timeout bounds each API request.
	Timeout time.Duration

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
}

// Provider implements search.Provider using the MediaWiki search API.
type Provider struct {
	client  *http.Client
	baseURL string
}

// NewProvider creates a Wikipedia search provider.
func NewProvider(config Config) *Provider {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = apiURL
	}
	return &Provider{
		client:  &http.Client{Timeout: config.Timeout},
		baseURL: config.BaseURL,
	}
}

// Name implements search.Provider.
func (p *Provider) Name() string { return "wikipedia" }

type searchResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
			PageID  int    `json:"pageid"`
		} `json:"search"`
	} `json:"query"`
}

var htmlTags = regexp.MustCompile(`<[^>]+>`)

// Search implements search.Provider.
func (p *Provider) Search(ctx context.Context, query string, max int) ([]search.Result, error) {
	if max <= 0 {
		max = 5
	}

	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("srsearch", query)
	params.Set("srlimit", fmt.Sprintf("%d", max))
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrProviderUnavailable, "wikipedia request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(errors.ErrProviderUnavailable, "wikipedia returned status %d", resp.StatusCode)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]search.Result, 0, len(decoded.Query.Search))
	for _, item := range decoded.Query.Search {
		results = append(results, search.Result{
			Title:   item.Title,
			URL:     fmt.Sprintf("https://en.wikipedia.org/?curid=%d", item.PageID),
			Snippet: htmlTags.ReplaceAllString(item.Snippet, ""),
			Source:  p.Name(),
		})
	}
	return results, nil
}
