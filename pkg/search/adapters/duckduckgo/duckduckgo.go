// Package duckduckgo implements a search provider over the DuckDuckGo
// Instant Answer API. The API needs no key, which makes it the default
// provider for self-hosted deployments.
package duckduckgo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/echomind-ai/echomind/pkg/errors"
	"github.com/echomind-ai/echomind/pkg/search"
)

const apiURL = "https://api.duckduckgo.com/"

// Config contains the configuration for the DuckDuckGo provider.
type Config struct {
	// Timeout bounds each API request.
	Timeout time.Duration

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
}

// Provider implements search.Provider using the Instant Answer API.
type Provider struct {
	client  *http.Client
	baseURL string
}

// NewProvider creates a DuckDuckGo search provider.
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
func (p *Provider) Name() string { return "duckduckgo" }

type instantAnswer struct {
	AbstractText  string         `json:"AbstractText"`
	AbstractURL   string         `json:"AbstractURL"`
	Heading       string         `json:"Heading"`
	Definition    string         `json:"Definition"`
	DefinitionURL string         `json:"DefinitionURL"`
	RelatedTopics []relatedTopic `json:"RelatedTopics"`
}

type relatedTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

// Search implements search.Provider.
func (p *Provider) Search(ctx context.Context, query string, max int) ([]search.Result, error) {
	if max <= 0 {
		max = 5
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrProviderUnavailable, "duckduckgo request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrap(errors.ErrProviderUnavailable, "duckduckgo returned status %d", resp.StatusCode)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	var results []search.Result
	if answer.AbstractText != "" {
		results = append(results, search.Result{
			Title:   answer.Heading,
			URL:     answer.AbstractURL,
			Snippet: answer.AbstractText,
			Source:  p.Name(),
		})
	}
	if answer.Definition != "" {
		results = append(results, search.Result{
			Title:   answer.Heading,
			URL:     answer.DefinitionURL,
			Snippet: answer.Definition,
			Source:  p.Name(),
		})
	}
	for _, topic := range answer.RelatedTopics {
		if len(results) >= max {
			break
		}
		if topic.Text == "" {
			continue
		}
		results = append(results, search.Result{
			Title:   topic.Text,
			URL:     topic.FirstURL,
			Snippet: topic.Text,
			Source:  p.Name(),
		})
	}
	if len(results) > max {
		results = results[:max]
	}
	return results, nil
}
