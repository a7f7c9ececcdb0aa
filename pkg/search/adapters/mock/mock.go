// Package mock implements an in-memory search provider for tests and
// offline development.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/echomind-ai/echomind/pkg/search"
)

// Provider implements search.Provider from a canned result set.
// All methods are safe for concurrent use.
type Provider struct {
	mu      sync.Mutex
	results map[string][]search.Result
	err     error
	queries []string
}

// NewProvider creates an empty mock provider.
func NewProvider() *Provider {
	return &Provider{results: make(map[string][]search.Result)}
}

// Name implements search.Provider.
func (p *Provider) Name() string { return "mock" }

// Stub registers results to return for queries containing substr.
func (p *Provider) Stub(substr string, results ...search.Result) {
	p.mu.Lock()
	p.results[strings.ToLower(substr)] = results
	p.mu.Unlock()
}

// Fail makes every subsequent Search call return err.
func (p *Provider) Fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Queries returns every query the provider has seen, in order.
func (p *Provider) Queries() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.queries))
	copy(out, p.queries)
	return out
}

// Search implements search.Provider.
func (p *Provider) Search(ctx context.Context, query string, max int) ([]search.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, query)
	if p.err != nil {
		return nil, p.err
	}

	lowered := strings.ToLower(query)
	for substr, results := range p.results {
		if strings.Contains(lowered, substr) {
			if max > 0 && len(results) > max {
				results = results[:max]
			}
			out := make([]search.Result, len(results))
			copy(out, results)
			for i := range out {
				if out[i].Source == "" {
					out[i].Source = p.Name()
				}
			}
			return out, nil
		}
	}
	return nil, nil
}
