// Package search defines the external knowledge source abstraction used by
// the research pipeline. Adapters live under adapters/.
package search

import "context"

// Result is a single item returned by a search provider.
type Result struct {
	Title   string
	URL     string
	Snippet string
	Source  string
}

// Provider fetches search results for a query. Implementations must honor
// context cancellation and return at most max results.
type Provider interface {
	// Name identifies the provider in logs and result attribution.
	Name() string

	// Search runs a query. An empty result set with a nil error means the
	// provider had nothing; errors mean the provider itself failed.
	Search(ctx context.Context, query string, max int) ([]Result, error)
}
