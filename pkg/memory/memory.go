package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/echomind-ai/echomind/pkg/embed"
)

// Category tags a memory record. The set is closed: values must be
// registered before use so stores can validate inserts.
type Category string

// Built-in categories.
const (
	// CategoryGeneral is the default for taught knowledge
	CategoryGeneral Category = "general"

	// CategoryResearched marks facts written by the research pipeline
	CategoryResearched Category = "researched_knowledge"

	// CategoryPersonal marks user-specific taught knowledge
	CategoryPersonal Category = "personal"
)

var (
	categoryMu sync.RWMutex
	categories = map[Category]struct{}{
		CategoryGeneral:    {},
		CategoryResearched: {},
		CategoryPersonal:   {},
	}
)

// RegisterCategory adds a category to the closed set. Registration is
// idempotent.
func RegisterCategory(c Category) {
	categoryMu.Lock()
	defer categoryMu.Unlock()
	categories[c] = struct{}{}
}

// ValidCategory reports whether c has been registered.
func ValidCategory(c Category) bool {
	categoryMu.RLock()
	defer categoryMu.RUnlock()
	_, ok := categories[c]
	return ok
}

// Record is a single memory entry. Records are owned exclusively by a Store
// and mutated only through Insert and Deactivate; the embedding is immutable
// once set.
type Record struct {
	// ID is a unique identifier assigned by the store on insert
	ID string `json:"id"`

	// InputText is the question or input pattern this memory answers
	InputText string `json:"input_text"`

	// OutputText is the response associated with the input
	OutputText string `json:"output_text"`

	// Context is optional free text about the memory's origin
	Context string `json:"context,omitempty"`

	// Category organizes the record; defaults to CategoryGeneral
	Category Category `json:"category"`

	// Embedding is the vector for InputText; same dimensionality across the store
	Embedding []float32 `json:"embedding"`

	// Confidence is the trust score in [0,1] assigned at insert time
	Confidence float64 `json:"confidence"`

	// Active is the soft-delete flag; inactive records are never returned
	// by reads and never hard-deleted by normal operations
	Active bool `json:"active"`

	// CreatedAt is when this record was stored
	CreatedAt time.Time `json:"created_at"`
}

// Match pairs a record with its raw cosine similarity to a query vector.
type Match struct {
	Record     Record
	Similarity float64
}

// Filter narrows Query and ListActive results.
type Filter struct {
	// Category restricts results to one category when non-empty
	Category Category
}

// Store owns the authoritative collection of memory records.
//
// Implementations must be safe for concurrent use: readers never observe a
// half-written record, and all read operations consider only active records.
type Store interface {
	// Insert assigns an identifier and persists the record. It fails with
	// errors.ErrDimensionMismatch when the embedding does not match the
	// store's fixed dimension, and with errors.ErrCapacityExceeded when the
	// store is at its configured limit; a rejected insert never mutates
	// the store.
	Insert(ctx context.Context, record Record) (string, error)

	// Query returns up to topK active records ordered by descending cosine
	// similarity to vector, ties broken by more recent creation time.
	Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]Match, error)

	// Deactivate soft-deletes a record. Idempotent; unknown IDs return
	// errors.ErrNotFound.
	Deactivate(ctx context.Context, id string) error

	// ListActive returns active records, newest first, with offset/limit
	// paging. A nil filter returns all categories.
	ListActive(ctx context.Context, filter *Filter, limit, offset int) ([]Record, error)

	// CountActive returns the number of active records.
	CountActive(ctx context.Context) (int, error)

	// Dimension returns the store's fixed embedding dimensionality.
	Dimension() int
}

// RankMatches sorts matches by descending similarity, breaking ties by more
// recent creation timestamp, and truncates to topK. Adapters that compute
// similarities in Go share this so ordering semantics stay identical.
func RankMatches(matches []Match, topK int) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Record.CreatedAt.After(matches[j].Record.CreatedAt)
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// Similarity is a convenience alias for the shared cosine implementation.
func Similarity(a, b []float32) float64 {
	return embed.CosineSimilarity(a, b)
}
