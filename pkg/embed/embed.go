// Package embed defines the embedding encoder boundary: text in, fixed
// dimension vector out. Encoders are deterministic for a given input.
package embed

import (
	"context"
	"math"
)

// Encoder maps text to a fixed-dimension vector.
type Encoder interface {
	// Encode returns the embedding vector for the given text.
	Encode(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the dimensionality of vectors this encoder produces.
	Dimension() int
}

// CosineSimilarity computes cosine similarity between two vectors.
// Mismatched or zero vectors yield 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
