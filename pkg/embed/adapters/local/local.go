// Package local provides a deterministic, dependency-free embedding encoder.
// It hashes word tokens into a fixed-dimension bag-of-words vector and
// L2-normalizes the result. Texts sharing vocabulary land near each other,
// which is sufficient for offline operation and deterministic tests; swap in
// the OpenAI encoder for real semantic quality.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Encoder implements embed.Encoder with hashed bag-of-words vectors.
type Encoder struct {
	dimension int
}

// NewEncoder creates a local encoder with the given dimensionality.
func NewEncoder(dimension int) *Encoder {
	if dimension <= 0 {
		dimension = 384
	}
	return &Encoder{dimension: dimension}
}

// Encode returns the deterministic vector for the given text.
func (e *Encoder) Encode(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, e.dimension)

	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()

		idx := int(sum % uint32(e.dimension))
		// The high bit decides sign so unrelated tokens cancel rather
		// than pile up in shared buckets.
		if sum&0x80000000 != 0 {
			vector[idx] -= 1
		} else {
			vector[idx] += 1
		}
	}

	normalize(vector)
	return vector, nil
}

// Dimension returns the encoder's output dimensionality.
func (e *Encoder) Dimension() int {
	return e.dimension
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vector []float32) {
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range vector {
		vector[i] = float32(float64(vector[i]) / norm)
	}
}
