package models

import (
	"fmt"
	"math"
)

// Embedding is a fixed-length numeric vector. Vectors coming out of storage
// are validated once at the boundary so the averaging and similarity code
// never sees malformed input.
type Embedding []float32

// ParseEmbedding validates a raw float slice against the expected dimension.
// Non-finite components are rejected along with dimension mismatches.
func ParseEmbedding(raw []float32, dim int) (Embedding, error) {
	if len(raw) != dim {
		return nil, fmt.Errorf("embedding dimension %d, expected %d", len(raw), dim)
	}
	for i, v := range raw {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("embedding component %d is not finite", i)
		}
	}
	return Embedding(raw), nil
}

// ZeroEmbedding returns the cold-start sentinel: an all-zero vector of the
// given dimension. Callers must treat it as "no signal", not as a preference.
func ZeroEmbedding(dim int) Embedding {
	return make(Embedding, dim)
}

// IsZero reports whether every component is exactly zero.
func (e Embedding) IsZero() bool {
	for _, v := range e {
		if v != 0 {
			return false
		}
	}
	return true
}

// Cosine computes cosine similarity with another vector. Mismatched
// dimensions or zero-norm vectors yield 0.
func (e Embedding) Cosine(other Embedding) float64 {
	if len(e) != len(other) {
		return 0.0
	}

	var dot, norm1, norm2 float64
	for i := range e {
		dot += float64(e[i]) * float64(other[i])
		norm1 += float64(e[i]) * float64(e[i])
		norm2 += float64(other[i]) * float64(other[i])
	}

	if norm1 == 0 || norm2 == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(norm1) * math.Sqrt(norm2))
}
