// Package voiceprint compares speaker embedding vectors for identity match.
//
// Two embeddings produced by the same model can be scored with cosine
// similarity; a score at or above the match threshold means the two clips
// are considered to come from the same speaker. The comparison is a pure
// function of its inputs — no model is involved.
package voiceprint

import (
	"fmt"
	"math"
)

// DefaultThreshold is the cosine similarity at or above which two
// embeddings are considered the same speaker.
const DefaultThreshold = 0.80

// epsilon keeps the denominator non-zero for degenerate (near-zero) vectors.
const epsilon = 1e-8

// ShapeError indicates the two embeddings cannot be compared because their
// shapes differ. No arithmetic is performed when this is returned.
type ShapeError struct {
	LenA, LenB int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("voiceprint: embeddings must be non-empty vectors of equal length (got %d and %d)", e.LenA, e.LenB)
}

// Result is the outcome of comparing two embeddings.
type Result struct {
	// Similarity is the cosine similarity in [-1, 1], rounded to 4 decimals.
	Similarity float64

	// IsMatch reports whether the raw, unrounded similarity met the
	// threshold. The boundary is inclusive: a score exactly at the
	// threshold is a match.
	IsMatch bool
}

// Comparator scores embedding pairs against a fixed match threshold.
// The zero value is not useful; construct with [NewComparator].
type Comparator struct {
	threshold float64
}

// NewComparator returns a Comparator with the given match threshold.
// Thresholds outside (0, 1] fall back to [DefaultThreshold].
func NewComparator(threshold float64) *Comparator {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Comparator{threshold: threshold}
}

// Threshold returns the configured match threshold.
func (c *Comparator) Threshold() float64 { return c.threshold }

// Compare computes the cosine similarity of a and b and whether it meets
// the threshold. Both vectors must be non-empty and of equal length;
// otherwise Compare fails with a [*ShapeError] before any arithmetic.
func (c *Comparator) Compare(a, b []float32) (Result, error) {
	if len(a) == 0 || len(a) != len(b) {
		return Result{}, &ShapeError{LenA: len(a), LenB: len(b)}
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	sim := dot / (math.Sqrt(normA)*math.Sqrt(normB) + epsilon)
	// The threshold is applied to the raw score; rounding is presentation
	// only. A score a hair below threshold must not round its way into a
	// match.
	match := sim >= c.threshold
	sim = math.Round(sim*10000) / 10000

	return Result{Similarity: sim, IsMatch: match}, nil
}
