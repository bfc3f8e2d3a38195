// Package embedding implements C5: a process-wide Embedding Provider
// that turns source strings into fixed-dimension, L2-normalised float32
// vectors for the vector index and cascade matcher to consume. Two
// interchangeable implementations exist — FastProvider (local ONNX CPU
// inference via fastembed-go) and DeepProvider (a remote HTTP embeddings
// endpoint) — selected process-wide by configuration; switching the
// active provider invalidates every TM's index artefacts because the
// vector dimension changes underneath them.
package embedding

import (
	"context"
	"math"
)

// Provider is the contract every embedding backend implements.
// Implementations must be safe for concurrent use from multiple indexer
// workers — either by being genuinely thread-safe or by internally
// serialising through a semaphore, never by requiring the caller to
// hold a lock.
type Provider interface {
	// Encode returns one L2-normalised float32 vector of length
	// Dimension() per input text, in input order. An empty string
	// produces a zero vector (the cascade matcher treats an
	// all-zero vector as never satisfying a similarity threshold,
	// rather than Encode erroring or panicking on it).
	Encode(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the fixed vector length this provider produces.
	Dimension() int

	// ID identifies the provider for index metadata and the
	// dimension-mismatch detection that triggers a rebuild when the
	// active provider changes.
	ID() string
}

// normalizeL2 scales each vector in place to unit length, leaving an
// all-zero vector untouched (it has no direction to normalise to, and
// the cascade matcher's zero-vector sentinel handling depends on it
// staying exactly zero rather than becoming NaN).
func normalizeL2(vectors [][]float32) {
	for _, v := range vectors {
		var sumSq float32
		for _, x := range v {
			sumSq += x * x
		}
		if sumSq == 0 {
			continue
		}
		norm := float32(math.Sqrt(float64(sumSq)))
		for i := range v {
			v[i] /= norm
		}
	}
}

// emptyMask marks which of texts are empty so callers can skip them
// before handing the batch to an underlying model that may reject or
// mishandle empty strings, then splice zero vectors back in at those
// positions afterward.
func emptyMask(texts []string) (nonEmpty []string, positions []int) {
	for i, t := range texts {
		if t == "" {
			continue
		}
		nonEmpty = append(nonEmpty, t)
		positions = append(positions, i)
	}
	return nonEmpty, positions
}

// spliceZeros rebuilds a full-length result from the vectors computed
// only for the non-empty inputs at positions, filling every other slot
// with a zero vector of dim length.
func spliceZeros(total int, dim int, computed [][]float32, positions []int) [][]float32 {
	out := make([][]float32, total)
	for i := range out {
		out[i] = make([]float32, dim)
	}
	for i, pos := range positions {
		out[pos] = computed[i]
	}
	return out
}
