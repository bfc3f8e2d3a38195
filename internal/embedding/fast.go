package embedding

import (
	"context"
	"fmt"

	"github.com/anush008/fastembed-go"
)

// FastProvider wraps fastembed-go's local ONNX CPU inference, the
// ≈256-dim class of model spec.md §4.2 calls for: small resident
// footprint, no network round-trip. Concurrent Encode calls are
// serialised through sem rather than left to the underlying ONNX
// session, since a session is not documented as safe for concurrent
// Embed calls from multiple goroutines.
type FastProvider struct {
	model *fastembed.FlagEmbedding
	dim   int
	sem   chan struct{}
}

// FastProviderID is the ID FastProvider reports; index metadata
// persists this so a later provider swap is detected as a dimension
// mismatch rather than silently mixing vector spaces.
const FastProviderID = "fastembed:bge-small-en"

// NewFastProvider loads the local ONNX model into cacheDir (downloading
// it on first use) and returns a ready FastProvider. maxConcurrency
// bounds how many Encode batches may run against the model at once;
// zero or negative defaults to 1 (fully serialised).
func NewFastProvider(cacheDir string, maxConcurrency int) (*FastProvider, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	model, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:    fastembed.BGESmallEN,
		CacheDir: cacheDir,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: loading fast provider model: %w", err)
	}

	return &FastProvider{
		model: model,
		dim:   384,
		sem:   make(chan struct{}, maxConcurrency),
	}, nil
}

func (p *FastProvider) Dimension() int { return p.dim }
func (p *FastProvider) ID() string     { return FastProviderID }

// Encode embeds texts, skipping empty strings (which the underlying
// model is not guaranteed to handle) and splicing zero vectors back
// into their original positions, per Provider's empty-string contract.
func (p *FastProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	nonEmpty, positions := emptyMask(texts)
	if len(nonEmpty) == 0 {
		return spliceZeros(len(texts), p.dim, nil, nil), nil
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	raw, err := p.model.Embed(nonEmpty, 0)
	if err != nil {
		return nil, fmt.Errorf("embedding: fast encode: %w", err)
	}

	vectors := make([][]float32, len(raw))
	copy(vectors, raw)
	normalizeL2(vectors)

	if len(nonEmpty) == len(texts) {
		return vectors, nil
	}
	return spliceZeros(len(texts), p.dim, vectors, positions), nil
}
