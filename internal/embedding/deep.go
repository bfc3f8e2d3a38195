package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DeepProviderID is the ID DeepProvider reports in index metadata.
const DeepProviderID = "deep-http:1024d"

const deepDimension = 1024

// DeepProvider calls a remote HTTP embeddings endpoint — the ≈1024-dim
// class of model spec.md §4.2 calls for. Structurally grounded on the
// teacher's haikuClient in internal/compact/haiku.go: an explicit client
// struct, a model id, and a retry count/initial backoff pair — but
// calling an embeddings endpoint instead of a chat completion, so
// retries are expressed with cenkalti/backoff/v4 instead of the
// teacher's hand-rolled exponential loop.
type DeepProvider struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	modelID    string
	sem        chan struct{}
}

// DeepProviderConfig configures DeepProvider. MaxConcurrency bounds
// in-flight HTTP requests; zero or negative defaults to 4.
type DeepProviderConfig struct {
	Endpoint       string
	APIKey         string
	ModelID        string
	MaxConcurrency int
	Timeout        time.Duration
}

// NewDeepProvider builds a DeepProvider against cfg.
func NewDeepProvider(cfg DeepProviderConfig) *DeepProvider {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &DeepProvider{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		modelID:    cfg.ModelID,
		sem:        make(chan struct{}, cfg.MaxConcurrency),
	}
}

func (p *DeepProvider) Dimension() int { return deepDimension }
func (p *DeepProvider) ID() string     { return DeepProviderID }

type deepEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type deepEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Encode calls the configured embeddings endpoint, retrying transient
// failures (network errors, 429, 5xx) with exponential backoff, and
// splices zero vectors in for any empty input string without sending
// them to the endpoint.
func (p *DeepProvider) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	nonEmpty, positions := emptyMask(texts)
	if len(nonEmpty) == 0 {
		return spliceZeros(len(texts), deepDimension, nil, nil), nil
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	vectors, err := p.callWithRetry(ctx, nonEmpty)
	if err != nil {
		return nil, err
	}
	normalizeL2(vectors)

	if len(nonEmpty) == len(texts) {
		return vectors, nil
	}
	return spliceZeros(len(texts), deepDimension, vectors, positions), nil
}

func (p *DeepProvider) callWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(deepEmbedRequest{Model: p.modelID, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshaling request: %w", err)
	}

	var result [][]float32
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("embedding: building request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return err // network errors are retryable
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("embedding: deep endpoint returned %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("embedding: deep endpoint returned %s: %s", resp.Status, data))
		}

		var parsed deepEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("embedding: decoding response: %w", err))
		}
		if len(parsed.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("embedding: expected %d vectors, got %d", len(texts), len(parsed.Data)))
		}

		result = make([][]float32, len(parsed.Data))
		for i, d := range parsed.Data {
			result[i] = d.Embedding
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("embedding: deep encode: %w", err)
	}
	return result, nil
}
