package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	vectors := [][]float32{
		{3, 4}, // length 5
		{0, 0}, // zero vector stays zero
	}
	normalizeL2(vectors)

	if got := vectors[0][0]*vectors[0][0] + vectors[0][1]*vectors[0][1]; math.Abs(float64(got)-1) > 1e-6 {
		t.Errorf("expected unit length, got squared length %v", got)
	}
	if vectors[1][0] != 0 || vectors[1][1] != 0 {
		t.Errorf("expected zero vector to stay zero, got %v", vectors[1])
	}
}

func TestEmptyMaskAndSpliceZeros(t *testing.T) {
	texts := []string{"hello", "", "world"}
	nonEmpty, positions := emptyMask(texts)
	if len(nonEmpty) != 2 || nonEmpty[0] != "hello" || nonEmpty[1] != "world" {
		t.Fatalf("unexpected nonEmpty: %v", nonEmpty)
	}
	if len(positions) != 2 || positions[0] != 0 || positions[1] != 2 {
		t.Fatalf("unexpected positions: %v", positions)
	}

	computed := [][]float32{{1, 1}, {2, 2}}
	out := spliceZeros(3, 2, computed, positions)
	if out[1][0] != 0 || out[1][1] != 0 {
		t.Errorf("expected zero vector at empty-string position, got %v", out[1])
	}
	if out[0][0] != 1 || out[2][0] != 2 {
		t.Errorf("expected computed vectors preserved at their original positions, got %v", out)
	}
}

func TestDeepProvider_EncodeSplicesEmptyStrings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req deepEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		resp := deepEmbedResponse{}
		for range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
			}{Embedding: make([]float32, deepDimension)})
		}
		resp.Data[0].Embedding[0] = 1
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewDeepProvider(DeepProviderConfig{Endpoint: server.URL, ModelID: "test-model"})
	out, err := p.Encode(context.Background(), []string{"hello", "", "world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(out))
	}
	for _, x := range out[1] {
		if x != 0 {
			t.Errorf("expected the empty-string slot to stay an all-zero vector, got %v", out[1])
			break
		}
	}
	if out[0][0] == 0 {
		t.Error("expected the non-empty slot to carry a non-zero vector")
	}
}

func TestDeepProvider_AllEmptyInputSkipsNetworkCall(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	p := NewDeepProvider(DeepProviderConfig{Endpoint: server.URL, ModelID: "test-model"})
	out, err := p.Encode(context.Background(), []string{"", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("expected no HTTP call for an all-empty batch")
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 zero vectors, got %d", len(out))
	}
}

func TestDeepProvider_NonRetryable4xxFailsImmediately(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	p := NewDeepProvider(DeepProviderConfig{Endpoint: server.URL, ModelID: "test-model"})
	_, err := p.Encode(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatal("expected an error for a 400 response")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a non-retryable status, got %d", calls)
	}
}

func TestDeepProvider_DimensionAndID(t *testing.T) {
	p := NewDeepProvider(DeepProviderConfig{Endpoint: "http://example.invalid"})
	if p.Dimension() != deepDimension {
		t.Errorf("expected dimension %d, got %d", deepDimension, p.Dimension())
	}
	if p.ID() != DeepProviderID {
		t.Errorf("expected id %s, got %s", DeepProviderID, p.ID())
	}
}
