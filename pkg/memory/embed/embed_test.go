package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
)

type recordingEmbedder struct {
	mu     sync.Mutex
	inputs []string
	dims   int
	err    error
}

func (r *recordingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	r.mu.Lock()
	r.inputs = append(r.inputs, text)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	vec := make([]float32, r.dims)
	for i := range vec {
		vec[i] = float32(len(text))
	}
	return vec, nil
}

func TestMeaningfulAndPlaceholder(t *testing.T) {
	cases := map[string]bool{"": false, " ": false, "a": false, " b ": false, "ab": true, "Vietnam": true}
	for in, want := range cases {
		if got := Meaningful(in); got != want {
			t.Fatalf("Meaningful(%q) = %v, want %v", in, got, want)
		}
	}
	if OrPlaceholder("x") != Placeholder || OrPlaceholder("ok") != "ok" {
		t.Fatalf("unexpected OrPlaceholder results")
	}
}

func TestClientNormalizesNewlines(t *testing.T) {
	inner := &recordingEmbedder{dims: 4}
	c := NewClient(inner, WithDimensions(4))

	if _, err := c.Embed(context.Background(), "line one\nline two\r\nthree"); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.inputs[0] != "line one line two three" {
		t.Fatalf("unexpected normalized input %q", inner.inputs[0])
	}
}

func TestClientRejectsWrongDimensions(t *testing.T) {
	c := NewClient(&recordingEmbedder{dims: 3}, WithDimensions(4))
	_, err := c.Embed(context.Background(), "text")
	var up *agent.UpstreamModelError
	if !errors.As(err, &up) || up.Op != "embedding" {
		t.Fatalf("expected embedding UpstreamModelError, got %v", err)
	}

	c = NewClient(&recordingEmbedder{dims: 3}, WithDimensions(0))
	if _, err := c.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("dimension check should be disabled: %v", err)
	}
}

func TestClientWrapsProviderFailure(t *testing.T) {
	c := NewClient(&recordingEmbedder{err: errors.New("503 from provider")})
	_, err := c.Embed(context.Background(), "text")
	var up *agent.UpstreamModelError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamModelError, got %v", err)
	}
}

func TestCachedEmbedderReusesVectors(t *testing.T) {
	inner := &recordingEmbedder{dims: 2}
	cached, err := NewCachedEmbedder(inner, 8)
	if err != nil {
		t.Fatalf("NewCachedEmbedder: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cached.Embed(context.Background(), Placeholder); err != nil {
				t.Errorf("Embed: %v", err)
			}
		}()
	}
	wg.Wait()
	if _, err := cached.Embed(context.Background(), "other"); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(inner.inputs) != 2 {
		t.Fatalf("expected 2 upstream calls, got %d: %v", len(inner.inputs), inner.inputs)
	}
	hits, misses := cached.Stats()
	if misses != 2 || hits+misses > 7 {
		t.Fatalf("unexpected stats hits=%d misses=%d", hits, misses)
	}
	if cached.Len() != 2 {
		t.Fatalf("expected 2 cached vectors, got %d", cached.Len())
	}
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	inner := &recordingEmbedder{err: errors.New("down")}
	cached, _ := NewCachedEmbedder(inner, 0)
	for i := 0; i < 2; i++ {
		if _, err := cached.Embed(context.Background(), "q"); err == nil {
			t.Fatalf("expected error")
		}
	}
	if len(inner.inputs) != 2 {
		t.Fatalf("errors must not be cached, got %d calls", len(inner.inputs))
	}
}

func TestOpenAIEmbedderCallsEmbeddingsEndpoint(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "text-embedding-3-small" {
			t.Errorf("unexpected model %v", req["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	e := NewOpenAIEmbedderWithConfig(cfg, "")

	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || calls.Load() != 1 {
		t.Fatalf("unexpected vector %v after %d calls", vec, calls.Load())
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), Options{Provider: "word2vec"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	if _, err := New(context.Background(), Options{Provider: "ollama", Host: "http://127.0.0.1:11434"}); err != nil {
		t.Fatalf("ollama embedder should not need network at construction: %v", err)
	}
}
