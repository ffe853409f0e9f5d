package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	calls int32
	err   error
	text  string
}

func (f *fakeLLM) Complete(_ context.Context, _ []Message) (*Completion, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &Completion{Text: f.text, Model: "fake", PromptTokens: 10, CompletionTokens: 5}, nil
}

func TestGuardedLLMPassesThrough(t *testing.T) {
	g := NewGuardedLLM("test", &fakeLLM{text: "hello"}, 100, 10, nil)
	out, err := g.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Text)
	assert.Equal(t, "closed", g.State())
}

func TestGuardedLLMOpensAfterFailures(t *testing.T) {
	provider := &fakeLLM{err: errors.New("boom")}
	g := NewGuardedLLM("test", provider, 100, 10, nil)
	msgs := []Message{{Role: RoleUser, Content: "hi"}}

	for i := 0; i < 3; i++ {
		_, err := g.Complete(context.Background(), msgs)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrProviderUnavailable)
	}

	_, err := g.Complete(context.Background(), msgs)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, int32(3), atomic.LoadInt32(&provider.calls))
	assert.Equal(t, "open", g.State())
}

func TestSplitForGemini(t *testing.T) {
	system, history, last, err := splitForGemini([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "be brief", system)
	assert.Equal(t, "q2", last)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)

	_, _, _, err = splitForGemini([]Message{{Role: RoleSystem, Content: "only"}})
	assert.Error(t, err)
}

type flakyBackend struct {
	failures int32
	calls    int32
	dims     int
	inputs   []string
}

func (f *flakyBackend) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	n := atomic.AddInt32(&f.calls, 1)
	f.inputs = texts
	if n <= f.failures {
		return nil, errors.New("transient")
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, f.dims)
		out[i][0] = float32(i + 1)
	}
	return out, nil
}

func fastEmbedder(b EmbeddingBackend, dims int) *Embedder {
	e := NewEmbedder(b, dims)
	e.retryInitial = time.Millisecond
	e.retryMax = 5 * time.Millisecond
	return e
}

func TestEmbedderRetriesThenSucceeds(t *testing.T) {
	backend := &flakyBackend{failures: 2, dims: 4}
	vec := fastEmbedder(backend, 4).Embed(context.Background(), "pet policy")

	assert.Equal(t, []float32{1, 0, 0, 0}, vec)
	assert.Equal(t, int32(3), backend.calls)
}

func TestEmbedderFallsBackToZeroVector(t *testing.T) {
	backend := &flakyBackend{failures: 100, dims: 4}
	vec := fastEmbedder(backend, 8).Embed(context.Background(), "pet policy")

	assert.Len(t, vec, 8)
	for _, f := range vec {
		assert.Zero(t, f)
	}
	assert.Equal(t, int32(3), backend.calls)
}

func TestEmbedderTruncatesInput(t *testing.T) {
	backend := &flakyBackend{dims: 2}
	fastEmbedder(backend, 2).Embed(context.Background(), strings.Repeat("x", MaxEmbeddingInputChars+500))

	require.Len(t, backend.inputs, 1)
	assert.Len(t, backend.inputs[0], MaxEmbeddingInputChars)
}

func TestEmbedBatchSplitsIntoGroups(t *testing.T) {
	backend := &flakyBackend{dims: 2}
	out := fastEmbedder(backend, 2).EmbedBatch(context.Background(), []string{"a", "b", "c", "d", "e"}, 2)

	assert.Len(t, out, 5)
	assert.Equal(t, int32(3), backend.calls)
}

func chatCompletionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 42, "completion_tokens": 7, "total_tokens": 49},
	}
}

func TestAzureOpenAIProviderRetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		assert.Equal(t, "2024-02-15-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "test-key", r.Header.Get("Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.InDelta(t, 0.3, body["temperature"], 1e-9)
		assert.EqualValues(t, 2500, body["max_tokens"])
		msgs := body["messages"].([]any)
		assert.Len(t, msgs, 3)

		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","code":"429"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatCompletionBody("Notice is 60 days [1 → Page 3]."))
	}))
	defer srv.Close()

	p := NewAzureOpenAIProvider(srv.URL, "test-key", "2024-02-15-preview", "yotta-gpt-4o", 5*time.Second, srv.Client())
	p.retryInitial = time.Millisecond
	p.retryMax = 5 * time.Millisecond

	out, err := p.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "prior"},
		{Role: RoleUser, Content: "question"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Notice is 60 days [1 → Page 3].", out.Text)
	assert.Equal(t, 42, out.PromptTokens)
	assert.Equal(t, 7, out.CompletionTokens)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAzureOpenAIProviderDoesNotRetryBadRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad","code":"400"}}`))
	}))
	defer srv.Close()

	p := NewAzureOpenAIProvider(srv.URL, "k", "2024-02-15-preview", "dep", 5*time.Second, srv.Client())
	p.retryInitial = time.Millisecond

	_, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAzureOpenAIProviderDoesNotRetryServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","code":"503"}}`))
	}))
	defer srv.Close()

	p := NewAzureOpenAIProvider(srv.URL, "k", "2024-02-15-preview", "dep", 5*time.Second, srv.Client())
	p.retryInitial = time.Millisecond

	_, err := p.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
