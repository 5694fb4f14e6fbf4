package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solus-ai/solus/llm"
	"github.com/solus-ai/solus/llm/openai"
)

func newClient(t *testing.T, handler http.HandlerFunc) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := openai.New(openai.Config{
		BaseURL: srv.URL + "/v1/",
		APIKey:  "test-key",
		Model:   "qwen2.5",
	}, srv.Client())
	require.NoError(t, err)
	return c
}

func TestClient_Generate(t *testing.T) {
	var got map[string]any
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "cmpl-1", "object": "text_completion", "created": 1, "model": "qwen2.5",
			"choices": [{"index": 0, "text": "Sure thing.", "finish_reason": "stop", "logprobs": null}]
		}`))
	})

	out, err := c.Generate(context.Background(), llm.Prompt{Text: "rendered prompt"}, llm.DefaultParams)
	require.NoError(t, err)
	assert.Equal(t, "Sure thing.", out)

	assert.Equal(t, "qwen2.5", got["model"])
	assert.Equal(t, "rendered prompt", got["prompt"])
	assert.EqualValues(t, 1024, got["max_tokens"])
	assert.InDelta(t, 0.9, got["top_p"], 1e-6)
}

func TestClient_Embed(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list", "model": "qwen2.5",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.5, -0.25]}],
			"usage": {"prompt_tokens": 1, "total_tokens": 1}
		}`))
	})

	vec, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25}, vec)
	assert.Equal(t, 2, c.Dimensions())
}

func TestClient_Error(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	})

	_, err := c.Generate(context.Background(), llm.Prompt{Text: "x"}, llm.DefaultParams)
	assert.Error(t, err)
}
