// Package ollama serves generation and embeddings from an Ollama server.
//
// Prompts are sent in raw mode: the chat markup rendered by the prompt
// package is passed through untouched instead of being re-templated by the
// server.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/ollama/ollama/api"

	"github.com/solus-ai/solus/llm"
)

// Config for the Ollama client.
type Config struct {
	BaseURL        string // e.g. http://localhost:11434
	Model          string // generation model
	EmbeddingModel string // defaults to Model
	ContextSize    int    // num_ctx
	Threads        int    // num_thread
	GPULayers      int    // num_gpu
}

// DefaultConfig matches the server defaults.
var DefaultConfig = Config{
	BaseURL:     "http://localhost:11434",
	Model:       "qwen2.5:14b-instruct-q4_K_M",
	ContextSize: 4096,
	Threads:     16,
	GPULayers:   33,
}

// Client implements llm.Generator and memory.Embedder.
type Client struct {
	api *api.Client
	cfg Config

	dimensions atomic.Int64
}

// New creates a client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig.BaseURL
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = cfg.Model
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{api: api.NewClient(base, httpClient), cfg: cfg}, nil
}

// Generate implements llm.Generator.
func (c *Client) Generate(ctx context.Context, prompt llm.Prompt, params llm.Params) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:   c.cfg.Model,
		Prompt:  prompt.Text,
		Raw:     true,
		Stream:  &stream,
		Options: c.options(params),
	}

	var sb strings.Builder
	err := c.api.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return sb.String(), nil
}

// Embed implements memory.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.Embed(ctx, &api.EmbedRequest{
		Model: c.cfg.EmbeddingModel,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, nil
	}
	vec := resp.Embeddings[0]
	c.dimensions.Store(int64(len(vec)))
	return vec, nil
}

// Dimensions implements memory.Embedder. It is zero until the first
// successful Embed.
func (c *Client) Dimensions() int {
	return int(c.dimensions.Load())
}

// Ping checks the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.api.Heartbeat(ctx)
}

// options maps sampling parameters and runtime settings to Ollama's option
// names. Repeat settings are left to the model defaults.
func (c *Client) options(params llm.Params) map[string]any {
	opts := map[string]any{
		"temperature": params.Temperature,
		"top_p":       params.TopP,
		"top_k":       params.TopK,
		"num_predict": params.MaxTokens,
	}
	if c.cfg.ContextSize > 0 {
		opts["num_ctx"] = c.cfg.ContextSize
	}
	if c.cfg.Threads > 0 {
		opts["num_thread"] = c.cfg.Threads
	}
	if c.cfg.GPULayers > 0 {
		opts["num_gpu"] = c.cfg.GPULayers
	}
	return opts
}
