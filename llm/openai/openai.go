// Package openai serves generation and embeddings from an OpenAI-compatible
// server such as llama.cpp's server or vLLM.
//
// Generation uses the legacy completions endpoint so the chat markup rendered
// by the prompt package reaches the model unchanged.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/solus-ai/solus/llm"
)

// Config for the OpenAI-compatible client.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string // defaults to Model
}

// Client implements llm.Generator and memory.Embedder.
type Client struct {
	api openai.Client
	cfg Config

	dimensions atomic.Int64
}

// New creates a client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = cfg.Model
	}

	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &Client{api: openai.NewClient(opts...), cfg: cfg}, nil
}

// Generate implements llm.Generator.
func (c *Client) Generate(ctx context.Context, prompt llm.Prompt, params llm.Params) (string, error) {
	resp, err := c.api.Completions.New(ctx, openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel(c.cfg.Model),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt.Text)},
		MaxTokens:   openai.Int(int64(params.MaxTokens)),
		Temperature: openai.Float(float64(params.Temperature)),
		TopP:        openai.Float(float64(params.TopP)),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Text, nil
}

// Embed implements memory.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}

	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, v := range src {
		vec[i] = float32(v)
	}
	c.dimensions.Store(int64(len(vec)))
	return vec, nil
}

// Dimensions implements memory.Embedder. It is zero until the first
// successful Embed.
func (c *Client) Dimensions() int {
	return int(c.dimensions.Load())
}
