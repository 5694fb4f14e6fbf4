// Package anthropic serves generation from the Claude Messages API.
//
// The Messages API applies its own chat markup, so the client sends the
// assembled prompt's system and user blocks as separate fields rather than
// the rendered text. Anthropic has no embeddings endpoint; pair this backend
// with another embedder.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/solus-ai/solus/llm"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "claude-sonnet-4-20250514"

// Config for the Anthropic client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client implements llm.Generator.
type Client struct {
	api   anthropic.Client
	model string
}

// New creates a client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &Client{api: anthropic.NewClient(opts...), model: cfg.Model}
}

// Generate implements llm.Generator.
func (c *Client) Generate(ctx context.Context, prompt llm.Prompt, params llm.Params) (string, error) {
	user := prompt.User
	switch {
	case user == "" && prompt.System == "":
		// Unstructured prompt with no system/user split.
		user = prompt.Text
	case user == "":
		// The Messages API rejects empty text blocks.
		user = " "
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(params.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Temperature: anthropic.Float(float64(params.Temperature)),
		TopP:        anthropic.Float(float64(params.TopP)),
		TopK:        anthropic.Int(int64(params.TopK)),
	}
	if prompt.System != "" {
		req.System = []anthropic.TextBlockParam{
			{Text: prompt.System},
		}
	}

	resp, err := c.api.Messages.New(ctx, req)
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
