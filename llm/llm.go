// Package llm adapts generative and embedding model backends to the chat
// pipeline and serializes access to them.
package llm

import (
	"context"
)

// Params are the sampling parameters passed through to the generation
// backend.
type Params struct {
	Temperature float32
	TopP        float32
	TopK        int
	MaxTokens   int

	// RepeatLastN and RepeatPenalty are carried in configuration but are not
	// applied by any backend.
	RepeatLastN   int
	RepeatPenalty float32
}

// DefaultParams are the sampling defaults of the server.
var DefaultParams = Params{
	Temperature:   0.7,
	TopP:          0.9,
	TopK:          40,
	MaxTokens:     1024,
	RepeatLastN:   64,
	RepeatPenalty: 1.1,
}

// Prompt is an assembled prompt. Text is the fully rendered chat markup for
// raw-completion backends; System and User carry the same content split by
// role for message-based backends.
type Prompt struct {
	Text   string
	System string
	User   string
}

// Generator produces a reply for an assembled prompt.
// Implementations: ollama.Client, openai.Client, anthropic.Client, mock.Generator.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt, params Params) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt Prompt, params Params) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, prompt Prompt, params Params) (string, error) {
	return f(ctx, prompt, params)
}
