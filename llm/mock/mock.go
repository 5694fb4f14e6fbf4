// Package mock provides a scripted llm.Generator for tests and offline runs.
package mock

import (
	"context"
	"sync"

	"github.com/solus-ai/solus/llm"
)

// DefaultReply is returned when no replies are queued.
const DefaultReply = "I'm running without a model backend."

// Generator returns queued replies in order, then DefaultReply.
type Generator struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []llm.Prompt
	params  []llm.Params
}

// New creates a generator that answers with replies in order.
func New(replies ...string) *Generator {
	return &Generator{replies: replies}
}

// FailWith makes every subsequent Generate call return err.
func (g *Generator) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Generate implements llm.Generator.
func (g *Generator) Generate(ctx context.Context, prompt llm.Prompt, params llm.Params) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, prompt)
	g.params = append(g.params, params)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return DefaultReply, nil
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

// Prompts returns every prompt received so far.
func (g *Generator) Prompts() []llm.Prompt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Prompt(nil), g.prompts...)
}

// Params returns the sampling parameters of every call so far.
func (g *Generator) Params() []llm.Params {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]llm.Params(nil), g.params...)
}
