package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/solus-ai/solus/core"
	"github.com/solus-ai/solus/llm"
	"github.com/solus-ai/solus/memory"
	"github.com/solus-ai/solus/prompt"
	"github.com/solus-ai/solus/response"
)

// DefaultTopK is how many memories are retrieved per request.
const DefaultTopK = 5

// DefaultRoleLabel names the assistant in stored exchanges.
const DefaultRoleLabel = "Solus"

// Store is the part of memory.Store the engine uses.
type Store interface {
	Search(ctx context.Context, query []float32, tenantID string, k int) ([]core.Entry, error)
	Add(ctx context.Context, entry core.Entry, embedding []float32) (int, error)
}

// Engine runs the chat pipeline:
// embed, retrieve, assemble, generate, split, persist, respond.
type Engine struct {
	embedder  memory.Embedder
	generator llm.Generator
	store     Store
	assembler *prompt.Assembler

	format    prompt.Format
	params    llm.Params
	topK      int
	roleLabel string
	now       func() time.Time
	logger    *log.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithParams sets the sampling parameters passed to the generator.
func WithParams(p llm.Params) Option {
	return func(e *Engine) {
		e.params = p
	}
}

// WithTopK sets how many memories are retrieved per request.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithFormat sets the chat markup of assembled prompts.
func WithFormat(f prompt.Format) Option {
	return func(e *Engine) {
		e.format = f
	}
}

// WithRoleLabel sets the assistant's name in stored exchanges.
func WithRoleLabel(label string) Option {
	return func(e *Engine) {
		if label != "" {
			e.roleLabel = label
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine. embedder and generator are normally the same
// llm.Runtime, possibly behind an embedding cache, so that all backend calls
// are serialized.
func NewEngine(embedder memory.Embedder, generator llm.Generator, store Store, assembler *prompt.Assembler, opts ...Option) *Engine {
	e := &Engine{
		embedder:  embedder,
		generator: generator,
		store:     store,
		assembler: assembler,
		format:    prompt.FormatChatML,
		params:    llm.DefaultParams,
		topK:      DefaultTopK,
		roleLabel: DefaultRoleLabel,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.Default().WithPrefix("engine")
	}
	return e
}

// Input is one chat request.
type Input struct {
	// TenantID owns the memories searched and written.
	TenantID string

	// Message is the user's text.
	Message string

	// ConversationID is echoed back and stored with the exchange.
	// Defaults to "<tenant>_<unix seconds>", which starts a new grouping on
	// every request that omits it.
	ConversationID string
}

// Output is the result of a chat request.
type Output struct {
	// Action is the structured command in the reply, or nil.
	Action *core.Action

	// Response is the conversational text.
	Response string

	// ConversationID is the caller's id or the generated default.
	ConversationID string

	// MemoriesUsed is how many memories were injected into the prompt.
	MemoriesUsed int

	// MemoryID is the ordinal id of the stored exchange, or -1 if it was
	// not stored.
	MemoryID int
}

// Run executes the pipeline for one request.
//
// Embedding and generation failures abort the request and nothing is stored.
// Retrieval and persistence failures are logged: a failed search continues
// with no memories and a rejected add still returns the reply.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.TenantID == "" {
		return nil, fmt.Errorf("%w: user_id is required", core.ErrInvalidRequest)
	}

	now := e.now()
	conversationID := input.ConversationID
	if conversationID == "" {
		conversationID = input.TenantID + "_" + strconv.FormatInt(now.Unix(), 10)
	}
	logger := e.logger.With("tenant", input.TenantID, "conversation", conversationID)

	// Embed
	embedding, err := e.embedder.Embed(ctx, input.Message)
	if err != nil {
		logger.Error("embedding failed", "error", err)
		if !errors.Is(err, core.ErrEmbedding) {
			err = fmt.Errorf("%w: %w", core.ErrEmbedding, err)
		}
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, core.ErrEmbedding
	}

	// Retrieve
	memories, err := e.store.Search(ctx, embedding, input.TenantID, e.topK)
	if err != nil {
		logger.Warn("memory search failed, continuing without context", "error", err)
		memories = nil
	}
	logger.Debug("retrieved memories", "count", len(memories))

	// Assemble
	p, err := e.assembler.Build(input.Message, memories, e.format)
	if err != nil {
		return nil, fmt.Errorf("assemble prompt: %w", err)
	}

	// Generate
	text, err := e.generator.Generate(ctx, p, e.params)
	if err != nil {
		logger.Error("generation failed", "error", err)
		if !errors.Is(err, core.ErrGeneration) {
			err = fmt.Errorf("%w: %w", core.ErrGeneration, err)
		}
		return nil, err
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty response from model", core.ErrGeneration)
	}

	// Split
	split := response.Split(text)

	// Persist
	entry := core.NewEntry(input.TenantID, conversationID, input.Message, e.roleLabel, split.Response, now.Unix())
	id, err := e.store.Add(ctx, entry, embedding)
	if err != nil {
		logger.Warn("failed to store exchange", "error", err)
		id = -1
	}

	return &Output{
		Action:         split.Action,
		Response:       split.Response,
		ConversationID: conversationID,
		MemoriesUsed:   len(memories),
		MemoryID:       id,
	}, nil
}
