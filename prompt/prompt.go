// Package prompt renders the chat prompt sent to the generation backend from
// a system template, retrieved memories and the user's message.
package prompt

import (
	"fmt"
	"os"
	"strings"

	"github.com/solus-ai/solus/core"
	"github.com/solus-ai/solus/llm"
)

// MemoriesPlaceholder marks where retrieved memories go in the template.
const MemoriesPlaceholder = "{memories}"

// NoContext replaces the placeholder when nothing was retrieved.
const NoContext = "No previous context."

// MemoryDelimiter follows each memory in the rendered context block.
const MemoryDelimiter = "\n---\n"

// Format selects the chat markup of the rendered prompt.
type Format int

const (
	// FormatChatML renders role-tagged turns:
	// <|im_start|>system ... <|im_end|>, <|im_start|>user ... <|im_end|>,
	// then the <|im_start|>assistant cue. Used by Qwen models.
	FormatChatML Format = iota
)

// String returns the configuration name of the format.
func (f Format) String() string {
	switch f {
	case FormatChatML:
		return "chatml"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat parses a configuration name.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "chatml", "qwen", "":
		return FormatChatML, nil
	default:
		return 0, fmt.Errorf("unknown prompt format %q", name)
	}
}

// Assembler builds prompts from one system template fixed at construction.
type Assembler struct {
	template string
}

// NewAssembler validates template, which must contain MemoriesPlaceholder
// exactly once.
func NewAssembler(template string) (*Assembler, error) {
	switch n := strings.Count(template, MemoriesPlaceholder); n {
	case 1:
		return &Assembler{template: template}, nil
	case 0:
		return nil, fmt.Errorf("system template has no %s placeholder", MemoriesPlaceholder)
	default:
		return nil, fmt.Errorf("system template has %d %s placeholders, want 1", n, MemoriesPlaceholder)
	}
}

// LoadTemplate reads a system template from path.
func LoadTemplate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system template: %w", err)
	}
	return string(data), nil
}

// Build renders the prompt for userMessage with memories in retrieval order.
func (a *Assembler) Build(userMessage string, memories []core.Entry, format Format) (llm.Prompt, error) {
	system := a.System(memories)

	var b strings.Builder
	switch format {
	case FormatChatML:
		b.WriteString("<|im_start|>system\n")
		b.WriteString(system)
		b.WriteString("<|im_end|>\n")
		b.WriteString("<|im_start|>user\n")
		b.WriteString(userMessage)
		b.WriteString("<|im_end|>\n")
		b.WriteString("<|im_start|>assistant\n")
	default:
		return llm.Prompt{}, fmt.Errorf("unsupported prompt format %s", format)
	}

	return llm.Prompt{
		Text:   b.String(),
		System: system,
		User:   userMessage,
	}, nil
}

// System renders the system block with memories substituted.
func (a *Assembler) System(memories []core.Entry) string {
	return strings.Replace(a.template, MemoriesPlaceholder, renderMemories(memories), 1)
}

func renderMemories(memories []core.Entry) string {
	if len(memories) == 0 {
		return NoContext
	}
	var b strings.Builder
	for _, m := range memories {
		b.WriteString(m.Text)
		b.WriteString(MemoryDelimiter)
	}
	return b.String()
}
