package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/solus-ai/solus/core"
)

// JSONCodec stores the entry log as an indented JSON array.
type JSONCodec struct{}

// FileName implements EntryCodec.
func (JSONCodec) FileName() string {
	return "entries.json"
}

// Write implements EntryCodec.
func (JSONCodec) Write(ctx context.Context, path string, entries []core.Entry) error {
	if entries == nil {
		entries = []core.Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Read implements EntryCodec.
func (JSONCodec) Read(ctx context.Context, path string) ([]core.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries []core.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal entries: %w", err)
	}
	if entries == nil {
		entries = []core.Entry{}
	}
	return entries, nil
}
