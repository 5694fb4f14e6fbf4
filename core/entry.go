package core

import (
	"encoding/json"
	"fmt"
)

// Entry is one stored exchange in a tenant's memory.
//
// Entries live in an append-only log; an entry's position in that log is its
// ordinal id and doubles as its key in the vector index.
type Entry struct {
	// TenantID identifies the owning user. Never empty in a valid entry.
	TenantID string `json:"tenant_id"`

	// ConversationID loosely groups entries. It is echoed back to callers
	// and never used for retrieval.
	ConversationID string `json:"conversation_id"`

	// Text is the durable payload, formatted as "User: ...\n<role>: ...".
	Text string `json:"text"`

	// Timestamp is seconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
}

// NewEntry creates an entry for an exchange between a user and the assistant.
func NewEntry(tenantID, conversationID, userMessage, roleLabel, reply string, timestamp int64) Entry {
	return Entry{
		TenantID:       tenantID,
		ConversationID: conversationID,
		Text:           fmt.Sprintf("User: %s\n%s: %s", userMessage, roleLabel, reply),
		Timestamp:      timestamp,
	}
}

// Validate reports whether the entry can be stored.
func (e Entry) Validate() error {
	if e.TenantID == "" {
		return fmt.Errorf("%w: entry has no tenant", ErrInvalidRequest)
	}
	return nil
}

// UnmarshalJSON accepts both the current tenant_id field and the user_id
// field written by older snapshots.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		TenantID       string `json:"tenant_id"`
		UserID         string `json:"user_id"`
		ConversationID string `json:"conversation_id"`
		Text           string `json:"text"`
		Timestamp      int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.TenantID = raw.TenantID
	if e.TenantID == "" {
		e.TenantID = raw.UserID
	}
	e.ConversationID = raw.ConversationID
	e.Text = raw.Text
	e.Timestamp = raw.Timestamp
	return nil
}
