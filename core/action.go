package core

import (
	"bytes"
	"encoding/json"
)

// ActionKind names a structured command the assistant can ask the client to
// perform.
type ActionKind string

// Known action kinds.
const (
	ActionTodoAdd     ActionKind = "todo_add"
	ActionReminderSet ActionKind = "reminder_set"
	ActionNoteCreate  ActionKind = "note_create"
	ActionAppOpen     ActionKind = "app_open"
	ActionCallMake    ActionKind = "call_make"
	ActionMessageSend ActionKind = "message_send"
)

// ActionParams is the typed parameter record of an action. The concrete type
// identifies the variant.
type ActionParams interface {
	Kind() ActionKind
}

// TodoAdd asks the client to create a todo item.
type TodoAdd struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"` // low|medium|high
	DueDate     string `json:"due_date,omitempty"` // ISO 8601
}

// ReminderSet asks the client to schedule a reminder.
type ReminderSet struct {
	Title  string `json:"title"`
	Time   string `json:"time"`             // ISO 8601
	Repeat string `json:"repeat,omitempty"` // once|daily|weekly
}

// NoteCreate asks the client to save a note.
type NoteCreate struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// AppOpen asks the client to launch an installed app.
type AppOpen struct {
	PackageName string `json:"package_name"`
}

// CallMake asks the client to place a phone call.
type CallMake struct {
	PhoneNumber string `json:"phone_number"`
}

// MessageSend asks the client to send a text message.
type MessageSend struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// Opaque carries an action whose kind is unknown or whose parameters did not
// match the schema of its kind. The payload is kept as-is so newer clients
// can still act on it.
type Opaque struct {
	Type   string          `json:"type,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (TodoAdd) Kind() ActionKind     { return ActionTodoAdd }
func (ReminderSet) Kind() ActionKind { return ActionReminderSet }
func (NoteCreate) Kind() ActionKind  { return ActionNoteCreate }
func (AppOpen) Kind() ActionKind     { return ActionAppOpen }
func (CallMake) Kind() ActionKind    { return ActionCallMake }
func (MessageSend) Kind() ActionKind { return ActionMessageSend }
func (o Opaque) Kind() ActionKind    { return ActionKind(o.Type) }

var actionDecoders = map[ActionKind]func() ActionParams{
	ActionTodoAdd:     func() ActionParams { return &TodoAdd{} },
	ActionReminderSet: func() ActionParams { return &ReminderSet{} },
	ActionNoteCreate:  func() ActionParams { return &NoteCreate{} },
	ActionAppOpen:     func() ActionParams { return &AppOpen{} },
	ActionCallMake:    func() ActionParams { return &CallMake{} },
	ActionMessageSend: func() ActionParams { return &MessageSend{} },
}

// Action is a structured command extracted from a model reply.
type Action struct {
	// Params holds the typed variant: *TodoAdd, *ReminderSet, *NoteCreate,
	// *AppOpen, *CallMake, *MessageSend or *Opaque.
	Params ActionParams

	raw json.RawMessage
}

// NewAction wraps typed parameters in an action.
func NewAction(params ActionParams) *Action {
	return &Action{Params: params}
}

// ParseAction decodes an action payload of the form
// {"type": "...", "params": {...}}. It never fails: payloads that do not fit
// a known kind become *Opaque.
func ParseAction(raw json.RawMessage) *Action {
	a := &Action{raw: append(json.RawMessage(nil), raw...)}

	var envelope struct {
		Type   string          `json:"type"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		a.Params = &Opaque{Params: a.raw}
		return a
	}

	newParams, ok := actionDecoders[ActionKind(envelope.Type)]
	if !ok {
		a.Params = &Opaque{Type: envelope.Type, Params: envelope.Params}
		return a
	}

	params := newParams()
	if len(envelope.Params) > 0 && !bytes.Equal(envelope.Params, []byte("null")) {
		if err := json.Unmarshal(envelope.Params, params); err != nil {
			a.Params = &Opaque{Type: envelope.Type, Params: envelope.Params}
			return a
		}
	}
	a.Params = params
	return a
}

// Kind returns the action kind, or "" for an untyped opaque payload.
func (a *Action) Kind() ActionKind {
	if a == nil || a.Params == nil {
		return ""
	}
	return a.Params.Kind()
}

// Known reports whether the action decoded into one of the known kinds.
func (a *Action) Known() bool {
	if a == nil || a.Params == nil {
		return false
	}
	_, opaque := a.Params.(*Opaque)
	return !opaque
}

// MarshalJSON returns the payload exactly as the model produced it when the
// action was parsed, and the canonical {"type","params"} form otherwise.
func (a *Action) MarshalJSON() ([]byte, error) {
	if len(a.raw) > 0 {
		return a.raw, nil
	}
	if o, ok := a.Params.(*Opaque); ok && o.Type == "" {
		if len(o.Params) == 0 {
			return []byte("null"), nil
		}
		return o.Params, nil
	}
	return json.Marshal(struct {
		Type   ActionKind   `json:"type"`
		Params ActionParams `json:"params"`
	}{a.Kind(), a.Params})
}

// UnmarshalJSON decodes with ParseAction semantics.
func (a *Action) UnmarshalJSON(data []byte) error {
	*a = *ParseAction(data)
	return nil
}

// String returns the serialized action in compact form.
func (a *Action) String() string {
	b, err := a.MarshalJSON()
	if err != nil {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return string(b)
	}
	return buf.String()
}
