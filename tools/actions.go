package tools

import (
	"strings"

	"github.com/solus-ai/solus/core"
)

// ActionDefinition describes one action kind the assistant may emit.
type ActionDefinition struct {
	Kind        core.ActionKind `json:"type"`
	Description string          `json:"description"`
	Parameters  Schema          `json:"parameters"`

	// order is the property order used when rendering for the prompt.
	order []string
}

// ActionDefinitions returns the definitions for all action kinds the client
// knows how to perform.
func ActionDefinitions() []ActionDefinition {
	return []ActionDefinition{
		{
			Kind:        core.ActionTodoAdd,
			Description: "Add an item to the user's todo list.",
			Parameters: ObjectSchema(map[string]interface{}{
				"title":       StringProperty("Short title of the todo"),
				"description": StringProperty("Optional details"),
				"priority":    StringEnumProperty("Priority of the todo", "low", "medium", "high"),
				"due_date":    DateTimeProperty("Optional due date"),
			}, "title"),
			order: []string{"title", "description", "priority", "due_date"},
		},
		{
			Kind:        core.ActionReminderSet,
			Description: "Schedule a reminder notification.",
			Parameters: ObjectSchema(map[string]interface{}{
				"title":  StringProperty("What to remind the user about"),
				"time":   DateTimeProperty("When the reminder fires"),
				"repeat": StringEnumProperty("Repeat schedule", "once", "daily", "weekly"),
			}, "title", "time"),
			order: []string{"title", "time", "repeat"},
		},
		{
			Kind:        core.ActionNoteCreate,
			Description: "Save a note.",
			Parameters: ObjectSchema(map[string]interface{}{
				"title":   StringProperty("Note title"),
				"content": StringProperty("Note body"),
			}, "title", "content"),
			order: []string{"title", "content"},
		},
		{
			Kind:        core.ActionAppOpen,
			Description: "Open an installed app.",
			Parameters: ObjectSchema(map[string]interface{}{
				"package_name": StringProperty("Android package name, e.g. com.spotify.music"),
			}, "package_name"),
		},
		{
			Kind:        core.ActionCallMake,
			Description: "Place a phone call.",
			Parameters: ObjectSchema(map[string]interface{}{
				"phone_number": StringProperty("Number to dial"),
			}, "phone_number"),
		},
		{
			Kind:        core.ActionMessageSend,
			Description: "Send a text message.",
			Parameters: ObjectSchema(map[string]interface{}{
				"phone_number": StringProperty("Recipient number"),
				"message":      StringProperty("Message body"),
			}, "phone_number", "message"),
			order: []string{"phone_number", "message"},
		},
	}
}

// LookupAction returns the definition for kind.
func LookupAction(kind core.ActionKind) (ActionDefinition, bool) {
	for _, def := range ActionDefinitions() {
		if def.Kind == kind {
			return def, true
		}
	}
	return ActionDefinition{}, false
}

// ActionKinds returns the kinds joined with "|", as used in the prompt's
// output contract.
func ActionKinds() string {
	defs := ActionDefinitions()
	kinds := make([]string, len(defs))
	for i, def := range defs {
		kinds[i] = string(def.Kind)
	}
	return strings.Join(kinds, "|")
}

// PromptSchemas renders one "- kind: {...}" line per action.
func PromptSchemas() string {
	var b strings.Builder
	for i, def := range ActionDefinitions() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(string(def.Kind))
		b.WriteString(": ")
		b.WriteString(Compact(def.Parameters, def.order...))
	}
	return b.String()
}
