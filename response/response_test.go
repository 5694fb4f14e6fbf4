package response_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solus-ai/solus/core"
	"github.com/solus-ai/solus/response"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantAction string // substring of the serialized action; "" means none
		wantReply  string
	}{
		{
			name:       "action and response",
			input:      `{"action":{"type":"todo_add"},"response":"Done!"}`,
			wantAction: `"type":"todo_add"`,
			wantReply:  "Done!",
		},
		{
			name:      "plain text",
			input:     "This is just a normal response.",
			wantReply: "This is just a normal response.",
		},
		{
			name:      "invalid json",
			input:     "Text with {invalid json} in it",
			wantReply: "Text with {invalid json} in it",
		},
		{
			name:      "braces out of order",
			input:     "closing } before { opening",
			wantReply: "closing } before { opening",
		},
		{
			name:      "object without action",
			input:     `Here: {"response":"ignored"}`,
			wantReply: `Here: {"response":"ignored"}`,
		},
		{
			name:       "action only with nothing around it",
			input:      `  {"action":{"type":"note_create","params":{"title":"a","content":"b"}}}  `,
			wantAction: `"type":"note_create"`,
			wantReply:  response.DefaultAcknowledgement,
		},
		{
			name:       "non-string response keeps the reply",
			input:      `{"action":{"type":"app_open"},"response":42}`,
			wantAction: `"type":"app_open"`,
			wantReply:  `{"action":{"type":"app_open"},"response":42}`,
		},
		{
			name:      "null action",
			input:     `{"action":null,"response":"Just chatting."}`,
			wantReply: "Just chatting.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := response.Split(tt.input)
			assert.Equal(t, tt.wantReply, got.Response)
			if tt.wantAction == "" {
				assert.Nil(t, got.Action)
				return
			}
			require.NotNil(t, got.Action)
			assert.Contains(t, got.Action.String(), tt.wantAction)
		})
	}
}

func TestSplit_ActionOnlyKeepsSurroundingText(t *testing.T) {
	got := response.Split(`Some text {"action":{"type":"app_open"}} more text`)
	require.NotNil(t, got.Action)
	assert.Equal(t, core.ActionAppOpen, got.Action.Kind())
	assert.Contains(t, got.Response, "Some text")
	assert.Contains(t, got.Response, "more text")
	assert.NotContains(t, got.Response, "{")
	assert.NotContains(t, got.Response, "app_open")
}

func TestSplit_TypedParams(t *testing.T) {
	got := response.Split(`Sure. {"action": {"type": "reminder_set", "params": {"title": "Stretch", "time": "2025-01-01T09:00:00Z", "repeat": "daily"}}, "response": "Reminder set."}`)
	require.NotNil(t, got.Action)
	assert.Equal(t, "Reminder set.", got.Response)

	params, ok := got.Action.Params.(*core.ReminderSet)
	require.True(t, ok)
	assert.Equal(t, "Stretch", params.Title)
	assert.Equal(t, "daily", params.Repeat)
	assert.Equal(t, `{"type":"reminder_set","params":{"title":"Stretch","time":"2025-01-01T09:00:00Z","repeat":"daily"}}`, got.Action.String())
}

func TestSplit_UnknownKindIsOpaque(t *testing.T) {
	got := response.Split(`{"action":{"type":"lights_dim","params":{"level":3}},"response":"Dimmed."}`)
	require.NotNil(t, got.Action)
	assert.False(t, got.Action.Known())
	assert.Equal(t, core.ActionKind("lights_dim"), got.Action.Kind())
	assert.Equal(t, `{"type":"lights_dim","params":{"level":3}}`, got.Action.String())
}
