// Package response separates a structured action from conversational text in
// a model reply.
package response

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/solus-ai/solus/core"
)

// DefaultAcknowledgement is the reply text when the model emitted an action
// and nothing else.
const DefaultAcknowledgement = "Done."

// Result is a split reply. Action is nil when the reply carried none.
type Result struct {
	Action   *core.Action
	Response string
}

// Split extracts the JSON object spanning the first '{' to the last '}' of
// text. If that span parses and has an "action" key the action is returned
// alongside either its "response" string or, when there is none, the text
// around the span. Anything else yields the whole text with no action.
// Split never fails and Response is never empty unless text is.
func Split(text string) Result {
	plain := Result{Response: text}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < 0 || end <= start {
		return plain
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return plain
	}
	rawAction, ok := obj["action"]
	if !ok {
		return plain
	}

	var result Result
	if !isNull(rawAction) {
		result.Action = core.ParseAction(rawAction)
	}

	if rawResponse, ok := obj["response"]; ok {
		// A non-string response leaves the reply as it came.
		if err := json.Unmarshal(rawResponse, &result.Response); err != nil || isNull(rawResponse) {
			result.Response = text
		}
		return result
	}

	result.Response = strings.TrimSpace(text[:start] + text[end+1:])
	if result.Response == "" {
		result.Response = DefaultAcknowledgement
	}
	return result
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
