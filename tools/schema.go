package tools

import (
	"fmt"
	"sort"
	"strings"
)

// Schema helpers for building JSON Schema definitions of action parameters.

// Schema is a JSON Schema document.
type Schema = map[string]interface{}

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]interface{}, required ...string) Schema {
	schema := Schema{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// StringProperty creates a string property with optional description.
func StringProperty(description string) Schema {
	return Schema{
		"type":        "string",
		"description": description,
	}
}

// StringEnumProperty creates a string property with allowed values.
func StringEnumProperty(description string, values ...string) Schema {
	return Schema{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

// DateTimeProperty creates an ISO 8601 date-time string property.
func DateTimeProperty(description string) Schema {
	return Schema{
		"type":        "string",
		"format":      "date-time",
		"description": description,
	}
}

// Compact renders an object schema in the one-line notation used inside the
// system prompt, e.g. {"title": str, "priority": "low|medium|high"}.
// Properties are listed in the order given, falling back to sorted order for
// names not in order.
func Compact(schema Schema, order ...string) string {
	props, _ := schema["properties"].(map[string]interface{})
	if len(props) == 0 {
		return "{}"
	}

	names := make([]string, 0, len(props))
	seen := make(map[string]bool, len(props))
	for _, name := range order {
		if _, ok := props[name]; ok && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range props {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	names = append(names, rest...)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%q: %s", name, compactType(props[name])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func compactType(v interface{}) string {
	prop, ok := v.(Schema)
	if !ok {
		return "any"
	}
	if enum, ok := prop["enum"].([]string); ok && len(enum) > 0 {
		return fmt.Sprintf("%q", strings.Join(enum, "|"))
	}
	if prop["format"] == "date-time" {
		return "ISO datetime"
	}
	switch prop["type"] {
	case "string":
		return "str"
	case "integer":
		return "int"
	case "number":
		return "float"
	case "boolean":
		return "bool"
	default:
		return "any"
	}
}
