package traceview

import (
	"encoding/json"
	"fmt"
	"strings"
)

// imageMarker replaces inline image parts in normalized content.
const imageMarker = "[Image]"

// NormalizeContent normalizes a heterogeneous content payload into a single
// displayable string. The wire shape varies by provider: plain string,
// array of typed parts, or an arbitrary object.
//
//   - nil → ""
//   - string → itself
//   - list → per-element text joined with newlines, where an element is a
//     string, an object tagged text/output_text (its "text" field, default
//     empty), an object tagged image_url (the literal image marker), or
//     anything else (its structured dump)
//   - any other value → structured dump
func NormalizeContent(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, el := range v {
			parts = append(parts, formatContentPart(el))
		}
		return strings.Join(parts, "\n")
	default:
		return Dump(v)
	}
}

func formatContentPart(el any) string {
	if s, ok := el.(string); ok {
		return s
	}
	obj, ok := el.(map[string]any)
	if !ok {
		return Dump(el)
	}
	switch obj["type"] {
	case "text", "output_text":
		if text, ok := obj["text"].(string); ok {
			return text
		}
		return ""
	case "image_url":
		return imageMarker
	default:
		return Dump(obj)
	}
}

// Dump pretty-prints a value as indented JSON. Values that cannot be
// serialized fall back to their string coercion — the renderer must never
// fail over a malformed payload.
func Dump(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// DumpJSONText pretty-prints a field whose value is expected to be
// string-serialized JSON (tool arguments, results). A string that parses
// as JSON is re-indented; a string that doesn't is shown as-is; any other
// value is dumped directly.
func DumpJSONText(v any) string {
	s, ok := v.(string)
	if !ok {
		return Dump(v)
	}
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return s
	}
	return Dump(parsed)
}
