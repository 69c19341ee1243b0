// Package forms validates user-edited JSON fields. A failed parse marks
// the field invalid but keeps the last successfully parsed value, so a
// half-finished edit never destroys working state and the form can still
// submit the previous good value or block submission, as the page decides.
package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// JSONField is one editable JSON text area.
type JSONField struct {
	text  string
	value json.RawMessage
	err   error
}

// NewJSONField seeds a field with a known-good value. The text shown to
// the user is the value pretty-printed; a nil initial value renders empty.
func NewJSONField(initial json.RawMessage) *JSONField {
	f := &JSONField{}
	if len(initial) > 0 {
		f.value = initial
		f.text = indent(initial)
	}
	return f
}

// Set replaces the field's text with what the user typed and revalidates.
// Valid JSON becomes the new last-known-good value; invalid JSON records
// the parse error and leaves the value untouched. Blank text is valid and
// clears the value.
func (f *JSONField) Set(text string) {
	f.text = text
	if strings.TrimSpace(text) == "" {
		f.value = nil
		f.err = nil
		return
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(text)); err != nil {
		f.err = fmt.Errorf("invalid JSON: %w", err)
		return
	}
	f.value = json.RawMessage(compact.Bytes())
	f.err = nil
}

// Text returns the field as typed, errors and all.
func (f *JSONField) Text() string { return f.text }

// Valid reports whether the current text parses.
func (f *JSONField) Valid() bool { return f.err == nil }

// Err returns the parse error for the current text, nil when valid.
func (f *JSONField) Err() error { return f.err }

// Value returns the last-known-good parsed value. It lags the text while
// the text is invalid.
func (f *JSONField) Value() json.RawMessage { return f.value }

// ParseTools parses an implementation's tools field: a JSON array of tool
// definition objects. Blank text means no tools.
func ParseTools(text string) ([]json.RawMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var tools []json.RawMessage
	if err := json.Unmarshal([]byte(text), &tools); err != nil {
		return nil, fmt.Errorf("tools must be a JSON array: %w", err)
	}
	for i, tool := range tools {
		var obj map[string]any
		if err := json.Unmarshal(tool, &obj); err != nil {
			return nil, fmt.Errorf("tool %d must be a JSON object: %w", i, err)
		}
	}
	return tools, nil
}

// ParseArguments parses a test case's arguments field: a JSON object.
func ParseArguments(text string) (json.RawMessage, error) {
	raw, err := parseValue(text)
	if err != nil {
		return nil, fmt.Errorf("arguments: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("arguments: required")
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	return raw, nil
}

// ParseExpected parses a test case's expected output: any JSON value.
func ParseExpected(text string) (json.RawMessage, error) {
	raw, err := parseValue(text)
	if err != nil {
		return nil, fmt.Errorf("expected output: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("expected output: required")
	}
	return raw, nil
}

func parseValue(text string) (json.RawMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(text)); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return json.RawMessage(compact.Bytes()), nil
}

func indent(raw json.RawMessage) string {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}
