package forms

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Invalid text marks the field invalid but keeps the last-known-good
// value; fixing the text replaces it.
func TestJSONFieldRetainsLastKnownGood(t *testing.T) {
	f := NewJSONField(json.RawMessage(`{"a":1}`))
	require.True(t, f.Valid())
	assert.JSONEq(t, `{"a":1}`, string(f.Value()))

	f.Set(`{"a":2,`)
	assert.False(t, f.Valid())
	assert.Error(t, f.Err())
	assert.Equal(t, `{"a":2,`, f.Text())
	assert.JSONEq(t, `{"a":1}`, string(f.Value()), "value must survive the bad edit")

	f.Set(`{"a":2}`)
	assert.True(t, f.Valid())
	assert.JSONEq(t, `{"a":2}`, string(f.Value()))
}

func TestJSONFieldBlankClearsValue(t *testing.T) {
	f := NewJSONField(json.RawMessage(`[1,2]`))
	f.Set("   ")
	assert.True(t, f.Valid())
	assert.Nil(t, f.Value())
}

func TestJSONFieldInitialTextIsIndented(t *testing.T) {
	f := NewJSONField(json.RawMessage(`{"a":1}`))
	assert.Contains(t, f.Text(), "\"a\": 1")

	empty := NewJSONField(nil)
	assert.Equal(t, "", empty.Text())
	assert.True(t, empty.Valid())
}

func TestParseTools(t *testing.T) {
	tools, err := ParseTools(`[{"type":"function","name":"add"}]`)
	require.NoError(t, err)
	require.Len(t, tools, 1)

	tools, err = ParseTools("")
	require.NoError(t, err)
	assert.Nil(t, tools)

	_, err = ParseTools(`{"not":"an array"}`)
	assert.Error(t, err)

	_, err = ParseTools(`["just a string"]`)
	assert.Error(t, err)
}

func TestParseArguments(t *testing.T) {
	raw, err := ParseArguments(`{"a": 1, "b": 2}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":2}`, string(raw))

	_, err = ParseArguments(`[1,2]`)
	assert.Error(t, err, "arguments must be an object")

	_, err = ParseArguments("")
	assert.Error(t, err, "arguments are required")

	_, err = ParseArguments(`{"a":`)
	assert.Error(t, err)
}

func TestParseExpected(t *testing.T) {
	raw, err := ParseExpected(`[3]`)
	require.NoError(t, err)
	assert.JSONEq(t, `[3]`, string(raw))

	raw, err = ParseExpected(`"ok"`)
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(raw))

	_, err = ParseExpected("")
	assert.Error(t, err)
}
