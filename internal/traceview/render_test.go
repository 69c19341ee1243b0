package traceview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r4u-dev/r4u-console/internal/api"
)

func TestNormalizeContent(t *testing.T) {
	tests := []struct {
		name    string
		content any
		want    string
	}{
		{"nil", nil, ""},
		{"string", "x", "x"},
		{
			"text and image parts",
			[]any{
				map[string]any{"type": "text", "text": "a"},
				map[string]any{"type": "image_url", "url": "https://example.com/i.png"},
			},
			"a\n[Image]",
		},
		{
			"output_text part",
			[]any{map[string]any{"type": "output_text", "text": "done"}},
			"done",
		},
		{
			"text part without text field",
			[]any{map[string]any{"type": "text"}},
			"",
		},
		{
			"bare string element",
			[]any{"plain"},
			"plain",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeContent(tt.content))
		})
	}
}

func TestNormalizeContentDumpsUnknownShapes(t *testing.T) {
	got := NormalizeContent(map[string]any{"weird": true})
	assert.Contains(t, got, `"weird": true`)

	got = NormalizeContent([]any{map[string]any{"type": "audio", "data": "xx"}})
	assert.Contains(t, got, `"audio"`)
}

// Dispatch totality: any type string outside the known set must render the
// fallback box labeled with the literal type, and must not panic.
func TestUnknownTypeFallback(t *testing.T) {
	r := NewInputRenderer()

	for _, typ := range []string{"quantum_flux", "", "MESSAGE", "message "} {
		item := api.Item{"type": typ, "anything": []any{1, "two", nil}}
		var got Rendered
		require.NotPanics(t, func() { got = r.Render(item, 0) })
		assert.True(t, got.Unknown, "type %q should hit the fallback", typ)
		assert.Equal(t, CategoryNeutral, got.Category)
		if typ != "" {
			assert.Equal(t, typ, got.Label)
		}
		assert.Contains(t, got.Raw, "anything")
	}
}

func TestRenderNeverPanicsOnHostileShapes(t *testing.T) {
	r := NewInputRenderer()
	hostile := []api.Item{
		nil,
		{},
		{"type": 42},
		{"type": "message", "content": 3.14},
		{"type": "message", "role": []any{"not", "a", "string"}},
		{"type": "tool_result", "is_error": "yes"},
		{"type": "function_call", "arguments": map[string]any{"a": []any{nil}}},
	}
	for i, item := range hostile {
		require.NotPanics(t, func() { r.Render(item, i) })
	}
}

func TestMessageTemplate(t *testing.T) {
	r := NewInputRenderer()

	got := r.Render(api.Item{"type": "message", "role": "system", "content": "be brief"}, 0)
	require.False(t, got.Unknown)
	assert.Equal(t, "Message", got.Label)
	require.Len(t, got.Fields, 2)
	assert.Equal(t, "system", got.Fields[0].Value)
	assert.Equal(t, "be brief", got.Fields[1].Value)

	// Role falls back to "user" when absent.
	got = r.Render(api.Item{"type": "message", "content": "hi"}, 1)
	assert.Equal(t, "user", got.Fields[0].Value)
}

func TestOutputMessageDefaultsToAssistant(t *testing.T) {
	r := NewOutputRenderer()
	got := r.Render(api.Item{"type": "message", "content": "answer"}, 0)
	assert.Equal(t, "Assistant Message", got.Label)
	assert.Equal(t, "assistant", got.Fields[0].Value)
	assert.Equal(t, CategorySuccess, got.Category)
}

// Error emphasis: is_error selects the error category and appends the
// marker; absent or false keeps the success category with no marker.
func TestToolResultErrorEmphasis(t *testing.T) {
	r := NewInputRenderer()

	erred := r.Render(api.Item{
		"type": "tool_result", "call_id": "c1", "result": "boom", "is_error": true,
	}, 0)
	assert.Equal(t, CategoryError, erred.Category)
	assert.True(t, strings.HasSuffix(erred.Label, "(ERROR)"), "label %q", erred.Label)

	ok := r.Render(api.Item{
		"type": "tool_result", "call_id": "c1", "result": "fine", "is_error": false,
	}, 0)
	assert.Equal(t, CategorySuccess, ok.Category)
	assert.NotContains(t, ok.Label, "(ERROR)")

	absent := r.Render(api.Item{"type": "tool_result", "call_id": "c1", "result": "fine"}, 0)
	assert.Equal(t, CategorySuccess, absent.Category)
	assert.NotContains(t, absent.Label, "(ERROR)")
}

func TestErrorFieldTriggersEmphasis(t *testing.T) {
	r := NewInputRenderer()
	got := r.Render(api.Item{"type": "mcp_call", "name": "fetch", "error": "connection refused"}, 0)
	assert.Equal(t, CategoryError, got.Category)
	assert.Contains(t, got.Label, "(ERROR)")

	// Empty error string is not an error.
	got = r.Render(api.Item{"type": "mcp_call", "name": "fetch", "error": ""}, 0)
	assert.NotEqual(t, CategoryError, got.Category)
}

func TestArgumentsPrettyPrintedAndMalformedJSONSurvives(t *testing.T) {
	r := NewInputRenderer()

	pretty := r.Render(api.Item{
		"type": "function_call", "name": "add", "arguments": `{"a":1,"b":2}`,
	}, 0)
	require.Len(t, pretty.Fields, 2)
	assert.Contains(t, pretty.Fields[1].Value, "\"a\": 1")

	// Malformed JSON in a string field is shown raw, never a panic.
	raw := r.Render(api.Item{
		"type": "function_call", "name": "add", "arguments": `{"a":1,`,
	}, 0)
	assert.Equal(t, `{"a":1,`, raw.Fields[1].Value)
}

func TestAltKeysAndOmittedRows(t *testing.T) {
	r := NewInputRenderer()

	// tool_call accepts "name" when "tool_name" is absent.
	got := r.Render(api.Item{"type": "tool_call", "name": "search"}, 0)
	require.NotEmpty(t, got.Fields)
	assert.Equal(t, "search", got.Fields[0].Value)

	// Fields with no value and no fallback are omitted entirely.
	got = r.Render(api.Item{"type": "tool_call"}, 0)
	assert.Empty(t, got.Fields)
}

func TestMediaLinkField(t *testing.T) {
	r := NewInputRenderer()
	got := r.Render(api.Item{
		"type": "media", "mime_type": "image/png", "url": "https://cdn.example.com/x.png",
	}, 0)
	var link *RenderedField
	for i := range got.Fields {
		if got.Fields[i].Link {
			link = &got.Fields[i]
		}
	}
	require.NotNil(t, link, "expected a link field")
	assert.Equal(t, "https://cdn.example.com/x.png", link.Value)
}

// Rendering is deterministic: same item, same output.
func TestRenderDeterministic(t *testing.T) {
	r := NewInputRenderer()
	item := api.Item{
		"type": "mcp_tool_call", "server": "files", "tool_name": "read",
		"arguments": `{"path":"/etc/hosts"}`, "id": "call-9",
	}
	first := r.Render(item, 3)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Render(item, 3))
	}
}

func TestRenderAllPreservesOrder(t *testing.T) {
	r := NewOutputRenderer()
	items := []api.Item{
		{"type": "reasoning", "summary": "thinking"},
		{"type": "message", "content": "answer"},
	}
	got := r.RenderAll(items)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 1, got[1].Index)
	assert.Equal(t, "Reasoning", got[0].Label)
}

func TestRegistryCoversAllKnownKinds(t *testing.T) {
	known := []string{
		"message", "function_call", "function_result", "tool_call",
		"tool_result", "media", "mcp_tool_call", "mcp_tool_result",
		"reasoning", "file_search_call", "web_search_call", "computer_call",
		"image_generation_call", "code_interpreter_call", "local_shell_call",
		"mcp_call", "mcp_list_tools", "mcp_approval_request",
		"custom_tool_call",
	}
	for _, reg := range []*Registry{InputRegistry(), OutputRegistry()} {
		for _, typ := range known {
			_, ok := reg.Lookup(typ)
			assert.True(t, ok, "missing template for %q", typ)
		}
		assert.Equal(t, len(known), reg.Types())
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	r := newRegistry()
	r.register("message", Template{Label: "A"})
	assert.Panics(t, func() { r.register("message", Template{Label: "B"}) })
}
