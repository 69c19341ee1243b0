// Package traceview renders the heterogeneous items inside a trace's input
// and output lists. Each item is a tagged union selected by its "type"
// field; the package maps every known type to a declarative template (icon,
// label, category, ordered field extractors) read by one generic renderer,
// with a mandatory fallback for unknown types.
package traceview

import "fmt"

// Category is the visual emphasis class of a rendered item.
type Category string

const (
	CategoryNeutral Category = "neutral"
	CategorySuccess Category = "success"
	CategoryError   Category = "error"
	CategoryAccent  Category = "accent"
	CategoryMuted   Category = "muted"
)

// Format selects how a field extractor presents its value.
type Format int

const (
	// FormatText shows the value's string form as-is.
	FormatText Format = iota
	// FormatJSON pretty-prints structured data; string values holding
	// serialized JSON are re-indented, invalid JSON is shown raw.
	FormatJSON
	// FormatContent applies the message content normalization rule.
	FormatContent
	// FormatLink renders the value as a hyperlink.
	FormatLink
)

// Field is one extractor in a template: where to read, what to call it,
// what to fall back to, and how to format it.
type Field struct {
	Label    string
	Key      string
	AltKeys  []string // tried in order when Key is absent
	Fallback string   // shown when no key matches; "" omits the row
	Format   Format
}

// Template describes how one item kind is presented.
type Template struct {
	Icon     string
	Label    string
	Category Category
	Fields   []Field
}

// Registry maps item type discriminators to templates. Lookup is a plain
// map read; registration happens once at construction and panics on a
// duplicate type so no template can silently shadow another.
type Registry struct {
	templates map[string]Template
}

func newRegistry() *Registry {
	return &Registry{templates: make(map[string]Template)}
}

func (r *Registry) register(typ string, t Template) {
	if _, exists := r.templates[typ]; exists {
		panic(fmt.Sprintf("traceview: duplicate template for type %q", typ))
	}
	r.templates[typ] = t
}

// Lookup returns the template for a type, if known.
func (r *Registry) Lookup(typ string) (Template, bool) {
	t, ok := r.templates[typ]
	return t, ok
}

// Types returns the number of registered item kinds.
func (r *Registry) Types() int { return len(r.templates) }

// fText, fJSON, fContent build the common field shapes.
func fText(label, key string, alt ...string) Field {
	return Field{Label: label, Key: key, AltKeys: alt, Format: FormatText}
}

func fJSON(label, key string, alt ...string) Field {
	return Field{Label: label, Key: key, AltKeys: alt, Format: FormatJSON}
}

func fContent(label, key string) Field {
	return Field{Label: label, Key: key, Format: FormatContent}
}

// InputRegistry builds the template table for input-side items.
func InputRegistry() *Registry {
	r := newRegistry()

	r.register("message", Template{
		Icon: "chat", Label: "Message", Category: CategoryNeutral,
		Fields: []Field{
			{Label: "Role", Key: "role", Fallback: "user", Format: FormatText},
			fContent("Content", "content"),
		},
	})
	r.register("function_call", Template{
		Icon: "bolt", Label: "Function Call", Category: CategoryAccent,
		Fields: []Field{
			fText("Name", "name"),
			fJSON("Arguments", "arguments"),
			fText("Call ID", "id", "call_id"),
		},
	})
	r.register("function_result", Template{
		Icon: "reply", Label: "Function Result", Category: CategorySuccess,
		Fields: []Field{
			fText("Call ID", "call_id"),
			fJSON("Result", "result", "output"),
		},
	})
	r.register("tool_call", Template{
		Icon: "wrench", Label: "Tool Call", Category: CategoryAccent,
		Fields: []Field{
			fText("Tool", "tool_name", "name"),
			fJSON("Arguments", "arguments"),
			fText("Call ID", "id", "call_id"),
		},
	})
	r.register("tool_result", Template{
		Icon: "reply", Label: "Tool Result", Category: CategorySuccess,
		Fields: []Field{
			fText("Tool", "tool_name"),
			fText("Call ID", "call_id"),
			fJSON("Result", "result"),
		},
	})
	r.register("media", Template{
		Icon: "image", Label: "Media", Category: CategoryNeutral,
		Fields: []Field{
			fText("MIME Type", "mime_type"),
			{Label: "URL", Key: "url", Format: FormatLink},
			fJSON("Metadata", "metadata"),
		},
	})
	r.register("mcp_tool_call", Template{
		Icon: "plug", Label: "MCP Tool Call", Category: CategoryAccent,
		Fields: []Field{
			fText("Server", "server", "server_label"),
			fText("Tool", "tool_name", "name"),
			fJSON("Arguments", "arguments"),
			fText("Call ID", "id"),
		},
	})
	r.register("mcp_tool_result", Template{
		Icon: "plug", Label: "MCP Tool Result", Category: CategorySuccess,
		Fields: []Field{
			fText("Call ID", "call_id"),
			fJSON("Result", "result"),
		},
	})
	r.register("reasoning", Template{
		Icon: "brain", Label: "Reasoning", Category: CategoryMuted,
		Fields: []Field{
			fContent("Summary", "summary"),
			fContent("Content", "content"),
		},
	})
	r.register("file_search_call", Template{
		Icon: "search", Label: "File Search", Category: CategoryAccent,
		Fields: []Field{
			fJSON("Queries", "queries"),
			fText("Status", "status"),
		},
	})
	r.register("web_search_call", Template{
		Icon: "globe", Label: "Web Search", Category: CategoryAccent,
		Fields: []Field{
			fJSON("Action", "action"),
			fText("Status", "status"),
		},
	})
	r.register("computer_call", Template{
		Icon: "desktop", Label: "Computer Use", Category: CategoryAccent,
		Fields: []Field{
			fJSON("Action", "action"),
			fText("Call ID", "call_id", "id"),
			fText("Status", "status"),
		},
	})
	r.register("image_generation_call", Template{
		Icon: "image", Label: "Image Generation", Category: CategoryAccent,
		Fields: []Field{
			fText("Status", "status"),
			fText("Result", "result"),
		},
	})
	r.register("code_interpreter_call", Template{
		Icon: "code", Label: "Code Interpreter", Category: CategoryAccent,
		Fields: []Field{
			fText("Code", "code"),
			fJSON("Outputs", "outputs"),
			fText("Status", "status"),
		},
	})
	r.register("local_shell_call", Template{
		Icon: "terminal", Label: "Local Shell", Category: CategoryAccent,
		Fields: []Field{
			fJSON("Action", "action"),
			fText("Status", "status"),
		},
	})
	r.register("mcp_call", Template{
		Icon: "plug", Label: "MCP Call", Category: CategoryAccent,
		Fields: []Field{
			fText("Server", "server_label"),
			fText("Tool", "name"),
			fJSON("Arguments", "arguments"),
			fJSON("Output", "output"),
			fText("Error", "error"),
		},
	})
	r.register("mcp_list_tools", Template{
		Icon: "list", Label: "MCP List Tools", Category: CategoryNeutral,
		Fields: []Field{
			fText("Server", "server_label"),
			fJSON("Tools", "tools"),
		},
	})
	r.register("mcp_approval_request", Template{
		Icon: "shield", Label: "MCP Approval Request", Category: CategoryNeutral,
		Fields: []Field{
			fText("Server", "server_label"),
			fText("Tool", "name"),
			fJSON("Arguments", "arguments"),
		},
	})
	r.register("custom_tool_call", Template{
		Icon: "wrench", Label: "Custom Tool Call", Category: CategoryAccent,
		Fields: []Field{
			fText("Tool", "name"),
			fText("Input", "input"),
			fText("Call ID", "call_id", "id"),
		},
	})

	return r
}

// OutputRegistry builds the template table for output-side items. The
// output side shares the input table except where the defaults differ.
func OutputRegistry() *Registry {
	r := InputRegistry()

	// Output messages default to the assistant role.
	r.templates["message"] = Template{
		Icon: "chat", Label: "Assistant Message", Category: CategorySuccess,
		Fields: []Field{
			{Label: "Role", Key: "role", Fallback: "assistant", Format: FormatText},
			fContent("Content", "content"),
		},
	}

	return r
}
