package traceview

import (
	"github.com/r4u-dev/r4u-console/internal/api"
)

// errorSuffix is appended to the label of an erroring item.
const errorSuffix = " (ERROR)"

// Rendered is the presentation of one trace item: pure data, consumed by
// the web templates. Rendering is deterministic — the same item always
// produces the same Rendered value — and never panics, whatever fields the
// wire payload carries or omits.
type Rendered struct {
	Index    int // position in the enclosing list; identity only
	Type     string
	Icon     string
	Label    string
	Category Category
	Fields   []RenderedField

	// Unknown marks the fallback path: Raw holds the structured dump of
	// the entire item.
	Unknown bool
	Raw     string
}

// RenderedField is one extracted field row.
type RenderedField struct {
	Label string
	Value string
	Link  bool
}

// Renderer dispatches items against a registry. Construct with
// NewInputRenderer or NewOutputRenderer.
type Renderer struct {
	reg *Registry
}

// NewInputRenderer renders items from a trace's input message list.
func NewInputRenderer() *Renderer { return &Renderer{reg: InputRegistry()} }

// NewOutputRenderer renders items from a trace's output list.
func NewOutputRenderer() *Renderer { return &Renderer{reg: OutputRegistry()} }

// Render produces the presentation of one item. Unknown types render the
// generic fallback: a neutral box labeled with the literal type string and
// a structured dump of the whole item.
func (r *Renderer) Render(item api.Item, index int) Rendered {
	typ := item.Type()

	tmpl, ok := r.reg.Lookup(typ)
	if !ok {
		label := typ
		if label == "" {
			label = "unknown"
		}
		return Rendered{
			Index:    index,
			Type:     typ,
			Icon:     "box",
			Label:    label,
			Category: CategoryNeutral,
			Unknown:  true,
			Raw:      Dump(map[string]any(item)),
		}
	}

	out := Rendered{
		Index:    index,
		Type:     typ,
		Icon:     tmpl.Icon,
		Label:    tmpl.Label,
		Category: tmpl.Category,
	}

	for _, f := range tmpl.Fields {
		if rf, ok := extractField(item, f); ok {
			out.Fields = append(out.Fields, rf)
		}
	}

	if isError(item) {
		out.Category = CategoryError
		out.Label += errorSuffix
	}

	return out
}

// RenderAll renders a whole item list in order.
func (r *Renderer) RenderAll(items []api.Item) []Rendered {
	out := make([]Rendered, len(items))
	for i, item := range items {
		out[i] = r.Render(item, i)
	}
	return out
}

// extractField reads one field per its extractor. Returns false when the
// field is absent and has no fallback, which omits the row entirely.
func extractField(item api.Item, f Field) (RenderedField, bool) {
	value, present := lookupValue(item, f)
	if !present {
		if f.Fallback == "" {
			return RenderedField{}, false
		}
		return RenderedField{Label: f.Label, Value: f.Fallback}, true
	}

	rf := RenderedField{Label: f.Label}
	switch f.Format {
	case FormatJSON:
		rf.Value = DumpJSONText(value)
	case FormatContent:
		rf.Value = NormalizeContent(value)
	case FormatLink:
		rf.Value = stringify(value)
		rf.Link = true
	default:
		rf.Value = stringify(value)
	}
	return rf, true
}

func lookupValue(item api.Item, f Field) (any, bool) {
	if v, ok := item[f.Key]; ok && v != nil {
		return v, true
	}
	for _, k := range f.AltKeys {
		if v, ok := item[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return Dump(v)
}

// isError applies the shared emphasis rule: an item carrying is_error=true
// or a non-empty error field renders in the error category with the label
// marker appended.
func isError(item api.Item) bool {
	if b, ok := item["is_error"].(bool); ok && b {
		return true
	}
	switch e := item["error"].(type) {
	case nil:
		return false
	case string:
		return e != ""
	default:
		return true
	}
}
