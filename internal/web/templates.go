package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/r4u-dev/r4u-console/internal/traceview"
)

//go:embed templates/*.html
var templateFS embed.FS

var funcMap = template.FuncMap{
	"fmtCost":    fmtCost,
	"fmtLatency": fmtLatency,
	"fmtTime":    fmtTime,
	"fmtScore":   fmtScore,
	"truncate":   truncate,
	"itemClass":  itemClass,
	"deref":      deref,
	"boolVal":    boolVal,
}

var templates = template.Must(template.New("").Funcs(funcMap).ParseFS(templateFS, "templates/*.html"))

// render executes a named template into a buffer first so a template error
// becomes a 500 instead of a half-written page.
func (h *Handlers) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("template render failed", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func fmtCost(cost float64) string {
	if cost == 0 {
		return "$0"
	}
	return fmt.Sprintf("$%.4f", cost)
}

func fmtLatency(ms float64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.2f s", ms/1000)
	}
	return fmt.Sprintf("%.0f ms", ms)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func fmtScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}

// truncate counts runes, not bytes, so it never splits a multi-byte
// UTF-8 sequence.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// itemClass maps a rendered item's category onto its CSS class.
func itemClass(c traceview.Category) string {
	switch c {
	case traceview.CategorySuccess:
		return "item item-success"
	case traceview.CategoryError:
		return "item item-error"
	case traceview.CategoryAccent:
		return "item item-accent"
	case traceview.CategoryMuted:
		return "item item-muted"
	default:
		return "item item-neutral"
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolVal(b *bool) bool {
	return b != nil && *b
}
