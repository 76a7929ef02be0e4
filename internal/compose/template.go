package compose

import (
	"html"
	"sort"
	"strings"

	"certforge/internal/tabular"
)

// A4 landscape output size in CSS pixels at 96 dpi. Template documents
// carry their own page layout, so the output is a fixed paper size instead
// of the designer's canvas dimensions.
const (
	A4LandscapeWidth  = 1123
	A4LandscapeHeight = 794
)

// maxPlaceholderColumn bounds the column names considered during
// substitution; longer header cells are junk, not placeholders.
const maxPlaceholderColumn = 50

// Template is a caller-supplied HTML page with {{Column}} placeholders.
// The markup is the caller's own and passes through untouched; only the
// substituted row values are escaped.
type Template struct {
	HTML string
}

// Compose substitutes one row into the template. Columns are applied in
// sorted order, so the same (template, row) always yields the same
// document. Placeholders with no matching column are left in place.
func (t Template) Compose(row tabular.Row) Document {
	cols := make([]string, 0, len(row))
	for col := range row {
		if col == "" || len(col) > maxPlaceholderColumn {
			continue
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	out := t.HTML
	for _, col := range cols {
		out = strings.ReplaceAll(out, "{{"+col+"}}", html.EscapeString(row[col]))
	}

	return Document{HTML: out, Width: A4LandscapeWidth, Height: A4LandscapeHeight}
}
