// Package compose turns one design config plus one CSV row into a
// self-contained HTML document the render engine can rasterize without any
// network access: the background image is inlined as a data URI and every
// field is emitted as an absolutely positioned, fully styled element.
package compose

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"
	"unicode"

	"certforge/internal/design"
	"certforge/internal/tabular"
)

// Background is the raw certificate image plus its MIME type.
type Background struct {
	Data        []byte
	ContentType string
}

// DataURI encodes the image for inlining into the document.
func (b Background) DataURI() string {
	ct := b.ContentType
	if ct == "" {
		ct = "image/png"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(b.Data)
}

// Document is one composed certificate ready for rendering. Width and Height
// are the exact output dimensions in CSS pixels.
type Document struct {
	HTML   string
	Width  int
	Height int
}

// Compose builds the document for one row. Pure function of its inputs:
// composing the same (config, background, row) twice yields identical HTML.
func Compose(cfg *design.Config, bg Background, row tabular.Row) Document {
	var fields strings.Builder

	for i := range cfg.Fields {
		f := &cfg.Fields[i]
		value := ApplyTransform(resolveValue(f, row), f.Style.TextTransform)

		fmt.Fprintf(&fields, `<div style="%s">%s</div>`+"\n",
			fieldCSS(f), html.EscapeString(value))
	}

	doc := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
* { margin: 0; padding: 0; box-sizing: border-box; }
.certificate-container { position: relative; width: %dpx; height: %dpx; }
.certificate-bg { width: 100%%; height: 100%%; display: block; }
</style>
</head>
<body>
<div class="certificate-container">
<img src="%s" class="certificate-bg" />
%s</div>
</body>
</html>
`, cfg.Width, cfg.Height, bg.DataURI(), fields.String())

	return Document{HTML: doc, Width: cfg.Width, Height: cfg.Height}
}

// resolveValue picks the field's text for this row: CSV column when present
// and non-empty, else the static text, else the field label. Each field
// resolves independently so one missing column never fails the row.
func resolveValue(f *design.Field, row tabular.Row) string {
	if f.Column != "" {
		if v := row.Get(f.Column); v != "" {
			return v
		}
	}
	if s := strings.TrimSpace(f.StaticText); s != "" {
		return s
	}
	return f.Label
}

// ApplyTransform applies the CSS text-transform semantics as a plain string
// transform. The literal value carries the transform so the output is correct
// even against engines that ignore the declarative property.
func ApplyTransform(s, transform string) string {
	switch transform {
	case "uppercase":
		return strings.ToUpper(s)
	case "lowercase":
		return strings.ToLower(s)
	case "capitalize":
		return capitalizeWords(s)
	default:
		return s
	}
}

func capitalizeWords(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startOfWord := true
	for _, r := range s {
		if unicode.IsSpace(r) {
			startOfWord = true
			b.WriteRune(r)
			continue
		}
		if startOfWord {
			b.WriteRune(unicode.ToUpper(r))
			startOfWord = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// fieldCSS renders the style block for one field. The declarative
// text-transform is kept alongside the already-transformed literal; both
// agree, so either path renders the same text.
func fieldCSS(f *design.Field) string {
	st := f.Style
	return fmt.Sprintf(
		"position: absolute; left: %gpx; top: %gpx; "+
			"font-family: %s; font-size: %dpx; font-weight: %s; font-style: %s; "+
			"color: %s; text-align: %s; text-transform: %s; white-space: nowrap;",
		f.Position.X, f.Position.Y,
		cssValue(st.FontFamily, "sans-serif"),
		st.FontSize,
		cssValue(st.FontWeight, "normal"),
		cssValue(st.FontStyle, "normal"),
		cssValue(st.Color, "#000000"),
		cssValue(st.TextAlign, "left"),
		cssValue(st.TextTransform, "none"),
	)
}

// cssValue returns def when v is empty and strips characters that could
// break out of the inline style attribute.
func cssValue(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	v = strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', ';', '<', '>', '\\':
			return -1
		}
		return r
	}, v)
	if v == "" {
		return def
	}
	return v
}
