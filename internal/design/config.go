// Package design holds the validated, immutable representation of a
// certificate design: canvas size plus the ordered list of text fields the
// design UI positioned over the background image.
package design

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Point is a position in canvas pixel space. Coordinates may be fractional
// and are allowed to fall outside the canvas.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Style is the resolved text styling for one field.
type Style struct {
	FontFamily    string `json:"fontFamily"`
	FontSize      int    `json:"fontSize"`
	FontWeight    string `json:"fontWeight"`
	FontStyle     string `json:"fontStyle"`
	Color         string `json:"color"`
	TextAlign     string `json:"textAlign"`
	TextTransform string `json:"textTransform"`
}

// Field is one positioned text element. Its value comes from the CSV column
// named Column, falling back to StaticText, falling back to Label.
type Field struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Column     string `json:"csvColumn"`
	StaticText string `json:"staticValue"`
	Position   Point  `json:"position"`
	Style      Style  `json:"style"`
}

// Config is the design produced by the UI: canvas dimensions and fields in
// layering order (later fields draw over earlier ones).
type Config struct {
	Width  int     `json:"-"`
	Height int     `json:"-"`
	Fields []Field `json:"fields"`
}

type dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type configJSON struct {
	Fields          []Field     `json:"fields"`
	ImageDimensions *dimensions `json:"imageDimensions"`
	Canvas          *dimensions `json:"canvas"`
}

// Parse decodes the design configuration JSON the UI submits and validates
// it. Both the "imageDimensions" key (designer payload) and a plain "canvas"
// key are accepted for the dimensions block.
func Parse(raw []byte) (*Config, error) {
	var cj configJSON
	if err := json.Unmarshal(raw, &cj); err != nil {
		return nil, fmt.Errorf("invalid design config json: %w", err)
	}

	dims := cj.ImageDimensions
	if dims == nil {
		dims = cj.Canvas
	}
	if dims == nil {
		return nil, fmt.Errorf("design config missing canvas dimensions")
	}

	cfg := &Config{
		Width:  dims.Width,
		Height: dims.Height,
		Fields: cj.Fields,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural invariants. A config that fails here must never
// reach the renderer.
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("canvas dimensions must be positive, got %dx%d", c.Width, c.Height)
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("design config has no fields")
	}

	seen := make(map[string]bool, len(c.Fields))
	for i := range c.Fields {
		f := &c.Fields[i]
		if f.ID == "" {
			return fmt.Errorf("field %d: missing id", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("field %d: duplicate id %q", i, f.ID)
		}
		seen[f.ID] = true

		if err := f.Style.validate(); err != nil {
			return fmt.Errorf("field %q: %w", f.ID, err)
		}
	}
	return nil
}

func (s *Style) validate() error {
	// 8-200 is what the designer UI offers, but anything positive renders
	// fine, so only non-positive sizes are rejected.
	if s.FontSize <= 0 {
		return fmt.Errorf("font size must be positive, got %d", s.FontSize)
	}
	if !validWeight(s.FontWeight) {
		return fmt.Errorf("invalid font weight %q", s.FontWeight)
	}
	switch s.FontStyle {
	case "", "normal", "italic":
	default:
		return fmt.Errorf("invalid font style %q", s.FontStyle)
	}
	switch s.TextAlign {
	case "", "left", "center", "right":
	default:
		return fmt.Errorf("invalid text align %q", s.TextAlign)
	}
	switch s.TextTransform {
	case "", "none", "uppercase", "lowercase", "capitalize":
	default:
		return fmt.Errorf("invalid text transform %q", s.TextTransform)
	}
	return nil
}

// validWeight accepts the CSS named weights the designer emits plus the
// numeric 100-900 scale.
func validWeight(w string) bool {
	switch strings.TrimSpace(w) {
	case "", "normal", "bold", "lighter":
		return true
	case "100", "200", "300", "400", "500", "600", "700", "800", "900":
		return true
	}
	return false
}
