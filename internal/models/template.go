package models

import (
	"encoding/json"
	"time"
)

// Template is a saved certificate design: the designer's config JSON plus
// naming metadata. The design blob is kept opaque here; internal/design
// validates it at the API boundary.
type Template struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Design      json.RawMessage `json:"design"`
	CreatedAt   time.Time       `json:"created_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}
