// Package render drives the external rendering engine. The engine is an
// injected capability behind a narrow interface; the default implementation
// runs one headless Chrome process over the DevTools protocol and reuses a
// small pool of tabs across the whole batch.
package render

import (
	"context"
	"errors"

	"certforge/internal/compose"
)

// Sentinel errors callers branch on.
var (
	// ErrEngineUnavailable means the engine process could not be launched
	// at all. Fatal before any row is attempted.
	ErrEngineUnavailable = errors.New("render engine unavailable")

	// ErrEngineCrashed means the engine process died or was declared
	// unusable mid-batch. No further Render calls can succeed.
	ErrEngineCrashed = errors.New("render engine crashed")

	// ErrTimeout means a single document did not render within the
	// per-row deadline. The engine itself remains usable.
	ErrTimeout = errors.New("render timed out")
)

// Engine rasterizes composed documents. Start must be called before Render;
// Stop is idempotent and safe to call even if Start failed.
type Engine interface {
	Start(ctx context.Context) error
	Render(ctx context.Context, doc compose.Document) ([]byte, error)
	Stop() error
}

// IsFatal reports whether err makes the whole engine unusable, as opposed to
// a per-document failure the batch can skip over.
func IsFatal(err error) bool {
	return errors.Is(err, ErrEngineUnavailable) || errors.Is(err, ErrEngineCrashed)
}
