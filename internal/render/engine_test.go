package render

import (
	"context"
	"fmt"
	"testing"

	"certforge/internal/compose"
)

func doc() compose.Document {
	return compose.Document{HTML: "<html></html>", Width: 100, Height: 100}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unavailable", ErrEngineUnavailable, true},
		{"crashed", ErrEngineCrashed, true},
		{"wrapped crashed", fmt.Errorf("render: %w", ErrEngineCrashed), true},
		{"timeout", ErrTimeout, false},
		{"wrapped timeout", fmt.Errorf("%w after 30s", ErrTimeout), false},
		{"canceled", context.Canceled, false},
		{"nil", nil, false},
		{"plain", fmt.Errorf("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestChromeSessionLifecycle(t *testing.T) {
	t.Run("stop before start is a no-op", func(t *testing.T) {
		s := NewChromeSession(SessionConfig{})
		if err := s.Stop(); err != nil {
			t.Fatalf("Stop failed: %v", err)
		}
	})

	t.Run("render after stop fails", func(t *testing.T) {
		s := NewChromeSession(SessionConfig{})
		_ = s.Stop()
		_, err := s.Render(context.Background(), doc())
		if !IsFatal(err) {
			t.Errorf("err = %v, want fatal", err)
		}
	})

	t.Run("start after stop fails", func(t *testing.T) {
		s := NewChromeSession(SessionConfig{})
		_ = s.Stop()
		if err := s.Start(context.Background()); !IsFatal(err) {
			t.Errorf("err = %v, want fatal", err)
		}
	})

	t.Run("zero config gets defaults", func(t *testing.T) {
		s := NewChromeSession(SessionConfig{})
		if s.cfg.PoolSize != 1 {
			t.Errorf("PoolSize = %d, want 1", s.cfg.PoolSize)
		}
		if s.cfg.RenderTimeout == 0 {
			t.Error("RenderTimeout not defaulted")
		}
		if s.cfg.MaxConsecutiveFailures != 3 {
			t.Errorf("MaxConsecutiveFailures = %d, want 3", s.cfg.MaxConsecutiveFailures)
		}
	})
}
