package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"certforge/internal/compose"
	"certforge/internal/pkg/logger"
)

// cssPixelsPerInch converts CSS pixel dimensions to the inch-based paper
// size the DevTools PrintToPDF call expects.
const cssPixelsPerInch = 96.0

// SessionConfig tunes one ChromeSession.
type SessionConfig struct {
	// PoolSize is the number of tabs rendering concurrently. Each tab
	// costs process memory; 1 is the right default for most hosts.
	PoolSize int
	// RenderTimeout bounds a single document render.
	RenderTimeout time.Duration
	// MaxConsecutiveFailures caps tab recreations after timeouts before
	// the session declares the engine crashed.
	MaxConsecutiveFailures int
	// ExecPath overrides the Chrome binary location. Empty means lookup
	// from the usual install locations.
	ExecPath string
	Log      *logger.Logger
}

// DefaultSessionConfig returns the config used when fields are left zero.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PoolSize:               1,
		RenderTimeout:          30 * time.Second,
		MaxConsecutiveFailures: 3,
	}
}

// tab is one reusable rendering context inside the browser process.
type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// ChromeSession implements Engine on one long-lived headless Chrome process.
// The process is created by Start, shared by every Render via the tab pool,
// and torn down exactly once by Stop.
type ChromeSession struct {
	cfg SessionConfig
	log *logger.Logger

	mu          sync.Mutex
	started     bool
	stopped     bool
	allocCancel context.CancelFunc
	browserCtx  context.Context
	ctxCancel   context.CancelFunc
	failStreak  int

	tabs chan *tab
}

// NewChromeSession creates a session. Zero-value config fields fall back to
// DefaultSessionConfig.
func NewChromeSession(cfg SessionConfig) *ChromeSession {
	def := DefaultSessionConfig()
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = def.RenderTimeout
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &ChromeSession{
		cfg: cfg,
		log: log.WithComponent("render"),
	}
}

// Start launches the browser process and fills the tab pool. It fails
// without retry when the binary cannot be launched.
func (s *ChromeSession) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.stopped {
		return fmt.Errorf("%w: session already stopped", ErrEngineUnavailable)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
	)
	if s.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, ctxCancel := chromedp.NewContext(allocCtx)

	// Run with no actions forces the process launch now, so a missing
	// binary aborts the batch before any row is attempted.
	if err := chromedp.Run(browserCtx); err != nil {
		ctxCancel()
		allocCancel()
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if err := ctx.Err(); err != nil {
		ctxCancel()
		allocCancel()
		return err
	}

	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.ctxCancel = ctxCancel

	s.tabs = make(chan *tab, s.cfg.PoolSize)
	for i := 0; i < s.cfg.PoolSize; i++ {
		t, err := s.newTab()
		if err != nil {
			s.teardownLocked()
			return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		s.tabs <- t
	}

	s.started = true
	s.log.Info("render engine started", "pool_size", s.cfg.PoolSize)
	return nil
}

// Render acquires a tab (blocking while all are busy), loads the document
// and prints it to PDF sized exactly to the document's pixel dimensions.
func (s *ChromeSession) Render(ctx context.Context, doc compose.Document) ([]byte, error) {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session not running", ErrEngineCrashed)
	}
	tabs := s.tabs
	browserCtx := s.browserCtx
	s.mu.Unlock()

	var t *tab
	select {
	case t = <-tabs:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	pdf, err := s.renderOnTab(ctx, t, doc)
	if err == nil {
		s.resetFailStreak()
		tabs <- t
		return pdf, nil
	}

	if browserCtx.Err() != nil {
		// Process itself is gone. Drop the tab; Stop cleans up the rest.
		t.cancel()
		return nil, fmt.Errorf("%w: %v", ErrEngineCrashed, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		// The tab's state is unknown after a timeout, so it is discarded
		// and a fresh one takes its slot in the pool.
		t.cancel()
		if ferr := s.replaceTab(tabs); ferr != nil {
			return nil, ferr
		}
		return nil, fmt.Errorf("%w after %s", ErrTimeout, s.cfg.RenderTimeout)
	}

	// Other render failures keep the tab: the document failed, not the
	// context.
	s.resetFailStreak()
	tabs <- t
	return nil, fmt.Errorf("render failed: %w", err)
}

// Stop tears the process and every tab down. Idempotent; safe before Start.
func (s *ChromeSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true

	if !s.started {
		return nil
	}
	s.teardownLocked()
	s.started = false
	s.log.Info("render engine stopped")
	return nil
}

func (s *ChromeSession) teardownLocked() {
	if s.tabs != nil {
	drain:
		for {
			select {
			case t := <-s.tabs:
				t.cancel()
			default:
				break drain
			}
		}
	}
	if s.ctxCancel != nil {
		s.ctxCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

func (s *ChromeSession) newTab() (*tab, error) {
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	// Realize the target so later renders pay no first-use cost.
	if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return nil, err
	}
	return &tab{ctx: tabCtx, cancel: cancel}, nil
}

// replaceTab creates a substitute after a discarded tab, enforcing the
// bounded-recreation policy: too many consecutive losses mean the engine is
// not healthy and the batch must stop rather than retry forever.
func (s *ChromeSession) replaceTab(tabs chan *tab) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failStreak++
	if s.failStreak >= s.cfg.MaxConsecutiveFailures {
		return fmt.Errorf("%w: %d consecutive context failures", ErrEngineCrashed, s.failStreak)
	}
	if s.stopped {
		return fmt.Errorf("%w: session stopped", ErrEngineCrashed)
	}

	t, err := s.newTab()
	if err != nil {
		return fmt.Errorf("%w: replacing rendering context: %v", ErrEngineCrashed, err)
	}
	tabs <- t
	s.log.Warn("rendering context replaced after timeout", "fail_streak", s.failStreak)
	return nil
}

func (s *ChromeSession) resetFailStreak() {
	s.mu.Lock()
	s.failStreak = 0
	s.mu.Unlock()
}

func (s *ChromeSession) renderOnTab(ctx context.Context, t *tab, doc compose.Document) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(t.ctx, s.cfg.RenderTimeout)
	defer cancel()

	// Honor caller cancellation without tying the tab to the caller ctx.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	var pdf []byte
	err := chromedp.Run(runCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			// Documents are self-contained (inlined image data), so a
			// parsed DOM is enough; no need to wait for paint events.
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc.HTML).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(float64(doc.Width) / cssPixelsPerInch).
				WithPaperHeight(float64(doc.Height) / cssPixelsPerInch).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}
