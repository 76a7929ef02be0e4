// Package batch drives one end-to-end generation run: it validates the
// inputs, renders every row through the engine session, streams successes
// into the archive in row order, and keeps going past individual bad rows
// while still aborting on conditions that make the whole batch pointless.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"certforge/internal/archive"
	"certforge/internal/compose"
	"certforge/internal/design"
	"certforge/internal/pkg/errors"
	"certforge/internal/pkg/logger"
	"certforge/internal/render"
	"certforge/internal/tabular"
)

// DefaultNameColumn is the CSV column archive entry names derive from.
const DefaultNameColumn = "Name"

// Options tunes one run.
type Options struct {
	// Concurrency is how many rows render at once. Keep it at or below
	// the engine's pool size; extra workers only queue on the pool.
	Concurrency int
	// NameColumn overrides the column entry names derive from.
	NameColumn string
	// FailureReport adds a failures.json entry to the archive when any
	// row was skipped. The streaming endpoint has no other channel left
	// once the download has started.
	FailureReport bool
	Log           *logger.Logger
}

// RowFailure records one skipped row.
type RowFailure struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Result reports what one batch produced.
type Result struct {
	Succeeded int          `json:"succeeded"`
	Failures  []RowFailure `json:"failures,omitempty"`
}

// Failed returns the number of skipped rows.
func (r *Result) Failed() int { return len(r.Failures) }

// renderOutcome carries one row's bytes or error from a worker to the
// in-order emitter.
type renderOutcome struct {
	row int
	pdf []byte
	err error
}

// Run executes a designer-config batch. The engine is started before the
// first row and stopped on every exit path. On a nil error the archive in
// sink is complete and valid; on a non-nil error the sink must not be
// presented as a successful download.
func Run(ctx context.Context, cfg *design.Config, rows []tabular.Row, bg compose.Background, eng render.Engine, sink io.Writer, opts Options) (*Result, error) {
	// Validating: reject before any rendering work.
	if cfg == nil {
		return nil, errors.Validation("missing design config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "batch.validate", "invalid design config")
	}
	composeRow := func(row tabular.Row) compose.Document {
		return compose.Compose(cfg, bg, row)
	}
	return runComposed(ctx, composeRow, rows, eng, sink, opts)
}

// RunTemplate executes a batch from a caller-supplied HTML template with
// {{Column}} placeholders instead of a designer config. Same pipeline,
// different composer.
func RunTemplate(ctx context.Context, tpl compose.Template, rows []tabular.Row, eng render.Engine, sink io.Writer, opts Options) (*Result, error) {
	if strings.TrimSpace(tpl.HTML) == "" {
		return nil, errors.Validation("empty template")
	}
	return runComposed(ctx, tpl.Compose, rows, eng, sink, opts)
}

func runComposed(ctx context.Context, composeRow func(tabular.Row) compose.Document, rows []tabular.Row, eng render.Engine, sink io.Writer, opts Options) (*Result, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("batch")

	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.NameColumn == "" {
		opts.NameColumn = DefaultNameColumn
	}

	if len(rows) == 0 {
		return nil, errors.Validation("no rows to render")
	}

	if err := eng.Start(ctx); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "batch.start", "render engine failed to start")
	}
	defer func() {
		if err := eng.Stop(); err != nil {
			log.Warn("engine stop failed", "error", err.Error())
		}
	}()

	start := time.Now()
	log.Info("batch started", "rows", len(rows), "concurrency", opts.Concurrency)

	result, err := renderAll(ctx, composeRow, rows, eng, sink, opts, log)
	if err != nil {
		return nil, err
	}

	log.Info("batch finished",
		"succeeded", result.Succeeded,
		"failed", result.Failed(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// renderAll is the Rendering/Finalizing portion: a bounded worker group
// renders rows while a single emitter drains completions in row order into
// the streamer. A fatal error cancels the group and leaves the archive
// unfinalized.
func renderAll(ctx context.Context, composeRow func(tabular.Row) compose.Document, rows []tabular.Row, eng render.Engine, sink io.Writer, opts Options, log *logger.Logger) (*Result, error) {
	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan int)
	outcomes := make(chan renderOutcome, opts.Concurrency)

	// errgroup reports only the first error, so the engine-fatal cause is
	// captured separately to keep it from being masked by the cancellation
	// errors it triggers in the other goroutines.
	var fatalOnce sync.Once
	var engineFatal error

	g.Go(func() error {
		defer close(jobs)
		for i := range rows {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	workers := &errgroup.Group{}
	for w := 0; w < opts.Concurrency; w++ {
		workers.Go(func() error {
			for i := range jobs {
				doc := composeRow(rows[i])
				pdf, err := eng.Render(gctx, doc)
				if err != nil && render.IsFatal(err) {
					fatalOnce.Do(func() { engineFatal = err })
					return err
				}
				select {
				case outcomes <- renderOutcome{row: i, pdf: pdf, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(outcomes)
		return workers.Wait()
	})

	result := &Result{}
	g.Go(func() error {
		return emitInOrder(gctx, rows, outcomes, sink, opts, result, log)
	})

	if err := g.Wait(); err != nil {
		if engineFatal != nil {
			err = engineFatal
		}
		return nil, classifyFatal(err)
	}
	return result, nil
}

// emitInOrder consumes completions, buffering any that arrive ahead of their
// turn, and writes entries in input row order. Finalizes the archive once
// every row is accounted for.
func emitInOrder(ctx context.Context, rows []tabular.Row, outcomes <-chan renderOutcome, sink io.Writer, opts Options, result *Result, log *logger.Logger) error {
	streamer := archive.NewStreamer(sink)
	namer := archive.NewEntryNamer(".pdf")

	pending := make(map[int]renderOutcome)
	next := 0

	for oc := range outcomes {
		pending[oc.row] = oc

		for {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)

			if cur.err != nil {
				result.Failures = append(result.Failures, RowFailure{Row: cur.row, Reason: cur.err.Error()})
				log.Warn("row skipped", "row", cur.row, "error", cur.err.Error())
				next++
				continue
			}

			name := namer.Name(rows[cur.row].Get(opts.NameColumn), cur.row)
			if err := streamer.Add(name, cur.pdf); err != nil {
				// Sink write failure is fatal; the archive stays
				// unfinalized.
				return errors.WrapWithCode(err, errors.CodeUnavailable, "batch.sink", "archive write failed")
			}
			result.Succeeded++
			next++
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if next != len(rows) {
		return errors.Internalf("emitter stopped at row %d of %d", next, len(rows))
	}
	if result.Succeeded == 0 {
		// Finalizing would hand the client a valid but empty archive.
		return errors.Newf(errors.CodeInternal, "all %d rows failed to render", len(rows))
	}

	if opts.FailureReport && len(result.Failures) > 0 && result.Succeeded > 0 {
		report, err := json.MarshalIndent(result, "", "  ")
		if err == nil {
			if err := streamer.Add("failures.json", report); err != nil {
				return errors.WrapWithCode(err, errors.CodeUnavailable, "batch.sink", "archive write failed")
			}
		}
	}

	if err := streamer.Close(); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "batch.finalize", "archive finalize failed")
	}
	return nil
}

// classifyFatal maps batch-aborting conditions onto the coded errors callers
// report, keeping them distinct from per-row failures.
func classifyFatal(err error) error {
	if render.IsFatal(err) {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "batch.engine", "render engine became unusable")
	}
	var ce *errors.Error
	if errors.As(err, &ce) {
		// Already coded (sink write or finalize failure).
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.WrapWithCode(err, errors.CodeTimeout, "batch.cancel", fmt.Sprintf("batch canceled: %v", err))
	}
	return errors.Wrap(err, "batch.render", "batch aborted")
}
