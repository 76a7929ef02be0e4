package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"certforge/internal/batch"
	"certforge/internal/pkg/logger"
	"certforge/internal/render"
)

// Runner executes the rendering pipeline for one batch, spooling the archive
// to a local file so the upload to storage happens only after the batch
// finished cleanly.
type Runner struct {
	spoolRoot string
	newEngine func() render.Engine
	log       *logger.Logger
}

func NewRunner(spoolRoot string, newEngine func() render.Engine, log *logger.Logger) *Runner {
	return &Runner{
		spoolRoot: spoolRoot,
		newEngine: newEngine,
		log:       log,
	}
}

// Run renders the batch into the spool file for batchID and returns the
// result plus the spool path. A fresh engine session is created per batch;
// batch.Run guarantees it is stopped on every path.
func (r *Runner) Run(ctx context.Context, batchID string, parsed *ParsedBatch, inputs *BatchInputs) (*batch.Result, string, error) {
	dir := filepath.Join(r.spoolRoot, "batches", batchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create spool dir: %w", err)
	}

	spoolPath := filepath.Join(dir, "certificates.zip")
	f, err := os.Create(spoolPath)
	if err != nil {
		return nil, "", fmt.Errorf("create spool file: %w", err)
	}

	result, runErr := batch.Run(ctx, parsed.Design, inputs.Rows, inputs.Background, r.newEngine(), f, batch.Options{
		Concurrency:   parsed.Concurrency,
		NameColumn:    parsed.NameColumn,
		FailureReport: true,
		Log:           r.log,
	})

	if cerr := f.Close(); cerr != nil && runErr == nil {
		runErr = fmt.Errorf("close spool file: %w", cerr)
	}
	if runErr != nil {
		// The spool holds an unfinalized archive; never upload it.
		_ = os.Remove(spoolPath)
		return nil, "", runErr
	}

	return result, spoolPath, nil
}
