package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"certforge/internal/batch"
	"certforge/internal/pkg/errors"
	"certforge/internal/pkg/logger"
	"certforge/internal/ports"
	"certforge/internal/render"
)

type Deps struct {
	Pool      *pgxpool.Pool
	SP        ports.StorageProvider
	SpoolRoot string
	NewEngine func() render.Engine
	Log       *logger.Logger
}

type Processor struct {
	pool *pgxpool.Pool
	sp   ports.StorageProvider
	log  *logger.Logger

	parser        *BatchParser
	inputHandler  *InputHandler
	runner        *Runner
	outputHandler *OutputHandler
	cleanup       *Cleanup
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("processor")

	newEngine := d.NewEngine
	if newEngine == nil {
		newEngine = func() render.Engine {
			return render.NewChromeSession(render.DefaultSessionConfig())
		}
	}

	p := &Processor{
		pool: d.Pool,
		sp:   d.SP,
		log:  log,
	}

	p.parser = NewBatchParser(d.Pool)
	p.inputHandler = NewInputHandler(d.Pool, d.SP)
	p.runner = NewRunner(d.SpoolRoot, newEngine, log)
	p.outputHandler = NewOutputHandler(d.Pool, d.SP)
	p.cleanup = NewCleanup(d.SpoolRoot)

	return p
}

// ProcessBatch drives one queued batch end to end: parse params, fetch
// inputs, render to a local spool, upload the archive, record the result.
func (p *Processor) ProcessBatch(ctx context.Context, batchID string) error {
	log := p.log.FromContext(ctx).WithJobID(batchID)

	log.Debug("fetching batch params")
	paramsJSON, err := p.fetchBatchParams(ctx, batchID)
	if err != nil {
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.fetch", "failed to fetch batch params"))
	}

	log.Debug("parsing batch params")
	parsed, err := p.parser.Parse(ctx, paramsJSON)
	if err != nil {
		return p.failBatch(ctx, batchID, errors.WrapWithCode(err, errors.CodeValidation, "processor.parse", "failed to parse batch params"))
	}

	log.Debug("marking batch as running")
	if err := p.markBatchRunning(ctx, batchID); err != nil {
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.status", "failed to mark batch as running"))
	}

	log.Debug("materializing inputs")
	inputs, err := p.inputHandler.Materialize(ctx, parsed)
	if err != nil {
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.inputs", "failed to materialize inputs"))
	}
	log.Debug("inputs materialized", "rows", len(inputs.Rows))

	log.Info("starting render",
		"template_id", parsed.TemplateID,
		"rows", len(inputs.Rows),
	)
	result, spoolPath, err := p.runner.Run(ctx, batchID, parsed, inputs)
	if err != nil {
		p.cleanup.CleanupBatch(batchID)
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.render", "render failed"))
	}
	log.Debug("render completed",
		"succeeded", result.Succeeded,
		"failed", result.Failed(),
	)

	log.Debug("registering archive")
	archiveAssetID, err := p.outputHandler.RegisterArchive(ctx, batchID, spoolPath)
	if err != nil {
		p.cleanup.CleanupBatch(batchID)
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.outputs", "failed to register archive"))
	}
	log.Debug("archive registered", "archive_asset", archiveAssetID)

	log.Debug("saving batch result")
	if err := p.saveBatchResult(ctx, batchID, archiveAssetID, result); err != nil {
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.save", "failed to save batch result"))
	}

	p.cleanup.CleanupBatch(batchID)
	log.Debug("cleanup completed")

	return p.markBatchDone(ctx, batchID)
}

func (p *Processor) fetchBatchParams(ctx context.Context, batchID string) (string, error) {
	var paramsJSON string
	err := p.pool.QueryRow(ctx,
		`SELECT params_json FROM batches WHERE id=$1`,
		batchID,
	).Scan(&paramsJSON)
	if err != nil {
		return "", fmt.Errorf("batch not found: %w", err)
	}
	return paramsJSON, nil
}

func (p *Processor) markBatchRunning(ctx context.Context, batchID string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE batches SET status='RUNNING', started_at=NOW(), finished_at=NULL, error_text=NULL WHERE id=$1`,
		batchID,
	)
	return err
}

func (p *Processor) markBatchDone(ctx context.Context, batchID string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE batches SET status='DONE', finished_at=NOW() WHERE id=$1`,
		batchID,
	)
	return err
}

func (p *Processor) saveBatchResult(ctx context.Context, batchID, archiveAssetID string, result *batch.Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`UPDATE batches SET archive_asset_id=$2, result_json=$3 WHERE id=$1`,
		batchID, archiveAssetID, string(resultJSON),
	)
	return err
}

func (p *Processor) failBatch(ctx context.Context, batchID string, cause error) error {
	log := p.log.FromContext(ctx).WithJobID(batchID)

	msg := ""
	if cause != nil {
		msg = cause.Error()
		if len(msg) > 2000 {
			msg = msg[:2000]
		}

		var svcErr *errors.Error
		if errors.As(cause, &svcErr) {
			log.Error("batch failed",
				"code", string(svcErr.Code),
				"op", svcErr.Op,
				"message", svcErr.Message,
			)
		} else {
			log.Error("batch failed", "error", msg)
		}
	}

	_, _ = p.pool.Exec(ctx,
		`UPDATE batches SET status='FAILED', finished_at=NOW(), error_text=$2 WHERE id=$1`,
		batchID, NullIfEmpty(msg),
	)

	return cause
}
