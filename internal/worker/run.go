package worker

import (
	"context"
	"time"

	"certforge/internal/pkg/logger"
	"certforge/internal/worker/processor"
	"certforge/internal/worker/queue"
)

func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	q := queue.NewRedisQueue(d.RDB, d.QueueName)

	p := processor.New(processor.Deps{
		Pool:      d.Pool,
		SP:        d.SP,
		SpoolRoot: d.SpoolRoot,
		NewEngine: d.NewEngine,
		Log:       log,
	})

	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		// Use a separate context with timeout for queue operations
		popCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		batchID, err := q.Pop(popCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}

			log.Warn("queue pop error, retrying",
				"error", err.Error(),
			)
			time.Sleep(1 * time.Second)
			continue
		}

		if batchID == "" {
			continue
		}

		batchCtx := logger.ContextWithJobID(ctx, batchID)
		batchLog := log.WithJobID(batchID)

		batchLog.Info("processing batch")
		startTime := time.Now()

		if err := p.ProcessBatch(batchCtx, batchID); err != nil {
			batchLog.Error("batch failed",
				"error", err.Error(),
				"duration_ms", time.Since(startTime).Milliseconds(),
			)
		} else {
			batchLog.Info("batch completed",
				"duration_ms", time.Since(startTime).Milliseconds(),
			)
		}
	}
}
