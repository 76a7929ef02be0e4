package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"certforge/internal/pkg/logger"
	"certforge/internal/render"
	"certforge/internal/storage"
	"certforge/internal/worker"
	"certforge/internal/worker/queue"
	"certforge/internal/worker/util"
)

func main() {
	log := logger.New(logger.Config{
		Level:       util.Env("LOG_LEVEL", "info"),
		Format:      util.Env("LOG_FORMAT", "json"),
		ServiceName: "certforge-worker",
		AddSource:   util.Env("LOG_SOURCE", "false") == "true",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbURL := util.MustEnv("DATABASE_URL")
	redisAddr := util.MustEnv("REDIS_ADDR")
	spoolRoot := util.Env("SPOOL_ROOT", "/data")
	queueName := util.Env("BATCH_QUEUE_NAME", queue.DefaultName)

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	sp, err := storage.NewProvider()
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

	newEngine := func() render.Engine {
		cfg := render.DefaultSessionConfig()
		cfg.ExecPath = util.Env("CHROME_PATH", "")
		if n := util.EnvInt("RENDER_POOL_SIZE", 0); n > 0 {
			cfg.PoolSize = n
		}
		if secs := util.EnvInt("RENDER_TIMEOUT_SECS", 0); secs > 0 {
			cfg.RenderTimeout = time.Duration(secs) * time.Second
		}
		cfg.Log = log
		return render.NewChromeSession(cfg)
	}

	deps := worker.Deps{
		Pool:      pool,
		RDB:       rdb,
		SP:        sp,
		SpoolRoot: spoolRoot,
		QueueName: queueName,
		NewEngine: newEngine,
		Log:       log,
	}

	log.Info("worker started", "queue", queueName)
	if err := worker.Run(ctx, deps); err != nil && ctx.Err() == nil {
		log.LogFatal("worker stopped", err)
	}
	log.Info("worker stopped")
}
