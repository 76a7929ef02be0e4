package worker

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"certforge/internal/pkg/logger"
	"certforge/internal/ports"
	"certforge/internal/render"
)

type Deps struct {
	Pool      *pgxpool.Pool
	RDB       *redis.Client
	SP        ports.StorageProvider
	SpoolRoot string
	QueueName string
	NewEngine func() render.Engine
	Log       *logger.Logger
}
