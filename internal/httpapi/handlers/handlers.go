package handlers

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"certforge/internal/pkg/logger"
	"certforge/internal/ports"
	"certforge/internal/render"
	"certforge/internal/repositories"
)

type Deps struct {
	Pool *pgxpool.Pool
	RDB  *redis.Client
	SP   ports.StorageProvider
	Log  *logger.Logger

	// NewEngine builds a fresh render engine per batch. Injected so tests
	// and alternative renderers can swap the implementation.
	NewEngine func() render.Engine
}

type Handler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	sp        ports.StorageProvider
	log       *logger.Logger
	templates *repositories.TemplateRepository
	newEngine func() render.Engine
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	newEngine := d.NewEngine
	if newEngine == nil {
		newEngine = func() render.Engine {
			return render.NewChromeSession(render.SessionConfig{Log: log})
		}
	}
	return &Handler{
		pool:      d.Pool,
		rdb:       d.RDB,
		sp:        d.SP,
		log:       log.WithComponent("httpapi"),
		templates: repositories.NewTemplateRepository(d.Pool),
		newEngine: newEngine,
	}
}
