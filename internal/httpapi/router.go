package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"certforge/internal/httpapi/handlers"
	"certforge/internal/httpkit"
	"certforge/internal/pkg/logger"
	"certforge/internal/pkg/middleware"
	"certforge/internal/ports"
	"certforge/internal/render"
)

type Deps struct {
	Pool      *pgxpool.Pool
	RDB       *redis.Client
	SP        ports.StorageProvider
	Log       *logger.Logger
	NewEngine func() render.Engine
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logging(log))

	// ---- CORS (designer frontend) ----
	allowedOrigins := envCSV("CORS_ALLOWED_ORIGINS", []string{
		"http://localhost:8081",
		"http://localhost:5173",
	})
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	h := handlers.New(handlers.Deps{
		Pool:      d.Pool,
		RDB:       d.RDB,
		SP:        d.SP,
		Log:       log,
		NewEngine: d.NewEngine,
	})

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- SYNCHRONOUS GENERATION (streams the archive) ----
	r.Post("/generate", h.Generate)
	r.Post("/generate/template", h.GenerateFromTemplate)

	// ---- DESIGN TEMPLATES ----
	r.Post("/templates", h.PostTemplate)
	r.Get("/templates", h.ListTemplates)
	r.Get("/templates/{templateId}", h.GetTemplate)
	r.Patch("/templates/{templateId}", h.PatchTemplate)
	r.Delete("/templates/{templateId}", h.DeleteTemplate)

	// ---- ASSETS (backgrounds, CSV files, finished archives) ----
	r.Post("/assets", h.PostAsset)
	r.Get("/assets/{assetId}", h.GetAsset)
	r.Get("/assets/{assetId}/url", h.GetAssetURL)
	r.Get("/assets/{assetId}/content", h.StreamAsset)
	r.Delete("/assets/{assetId}", h.DeleteAsset)

	// ---- ASYNC BATCHES ----
	r.Post("/batches", h.PostBatch)
	r.Get("/batches", h.ListBatches)
	r.Get("/batches/{batchId}", h.GetBatch)

	return r
}

func envCSV(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
