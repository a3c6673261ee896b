package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/recall-labs/recallai/internal/api"
	"github.com/recall-labs/recallai/internal/api/handlers"
	"github.com/recall-labs/recallai/internal/api/middleware"
)

type RouterConfig struct {
	APIKey          string
	MemoryHandler   *handlers.MemoryHandler
	AskHandler      *handlers.AskHandler
	ResearchHandler *handlers.ResearchHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKey))

		r.Route("/memory", func(r chi.Router) {
			r.Post("/", cfg.MemoryHandler.Add)
			r.Get("/", cfg.MemoryHandler.List)
			r.Post("/document", cfg.MemoryHandler.AddDocument)
			r.Post("/search", cfg.MemoryHandler.Search)
		})

		r.Post("/ask", cfg.AskHandler.Ask)

		r.Route("/research", func(r chi.Router) {
			r.Post("/", cfg.ResearchHandler.Start)
			r.Get("/{id}", cfg.ResearchHandler.Get)
			r.Get("/{id}/export", cfg.ResearchHandler.Export)
			r.Post("/{id}/archive", cfg.ResearchHandler.Archive)
		})
	})

	return r
}
