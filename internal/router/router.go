package router

import (
	"net/http"

	"github.com/libraryaddict/KolFaxBot/internal/handler"
	"github.com/libraryaddict/KolFaxBot/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Config holds the configuration for creating a router.
type Config struct {
	ReportHandler *handler.ReportHandler
	ReportCache   *middleware.ReportCache
}

// New creates and configures the HTTP router. Every route is a read-only
// report.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	if cfg.ReportCache != nil {
		r.Use(cfg.ReportCache.Middleware)
	}

	if cfg.ReportHandler != nil {
		r.Route("/api", func(r chi.Router) {
			r.Get("/status", cfg.ReportHandler.Status)
			r.Get("/clans", cfg.ReportHandler.Clans)
			r.Get("/monsters", cfg.ReportHandler.Monsters)
			r.Get("/faxes", cfg.ReportHandler.Faxes)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":"NOT_FOUND","message":"unknown report"}}`))
	})

	return r
}
