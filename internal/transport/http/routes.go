package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "tag-bridge/docs"
	"tag-bridge/internal/logger"
)

func Routes(h *Handler, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))

	r.Get("/health", h.Health)
	r.Get("/status", h.Status)
	r.Get("/profile", h.Profile)

	r.Route("/outcomes", func(r chi.Router) {
		r.Get("/", h.ListOutcomes)
		r.Get("/{id}", h.GetOutcome)
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
