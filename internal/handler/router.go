package handler

import (
	"compress/gzip"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/ecoshare/internal/middleware"
)

var compressibleTypes = []string{"application/json", "text/html", "text/plain"}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса обмена вещами.
func (h *Handler) SetupRouter(allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(custommiddleware.DecompressRequest)
	r.Use(chimiddleware.Compress(gzip.DefaultCompression, compressibleTypes...))
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Health)

	r.Route("/api/sharing", func(r chi.Router) {
		r.Get("/", h.ListItems)
		r.Get("/{id}", h.GetItem)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/", h.AddItem)

			r.Get("/myborrowed", h.MyBorrowed)
			r.Get("/myshared", h.MyShared)
			r.Get("/myrequests", h.MyRequests)
			r.Get("/rewards", h.Rewards)

			r.Put("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.DeleteItem)

			r.Post("/{id}/request", h.RequestItem)
			r.Put("/{id}/request/{requestID}", h.RespondToRequest)
			r.Put("/{id}/return", h.ReturnItem)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
