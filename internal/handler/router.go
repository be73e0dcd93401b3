package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/marketplace-ledger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware маркетплейса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	if h.rateLimiter != nil {
		r.Use(h.rateLimiter.Middleware)
	}

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.CreateSession)

		r.Get("/listings", h.ListListings)
		r.Get("/listings/{index}", h.GetListing)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/users", h.CreateUser)
			r.Get("/users/me", h.GetUser)
			r.Put("/users/me/role", h.ChangeRole)

			r.Post("/inventory", h.AddProduct)
			r.Get("/inventory", h.GetInventory)

			r.Post("/listings", h.CreateListing)
			r.Put("/listings/{index}/description", h.UpdateListingDescription)
			r.Put("/listings/{index}/price", h.UpdateListingPrice)

			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{index}", h.GetOrder)
			r.Put("/orders/{index}/state", h.TransitionOrderState)
			r.With(h.idempotencyMiddleware).Post("/orders", h.PlaceOrder)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

func (h *Handler) idempotencyMiddleware(next http.Handler) http.Handler {
	if h.idempotency == nil {
		return next
	}
	return custommiddleware.Idempotency(h.idempotency, h.logger)(next)
}
