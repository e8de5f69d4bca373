package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/event-booking/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса бронирования.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	limit := func(next http.Handler) http.Handler { return next }
	if h.limiter != nil {
		limit = h.limiter.Limit
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/resources", func(r chi.Router) {
				r.Post("/", h.CreateResource)
				r.Get("/", h.ListResources)
				r.Get("/mine", h.ListOwnedResources)
				r.Get("/popular", h.PopularResources)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetResource)
					r.Put("/", h.UpdateResource)
					r.Delete("/", h.DeleteResource)
					r.Post("/publish", h.PublishResource)
					r.Post("/cancel", h.CancelResource)
					r.Get("/availability", h.Availability)
					r.Get("/bookings", h.ListResourceBookings)
				})
			})

			r.Route("/bookings", func(r chi.Router) {
				r.With(limit).Post("/", h.CreateBooking)
				r.Get("/", h.ListBookings)
				r.Get("/code/{code}", h.VerifyBookingCode)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetBooking)
					r.Get("/summary", h.BookingSummary)
					r.Post("/confirm", h.ConfirmBooking)
					r.Post("/cancel", h.CancelBooking)
				})
			})

			r.Get("/stats/me", h.MyStatistics)
			r.Get("/stats/organizer", h.OrganizerStatistics)
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
