// Package handler содержит HTTP-обработчики API сервиса бронирования.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/event-booking/internal/middleware"
	"github.com/mmeshcher/event-booking/internal/model"
	"github.com/mmeshcher/event-booking/internal/service"
	"github.com/mmeshcher/event-booking/internal/stats"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error

	CreateResource(ctx context.Context, p model.Principal, in model.ResourceInput) (model.Resource, error)
	UpdateResource(ctx context.Context, p model.Principal, id string, in model.ResourceInput) (model.Resource, error)
	PublishResource(ctx context.Context, p model.Principal, id string) (model.Resource, error)
	CancelResource(ctx context.Context, p model.Principal, id string) (model.Resource, error)
	DeleteResource(ctx context.Context, p model.Principal, id string) error
	GetResource(ctx context.Context, p model.Principal, id string) (model.Resource, error)
	ListPublished(ctx context.Context) ([]model.Resource, error)
	ListOwned(ctx context.Context, p model.Principal) ([]model.Resource, error)
	AvailableUnits(ctx context.Context, id string) (int, error)

	CreateBooking(ctx context.Context, p model.Principal, resourceID string, units int, comment string) (model.Booking, error)
	ConfirmBooking(ctx context.Context, p model.Principal, id string) (model.Booking, error)
	CancelBooking(ctx context.Context, p model.Principal, id string) (model.Booking, error)
	GetBooking(ctx context.Context, p model.Principal, id string) (model.Booking, error)
	VerifyBookingCode(ctx context.Context, p model.Principal, code string) (model.Booking, error)
	ListMyBookings(ctx context.Context, p model.Principal, status model.BookingStatus) ([]model.Booking, error)
	ListResourceBookings(ctx context.Context, p model.Principal, resourceID string) ([]model.Booking, error)
	BookingSummary(ctx context.Context, p model.Principal, id string) (service.BookingSummary, error)

	PopularResources(ctx context.Context, limit int) ([]stats.Ranked, error)
	MyStatistics(ctx context.Context, p model.Principal) (stats.RequesterReport, error)
	OrganizerStatistics(ctx context.Context, p model.Principal) (stats.OrganizerReport, error)
}

// Handler реализует HTTP-обработчики API сервиса бронирования.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	limiter        *middleware.RateLimiter
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// limiter может быть nil, тогда частота создания броней не ограничивается.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, limiter *middleware.RateLimiter) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		limiter:        limiter,
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	Available *int   `json:"available,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError отображает доменную ошибку в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var capErr *model.InsufficientCapacityError
	if errors.As(err, &capErr) {
		available := capErr.Available
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Available: &available})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrBusinessRule):
		status = http.StatusConflict
	case errors.Is(err, model.ErrResourceExhausted), errors.Is(err, model.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("uri", r.RequestURI), zap.Error(err))
	}
	if status == http.StatusInternalServerError {
		writeJSON(w, status, errorResponse{Error: http.StatusText(status)})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return p, ok
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Health сообщает о доступности сервиса и хранилища.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
