package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/event-booking/internal/model"
	"github.com/mmeshcher/event-booking/internal/service"
)

type bookingRequest struct {
	ResourceID string `json:"resource_id"`
	Units      int    `json:"units"`
	Comment    string `json:"comment"`
}

type bookingResponse struct {
	ID          string `json:"id"`
	ResourceID  string `json:"resource_id"`
	RequesterID string `json:"requester_id"`
	Units       int    `json:"units"`
	Status      string `json:"status"`
	Code        string `json:"code"`
	Amount      string `json:"amount"`
	Comment     string `json:"comment,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func newBookingResponse(b model.Booking) bookingResponse {
	return bookingResponse{
		ID:          b.ID,
		ResourceID:  b.ResourceID,
		RequesterID: b.RequesterID,
		Units:       b.Units,
		Status:      string(b.Status),
		Code:        b.Code,
		Amount:      b.Amount.StringFixed(2),
		Comment:     b.Comment,
		CreatedAt:   formatTime(b.CreatedAt),
	}
}

func (h *Handler) writeBookings(w http.ResponseWriter, bookings []model.Booking) {
	if len(bookings) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		resp = append(resp, newBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateBooking бронирует места на мероприятие от имени текущего пользователя.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.ResourceID == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	b, err := h.service.CreateBooking(r.Context(), p, req.ResourceID, req.Units, req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBookingResponse(b))
}

// ListBookings возвращает брони текущего пользователя с необязательным фильтром ?status=.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	status := model.BookingStatus(r.URL.Query().Get("status"))
	bookings, err := h.service.ListMyBookings(r.Context(), p, status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeBookings(w, bookings)
}

// ListResourceBookings возвращает брони мероприятия его владельцу.
func (h *Handler) ListResourceBookings(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	bookings, err := h.service.ListResourceBookings(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeBookings(w, bookings)
}

// GetBooking возвращает бронь.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	b, err := h.service.GetBooking(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(b))
}

// VerifyBookingCode находит бронь по коду.
func (h *Handler) VerifyBookingCode(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	b, err := h.service.VerifyBookingCode(r.Context(), p, chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(b))
}

type summaryResponse struct {
	Code          string `json:"code"`
	ResourceID    string `json:"resource_id"`
	ResourceTitle string `json:"resource_title"`
	StartTime     string `json:"start_time"`
	Location      string `json:"location"`
	City          string `json:"city"`
	Units         int    `json:"units"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
}

func newSummaryResponse(s service.BookingSummary) summaryResponse {
	return summaryResponse{
		Code:          s.Code,
		ResourceID:    s.ResourceID,
		ResourceTitle: s.ResourceTitle,
		StartTime:     formatTime(s.StartTime),
		Location:      s.Location,
		City:          s.City,
		Units:         s.Units,
		Amount:        s.Amount.StringFixed(2),
		Status:        string(s.Status),
	}
}

// BookingSummary возвращает сводку брони вместе с данными мероприятия.
func (h *Handler) BookingSummary(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	s, err := h.service.BookingSummary(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(s))
}

// ConfirmBooking подтверждает бронь.
func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	b, err := h.service.ConfirmBooking(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(b))
}

// CancelBooking отменяет бронь.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	b, err := h.service.CancelBooking(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(b))
}

// MyStatistics возвращает статистику броней текущего пользователя.
func (h *Handler) MyStatistics(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	rep, err := h.service.MyStatistics(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// OrganizerStatistics возвращает статистику мероприятий текущего организатора.
func (h *Handler) OrganizerStatistics(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	rep, err := h.service.OrganizerStatistics(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
