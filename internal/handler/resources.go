package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/event-booking/internal/model"
	"github.com/mmeshcher/event-booking/internal/stats"
)

const defaultPopularLimit = 10

type resourceRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Location    string          `json:"location"`
	City        string          `json:"city"`
	ImageURL    string          `json:"image_url"`
	Capacity    int             `json:"capacity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time"`
}

func (req resourceRequest) input() model.ResourceInput {
	return model.ResourceInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    model.Category(req.Category),
		Location:    req.Location,
		City:        req.City,
		ImageURL:    req.ImageURL,
		Capacity:    req.Capacity,
		UnitPrice:   req.UnitPrice,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	}
}

type resourceResponse struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	Location    string `json:"location"`
	City        string `json:"city"`
	ImageURL    string `json:"image_url,omitempty"`
	Capacity    int    `json:"capacity"`
	UnitPrice   string `json:"unit_price"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

func newResourceResponse(r model.Resource) resourceResponse {
	return resourceResponse{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Description: r.Description,
		Category:    string(r.Category),
		Location:    r.Location,
		City:        r.City,
		ImageURL:    r.ImageURL,
		Capacity:    r.Capacity,
		UnitPrice:   r.UnitPrice.StringFixed(2),
		StartTime:   formatTime(r.StartTime),
		EndTime:     formatTime(r.EndTime),
		Status:      string(r.Status),
		CreatedAt:   formatTime(r.CreatedAt),
	}
}

func (h *Handler) writeResources(w http.ResponseWriter, resources []model.Resource) {
	if len(resources) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]resourceResponse, 0, len(resources))
	for _, res := range resources {
		resp = append(resp, newResourceResponse(res))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateResource создаёт черновик мероприятия.
func (h *Handler) CreateResource(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req resourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.CreateResource(r.Context(), p, req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newResourceResponse(res))
}

// UpdateResource изменяет поля мероприятия.
func (h *Handler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req resourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.UpdateResource(r.Context(), p, chi.URLParam(r, "id"), req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResourceResponse(res))
}

// GetResource возвращает мероприятие.
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	res, err := h.service.GetResource(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResourceResponse(res))
}

// ListResources возвращает опубликованные мероприятия.
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.service.ListPublished(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResources(w, resources)
}

// ListOwnedResources возвращает мероприятия текущего организатора.
func (h *Handler) ListOwnedResources(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	resources, err := h.service.ListOwned(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResources(w, resources)
}

// DeleteResource удаляет мероприятие без броней.
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteResource(r.Context(), p, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublishResource открывает мероприятие для бронирования.
func (h *Handler) PublishResource(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	res, err := h.service.PublishResource(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResourceResponse(res))
}

// CancelResource отменяет мероприятие.
func (h *Handler) CancelResource(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	res, err := h.service.CancelResource(r.Context(), p, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newResourceResponse(res))
}

type availabilityResponse struct {
	ResourceID string `json:"resource_id"`
	Available  int    `json:"available"`
}

// Availability возвращает число свободных мест.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	n, err := h.service.AvailableUnits(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, availabilityResponse{ResourceID: id, Available: n})
}

type popularResponse struct {
	Resource  resourceResponse `json:"resource"`
	Allocated int              `json:"allocated"`
	Occupancy float64          `json:"occupancy"`
}

// PopularResources возвращает самые заполненные опубликованные мероприятия.
func (h *Handler) PopularResources(w http.ResponseWriter, r *http.Request) {
	limit := defaultPopularLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		limit = n
	}

	ranked, err := h.service.PopularResources(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(ranked) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]popularResponse, 0, len(ranked))
	for _, item := range ranked {
		resp = append(resp, newPopularResponse(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

func newPopularResponse(item stats.Ranked) popularResponse {
	return popularResponse{
		Resource:  newResourceResponse(item.Resource),
		Allocated: item.Allocated,
		Occupancy: item.Occupancy,
	}
}
