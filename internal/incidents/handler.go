package incidents

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"github.com/bissquit/incident-escalator/internal/pkg/ctxlog"
	"github.com/bissquit/incident-escalator/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for incidents.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers incident routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/{id}", h.GetIncident)
		r.Delete("/{id}", h.DeleteIncident)
		r.Post("/{id}/resolve", h.ResolveIncident)
	})
}

// CreateIncidentRequest represents the request body for reporting an incident.
type CreateIncidentRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Description string  `json:"description" validate:"required,min=1,max=1000"`
	Email       string  `json:"email" validate:"required,email,max=255"`
	Log         *string `json:"log" validate:"omitempty,max=5000"`
	SLASeconds  float64 `json:"sla_seconds" validate:"gte=0,lte=315360000"`
}

// ToInput converts the request to service input.
func (r *CreateIncidentRequest) ToInput() CreateIncidentInput {
	return CreateIncidentInput{
		Name:        r.Name,
		Description: r.Description,
		Email:       r.Email,
		Log:         r.Log,
		SLADuration: time.Duration(r.SLASeconds * float64(time.Second)),
	}
}

// ResolveIncidentRequest represents the request body for resolving an incident.
type ResolveIncidentRequest struct {
	Solution string `json:"solution" validate:"required,min=1"`
}

// IncidentResponse is the API representation of an incident.
type IncidentResponse struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Log         *string               `json:"log"`
	Email       string                `json:"email"`
	SLASeconds  float64               `json:"sla_seconds"`
	Status      domain.IncidentStatus `json:"status"`
	Solution    *string               `json:"solution"`
	Notified    bool                  `json:"notified"`
	Deadline    time.Time             `json:"deadline"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// NewIncidentResponse converts a domain incident to its API representation.
func NewIncidentResponse(incident *domain.Incident) IncidentResponse {
	return IncidentResponse{
		ID:          incident.ID,
		Name:        incident.Name,
		Description: incident.Description,
		Log:         incident.Log,
		Email:       incident.Email,
		SLASeconds:  incident.SLADuration.Seconds(),
		Status:      incident.Status,
		Solution:    incident.Solution,
		Notified:    incident.Notified,
		Deadline:    incident.Deadline(),
		CreatedAt:   incident.CreatedAt,
		UpdatedAt:   incident.UpdatedAt,
	}
}

// CreateIncident handles POST /incidents request.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.CreateIncident(r.Context(), req.ToInput())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusCreated, NewIncidentResponse(incident))
}

// ListIncidents handles GET /incidents request.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	filter := IncidentFilter{}
	query := r.URL.Query()

	if status := query.Get("status"); status != "" {
		s := domain.IncidentStatus(status)
		filter.Status = &s
	}

	if limit := query.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	if offset := query.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	list, err := h.service.ListIncidents(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	result := make([]IncidentResponse, 0, len(list))
	for _, incident := range list {
		result = append(result, NewIncidentResponse(incident))
	}

	httputil.Success(w, http.StatusOK, result)
}

// GetIncident handles GET /incidents/{id} request.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	incident, err := h.service.GetIncident(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, NewIncidentResponse(incident))
}

// ResolveIncident handles POST /incidents/{id}/resolve request.
func (h *Handler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResolveIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	incident, err := h.service.ResolveIncident(r.Context(), id, req.Solution)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.Success(w, http.StatusOK, NewIncidentResponse(incident))
}

// DeleteIncident handles DELETE /incidents/{id} request.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteIncident(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
	{Error: ErrAlreadyResolved, Status: http.StatusConflict},
	{Error: ErrEmptySolution, Status: http.StatusBadRequest},
	{Error: ErrMissingFields, Status: http.StatusBadRequest},
	{Error: ErrInvalidSLA, Status: http.StatusBadRequest},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrIncidentNotFound) {
		ctxlog.FromContext(r.Context()).Debug("incident not found", "id", chi.URLParam(r, "id"))
	}
	httputil.HandleError(r.Context(), w, err, errorMappings)
}
