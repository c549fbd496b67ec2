package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"misha-catalog/internal/domain"
	"misha-catalog/internal/middleware"
	"misha-catalog/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ColorRequest represents a color create/update payload
type ColorRequest struct {
	Name string `json:"name" validate:"required"`
	Hex  string `json:"hex" validate:"required"`
}

// ColorListResponse pages a color listing.
type ColorListResponse struct {
	Colors []*domain.Color `json:"colors"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
}

// ColorHandler handles HTTP requests for color operations
type ColorHandler struct {
	colorService service.ColorService
	logger       *zap.Logger
}

// NewColorHandler creates a new ColorHandler
func NewColorHandler(colorService service.ColorService, logger *zap.Logger) *ColorHandler {
	return &ColorHandler{
		colorService: colorService,
		logger:       logger,
	}
}

// RegisterRoutes registers all color routes
func (h *ColorHandler) RegisterRoutes(r chi.Router, authMiddleware, adminOnly func(http.Handler) http.Handler) {
	r.Route("/api/colors", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.GetByID)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(adminOnly)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

// Create handles color creation
func (h *ColorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ColorRequest
	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	color, err := h.colorService.Create(r.Context(), service.ColorInput{Name: req.Name, Hex: req.Hex})
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, color)
}

// Update handles color updates
func (h *ColorHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid color id")
		return
	}

	// Partial updates are allowed: either field may be omitted
	var req ColorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	color, err := h.colorService.Update(r.Context(), id, service.ColorInput{Name: req.Name, Hex: req.Hex})
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, color)
}

// Delete handles color deletion
func (h *ColorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid color id")
		return
	}

	if err := h.colorService.Delete(r.Context(), id); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "color deleted"})
}

// GetByID returns a single color
func (h *ColorHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid color id")
		return
	}

	color, err := h.colorService.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, color)
}

// List returns a paged color listing
func (h *ColorHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}

	colors, total, err := h.colorService.List(r.Context(), q.Get("search"), page, pageSize)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, ColorListResponse{
		Colors: colors,
		Total:  total,
		Page:   page,
	})
}
