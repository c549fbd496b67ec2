package transport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"misha-catalog/internal/domain"
	"misha-catalog/internal/middleware"
	"misha-catalog/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxCategoryFormMemory = 16 << 20

// CategoryListResponse pages a category listing.
type CategoryListResponse struct {
	Categories []*domain.Category `json:"categories"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
}

// CategoryHandler handles HTTP requests for category operations
type CategoryHandler struct {
	categoryService service.CategoryService
	logger          *zap.Logger
}

// NewCategoryHandler creates a new CategoryHandler
func NewCategoryHandler(categoryService service.CategoryService, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{
		categoryService: categoryService,
		logger:          logger,
	}
}

// RegisterRoutes registers all category routes
func (h *CategoryHandler) RegisterRoutes(r chi.Router, authMiddleware, adminOnly func(http.Handler) http.Handler) {
	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{id}", h.GetByID)
		r.Get("/slug/{slug}", h.GetBySlug)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(adminOnly)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

// Create handles category creation
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, banner, icon, err := decodeCategoryRequest(r)
	if err != nil {
		h.logger.Debug("Category request decode failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	category, err := h.categoryService.Create(r.Context(), input, banner, icon)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, category)
}

// Update handles category updates
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	input, banner, icon, err := decodeCategoryRequest(r)
	if err != nil {
		h.logger.Debug("Category request decode failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	category, err := h.categoryService.Update(r.Context(), id, input, banner, icon)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, category)
}

// Delete handles category deletion
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	if err := h.categoryService.Delete(r.Context(), id); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "category deleted"})
}

// GetByID returns a single category
func (h *CategoryHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid category id")
		return
	}

	category, err := h.categoryService.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, category)
}

// GetBySlug returns a single category by its slug
func (h *CategoryHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	category, err := h.categoryService.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, category)
}

// List returns a paged category listing
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}

	categories, total, err := h.categoryService.List(r.Context(), q.Get("search"), page, pageSize)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, CategoryListResponse{
		Categories: categories,
		Total:      total,
		Page:       page,
		PageSize:   len(categories),
	})
}

// decodeCategoryRequest extracts category fields and the optional banner and
// icon files from a multipart form or a JSON body.
func decodeCategoryRequest(r *http.Request) (service.CategoryInput, *service.FileUpload, *service.FileUpload, error) {
	var input service.CategoryInput

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var body struct {
			Name        string  `json:"name"`
			Description *string `json:"description"`
			IsActive    *bool   `json:"isActive"`
			SortOrder   *int    `json:"sortOrder"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return input, nil, nil, err
		}
		input.Name = body.Name
		input.Description = body.Description
		input.IsActive = body.IsActive
		input.SortOrder = body.SortOrder
		return input, nil, nil, nil
	}

	if err := r.ParseMultipartForm(maxCategoryFormMemory); err != nil {
		return input, nil, nil, err
	}

	input.Name = r.FormValue("name")
	if values, ok := r.MultipartForm.Value["description"]; ok && len(values) > 0 {
		input.Description = &values[0]
	}
	if values, ok := r.MultipartForm.Value["isActive"]; ok && len(values) > 0 {
		b, err := strconv.ParseBool(values[0])
		if err == nil {
			input.IsActive = &b
		}
	}
	if values, ok := r.MultipartForm.Value["sortOrder"]; ok && len(values) > 0 {
		n, err := strconv.Atoi(values[0])
		if err == nil {
			input.SortOrder = &n
		}
	}

	banner, err := formFile(r, "bannerImage")
	if err != nil {
		return input, nil, nil, err
	}
	icon, err := formFile(r, "icon")
	if err != nil {
		return input, nil, nil, err
	}
	return input, banner, icon, nil
}

func formFile(r *http.Request, key string) (*service.FileUpload, error) {
	headers, ok := r.MultipartForm.File[key]
	if !ok || len(headers) == 0 {
		return nil, nil
	}
	file, err := headers[0].Open()
	if err != nil {
		return nil, err
	}
	return &service.FileUpload{Filename: headers[0].Filename, Content: file}, nil
}
