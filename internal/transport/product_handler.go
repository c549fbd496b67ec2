package transport

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"misha-catalog/internal/domain"
	"misha-catalog/internal/middleware"
	"misha-catalog/internal/repository"
	"misha-catalog/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxProductFormMemory = 32 << 20

// variantFileKey matches multipart file fields carrying variant images,
// e.g. "variants[0][image]" or "variants[2][images]".
var variantFileKey = regexp.MustCompile(`^variants\[(\d+)\]\[images?\]$`)

// variantRemovalKey matches form fields listing blob ids to detach,
// e.g. "variants[0][imagesToRemove]".
var variantRemovalKey = regexp.MustCompile(`^variants\[(\d+)\]\[imagesToRemove\]$`)

// variantAltKey matches per-file alt text fields, e.g. "variants[0][imageAlt_1]".
var variantAltKey = regexp.MustCompile(`^variants\[(\d+)\]\[imageAlt_(\d+)\]$`)

// ProductListResponse pages a product listing.
type ProductListResponse struct {
	Products   []*domain.Product `json:"products"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// ProductHandler handles HTTP requests for product operations
type ProductHandler struct {
	productService service.ProductService
	logger         *zap.Logger
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(productService service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

// RegisterRoutes registers all product routes
func (h *ProductHandler) RegisterRoutes(r chi.Router, authMiddleware, adminOnly func(http.Handler) http.Handler) {
	r.Route("/api/products", func(r chi.Router) {
		// Public storefront routes
		r.Get("/", h.List)
		r.Get("/{id}", h.GetByID)
		r.Get("/slug/{slug}", h.GetBySlug)
		r.Post("/{id}/whatsapp-inquiry", h.WhatsappInquiry)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(adminOnly)
			r.Post("/", h.Create)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
		})
	})
}

// Create handles product creation from a multipart form or a JSON body
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, uploads, _, err := h.decodeProductRequest(r)
	if err != nil {
		h.logger.Debug("Product request decode failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer closeUploads(uploads)

	product, err := h.productService.Create(r.Context(), input, uploads)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

// Update handles product updates from a multipart form or a JSON body
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	input, uploads, removals, err := h.decodeProductRequest(r)
	if err != nil {
		h.logger.Debug("Product request decode failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer closeUploads(uploads)

	product, err := h.productService.Update(r.Context(), id, input, uploads, removals)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// Delete handles product deletion
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.productService.Delete(r.Context(), id); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

// GetByID returns a single product. Storefront fetches count as a view
// unless count_view=false is passed.
func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	countView := r.URL.Query().Get("count_view") != "false"
	product, err := h.productService.GetByID(r.Context(), id, countView)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// GetBySlug returns a single product by its slug
func (h *ProductHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	product, err := h.productService.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, product)
}

// WhatsappInquiry records a storefront inquiry click for a product
func (h *ProductHandler) WhatsappInquiry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product id")
		return
	}

	if err := h.productService.RecordWhatsappInquiry(r.Context(), id); err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "inquiry recorded"})
}

// List returns a filtered, paged product listing
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseProductFilter(r)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	products, total, err := h.productService.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	totalPages := (total + filter.PageSize - 1) / filter.PageSize
	middleware.RespondWithJSON(w, http.StatusOK, ProductListResponse{
		Products:   products,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
	})
}

// decodeProductRequest extracts the raw product fields, uploaded files, and
// per-variant removal lists from either a multipart form or a JSON body.
func (h *ProductHandler) decodeProductRequest(r *http.Request) (service.ProductInput, []service.ImageUpload, map[int][]string, error) {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return service.ProductInput{}, nil, nil, err
		}
		return productInputFromMap(body), nil, nil, nil
	}

	if err := r.ParseMultipartForm(maxProductFormMemory); err != nil {
		return service.ProductInput{}, nil, nil, err
	}

	// A "data" field carries the whole payload as JSON; otherwise the
	// fields arrive flat on the form.
	var input service.ProductInput
	if data := r.FormValue("data"); data != "" {
		var body map[string]any
		if err := json.Unmarshal([]byte(data), &body); err != nil {
			return service.ProductInput{}, nil, nil, err
		}
		input = productInputFromMap(body)
	} else {
		input = productInputFromForm(r)
	}

	uploads, err := collectVariantUploads(r)
	if err != nil {
		return service.ProductInput{}, nil, nil, err
	}

	return input, uploads, collectVariantRemovals(r), nil
}

func productInputFromMap(m map[string]any) service.ProductInput {
	return service.ProductInput{
		Name:           m["name"],
		Category:       m["category"],
		Description:    m["description"],
		Variants:       m["variants"],
		Tags:           m["tags"],
		Collections:    m["collections"],
		Specifications: m["specifications"],
		VideoURL:       m["videoUrl"],
		IsActive:       m["isActive"],
		IsFeatured:     m["isFeatured"],
		IsSoldOut:      m["isSoldOut"],
		IsVisible:      m["isVisible"],
		Discount:       m["discount"],
	}
}

func productInputFromForm(r *http.Request) service.ProductInput {
	return service.ProductInput{
		Name:           formValue(r, "name"),
		Category:       formValue(r, "category"),
		Description:    formValue(r, "description"),
		Variants:       formValue(r, "variants"),
		Tags:           formValue(r, "tags"),
		Collections:    formValue(r, "collections"),
		Specifications: formValue(r, "specifications"),
		VideoURL:       formValue(r, "videoUrl"),
		IsActive:       formValue(r, "isActive"),
		IsFeatured:     formValue(r, "isFeatured"),
		IsSoldOut:      formValue(r, "isSoldOut"),
		IsVisible:      formValue(r, "isVisible"),
		Discount:       formValue(r, "discount"),
	}
}

// formValue returns nil for absent fields so omitted fields stay
// distinguishable from empty ones.
func formValue(r *http.Request, key string) any {
	values, ok := r.MultipartForm.Value[key]
	if !ok || len(values) == 0 {
		return nil
	}
	return values[0]
}

func collectVariantUploads(r *http.Request) ([]service.ImageUpload, error) {
	uploads := []service.ImageUpload{}
	for key, headers := range r.MultipartForm.File {
		match := variantFileKey.FindStringSubmatch(key)
		if match == nil {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		for n, header := range headers {
			file, err := header.Open()
			if err != nil {
				closeUploads(uploads)
				return nil, err
			}
			uploads = append(uploads, service.ImageUpload{
				VariantIndex: index,
				Filename:     header.Filename,
				Alt:          variantAltText(r.MultipartForm, index, n+1),
				Content:      file,
			})
		}
	}
	return uploads, nil
}

// closeUploads releases the multipart file handles once the service is done
// reading them.
func closeUploads(uploads []service.ImageUpload) {
	for _, up := range uploads {
		if closer, ok := up.Content.(io.Closer); ok {
			closer.Close()
		}
	}
}

func variantAltText(form *multipart.Form, variantIndex, fileOrdinal int) string {
	for key, values := range form.Value {
		match := variantAltKey.FindStringSubmatch(key)
		if match == nil || len(values) == 0 {
			continue
		}
		vi, _ := strconv.Atoi(match[1])
		fo, _ := strconv.Atoi(match[2])
		if vi == variantIndex && fo == fileOrdinal {
			return values[0]
		}
	}
	return ""
}

// collectVariantRemovals parses per-variant imagesToRemove fields. Values are
// JSON arrays of blob public ids, with a comma-separated fallback.
func collectVariantRemovals(r *http.Request) map[int][]string {
	removals := map[int][]string{}
	for key, values := range r.MultipartForm.Value {
		match := variantRemovalKey.FindStringSubmatch(key)
		if match == nil || len(values) == 0 || values[0] == "" {
			continue
		}
		index, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}

		var ids []string
		if err := json.Unmarshal([]byte(values[0]), &ids); err != nil {
			for _, id := range strings.Split(values[0], ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
		}
		if len(ids) > 0 {
			removals[index] = append(removals[index], ids...)
		}
	}
	if len(removals) == 0 {
		return nil
	}
	return removals
}

func parseProductFilter(r *http.Request) (repository.ProductFilter, error) {
	q := r.URL.Query()

	filter := repository.ProductFilter{
		Search:      q.Get("search"),
		Size:        q.Get("size"),
		Page:        1,
		PageSize:    20,
		SortBy:      q.Get("sort_by"),
		VisibleOnly: true,
	}

	if page, err := strconv.Atoi(q.Get("page")); err == nil && page > 0 {
		filter.Page = page
	}
	if pageSize, err := strconv.Atoi(q.Get("limit")); err == nil && pageSize > 0 && pageSize <= 100 {
		filter.PageSize = pageSize
	}

	if raw := q.Get("category"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, errInvalidFilter("category")
		}
		filter.CategoryID = &id
	}
	if raw := q.Get("colors"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := uuid.Parse(strings.TrimSpace(part))
			if err != nil {
				return filter, errInvalidFilter("colors")
			}
			filter.ColorIDs = append(filter.ColorIDs, id)
		}
	}
	if raw := q.Get("tags"); raw != "" {
		filter.Tags = splitList(raw)
	}
	if raw := q.Get("collections"); raw != "" {
		filter.Collections = splitList(raw)
	}
	if raw := q.Get("min_price"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, errInvalidFilter("min_price")
		}
		filter.MinPrice = &f
	}
	if raw := q.Get("max_price"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, errInvalidFilter("max_price")
		}
		filter.MaxPrice = &f
	}
	if raw := q.Get("is_active"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errInvalidFilter("is_active")
		}
		filter.IsActive = &b
	}
	if raw := q.Get("is_featured"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errInvalidFilter("is_featured")
		}
		filter.IsFeatured = &b
	}
	if raw := q.Get("include_hidden"); raw == "true" {
		filter.VisibleOnly = false
	}
	if q.Get("sort_order") == "asc" {
		filter.SortOrder = repository.SortOrderAsc
	} else {
		filter.SortOrder = repository.SortOrderDesc
	}

	return filter, nil
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type filterError string

func (e filterError) Error() string { return "invalid filter value: " + string(e) }

func errInvalidFilter(field string) error { return filterError(field) }
