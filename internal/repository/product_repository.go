package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"misha-catalog/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrProductSlugTaken = errors.New("product with this slug already exists")
	ErrRevisionConflict = errors.New("product was modified concurrently")
)

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// ProductFilter narrows and pages product listings.
type ProductFilter struct {
	Search      string
	CategoryID  *uuid.UUID
	ColorIDs    []uuid.UUID
	Tags        []string
	Collections []string
	Size        string
	MinPrice    *float64
	MaxPrice    *float64
	IsActive    *bool
	IsFeatured  *bool
	VisibleOnly bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   SortOrder
}

// ProductRepository defines the interface for product data access. The
// variants list (with sizes and images) is stored inside the product row, so
// insert/replace/delete each touch exactly one row and join the mutator's
// transaction through the context.
type ProductRepository interface {
	Insert(ctx context.Context, product *domain.Product) error
	Replace(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (*domain.Product, error)
	SlugExists(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error)
	List(ctx context.Context, filter ProductFilter) ([]*domain.Product, int, error)
	ExistsByCategory(ctx context.Context, categoryID uuid.UUID) (bool, error)
	ExistsByColor(ctx context.Context, colorID uuid.UUID) (bool, error)
	IncrementViewCount(ctx context.Context, id uuid.UUID) error
	IncrementWhatsappInquiryCount(ctx context.Context, id uuid.UUID) error
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository.
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `
	id, name, slug, category_id, description, variants, tags, collections,
	specifications, video_url, is_active, is_featured, is_sold_out,
	is_visible, discount, view_count, whatsapp_inquiry_count, revision,
	created_at, updated_at
`

func (r *productRepository) Insert(ctx context.Context, product *domain.Product) error {
	variants, tags, collections, specs, err := marshalProductFields(product)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		        $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err = conn(ctx, r.db).ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Slug,
		product.CategoryID,
		product.Description,
		variants,
		tags,
		collections,
		specs,
		nullString(product.VideoURL),
		product.IsActive,
		product.IsFeatured,
		product.IsSoldOut,
		product.IsVisible,
		product.Discount,
		product.ViewCount,
		product.WhatsappInquiryCount,
		product.Revision,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "products_slug_key") {
			return ErrProductSlugTaken
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// Replace overwrites every mutable product field, guarded by an optimistic
// revision check. A concurrent update bumps the revision first and this
// write then affects zero rows.
func (r *productRepository) Replace(ctx context.Context, product *domain.Product) error {
	variants, tags, collections, specs, err := marshalProductFields(product)
	if err != nil {
		return err
	}

	query := `
		UPDATE products
		SET name = $2, slug = $3, category_id = $4, description = $5,
		    variants = $6, tags = $7, collections = $8, specifications = $9,
		    video_url = $10, is_active = $11, is_featured = $12,
		    is_sold_out = $13, is_visible = $14, discount = $15,
		    revision = revision + 1, updated_at = $16
		WHERE id = $1 AND revision = $17
	`

	result, err := conn(ctx, r.db).ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Slug,
		product.CategoryID,
		product.Description,
		variants,
		tags,
		collections,
		specs,
		nullString(product.VideoURL),
		product.IsActive,
		product.IsFeatured,
		product.IsSoldOut,
		product.IsVisible,
		product.Discount,
		product.UpdatedAt,
		product.Revision,
	)
	if err != nil {
		if isUniqueViolation(err, "products_slug_key") {
			return ErrProductSlugTaken
		}
		return fmt.Errorf("failed to update product: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a vanished product from a lost revision race.
		var exists bool
		checkErr := conn(ctx, r.db).QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, product.ID).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("failed to check product existence: %w", checkErr)
		}
		if exists {
			return ErrRevisionConflict
		}
		return ErrProductNotFound
	}
	product.Revision++
	return nil
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return requireRowsAffected(result, ErrProductNotFound)
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	return r.scanOne(conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

func (r *productRepository) FindBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE slug = $1`
	return r.scanOne(conn(ctx, r.db).QueryRowContext(ctx, query, slug))
}

func (r *productRepository) SlugExists(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE slug = $1 AND id <> $2)`,
		slug, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

// List retrieves products with filtering, sorting, and pagination.
func (r *productRepository) List(ctx context.Context, filter ProductFilter) ([]*domain.Product, int, error) {
	where := "WHERE 1=1"
	args := []any{}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		where += fmt.Sprintf(" AND (name ILIKE %s OR description ILIKE %s OR tags::text ILIKE %s)", p, p, p)
	}
	if filter.CategoryID != nil {
		where += " AND category_id = " + arg(*filter.CategoryID)
	}
	if len(filter.ColorIDs) > 0 {
		where += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(variants) v
			WHERE (v->>'color_id')::uuid = ANY(%s::uuid[])
		)`, arg(uuidArray(filter.ColorIDs)))
	}
	for _, tag := range filter.Tags {
		where += " AND tags @> " + arg(jsonStringArray(tag))
	}
	for _, collection := range filter.Collections {
		where += " AND collections @> " + arg(jsonStringArray(collection))
	}
	if filter.Size != "" {
		where += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(variants) v,
			              jsonb_array_elements(v->'sizes') s
			WHERE UPPER(s->>'size') = UPPER(%s)
		)`, arg(filter.Size))
	}
	if filter.MinPrice != nil {
		where += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(variants) v
			WHERE (v->>'final_price')::numeric >= %s
		)`, arg(*filter.MinPrice))
	}
	if filter.MaxPrice != nil {
		where += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(variants) v
			WHERE (v->>'final_price')::numeric <= %s
		)`, arg(*filter.MaxPrice))
	}
	if filter.IsActive != nil {
		where += " AND is_active = " + arg(*filter.IsActive)
	}
	if filter.IsFeatured != nil {
		where += " AND is_featured = " + arg(*filter.IsFeatured)
	}
	if filter.VisibleOnly {
		where += " AND is_visible = TRUE"
	}

	var total int
	if err := conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM products "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	// Validate sort field to prevent SQL injection
	validSortFields := map[string]bool{
		"created_at": true,
		"name":       true,
		"view_count": true,
		"discount":   true,
	}
	sortBy := filter.SortBy
	if !validSortFields[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := filter.SortOrder
	if sortOrder != SortOrderAsc && sortOrder != SortOrderDesc {
		sortOrder = SortOrderDesc
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 10
	}

	query := fmt.Sprintf(`
		SELECT `+productColumns+`
		FROM products
		%s
		ORDER BY %s %s
		LIMIT %s OFFSET %s
	`, where, sortBy, sortOrder, arg(pageSize), arg((page-1)*pageSize))

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating products: %w", err)
	}
	return products, total, nil
}

func (r *productRepository) ExistsByCategory(ctx context.Context, categoryID uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE category_id = $1)`, categoryID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check category usage: %w", err)
	}
	return exists, nil
}

func (r *productRepository) ExistsByColor(ctx context.Context, colorID uuid.UUID) (bool, error) {
	var exists bool
	err := conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM products
			WHERE EXISTS (
				SELECT 1 FROM jsonb_array_elements(variants) v
				WHERE (v->>'color_id')::uuid = $1
			)
		)`, colorID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check color usage: %w", err)
	}
	return exists, nil
}

func (r *productRepository) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE products SET view_count = view_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment view count: %w", err)
	}
	return requireRowsAffected(result, ErrProductNotFound)
}

func (r *productRepository) IncrementWhatsappInquiryCount(ctx context.Context, id uuid.UUID) error {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE products SET whatsapp_inquiry_count = whatsapp_inquiry_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment whatsapp inquiry count: %w", err)
	}
	return requireRowsAffected(result, ErrProductNotFound)
}

func (r *productRepository) scan(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	var (
		variants, tags, collections, specs []byte
		videoURL                           sql.NullString
	)
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Slug,
		&product.CategoryID,
		&product.Description,
		&variants,
		&tags,
		&collections,
		&specs,
		&videoURL,
		&product.IsActive,
		&product.IsFeatured,
		&product.IsSoldOut,
		&product.IsVisible,
		&product.Discount,
		&product.ViewCount,
		&product.WhatsappInquiryCount,
		&product.Revision,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	product.VideoURL = videoURL.String

	if err := json.Unmarshal(variants, &product.Variants); err != nil {
		return nil, fmt.Errorf("failed to decode variants: %w", err)
	}
	if err := json.Unmarshal(tags, &product.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if err := json.Unmarshal(collections, &product.Collections); err != nil {
		return nil, fmt.Errorf("failed to decode collections: %w", err)
	}
	if err := json.Unmarshal(specs, &product.Specifications); err != nil {
		return nil, fmt.Errorf("failed to decode specifications: %w", err)
	}
	return product, nil
}

func (r *productRepository) scanOne(row *sql.Row) (*domain.Product, error) {
	product, err := r.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product: %w", err)
	}
	return product, nil
}

func marshalProductFields(product *domain.Product) (variants, tags, collections, specs []byte, err error) {
	if product.Variants == nil {
		product.Variants = []domain.Variant{}
	}
	if product.Tags == nil {
		product.Tags = []string{}
	}
	if product.Collections == nil {
		product.Collections = []string{}
	}
	if product.Specifications == nil {
		product.Specifications = map[string]string{}
	}
	if variants, err = json.Marshal(product.Variants); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode variants: %w", err)
	}
	if tags, err = json.Marshal(product.Tags); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	if collections, err = json.Marshal(product.Collections); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode collections: %w", err)
	}
	if specs, err = json.Marshal(product.Specifications); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to encode specifications: %w", err)
	}
	return variants, tags, collections, specs, nil
}

func jsonStringArray(s string) []byte {
	b, _ := json.Marshal([]string{s})
	return b
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
