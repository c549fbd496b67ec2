package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"misha-catalog/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrCategoryNotFound      = errors.New("category not found")
	ErrCategoryAlreadyExists = errors.New("category with this name already exists")
)

// CategoryRepository defines the interface for category data access.
// IncrementProductCount is reserved for the catalog mutator's transaction.
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) error
	Update(ctx context.Context, category *domain.Category) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	FindBySlug(ctx context.Context, slug string) (*domain.Category, error)
	List(ctx context.Context, search string, page, pageSize int) ([]*domain.Category, int, error)
	IncrementProductCount(ctx context.Context, id uuid.UUID, delta int) error
}

type categoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository creates a new instance of CategoryRepository.
func NewCategoryRepository(db *sql.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

const categoryColumns = `
	id, name, slug, description,
	banner_image_url, banner_image_public_id, icon_url, icon_public_id,
	is_active, sort_order, product_count, created_at, updated_at
`

func (r *categoryRepository) Create(ctx context.Context, category *domain.Category) error {
	query := `
		INSERT INTO categories (` + categoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := conn(ctx, r.db).ExecContext(
		ctx,
		query,
		category.ID,
		category.Name,
		category.Slug,
		category.Description,
		category.BannerImage.URL,
		category.BannerImage.PublicID,
		category.Icon.URL,
		category.Icon.PublicID,
		category.IsActive,
		category.SortOrder,
		category.ProductCount,
		category.CreatedAt,
		category.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrCategoryAlreadyExists
		}
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

func (r *categoryRepository) Update(ctx context.Context, category *domain.Category) error {
	query := `
		UPDATE categories
		SET name = $2, slug = $3, description = $4,
		    banner_image_url = $5, banner_image_public_id = $6,
		    icon_url = $7, icon_public_id = $8,
		    is_active = $9, sort_order = $10, updated_at = $11
		WHERE id = $1
	`

	result, err := conn(ctx, r.db).ExecContext(
		ctx,
		query,
		category.ID,
		category.Name,
		category.Slug,
		category.Description,
		category.BannerImage.URL,
		category.BannerImage.PublicID,
		category.Icon.URL,
		category.Icon.PublicID,
		category.IsActive,
		category.SortOrder,
		category.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrCategoryAlreadyExists
		}
		return fmt.Errorf("failed to update category: %w", err)
	}
	return requireRowsAffected(result, ErrCategoryNotFound)
}

func (r *categoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return requireRowsAffected(result, ErrCategoryNotFound)
}

func (r *categoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE id = $1`
	return r.scanOne(conn(ctx, r.db).QueryRowContext(ctx, query, id))
}

func (r *categoryRepository) FindBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE slug = $1`
	return r.scanOne(conn(ctx, r.db).QueryRowContext(ctx, query, slug))
}

func (r *categoryRepository) List(ctx context.Context, search string, page, pageSize int) ([]*domain.Category, int, error) {
	where := ""
	args := []any{}
	if search != "" {
		where = "WHERE name ILIKE $1 OR description ILIKE $1"
		args = append(args, "%"+search+"%")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM categories %s", where)
	if err := conn(ctx, r.db).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count categories: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT `+categoryColumns+`
		FROM categories
		%s
		ORDER BY sort_order ASC, created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	categories := []*domain.Category{}
	for rows.Next() {
		category, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating categories: %w", err)
	}
	return categories, total, nil
}

func (r *categoryRepository) IncrementProductCount(ctx context.Context, id uuid.UUID, delta int) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE categories
		SET product_count = product_count + $2, updated_at = NOW()
		WHERE id = $1
	`, id, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust category product count: %w", err)
	}
	return requireRowsAffected(result, ErrCategoryNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *categoryRepository) scan(row rowScanner) (*domain.Category, error) {
	category := &domain.Category{}
	err := row.Scan(
		&category.ID,
		&category.Name,
		&category.Slug,
		&category.Description,
		&category.BannerImage.URL,
		&category.BannerImage.PublicID,
		&category.Icon.URL,
		&category.Icon.PublicID,
		&category.IsActive,
		&category.SortOrder,
		&category.ProductCount,
		&category.CreatedAt,
		&category.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan category: %w", err)
	}
	return category, nil
}

func (r *categoryRepository) scanOne(row *sql.Row) (*domain.Category, error) {
	category, err := r.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, err
	}
	return category, nil
}

func requireRowsAffected(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
