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
	ErrColorNotFound      = errors.New("color not found")
	ErrColorAlreadyExists = errors.New("color with this name already exists")
)

// ColorRepository defines the interface for color data access.
// IncrementProductCounts is reserved for the catalog mutator's transaction.
type ColorRepository interface {
	Create(ctx context.Context, color *domain.Color) error
	Update(ctx context.Context, color *domain.Color) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Color, error)
	FindManyByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Color, error)
	List(ctx context.Context, search string, page, pageSize int) ([]*domain.Color, int, error)
	IncrementProductCounts(ctx context.Context, ids []uuid.UUID, delta int) error
}

type colorRepository struct {
	db *sql.DB
}

// NewColorRepository creates a new instance of ColorRepository.
func NewColorRepository(db *sql.DB) ColorRepository {
	return &colorRepository{db: db}
}

const colorColumns = `id, name, slug, hex, product_count, created_at, updated_at`

func (r *colorRepository) Create(ctx context.Context, color *domain.Color) error {
	query := `
		INSERT INTO colors (` + colorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := conn(ctx, r.db).ExecContext(
		ctx,
		query,
		color.ID,
		color.Name,
		color.Slug,
		color.Hex,
		color.ProductCount,
		color.CreatedAt,
		color.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrColorAlreadyExists
		}
		return fmt.Errorf("failed to create color: %w", err)
	}
	return nil
}

func (r *colorRepository) Update(ctx context.Context, color *domain.Color) error {
	query := `
		UPDATE colors
		SET name = $2, slug = $3, hex = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := conn(ctx, r.db).ExecContext(
		ctx,
		query,
		color.ID,
		color.Name,
		color.Slug,
		color.Hex,
		color.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return ErrColorAlreadyExists
		}
		return fmt.Errorf("failed to update color: %w", err)
	}
	return requireRowsAffected(result, ErrColorNotFound)
}

func (r *colorRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM colors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete color: %w", err)
	}
	return requireRowsAffected(result, ErrColorNotFound)
}

func (r *colorRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Color, error) {
	query := `SELECT ` + colorColumns + ` FROM colors WHERE id = $1`
	color, err := r.scan(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrColorNotFound
		}
		return nil, err
	}
	return color, nil
}

// FindManyByIDs returns the colors that exist among ids. Callers compare
// lengths to detect dangling references; missing ids are not an error here.
func (r *colorRepository) FindManyByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Color, error) {
	if len(ids) == 0 {
		return []*domain.Color{}, nil
	}

	query := `SELECT ` + colorColumns + ` FROM colors WHERE id = ANY($1::uuid[])`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, uuidArray(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to find colors: %w", err)
	}
	defer rows.Close()

	colors := []*domain.Color{}
	for rows.Next() {
		color, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		colors = append(colors, color)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating colors: %w", err)
	}
	return colors, nil
}

func (r *colorRepository) List(ctx context.Context, search string, page, pageSize int) ([]*domain.Color, int, error) {
	where := ""
	args := []any{}
	if search != "" {
		where = "WHERE name ILIKE $1"
		args = append(args, "%"+search+"%")
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM colors %s", where)
	if err := conn(ctx, r.db).QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count colors: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT `+colorColumns+`
		FROM colors
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list colors: %w", err)
	}
	defer rows.Close()

	colors := []*domain.Color{}
	for rows.Next() {
		color, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		colors = append(colors, color)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating colors: %w", err)
	}
	return colors, total, nil
}

func (r *colorRepository) IncrementProductCounts(ctx context.Context, ids []uuid.UUID, delta int) error {
	if len(ids) == 0 {
		return nil
	}

	result, err := conn(ctx, r.db).ExecContext(ctx, `
		UPDATE colors
		SET product_count = product_count + $2, updated_at = NOW()
		WHERE id = ANY($1::uuid[])
	`, uuidArray(ids), delta)
	if err != nil {
		return fmt.Errorf("failed to adjust color product counts: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected != int64(len(ids)) {
		return ErrColorNotFound
	}
	return nil
}

func (r *colorRepository) scan(row rowScanner) (*domain.Color, error) {
	color := &domain.Color{}
	err := row.Scan(
		&color.ID,
		&color.Name,
		&color.Slug,
		&color.Hex,
		&color.ProductCount,
		&color.CreatedAt,
		&color.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan color: %w", err)
	}
	return color, nil
}

// uuidArray renders ids as a Postgres array literal understood by ANY($1).
func uuidArray(ids []uuid.UUID) string {
	out := "{"
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id.String()
	}
	return out + "}"
}
