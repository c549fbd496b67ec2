package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"misha-catalog/internal/domain"
	"misha-catalog/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ColorInput carries admin-provided color fields.
type ColorInput struct {
	Name string
	Hex  string
}

// ColorService manages the color palette products reference.
type ColorService interface {
	Create(ctx context.Context, in ColorInput) (*domain.Color, error)
	Update(ctx context.Context, id uuid.UUID, in ColorInput) (*domain.Color, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Color, error)
	List(ctx context.Context, search string, page, pageSize int) ([]*domain.Color, int, error)
}

type colorService struct {
	colors   repository.ColorRepository
	products repository.ProductRepository
	logger   *zap.Logger
}

// NewColorService creates a new instance of ColorService.
func NewColorService(colors repository.ColorRepository, products repository.ProductRepository, logger *zap.Logger) ColorService {
	return &colorService{colors: colors, products: products, logger: logger}
}

func (s *colorService) Create(ctx context.Context, in ColorInput) (*domain.Color, error) {
	name, hex, err := normalizeColorInput(in)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	color := &domain.Color{
		ID:        uuid.New(),
		Name:      name,
		Slug:      Slugify(name),
		Hex:       hex,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.colors.Create(ctx, color); err != nil {
		if errors.Is(err, repository.ErrColorAlreadyExists) {
			return nil, Ef(KindColorConflict, "color %q already exists", name)
		}
		return nil, Wrap(KindCreateFailed, "failed to create color", err)
	}

	s.logger.Info("Color created",
		zap.String("color_id", color.ID.String()),
		zap.String("name", color.Name))
	return color, nil
}

func (s *colorService) Update(ctx context.Context, id uuid.UUID, in ColorInput) (*domain.Color, error) {
	color, err := s.colors.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrColorNotFound) {
			return nil, E(KindColorNotFound, "color not found")
		}
		return nil, err
	}

	if in.Name != "" {
		color.Name = strings.ToLower(strings.TrimSpace(in.Name))
		color.Slug = Slugify(color.Name)
	}
	if in.Hex != "" {
		if !hexColorPattern.MatchString(in.Hex) {
			return nil, Ef(KindMalformedInput, "invalid hex color %q", in.Hex)
		}
		color.Hex = strings.ToLower(in.Hex)
	}

	color.UpdatedAt = time.Now()
	if err := s.colors.Update(ctx, color); err != nil {
		if errors.Is(err, repository.ErrColorAlreadyExists) {
			return nil, Ef(KindColorConflict, "color %q already exists", color.Name)
		}
		return nil, Wrap(KindUpdateFailed, "failed to update color", err)
	}

	s.logger.Info("Color updated", zap.String("color_id", color.ID.String()))
	return color, nil
}

func (s *colorService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.colors.FindByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrColorNotFound) {
			return E(KindColorNotFound, "color not found")
		}
		return err
	}

	inUse, err := s.products.ExistsByColor(ctx, id)
	if err != nil {
		return err
	}
	if inUse {
		return E(KindColorInUse, "color is used by products and cannot be deleted")
	}

	if err := s.colors.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrColorNotFound) {
			return E(KindColorNotFound, "color not found")
		}
		return Wrap(KindDeleteFailed, "failed to delete color", err)
	}

	s.logger.Info("Color deleted", zap.String("color_id", id.String()))
	return nil
}

func (s *colorService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Color, error) {
	color, err := s.colors.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrColorNotFound) {
			return nil, E(KindColorNotFound, "color not found")
		}
		return nil, err
	}
	return color, nil
}

func (s *colorService) List(ctx context.Context, search string, page, pageSize int) ([]*domain.Color, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 50
	}
	return s.colors.List(ctx, search, page, pageSize)
}

// Color names are stored lowercase so uniqueness is case-insensitive.
func normalizeColorInput(in ColorInput) (name, hex string, err error) {
	name = strings.ToLower(strings.TrimSpace(in.Name))
	if name == "" {
		return "", "", E(KindMalformedInput, "color name is required")
	}
	if !hexColorPattern.MatchString(in.Hex) {
		return "", "", Ef(KindMalformedInput, "invalid hex color %q", in.Hex)
	}
	return name, strings.ToLower(in.Hex), nil
}
