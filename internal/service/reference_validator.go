package service

import (
	"context"
	"errors"
	"fmt"

	"misha-catalog/internal/domain"
	"misha-catalog/internal/repository"

	"github.com/google/uuid"
)

// ReferenceValidator confirms that the category and colors a product refers
// to actually exist. Pure reads, no side effects.
type ReferenceValidator struct {
	categories repository.CategoryRepository
	colors     repository.ColorRepository
}

func NewReferenceValidator(categories repository.CategoryRepository, colors repository.ColorRepository) *ReferenceValidator {
	return &ReferenceValidator{categories: categories, colors: colors}
}

// ValidateCategory returns the category or an INVALID_CATEGORY error.
func (v *ReferenceValidator) ValidateCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	category, err := v.categories.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return nil, E(KindInvalidCategory, "invalid category id")
		}
		return nil, fmt.Errorf("failed to validate category: %w", err)
	}
	return category, nil
}

// ValidateColors checks that every distinct color id exists. The whole
// operation is rejected if any id is dangling; there is no partial pass.
func (v *ReferenceValidator) ValidateColors(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	colors, err := v.colors.FindManyByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to validate colors: %w", err)
	}
	if len(colors) != len(ids) {
		return E(KindInvalidColor, "one or more colors are invalid")
	}
	return nil
}
