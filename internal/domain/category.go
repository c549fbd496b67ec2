package domain

import (
	"time"

	"github.com/google/uuid"
)

// CategoryImage is a blob-store backed image (banner or icon).
type CategoryImage struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// Category groups products. ProductCount is derived state: it is written
// only by the catalog mutator inside its transaction, never set by admins.
type Category struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	Name         string        `json:"name" db:"name"`
	Slug         string        `json:"slug" db:"slug"`
	Description  string        `json:"description" db:"description"`
	BannerImage  CategoryImage `json:"banner_image" db:"banner_image"`
	Icon         CategoryImage `json:"icon" db:"icon"`
	IsActive     bool          `json:"is_active" db:"is_active"`
	SortOrder    int           `json:"sort_order" db:"sort_order"`
	ProductCount int64         `json:"product_count" db:"product_count"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}
