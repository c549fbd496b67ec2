package domain

import (
	"time"

	"github.com/google/uuid"
)

// Color is a shared reference entity pointed at by product variants.
// Name is stored lowercase and unique. ProductCount counts products that
// reference the color through at least one variant; like
// Category.ProductCount it is written only by the catalog mutator.
type Color struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Slug         string    `json:"slug" db:"slug"`
	Hex          string    `json:"hex" db:"hex"`
	ProductCount int64     `json:"product_count" db:"product_count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
