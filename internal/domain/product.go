package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product is the aggregate root of the catalog. It exclusively owns its
// variants and their images; category and colors are shared references.
type Product struct {
	ID                   uuid.UUID         `json:"id" db:"id"`
	Name                 string            `json:"name" db:"name"`
	Slug                 string            `json:"slug" db:"slug"`
	CategoryID           uuid.UUID         `json:"category_id" db:"category_id"`
	Description          string            `json:"description" db:"description"`
	Variants             []Variant         `json:"variants" db:"variants"`
	Tags                 []string          `json:"tags" db:"tags"`
	Collections          []string          `json:"collections" db:"collections"`
	Specifications       map[string]string `json:"specifications" db:"specifications"`
	VideoURL             string            `json:"video_url,omitempty" db:"video_url"`
	IsActive             bool              `json:"is_active" db:"is_active"`
	IsFeatured           bool              `json:"is_featured" db:"is_featured"`
	IsSoldOut            bool              `json:"is_sold_out" db:"is_sold_out"`
	IsVisible            bool              `json:"is_visible" db:"is_visible"`
	Discount             float64           `json:"discount" db:"discount"`
	ViewCount            int64             `json:"view_count" db:"view_count"`
	WhatsappInquiryCount int64             `json:"whatsapp_inquiry_count" db:"whatsapp_inquiry_count"`
	Revision             int64             `json:"revision" db:"revision"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" db:"updated_at"`
}

// Variant is a per-color purchasable configuration of a product.
type Variant struct {
	ID         uuid.UUID      `json:"id"`
	ColorID    uuid.UUID      `json:"color_id"`
	Price      float64        `json:"price"`
	Discount   float64        `json:"discount"`
	FinalPrice float64        `json:"final_price"`
	Rating     float64        `json:"rating"`
	Sizes      []SizeOption   `json:"sizes"`
	Images     []VariantImage `json:"images"`
}

// SizeOption is a single size label offered by a variant.
type SizeOption struct {
	Size string `json:"size"`
}

// VariantImage is a blob-store backed image attached to a variant.
// PublicID is the opaque handle used for deletion.
type VariantImage struct {
	URL       string `json:"url"`
	PublicID  string `json:"public_id"`
	Alt       string `json:"alt"`
	IsPrimary bool   `json:"is_primary"`
}

// ColorIDs returns the distinct set of color ids referenced by the product's
// variants. A color used by several variants is counted once.
func (p *Product) ColorIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(p.Variants))
	ids := make([]uuid.UUID, 0, len(p.Variants))
	for _, v := range p.Variants {
		if _, ok := seen[v.ColorID]; ok {
			continue
		}
		seen[v.ColorID] = struct{}{}
		ids = append(ids, v.ColorID)
	}
	return ids
}

// PrimaryImage returns the first primary image across variants, or nil when
// the product has no images at all.
func (p *Product) PrimaryImage() *VariantImage {
	for i := range p.Variants {
		for j := range p.Variants[i].Images {
			if p.Variants[i].Images[j].IsPrimary {
				return &p.Variants[i].Images[j]
			}
		}
	}
	for i := range p.Variants {
		if len(p.Variants[i].Images) > 0 {
			return &p.Variants[i].Images[0]
		}
	}
	return nil
}
