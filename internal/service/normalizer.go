package service

import (
	"encoding/json"
	"math"

	"misha-catalog/internal/domain"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// ProductInput is the raw boundary shape of a product create/update request.
// The multipart form layer delivers composite fields as strings; JSON clients
// deliver native arrays and objects. Each field is normalized exactly once
// here, so nothing downstream branches on input representation.
type ProductInput struct {
	Name           any
	Category       any
	Description    any
	Variants       any
	Tags           any
	Collections    any
	Specifications any
	VideoURL       any
	IsActive       any
	IsFeatured     any
	IsSoldOut      any
	IsVisible      any
	Discount       any
}

// NormalizedProduct is the canonical in-memory shape produced from a
// ProductInput. Variant images are attached later by the image reconciler.
type NormalizedProduct struct {
	Name             string
	Slug             string
	CategoryID       uuid.UUID
	CategoryProvided bool
	Description      string
	Variants         []domain.Variant
	VariantsProvided bool
	Tags             []string
	Collections      []string
	Specifications   map[string]string
	VideoURL         string
	IsActive         bool
	IsFeatured       bool
	IsSoldOut        bool
	IsVisible        bool
	Discount         float64
}

// NormalizeCreate shapes input for product creation. Missing optional fields
// take their documented defaults; at least one valid variant is required.
func NormalizeCreate(in ProductInput) (*NormalizedProduct, error) {
	name := cast.ToString(in.Name)
	if name == "" {
		return nil, E(KindMalformedInput, "product name is required")
	}

	np := &NormalizedProduct{
		Name:           name,
		Slug:           Slugify(name),
		Description:    cast.ToString(in.Description),
		Tags:           normalizeSlugList(in.Tags),
		Collections:    normalizeSlugList(in.Collections),
		Specifications: normalizeSpecifications(in.Specifications, nil),
		VideoURL:       cast.ToString(in.VideoURL),
		IsActive:       boolOrDefault(in.IsActive, true),
		IsFeatured:     boolOrDefault(in.IsFeatured, false),
		IsSoldOut:      boolOrDefault(in.IsSoldOut, false),
		IsVisible:      boolOrDefault(in.IsVisible, true),
	}

	if !ValidVideoURL(np.VideoURL) {
		return nil, E(KindInvalidVideoURL, "video URL must be from YouTube or Vimeo")
	}

	catID, ok := parseID(in.Category)
	if !ok {
		return nil, E(KindMalformedInput, "a valid category id is required")
	}
	np.CategoryID = catID
	np.CategoryProvided = true

	discount, err := rangeFloat(in.Discount, 0, 100, 0)
	if err != nil {
		return nil, E(KindInvalidDiscount, "product discount must be between 0 and 100")
	}
	np.Discount = discount

	variants, err := normalizeVariants(in.Variants)
	if err != nil {
		return nil, err
	}
	if len(variants) == 0 {
		return nil, E(KindNoVariants, "at least one variant is required")
	}
	np.Variants = variants
	np.VariantsProvided = true

	return np, nil
}

// NormalizeUpdate shapes input for a product update against its previous
// state. Omitted fields are skip-through: they keep the stored value, and an
// omitted variants field preserves the existing variants with their images.
func NormalizeUpdate(in ProductInput, prev *domain.Product) (*NormalizedProduct, error) {
	np := &NormalizedProduct{
		Name:           prev.Name,
		Slug:           prev.Slug,
		CategoryID:     prev.CategoryID,
		Description:    prev.Description,
		Variants:       prev.Variants,
		Tags:           prev.Tags,
		Collections:    prev.Collections,
		Specifications: prev.Specifications,
		VideoURL:       prev.VideoURL,
		IsActive:       prev.IsActive,
		IsFeatured:     prev.IsFeatured,
		IsSoldOut:      prev.IsSoldOut,
		IsVisible:      prev.IsVisible,
		Discount:       prev.Discount,
	}

	if in.Name != nil {
		name := cast.ToString(in.Name)
		if name == "" {
			return nil, E(KindMalformedInput, "product name cannot be empty")
		}
		np.Name = name
		if name != prev.Name {
			np.Slug = Slugify(name)
		}
	}
	if in.Category != nil {
		catID, ok := parseID(in.Category)
		if !ok {
			return nil, E(KindMalformedInput, "invalid category id")
		}
		np.CategoryID = catID
		np.CategoryProvided = true
	}
	if in.Description != nil {
		np.Description = cast.ToString(in.Description)
	}
	if in.Tags != nil {
		np.Tags = normalizeSlugList(in.Tags)
	}
	if in.Collections != nil {
		np.Collections = normalizeSlugList(in.Collections)
	}
	if in.Specifications != nil {
		np.Specifications = normalizeSpecifications(in.Specifications, prev.Specifications)
	}
	if in.VideoURL != nil {
		np.VideoURL = cast.ToString(in.VideoURL)
		if !ValidVideoURL(np.VideoURL) {
			return nil, E(KindInvalidVideoURL, "video URL must be from YouTube or Vimeo")
		}
	}
	np.IsActive = boolOrDefault(in.IsActive, prev.IsActive)
	np.IsFeatured = boolOrDefault(in.IsFeatured, prev.IsFeatured)
	np.IsSoldOut = boolOrDefault(in.IsSoldOut, prev.IsSoldOut)
	np.IsVisible = boolOrDefault(in.IsVisible, prev.IsVisible)

	if in.Discount != nil {
		discount, err := rangeFloat(in.Discount, 0, 100, prev.Discount)
		if err != nil {
			return nil, E(KindInvalidDiscount, "product discount must be between 0 and 100")
		}
		np.Discount = discount
	}

	if in.Variants != nil {
		variants, err := normalizeVariants(in.Variants)
		if err != nil {
			return nil, err
		}
		if len(variants) == 0 {
			return nil, E(KindNoVariants, "at least one variant is required")
		}
		np.Variants = variants
		np.VariantsProvided = true
	}

	return np, nil
}

// normalizeVariants accepts a native slice, a single object, or a
// JSON-encoded string of either, and validates each entry. An individual
// variant entry may itself be a JSON-encoded string.
func normalizeVariants(raw any) ([]domain.Variant, error) {
	items := decodeComposite(raw)
	variants := make([]domain.Variant, 0, len(items))

	for i, item := range items {
		m, ok := decodeObject(item)
		if !ok {
			return nil, Ef(KindMalformedInput, "variant %d is not an object", i+1)
		}

		colorID, ok := parseID(m["color"])
		if !ok {
			return nil, Ef(KindMalformedInput, "variant %d is missing a valid color id", i+1)
		}

		price, err := cast.ToFloat64E(m["price"])
		if err != nil || math.IsNaN(price) || price < 0 {
			return nil, Ef(KindInvalidVariantPrice, "variant %d has an invalid price", i+1)
		}
		discount, err := rangeFloat(m["discount"], 0, 100, 0)
		if err != nil {
			return nil, Ef(KindInvalidVariantDiscount, "variant %d has invalid discount (0-100%%)", i+1)
		}
		rating, err := rangeFloat(m["rating"], 0, 5, 0)
		if err != nil {
			return nil, Ef(KindInvalidVariantRating, "variant %d has invalid rating (0-5 stars)", i+1)
		}

		sizes, ok := normalizeSizes(m["sizes"])
		if !ok {
			return nil, Ef(KindInvalidVariantSizes, "variant %d must have at least one valid size", i+1)
		}

		v := domain.Variant{
			ColorID:    colorID,
			Price:      price,
			Discount:   discount,
			Rating:     rating,
			Sizes:      sizes,
			FinalPrice: FinalPrice(price, discount),
		}
		if id, ok := parseID(m["id"]); ok {
			v.ID = id
		} else {
			v.ID = uuid.New()
		}
		variants = append(variants, v)
	}
	return variants, nil
}

// FinalPrice derives a variant's effective price from its base price and
// discount percentage. A zero discount leaves the price untouched.
func FinalPrice(price, discount float64) float64 {
	if discount == 0 {
		return price
	}
	return math.Round(price - price*discount/100)
}

const maxSizeLabelLen = 20

func normalizeSizes(raw any) ([]domain.SizeOption, bool) {
	items := decodeComposite(raw)
	if len(items) == 0 {
		return nil, false
	}
	sizes := make([]domain.SizeOption, 0, len(items))
	for _, item := range items {
		var label string
		if m, ok := decodeObject(item); ok {
			label = cast.ToString(m["size"])
		} else {
			label = cast.ToString(item)
		}
		if label == "" || len(label) > maxSizeLabelLen {
			return nil, false
		}
		sizes = append(sizes, domain.SizeOption{Size: label})
	}
	return sizes, true
}

// normalizeSlugList handles tags and collections: any representation in,
// slugified entries out, empties dropped. It never fails.
func normalizeSlugList(raw any) []string {
	if raw == nil {
		return []string{}
	}
	out := []string{}
	seen := map[string]struct{}{}
	for _, item := range decodeComposite(raw) {
		slug := Slugify(cast.ToString(item))
		if slug == "" {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}
		out = append(out, slug)
	}
	return out
}

// normalizeSpecifications resolves a flat string-to-string map. Anything
// that is not an object (or a JSON-encoded object) falls back to prev on the
// update path, or an empty map on the create path (prev == nil).
func normalizeSpecifications(raw any, prev map[string]string) map[string]string {
	fallback := prev
	if fallback == nil {
		fallback = map[string]string{}
	}
	if raw == nil {
		return fallback
	}
	m, ok := decodeObject(raw)
	if !ok {
		return fallback
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = cast.ToString(v)
	}
	return out
}

// decodeComposite turns raw into a slice of elements. A JSON-encoded string
// is parsed first; a scalar or unparsable string becomes a single element;
// nil becomes empty.
func decodeComposite(raw any) []any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []string:
		items := make([]any, len(v))
		for i, s := range v {
			items[i] = s
		}
		return items
	case string:
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			if v == "" {
				return nil
			}
			return []any{v}
		}
		if arr, ok := parsed.([]any); ok {
			return arr
		}
		return []any{parsed}
	default:
		return []any{raw}
	}
}

// decodeObject turns raw into a string-keyed map, parsing JSON-encoded
// strings along the way.
func decodeObject(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		return v, true
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return m, true
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, false
		}
		return m, true
	default:
		return nil, false
	}
}

// parseID extracts a uuid from a string, a JSON object carrying an "id"
// field, or a uuid value.
func parseID(raw any) (uuid.UUID, bool) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, v != uuid.Nil
	case string:
		if id, err := uuid.Parse(v); err == nil {
			return id, true
		}
		if m, ok := decodeObject(v); ok {
			return parseID(m["id"])
		}
		return uuid.Nil, false
	case map[string]any:
		return parseID(v["id"])
	default:
		return uuid.Nil, false
	}
}

func boolOrDefault(raw any, def bool) bool {
	if raw == nil {
		return def
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return def
	}
	return b
}

// rangeFloat coerces raw to a float in [min,max]; nil yields def.
func rangeFloat(raw any, min, max, def float64) (float64, error) {
	if raw == nil {
		return def, nil
	}
	if s, ok := raw.(string); ok && s == "" {
		return def, nil
	}
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || f < min || f > max {
		return 0, errOutOfRange
	}
	return f, nil
}

var errOutOfRange = E(KindMalformedInput, "value out of range")
