package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"misha-catalog/internal/blobstore"
	"misha-catalog/internal/domain"
	"misha-catalog/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProductService is the write path of the catalog: it normalizes input,
// validates references, reconciles images, and applies the product document
// together with the category/color counters in one transaction.
type ProductService interface {
	Create(ctx context.Context, in ProductInput, uploads []ImageUpload) (*domain.Product, error)
	Update(ctx context.Context, id uuid.UUID, in ProductInput, uploads []ImageUpload, removals map[int][]string) (*domain.Product, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID, countView bool) (*domain.Product, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Product, error)
	List(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error)
	RecordWhatsappInquiry(ctx context.Context, id uuid.UUID) error
}

type productService struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
	colors     repository.ColorRepository
	tx         repository.TxManager
	refs       *ReferenceValidator
	reconciler *ImageReconciler
	store      blobstore.BlobStore
	logger     *zap.Logger
}

// NewProductService creates a new instance of ProductService.
func NewProductService(
	products repository.ProductRepository,
	categories repository.CategoryRepository,
	colors repository.ColorRepository,
	tx repository.TxManager,
	reconciler *ImageReconciler,
	store blobstore.BlobStore,
	logger *zap.Logger,
) ProductService {
	return &productService{
		products:   products,
		categories: categories,
		colors:     colors,
		tx:         tx,
		refs:       NewReferenceValidator(categories, colors),
		reconciler: reconciler,
		store:      store,
		logger:     logger,
	}
}

// Create persists a new product and bumps the owning category's and every
// referenced color's product count inside one transaction. Validation and
// reference checks run first, so failures there leave no writes behind;
// blobs uploaded before a later failure are compensating-deleted.
func (s *productService) Create(ctx context.Context, in ProductInput, uploads []ImageUpload) (*domain.Product, error) {
	np, err := NormalizeCreate(in)
	if err != nil {
		return nil, err
	}

	if _, err := s.refs.ValidateCategory(ctx, np.CategoryID); err != nil {
		return nil, err
	}

	colorIDs := distinctColorIDs(np.Variants)
	if err := s.refs.ValidateColors(ctx, colorIDs); err != nil {
		return nil, err
	}

	taken, err := s.products.SlugExists(ctx, np.Slug, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, Ef(KindSlugConflict, "product %q already exists", np.Slug)
	}

	variants, uploaded, err := s.reconciler.Reconcile(ctx, nil, np.Variants, uploads, nil, true)
	if err != nil {
		s.cleanupUploads(ctx, uploaded)
		return nil, err
	}

	now := time.Now()
	product := &domain.Product{
		ID:             uuid.New(),
		Name:           np.Name,
		Slug:           np.Slug,
		CategoryID:     np.CategoryID,
		Description:    np.Description,
		Variants:       variants,
		Tags:           np.Tags,
		Collections:    np.Collections,
		Specifications: np.Specifications,
		VideoURL:       np.VideoURL,
		IsActive:       np.IsActive,
		IsFeatured:     np.IsFeatured,
		IsSoldOut:      np.IsSoldOut,
		IsVisible:      np.IsVisible,
		Discount:       np.Discount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.products.Insert(ctx, product); err != nil {
			return err
		}
		if err := s.categories.IncrementProductCount(ctx, product.CategoryID, 1); err != nil {
			return err
		}
		return s.colors.IncrementProductCounts(ctx, colorIDs, 1)
	})
	if err != nil {
		s.cleanupUploads(ctx, uploaded)
		if errors.Is(err, repository.ErrProductSlugTaken) {
			return nil, Ef(KindSlugConflict, "product %q already exists", np.Slug)
		}
		return nil, Wrap(KindCreateFailed, "failed to create product", err)
	}

	s.logger.Info("Product created",
		zap.String("product_id", product.ID.String()),
		zap.String("slug", product.Slug),
		zap.Int("variants", len(product.Variants)),
	)
	return product, nil
}

// Update replaces the stored product with the normalized+reconciled state
// and applies the counter deltas derived from the old/new color sets and a
// possible category move, all inside one transaction.
func (s *productService) Update(ctx context.Context, id uuid.UUID, in ProductInput, uploads []ImageUpload, removals map[int][]string) (*domain.Product, error) {
	prev, err := s.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, E(KindProductNotFound, "product not found")
		}
		return nil, err
	}

	np, err := NormalizeUpdate(in, prev)
	if err != nil {
		return nil, err
	}

	if np.CategoryProvided && np.CategoryID != prev.CategoryID {
		if _, err := s.refs.ValidateCategory(ctx, np.CategoryID); err != nil {
			return nil, err
		}
	}
	if np.VariantsProvided {
		if err := s.refs.ValidateColors(ctx, distinctColorIDs(np.Variants)); err != nil {
			return nil, err
		}
	}

	if np.Slug != prev.Slug {
		taken, err := s.products.SlugExists(ctx, np.Slug, prev.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, Ef(KindSlugConflict, "product %q already exists", np.Slug)
		}
	}

	variants := np.Variants
	var uploaded []string
	if np.VariantsProvided || len(uploads) > 0 || len(removals) > 0 {
		variants, uploaded, err = s.reconciler.Reconcile(ctx, prev.Variants, np.Variants, uploads, removals, false)
		if err != nil {
			s.cleanupUploads(ctx, uploaded)
			return nil, err
		}
	}

	oldColors := prev.ColorIDs()
	newColors := distinctColorIDs(variants)
	toIncrement := colorSetDifference(newColors, oldColors)
	toDecrement := colorSetDifference(oldColors, newColors)

	updated := *prev
	updated.Name = np.Name
	updated.Slug = np.Slug
	updated.CategoryID = np.CategoryID
	if !np.CategoryProvided {
		updated.CategoryID = prev.CategoryID
	}
	updated.Description = np.Description
	updated.Variants = variants
	updated.Tags = np.Tags
	updated.Collections = np.Collections
	updated.Specifications = np.Specifications
	updated.VideoURL = np.VideoURL
	updated.IsActive = np.IsActive
	updated.IsFeatured = np.IsFeatured
	updated.IsSoldOut = np.IsSoldOut
	updated.IsVisible = np.IsVisible
	updated.Discount = np.Discount
	updated.UpdatedAt = time.Now()

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if updated.CategoryID != prev.CategoryID {
			if err := s.categories.IncrementProductCount(ctx, prev.CategoryID, -1); err != nil {
				return err
			}
			if err := s.categories.IncrementProductCount(ctx, updated.CategoryID, 1); err != nil {
				return err
			}
		}
		if err := s.colors.IncrementProductCounts(ctx, toIncrement, 1); err != nil {
			return err
		}
		if err := s.colors.IncrementProductCounts(ctx, toDecrement, -1); err != nil {
			return err
		}
		return s.products.Replace(ctx, &updated)
	})
	if err != nil {
		s.cleanupUploads(ctx, uploaded)
		switch {
		case errors.Is(err, repository.ErrRevisionConflict):
			return nil, Wrap(KindRevisionConflict, "product was modified concurrently", err)
		case errors.Is(err, repository.ErrProductSlugTaken):
			return nil, Ef(KindSlugConflict, "product %q already exists", np.Slug)
		default:
			return nil, Wrap(KindUpdateFailed, "failed to update product", err)
		}
	}

	s.logger.Info("Product updated",
		zap.String("product_id", updated.ID.String()),
		zap.Int("colors_added", len(toIncrement)),
		zap.Int("colors_removed", len(toDecrement)),
	)
	return &updated, nil
}

// Delete removes the product and decrements the category and distinct color
// counters in one transaction. The variant blobs are purged afterwards as a
// best-effort side effect; the store failing never resurrects the product.
func (s *productService) Delete(ctx context.Context, id uuid.UUID) error {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return E(KindProductNotFound, "product not found")
		}
		return err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.categories.IncrementProductCount(ctx, product.CategoryID, -1); err != nil {
			return err
		}
		if err := s.colors.IncrementProductCounts(ctx, product.ColorIDs(), -1); err != nil {
			return err
		}
		return s.products.Delete(ctx, product.ID)
	})
	if err != nil {
		return Wrap(KindDeleteFailed, "failed to delete product", err)
	}

	for _, v := range product.Variants {
		for _, img := range v.Images {
			if err := s.store.Delete(ctx, img.PublicID); err != nil {
				s.logger.Warn("blob delete failed",
					zap.String("public_id", img.PublicID),
					zap.Error(err))
			}
		}
	}

	s.logger.Info("Product deleted", zap.String("product_id", product.ID.String()))
	return nil
}

func (s *productService) GetByID(ctx context.Context, id uuid.UUID, countView bool) (*domain.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, E(KindProductNotFound, "product not found")
		}
		return nil, err
	}
	if countView {
		if err := s.products.IncrementViewCount(ctx, id); err != nil {
			s.logger.Warn("failed to count product view", zap.Error(err))
		} else {
			product.ViewCount++
		}
	}
	return product, nil
}

func (s *productService) GetBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	product, err := s.products.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, E(KindProductNotFound, "product not found")
		}
		return nil, err
	}
	return product, nil
}

func (s *productService) List(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error) {
	return s.products.List(ctx, filter)
}

func (s *productService) RecordWhatsappInquiry(ctx context.Context, id uuid.UUID) error {
	if err := s.products.IncrementWhatsappInquiryCount(ctx, id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return E(KindProductNotFound, "product not found")
		}
		return fmt.Errorf("failed to record inquiry: %w", err)
	}
	return nil
}

// cleanupUploads issues compensating deletes for blobs uploaded during a
// request that later aborted. Best-effort: the request is already failing.
func (s *productService) cleanupUploads(ctx context.Context, publicIDs []string) {
	for _, id := range publicIDs {
		if err := s.store.Delete(ctx, id); err != nil {
			s.logger.Warn("failed to clean up orphaned upload",
				zap.String("public_id", id),
				zap.Error(err))
		}
	}
}

func distinctColorIDs(variants []domain.Variant) []uuid.UUID {
	p := domain.Product{Variants: variants}
	return p.ColorIDs()
}

// colorSetDifference returns the ids in a that are not in b.
func colorSetDifference(a, b []uuid.UUID) []uuid.UUID {
	inB := make(map[uuid.UUID]struct{}, len(b))
	for _, id := range b {
		inB[id] = struct{}{}
	}
	out := []uuid.UUID{}
	for _, id := range a {
		if _, ok := inB[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
