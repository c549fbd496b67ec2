package service

import (
	"context"
	"errors"
	"io"
	"time"

	"misha-catalog/internal/blobstore"
	"misha-catalog/internal/domain"
	"misha-catalog/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileUpload is a single file received with a request.
type FileUpload struct {
	Filename string
	Content  io.Reader
}

// CategoryInput carries admin-provided category fields. Pointer fields are
// optional on update: nil keeps the stored value.
type CategoryInput struct {
	Name        string
	Description *string
	IsActive    *bool
	SortOrder   *int
}

// CategoryService manages the category catalog. Product counts are never
// writable here; they belong to the product write path.
type CategoryService interface {
	Create(ctx context.Context, in CategoryInput, banner, icon *FileUpload) (*domain.Category, error)
	Update(ctx context.Context, id uuid.UUID, in CategoryInput, banner, icon *FileUpload) (*domain.Category, error)
	Delete(ctx context.Context, id uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Category, error)
	List(ctx context.Context, search string, page, pageSize int) ([]*domain.Category, int, error)
}

type categoryService struct {
	categories repository.CategoryRepository
	products   repository.ProductRepository
	store      blobstore.BlobStore
	folder     string
	logger     *zap.Logger
}

// NewCategoryService creates a new instance of CategoryService.
func NewCategoryService(
	categories repository.CategoryRepository,
	products repository.ProductRepository,
	store blobstore.BlobStore,
	folder string,
	logger *zap.Logger,
) CategoryService {
	return &categoryService{
		categories: categories,
		products:   products,
		store:      store,
		folder:     folder,
		logger:     logger,
	}
}

func (s *categoryService) Create(ctx context.Context, in CategoryInput, banner, icon *FileUpload) (*domain.Category, error) {
	if in.Name == "" {
		return nil, E(KindMalformedInput, "category name is required")
	}

	now := time.Now()
	category := &domain.Category{
		ID:        uuid.New(),
		Name:      in.Name,
		Slug:      Slugify(in.Name),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Description != nil {
		category.Description = *in.Description
	}
	if in.IsActive != nil {
		category.IsActive = *in.IsActive
	}
	if in.SortOrder != nil {
		category.SortOrder = *in.SortOrder
	}

	if err := s.attachImages(ctx, category, banner, icon); err != nil {
		return nil, err
	}

	if err := s.categories.Create(ctx, category); err != nil {
		s.removeBlobs(ctx, category.BannerImage.PublicID, category.Icon.PublicID)
		if errors.Is(err, repository.ErrCategoryAlreadyExists) {
			return nil, Ef(KindCategoryConflict, "category %q already exists", category.Name)
		}
		return nil, Wrap(KindCreateFailed, "failed to create category", err)
	}

	s.logger.Info("Category created",
		zap.String("category_id", category.ID.String()),
		zap.String("slug", category.Slug))
	return category, nil
}

func (s *categoryService) Update(ctx context.Context, id uuid.UUID, in CategoryInput, banner, icon *FileUpload) (*domain.Category, error) {
	category, err := s.categories.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return nil, E(KindCategoryNotFound, "category not found")
		}
		return nil, err
	}

	if in.Name != "" && in.Name != category.Name {
		category.Name = in.Name
		category.Slug = Slugify(in.Name)
	}
	if in.Description != nil {
		category.Description = *in.Description
	}
	if in.IsActive != nil {
		category.IsActive = *in.IsActive
	}
	if in.SortOrder != nil {
		category.SortOrder = *in.SortOrder
	}

	// Replacing an image deletes the previous blob after the new one is in
	// place, so a failed upload never leaves the category imageless.
	oldBanner, oldIcon := category.BannerImage, category.Icon
	if err := s.attachImages(ctx, category, banner, icon); err != nil {
		return nil, err
	}

	category.UpdatedAt = time.Now()
	if err := s.categories.Update(ctx, category); err != nil {
		if banner != nil || icon != nil {
			s.removeBlobs(ctx,
				replacedID(oldBanner, category.BannerImage),
				replacedID(oldIcon, category.Icon))
		}
		if errors.Is(err, repository.ErrCategoryAlreadyExists) {
			return nil, Ef(KindCategoryConflict, "category %q already exists", category.Name)
		}
		return nil, Wrap(KindUpdateFailed, "failed to update category", err)
	}

	if banner != nil && oldBanner.PublicID != "" {
		s.removeBlobs(ctx, oldBanner.PublicID)
	}
	if icon != nil && oldIcon.PublicID != "" {
		s.removeBlobs(ctx, oldIcon.PublicID)
	}

	s.logger.Info("Category updated", zap.String("category_id", category.ID.String()))
	return category, nil
}

func (s *categoryService) Delete(ctx context.Context, id uuid.UUID) error {
	category, err := s.categories.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return E(KindCategoryNotFound, "category not found")
		}
		return err
	}

	inUse, err := s.products.ExistsByCategory(ctx, id)
	if err != nil {
		return err
	}
	if inUse {
		return E(KindCategoryInUse, "category has products and cannot be deleted")
	}

	if err := s.categories.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return E(KindCategoryNotFound, "category not found")
		}
		return Wrap(KindDeleteFailed, "failed to delete category", err)
	}

	s.removeBlobs(ctx, category.BannerImage.PublicID, category.Icon.PublicID)
	s.logger.Info("Category deleted", zap.String("category_id", id.String()))
	return nil
}

func (s *categoryService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	category, err := s.categories.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return nil, E(KindCategoryNotFound, "category not found")
		}
		return nil, err
	}
	return category, nil
}

func (s *categoryService) GetBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	category, err := s.categories.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrCategoryNotFound) {
			return nil, E(KindCategoryNotFound, "category not found")
		}
		return nil, err
	}
	return category, nil
}

func (s *categoryService) List(ctx context.Context, search string, page, pageSize int) ([]*domain.Category, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.categories.List(ctx, search, page, pageSize)
}

func (s *categoryService) attachImages(ctx context.Context, category *domain.Category, banner, icon *FileUpload) error {
	if banner != nil {
		result, err := s.store.Upload(ctx, banner.Content, banner.Filename, s.folder)
		if err != nil {
			return Wrap(KindUploadFailed, "failed to upload banner image", err)
		}
		category.BannerImage = domain.CategoryImage{URL: result.URL, PublicID: result.PublicID}
	}
	if icon != nil {
		result, err := s.store.Upload(ctx, icon.Content, icon.Filename, s.folder)
		if err != nil {
			if banner != nil {
				s.removeBlobs(ctx, category.BannerImage.PublicID)
			}
			return Wrap(KindUploadFailed, "failed to upload icon image", err)
		}
		category.Icon = domain.CategoryImage{URL: result.URL, PublicID: result.PublicID}
	}
	return nil
}

func (s *categoryService) removeBlobs(ctx context.Context, publicIDs ...string) {
	for _, id := range publicIDs {
		if id == "" {
			continue
		}
		if err := s.store.Delete(ctx, id); err != nil {
			s.logger.Warn("blob delete failed",
				zap.String("public_id", id),
				zap.Error(err))
		}
	}
}

// replacedID returns the new image's public id when it differs from the old
// one, meaning an upload happened for this slot during the failed update.
func replacedID(old, current domain.CategoryImage) string {
	if current.PublicID != old.PublicID {
		return current.PublicID
	}
	return ""
}
