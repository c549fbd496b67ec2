package service

import (
	"context"
	"strings"
	"testing"

	"misha-catalog/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type categoryFixture struct {
	svc   CategoryService
	state *catalogState
	store *fakeBlobStore
}

func newCategoryFixture() *categoryFixture {
	state := newCatalogState()
	store := newFakeBlobStore()
	svc := NewCategoryService(
		&fakeCategoryRepo{state: state},
		&fakeProductRepo{state: state},
		store,
		"catalog-test",
		zap.NewNop(),
	)
	return &categoryFixture{svc: svc, state: state, store: store}
}

func fileUpload(name string) *FileUpload {
	return &FileUpload{Filename: name, Content: strings.NewReader("image-bytes")}
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(n int) *int       { return &n }

func TestCategoryService_Create(t *testing.T) {
	f := newCategoryFixture()
	ctx := context.Background()

	category, err := f.svc.Create(ctx, CategoryInput{
		Name:        "Summer Dresses",
		Description: strPtr("light fabrics"),
		SortOrder:   intPtr(3),
	}, fileUpload("banner.jpg"), fileUpload("icon.png"))
	require.NoError(t, err)

	assert.Equal(t, "summer-dresses", category.Slug)
	assert.Equal(t, "light fabrics", category.Description)
	assert.Equal(t, 3, category.SortOrder)
	assert.True(t, category.IsActive)
	assert.NotEmpty(t, category.BannerImage.PublicID)
	assert.NotEmpty(t, category.Icon.PublicID)
	assert.Equal(t, 2, f.store.uploads)

	stored, err := f.svc.GetBySlug(ctx, "summer-dresses")
	require.NoError(t, err)
	assert.Equal(t, category.ID, stored.ID)
}

func TestCategoryService_CreateRequiresName(t *testing.T) {
	f := newCategoryFixture()

	_, err := f.svc.Create(context.Background(), CategoryInput{}, nil, nil)
	assert.True(t, IsKind(err, KindMalformedInput))
	assert.Empty(t, f.state.categories)
}

func TestCategoryService_CreateCleansUpBlobsOnIconFailure(t *testing.T) {
	state := newCatalogState()
	store := &failAfterFirstStore{inner: newFakeBlobStore()}
	svc := NewCategoryService(
		&fakeCategoryRepo{state: state},
		&fakeProductRepo{state: state},
		store,
		"catalog-test",
		zap.NewNop(),
	)

	_, err := svc.Create(context.Background(), CategoryInput{Name: "Hats"},
		fileUpload("banner.jpg"), fileUpload("icon.png"))
	assert.True(t, IsKind(err, KindUploadFailed))
	assert.Empty(t, state.categories)
	assert.Empty(t, store.inner.objects, "banner blob must be removed when the icon upload fails")
}

func TestCategoryService_UpdateReplacesBanner(t *testing.T) {
	f := newCategoryFixture()
	ctx := context.Background()

	category, err := f.svc.Create(ctx, CategoryInput{Name: "Shoes"}, fileUpload("old.jpg"), nil)
	require.NoError(t, err)
	oldBanner := category.BannerImage.PublicID

	updated, err := f.svc.Update(ctx, category.ID, CategoryInput{}, fileUpload("new.jpg"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, oldBanner, updated.BannerImage.PublicID)
	assert.Contains(t, f.store.deleted, oldBanner, "replaced banner blob is deleted after the update lands")
	assert.True(t, f.store.objects[updated.BannerImage.PublicID])
}

func TestCategoryService_UpdatePartialFields(t *testing.T) {
	f := newCategoryFixture()
	ctx := context.Background()

	category, err := f.svc.Create(ctx, CategoryInput{
		Name:        "Coats",
		Description: strPtr("winter wear"),
	}, nil, nil)
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, category.ID, CategoryInput{IsActive: boolPtr(false)}, nil, nil)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "winter wear", updated.Description)
	assert.Equal(t, "coats", updated.Slug)

	renamed, err := f.svc.Update(ctx, category.ID, CategoryInput{Name: "Winter Coats"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "winter-coats", renamed.Slug)
}

func TestCategoryService_UpdateNotFound(t *testing.T) {
	f := newCategoryFixture()

	_, err := f.svc.Update(context.Background(), uuid.New(), CategoryInput{Name: "Ghost"}, nil, nil)
	assert.True(t, IsKind(err, KindCategoryNotFound))
}

func TestCategoryService_DeleteBlockedWhileInUse(t *testing.T) {
	f := newCategoryFixture()
	ctx := context.Background()

	category, err := f.svc.Create(ctx, CategoryInput{Name: "Jeans"}, nil, nil)
	require.NoError(t, err)

	productID := uuid.New()
	f.state.products[productID] = &domain.Product{
		ID:         productID,
		Name:       "Slim Jeans",
		Slug:       "slim-jeans",
		CategoryID: category.ID,
	}

	err = f.svc.Delete(ctx, category.ID)
	assert.True(t, IsKind(err, KindCategoryInUse))

	_, err = f.svc.GetByID(ctx, category.ID)
	assert.NoError(t, err, "blocked delete must leave the category in place")
}

func TestCategoryService_DeleteRemovesBlobs(t *testing.T) {
	f := newCategoryFixture()
	ctx := context.Background()

	category, err := f.svc.Create(ctx, CategoryInput{Name: "Bags"}, fileUpload("banner.jpg"), fileUpload("icon.png"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, category.ID))
	assert.Empty(t, f.store.objects, "deleting a category purges its image blobs")

	err = f.svc.Delete(ctx, category.ID)
	assert.True(t, IsKind(err, KindCategoryNotFound))
}
