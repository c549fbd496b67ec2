package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"misha-catalog/internal/domain"
	"misha-catalog/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Fake repositories over shared in-memory state. The fake transaction
// manager snapshots the state before the unit runs and restores it when the
// unit fails, mirroring a database rollback.
type catalogState struct {
	products   map[uuid.UUID]*domain.Product
	categories map[uuid.UUID]*domain.Category
	colors     map[uuid.UUID]*domain.Color
}

func newCatalogState() *catalogState {
	return &catalogState{
		products:   map[uuid.UUID]*domain.Product{},
		categories: map[uuid.UUID]*domain.Category{},
		colors:     map[uuid.UUID]*domain.Color{},
	}
}

func (s *catalogState) snapshot() *catalogState {
	c := newCatalogState()
	for id, p := range s.products {
		c.products[id] = cloneProduct(p)
	}
	for id, cat := range s.categories {
		copied := *cat
		c.categories[id] = &copied
	}
	for id, col := range s.colors {
		copied := *col
		c.colors[id] = &copied
	}
	return c
}

func (s *catalogState) restore(from *catalogState) {
	s.products = from.products
	s.categories = from.categories
	s.colors = from.colors
}

func cloneProduct(p *domain.Product) *domain.Product {
	raw, _ := json.Marshal(p)
	var c domain.Product
	_ = json.Unmarshal(raw, &c)
	return &c
}

type fakeTxManager struct {
	state *catalogState
}

func (m *fakeTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	before := m.state.snapshot()
	if err := fn(ctx); err != nil {
		m.state.restore(before)
		return err
	}
	return nil
}

type fakeProductRepo struct {
	state *catalogState
}

func (r *fakeProductRepo) Insert(ctx context.Context, product *domain.Product) error {
	for _, p := range r.state.products {
		if p.Slug == product.Slug {
			return repository.ErrProductSlugTaken
		}
	}
	r.state.products[product.ID] = cloneProduct(product)
	return nil
}

func (r *fakeProductRepo) Replace(ctx context.Context, product *domain.Product) error {
	stored, ok := r.state.products[product.ID]
	if !ok {
		return repository.ErrProductNotFound
	}
	if stored.Revision != product.Revision {
		return repository.ErrRevisionConflict
	}
	product.Revision++
	r.state.products[product.ID] = cloneProduct(product)
	return nil
}

func (r *fakeProductRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.state.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(r.state.products, id)
	return nil
}

func (r *fakeProductRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p, ok := r.state.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (r *fakeProductRepo) FindBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	for _, p := range r.state.products {
		if p.Slug == slug {
			return cloneProduct(p), nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (r *fakeProductRepo) SlugExists(ctx context.Context, slug string, excludeID uuid.UUID) (bool, error) {
	for _, p := range r.state.products {
		if p.Slug == slug && p.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeProductRepo) List(ctx context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error) {
	out := []*domain.Product{}
	for _, p := range r.state.products {
		out = append(out, cloneProduct(p))
	}
	return out, len(out), nil
}

func (r *fakeProductRepo) ExistsByCategory(ctx context.Context, categoryID uuid.UUID) (bool, error) {
	for _, p := range r.state.products {
		if p.CategoryID == categoryID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeProductRepo) ExistsByColor(ctx context.Context, colorID uuid.UUID) (bool, error) {
	for _, p := range r.state.products {
		for _, v := range p.Variants {
			if v.ColorID == colorID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *fakeProductRepo) IncrementViewCount(ctx context.Context, id uuid.UUID) error {
	p, ok := r.state.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.ViewCount++
	return nil
}

func (r *fakeProductRepo) IncrementWhatsappInquiryCount(ctx context.Context, id uuid.UUID) error {
	p, ok := r.state.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.WhatsappInquiryCount++
	return nil
}

type fakeCategoryRepo struct {
	state *catalogState
}

func (r *fakeCategoryRepo) Create(ctx context.Context, category *domain.Category) error {
	copied := *category
	r.state.categories[category.ID] = &copied
	return nil
}

func (r *fakeCategoryRepo) Update(ctx context.Context, category *domain.Category) error {
	if _, ok := r.state.categories[category.ID]; !ok {
		return repository.ErrCategoryNotFound
	}
	copied := *category
	r.state.categories[category.ID] = &copied
	return nil
}

func (r *fakeCategoryRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.state.categories[id]; !ok {
		return repository.ErrCategoryNotFound
	}
	delete(r.state.categories, id)
	return nil
}

func (r *fakeCategoryRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	c, ok := r.state.categories[id]
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *fakeCategoryRepo) FindBySlug(ctx context.Context, slug string) (*domain.Category, error) {
	for _, c := range r.state.categories {
		if c.Slug == slug {
			copied := *c
			return &copied, nil
		}
	}
	return nil, repository.ErrCategoryNotFound
}

func (r *fakeCategoryRepo) List(ctx context.Context, search string, page, pageSize int) ([]*domain.Category, int, error) {
	out := []*domain.Category{}
	for _, c := range r.state.categories {
		copied := *c
		out = append(out, &copied)
	}
	return out, len(out), nil
}

func (r *fakeCategoryRepo) IncrementProductCount(ctx context.Context, id uuid.UUID, delta int) error {
	c, ok := r.state.categories[id]
	if !ok {
		return repository.ErrCategoryNotFound
	}
	c.ProductCount += int64(delta)
	return nil
}

type fakeColorRepo struct {
	state         *catalogState
	failIncrement bool
}

func (r *fakeColorRepo) Create(ctx context.Context, color *domain.Color) error {
	copied := *color
	r.state.colors[color.ID] = &copied
	return nil
}

func (r *fakeColorRepo) Update(ctx context.Context, color *domain.Color) error {
	if _, ok := r.state.colors[color.ID]; !ok {
		return repository.ErrColorNotFound
	}
	copied := *color
	r.state.colors[color.ID] = &copied
	return nil
}

func (r *fakeColorRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.state.colors[id]; !ok {
		return repository.ErrColorNotFound
	}
	delete(r.state.colors, id)
	return nil
}

func (r *fakeColorRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Color, error) {
	c, ok := r.state.colors[id]
	if !ok {
		return nil, repository.ErrColorNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *fakeColorRepo) FindManyByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Color, error) {
	out := []*domain.Color{}
	for _, id := range ids {
		if c, ok := r.state.colors[id]; ok {
			copied := *c
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeColorRepo) List(ctx context.Context, search string, page, pageSize int) ([]*domain.Color, int, error) {
	out := []*domain.Color{}
	for _, c := range r.state.colors {
		copied := *c
		out = append(out, &copied)
	}
	return out, len(out), nil
}

func (r *fakeColorRepo) IncrementProductCounts(ctx context.Context, ids []uuid.UUID, delta int) error {
	if r.failIncrement && delta != 0 && len(ids) > 0 {
		return errors.New("injected counter failure")
	}
	for _, id := range ids {
		c, ok := r.state.colors[id]
		if !ok {
			return repository.ErrColorNotFound
		}
		c.ProductCount += int64(delta)
	}
	return nil
}

type productFixture struct {
	state    *catalogState
	products *fakeProductRepo
	colors   *fakeColorRepo
	store    *fakeBlobStore
	service  ProductService

	categoryID uuid.UUID
	colorA     uuid.UUID
	colorB     uuid.UUID
}

func newProductFixture(t *testing.T) *productFixture {
	t.Helper()
	state := newCatalogState()
	products := &fakeProductRepo{state: state}
	categories := &fakeCategoryRepo{state: state}
	colors := &fakeColorRepo{state: state}
	store := newFakeBlobStore()
	tx := &fakeTxManager{state: state}
	reconciler := NewImageReconciler(store, "catalog-test", zap.NewNop())

	f := &productFixture{
		state:      state,
		products:   products,
		colors:     colors,
		store:      store,
		categoryID: uuid.New(),
		colorA:     uuid.New(),
		colorB:     uuid.New(),
	}

	now := time.Now()
	state.categories[f.categoryID] = &domain.Category{
		ID: f.categoryID, Name: "Dresses", Slug: "dresses", IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}
	for _, id := range []uuid.UUID{f.colorA, f.colorB} {
		state.colors[id] = &domain.Color{
			ID: id, Name: "color-" + id.String()[:8], Hex: "#000000",
			CreatedAt: now, UpdatedAt: now,
		}
	}

	f.service = NewProductService(products, categories, colors, tx, reconciler, store, zap.NewNop())
	return f
}

func (f *productFixture) createInput(colorIDs ...uuid.UUID) ProductInput {
	variants := make([]any, len(colorIDs))
	for i, id := range colorIDs {
		variants[i] = validVariantMap(id)
	}
	return ProductInput{
		Name:     "Summer Dress",
		Category: f.categoryID.String(),
		Variants: variants,
	}
}

func TestProductService_Create(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.service.Create(ctx, f.createInput(f.colorA, f.colorB, f.colorA), nil)
	require.NoError(t, err)

	stored, err := f.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "summer-dress", stored.Slug)
	assert.Len(t, stored.Variants, 3)

	assert.Equal(t, int64(1), f.state.categories[f.categoryID].ProductCount)
	assert.Equal(t, int64(1), f.state.colors[f.colorA].ProductCount, "duplicate colors count once")
	assert.Equal(t, int64(1), f.state.colors[f.colorB].ProductCount)
}

func TestProductService_CreateRejectsUnknownReferences(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	in := f.createInput(f.colorA)
	in.Category = uuid.New().String()
	_, err := f.service.Create(ctx, in, nil)
	assert.Equal(t, KindInvalidCategory, KindOf(err))

	_, err = f.service.Create(ctx, f.createInput(uuid.New()), nil)
	assert.Equal(t, KindInvalidColor, KindOf(err))

	assert.Empty(t, f.state.products, "nothing persisted on rejected input")
}

func TestProductService_CreateSlugConflict(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	_, err := f.service.Create(ctx, f.createInput(f.colorA), nil)
	require.NoError(t, err)

	_, err = f.service.Create(ctx, f.createInput(f.colorB), nil)
	assert.Equal(t, KindSlugConflict, KindOf(err))
	assert.Len(t, f.state.products, 1)
	assert.Equal(t, int64(1), f.state.categories[f.categoryID].ProductCount)
}

// A failure in the middle of the transactional unit leaves no partial state
// behind, and compensating deletes remove blobs uploaded for the request.
func TestProductService_CreateIsAtomic(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()
	f.colors.failIncrement = true

	_, err := f.service.Create(ctx, f.createInput(f.colorA), []ImageUpload{upload(0, "a.jpg")})
	require.Error(t, err)
	assert.Equal(t, KindCreateFailed, KindOf(err))

	assert.Empty(t, f.state.products)
	assert.Equal(t, int64(0), f.state.categories[f.categoryID].ProductCount)
	assert.Equal(t, int64(0), f.state.colors[f.colorA].ProductCount)
	assert.Len(t, f.store.deleted, 1, "uploaded blob is compensating-deleted")
	assert.Empty(t, f.store.objects)
}

func TestProductService_UpdateAdjustsColorCounters(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.service.Create(ctx, f.createInput(f.colorA), nil)
	require.NoError(t, err)

	// swap colorA for colorB
	in := ProductInput{Variants: []any{validVariantMap(f.colorB)}}
	_, err = f.service.Update(ctx, product.ID, in, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(0), f.state.colors[f.colorA].ProductCount)
	assert.Equal(t, int64(1), f.state.colors[f.colorB].ProductCount)
	assert.Equal(t, int64(1), f.state.categories[f.categoryID].ProductCount, "category untouched")
}

func TestProductService_UpdateMovesCategory(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	otherCategory := uuid.New()
	now := time.Now()
	f.state.categories[otherCategory] = &domain.Category{
		ID: otherCategory, Name: "Shoes", Slug: "shoes", IsActive: true,
		CreatedAt: now, UpdatedAt: now,
	}

	product, err := f.service.Create(ctx, f.createInput(f.colorA), nil)
	require.NoError(t, err)

	_, err = f.service.Update(ctx, product.ID, ProductInput{Category: otherCategory.String()}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(0), f.state.categories[f.categoryID].ProductCount)
	assert.Equal(t, int64(1), f.state.categories[otherCategory].ProductCount)
}

func TestProductService_UpdateOmittedVariantsKeepImages(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.service.Create(ctx, f.createInput(f.colorA), []ImageUpload{upload(0, "a.jpg")})
	require.NoError(t, err)
	require.Len(t, product.Variants[0].Images, 1)

	updated, err := f.service.Update(ctx, product.ID, ProductInput{Name: "Renamed Dress"}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "renamed-dress", updated.Slug)
	require.Len(t, updated.Variants, 1)
	assert.Equal(t, product.Variants[0].Images, updated.Variants[0].Images)
	assert.Equal(t, int64(1), f.state.colors[f.colorA].ProductCount)
}

func TestProductService_UpdateRevisionConflict(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.service.Create(ctx, f.createInput(f.colorA), nil)
	require.NoError(t, err)

	// concurrent writer bumps the stored revision
	f.state.products[product.ID].Revision++

	_, err = f.service.Update(ctx, product.ID, ProductInput{Name: "Too Late"}, nil, nil)
	assert.Equal(t, KindRevisionConflict, KindOf(err))

	stored, err := f.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "summer-dress", stored.Slug, "conflicting write is discarded")
}

func TestProductService_UpdateIsAtomic(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.service.Create(ctx, f.createInput(f.colorA), nil)
	require.NoError(t, err)

	f.colors.failIncrement = true
	_, err = f.service.Update(ctx, product.ID, ProductInput{Variants: []any{validVariantMap(f.colorB)}}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, KindUpdateFailed, KindOf(err))

	assert.Equal(t, int64(1), f.state.colors[f.colorA].ProductCount)
	assert.Equal(t, int64(0), f.state.colors[f.colorB].ProductCount)
	stored, err := f.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, f.colorA, stored.Variants[0].ColorID)
}

func TestProductService_UpdateNotFound(t *testing.T) {
	f := newProductFixture(t)
	_, err := f.service.Update(context.Background(), uuid.New(), ProductInput{Name: "X"}, nil, nil)
	assert.Equal(t, KindProductNotFound, KindOf(err))
}

func TestProductService_Delete(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.service.Create(ctx, f.createInput(f.colorA, f.colorB), []ImageUpload{upload(0, "a.jpg")})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(ctx, product.ID))

	assert.Empty(t, f.state.products)
	assert.Equal(t, int64(0), f.state.categories[f.categoryID].ProductCount)
	assert.Equal(t, int64(0), f.state.colors[f.colorA].ProductCount)
	assert.Equal(t, int64(0), f.state.colors[f.colorB].ProductCount)
	assert.Empty(t, f.store.objects, "variant blobs are purged")

	assert.Equal(t, KindProductNotFound, KindOf(f.service.Delete(ctx, product.ID)))
}

func TestProductService_GetByIDCountsViews(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.service.Create(ctx, f.createInput(f.colorA), nil)
	require.NoError(t, err)

	got, err := f.service.GetByID(ctx, product.ID, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ViewCount)

	got, err = f.service.GetByID(ctx, product.ID, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ViewCount, "admin fetches do not count")
}

func TestProductService_RecordWhatsappInquiry(t *testing.T) {
	f := newProductFixture(t)
	ctx := context.Background()

	product, err := f.service.Create(ctx, f.createInput(f.colorA), nil)
	require.NoError(t, err)

	require.NoError(t, f.service.RecordWhatsappInquiry(ctx, product.ID))
	require.NoError(t, f.service.RecordWhatsappInquiry(ctx, product.ID))

	stored, err := f.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.WhatsappInquiryCount)

	err = f.service.RecordWhatsappInquiry(ctx, uuid.New())
	assert.Equal(t, KindProductNotFound, KindOf(err))
}
