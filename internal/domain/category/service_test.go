package category

import (
	"context"
	"strings"
	"testing"

	"github.com/example/ec-shop-core/internal/authz"
	"github.com/example/ec-shop-core/internal/domain/product"
	"github.com/example/ec-shop-core/internal/event"
	"github.com/example/ec-shop-core/internal/infrastructure/store/mocks"
	"github.com/example/ec-shop-core/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin    = &model.Principal{UserID: "admin-1", Role: model.RoleAdmin}
	staff    = &model.Principal{UserID: "staff-1", Role: model.RoleStaff}
	customer = &model.Principal{UserID: "customer-1", Role: model.RoleCustomer}
)

type testEnv struct {
	service  *Service
	products *product.Service
	store    *mocks.MockStore
	events   *event.Recorder
}

func newTestCategoryService() *testEnv {
	st := mocks.NewMockStore()
	rec := &event.Recorder{}
	engine := authz.NewEngine()
	return &testEnv{
		service:  NewService(st, engine, event.NewEmitter(rec)),
		products: product.NewService(st, engine, event.NewEmitter(nil)),
		store:    st,
		events:   rec,
	}
}

func (e *testEnv) seedProduct(t *testing.T, name string) *model.Product {
	t.Helper()
	p, err := e.products.Create(context.Background(), admin, product.Input{Name: name, Price: decimal.NewFromInt(10)})
	require.NoError(t, err)
	return p
}

// ============================================
// Slug Generation Tests
// ============================================

func TestGenerateSlug_Various(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		expectedSlug string
	}{
		{"simple name", "Electronics", "electronics"},
		{"with spaces", "Home & Garden", "home-garden"},
		{"with underscores", "Sports_Equipment", "sports-equipment"},
		{"multiple spaces", "Men's   Clothing", "mens-clothing"},
		{"with numbers", "Category 123", "category-123"},
		{"special characters", "Books & Movies!", "books-movies"},
		{"leading/trailing spaces", "  Toys  ", "toys"},
		{"unicode characters", "日本語", ""},
		{"mixed unicode and ascii", "カテゴリー Category", "category"},
		{"multiple hyphens", "Multi---Hyphen", "multi-hyphen"},
		{"uppercase", "UPPERCASE", "uppercase"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedSlug, generateSlug(tt.input))
		})
	}
}

// ============================================
// Create Category Tests
// ============================================

func TestService_Create_ValidCategory(t *testing.T) {
	env := newTestCategoryService()
	ctx := context.Background()
	p1 := env.seedProduct(t, "Phone")
	p2 := env.seedProduct(t, "Tablet")

	c, err := env.service.Create(ctx, admin, Input{
		Name:        " Electronics ",
		Slug:        "electronics",
		Description: "Electronic devices",
		ProductIDs:  []string{p2.ID, p1.ID, p2.ID},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Electronics", c.Name)
	assert.Equal(t, "electronics", c.Slug)
	assert.ElementsMatch(t, []string{p1.ID, p2.ID}, c.ProductIDs)

	got, err := env.service.Get(ctx, customer, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Slug, got.Slug)
	assert.Len(t, got.ProductIDs, 2)

	assert.Equal(t, []string{EventCategoryCreated}, env.events.Types())
	var data CategoryCreated
	require.NoError(t, env.events.Events()[0].Decode(&data))
	assert.Equal(t, c.ID, data.CategoryID)
	assert.Len(t, data.ProductIDs, 2)
}

func TestService_Create_AutoGenerateSlug(t *testing.T) {
	env := newTestCategoryService()

	c, err := env.service.Create(context.Background(), admin, Input{Name: "Home & Garden"})

	require.NoError(t, err)
	assert.Equal(t, "home-garden", c.Slug)
	assert.Empty(t, c.ProductIDs)
}

func TestService_Create_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   Input
		wantErr error
	}{
		{name: "empty name", input: Input{Name: "  ", Slug: "slug"}, wantErr: ErrInvalidName},
		{name: "name too long", input: Input{Name: strings.Repeat("x", MaxNameLength+1)}, wantErr: ErrInvalidName},
		{name: "invalid slug", input: Input{Name: "Name", Slug: "Invalid Slug!"}, wantErr: ErrInvalidSlug},
		{name: "slug too long", input: Input{Name: "Name", Slug: strings.Repeat("a", MaxSlugLength+1)}, wantErr: ErrInvalidSlug},
		{name: "name yields no slug", input: Input{Name: "日本語"}, wantErr: ErrInvalidSlug},
		{name: "unknown product", input: Input{Name: "Name", ProductIDs: []string{"missing"}}, wantErr: product.ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestCategoryService()

			c, err := env.service.Create(context.Background(), admin, tt.input)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, c)
			assert.Empty(t, env.events.Types())

			all, err := env.service.List(context.Background(), admin)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestService_Create_DuplicateSlug(t *testing.T) {
	env := newTestCategoryService()
	ctx := context.Background()

	_, err := env.service.Create(ctx, admin, Input{Name: "Books"})
	require.NoError(t, err)

	_, err = env.service.Create(ctx, admin, Input{Name: "More Books", Slug: "books"})
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestService_WritesRequireAdmin(t *testing.T) {
	tests := []struct {
		name      string
		principal *model.Principal
		wantErr   error
	}{
		{name: "anonymous", principal: nil, wantErr: authz.ErrUnauthenticated},
		{name: "customer", principal: customer, wantErr: authz.ErrForbidden},
		{name: "staff", principal: staff, wantErr: authz.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestCategoryService()
			ctx := context.Background()
			existing, err := env.service.Create(ctx, admin, Input{Name: "Existing"})
			require.NoError(t, err)

			_, err = env.service.Create(ctx, tt.principal, Input{Name: "New"})
			assert.ErrorIs(t, err, tt.wantErr)
			_, err = env.service.Update(ctx, tt.principal, existing.ID, Input{Name: "Renamed"})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, env.service.Delete(ctx, tt.principal, existing.ID), tt.wantErr)
		})
	}
}

// ============================================
// Update Category Tests
// ============================================

func TestService_Update_ReplacesProducts(t *testing.T) {
	env := newTestCategoryService()
	ctx := context.Background()
	p1 := env.seedProduct(t, "Phone")
	p2 := env.seedProduct(t, "Tablet")

	c, err := env.service.Create(ctx, admin, Input{Name: "Electronics", ProductIDs: []string{p1.ID}})
	require.NoError(t, err)

	updated, err := env.service.Update(ctx, admin, c.ID, Input{Name: "Devices", ProductIDs: []string{p2.ID}})
	require.NoError(t, err)
	assert.Equal(t, "devices", updated.Slug)
	assert.Equal(t, []string{p2.ID}, updated.ProductIDs)

	products, err := env.service.Products(ctx, customer, c.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, p2.ID, products[0].ID)

	assert.Equal(t, []string{EventCategoryCreated, EventCategoryUpdated}, env.events.Types())
}

func TestService_Update_Errors(t *testing.T) {
	env := newTestCategoryService()
	ctx := context.Background()

	_, err := env.service.Update(ctx, admin, "missing", Input{Name: "Name"})
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	a, err := env.service.Create(ctx, admin, Input{Name: "Alpha"})
	require.NoError(t, err)
	_, err = env.service.Create(ctx, admin, Input{Name: "Beta"})
	require.NoError(t, err)

	_, err = env.service.Update(ctx, admin, a.ID, Input{Name: "Alpha", Slug: "beta"})
	assert.ErrorIs(t, err, ErrSlugTaken)

	_, err = env.service.Update(ctx, admin, a.ID, Input{Name: "Alpha", ProductIDs: []string{"missing"}})
	assert.ErrorIs(t, err, product.ErrProductNotFound)

	got, err := env.service.Get(ctx, admin, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Slug)
}

// ============================================
// Delete and Read Tests
// ============================================

func TestService_Delete(t *testing.T) {
	env := newTestCategoryService()
	ctx := context.Background()
	p := env.seedProduct(t, "Phone")

	c, err := env.service.Create(ctx, admin, Input{Name: "Electronics", ProductIDs: []string{p.ID}})
	require.NoError(t, err)

	require.NoError(t, env.service.Delete(ctx, admin, c.ID))
	assert.ErrorIs(t, env.service.Delete(ctx, admin, c.ID), ErrCategoryNotFound)

	_, err = env.service.Get(ctx, admin, c.ID)
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	// Products outlive their categories
	_, err = env.products.Get(ctx, admin, p.ID)
	assert.NoError(t, err)
}

func TestService_ProductDeletionDropsAssignment(t *testing.T) {
	env := newTestCategoryService()
	ctx := context.Background()
	p1 := env.seedProduct(t, "Phone")
	p2 := env.seedProduct(t, "Tablet")

	c, err := env.service.Create(ctx, admin, Input{Name: "Electronics", ProductIDs: []string{p1.ID, p2.ID}})
	require.NoError(t, err)

	require.NoError(t, env.products.Delete(ctx, admin, p1.ID))

	got, err := env.service.Get(ctx, customer, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{p2.ID}, got.ProductIDs)
}

func TestService_List_SortedByName(t *testing.T) {
	env := newTestCategoryService()
	ctx := context.Background()

	for _, name := range []string{"Toys", "Books", "Music"} {
		_, err := env.service.Create(ctx, admin, Input{Name: name})
		require.NoError(t, err)
	}

	categories, err := env.service.List(ctx, customer)
	require.NoError(t, err)
	require.Len(t, categories, 3)
	assert.Equal(t, "Books", categories[0].Name)
	assert.Equal(t, "Music", categories[1].Name)
	assert.Equal(t, "Toys", categories[2].Name)

	_, err = env.service.List(ctx, nil)
	assert.ErrorIs(t, err, authz.ErrUnauthenticated)
}

func TestService_Products_UnknownCategory(t *testing.T) {
	env := newTestCategoryService()

	_, err := env.service.Products(context.Background(), customer, "missing")
	assert.ErrorIs(t, err, ErrCategoryNotFound)
}
