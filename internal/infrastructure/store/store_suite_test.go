package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-shop-core/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite exercises the Store contract against any implementation
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("cart get or create", func(t *testing.T) { testCartCreate(t, newStore(t)) })
	t.Run("cart item upsert", func(t *testing.T) { testCartItemUpsert(t, newStore(t)) })
	t.Run("cart item move and increment", func(t *testing.T) { testCartItemMove(t, newStore(t)) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("orders", func(t *testing.T) { testOrders(t, newStore(t)) })
	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("product delete", func(t *testing.T) { testProductDelete(t, newStore(t)) })
	t.Run("categories", func(t *testing.T) { testCategories(t, newStore(t)) })
	t.Run("line quantity limit", func(t *testing.T) { testQuantityLimit(t, newStore(t)) })
	t.Run("concurrent adds to new cart", func(t *testing.T) { testConcurrentAddToNewCart(t, newStore(t)) })
	t.Run("concurrent merges", func(t *testing.T) { testConcurrentMerge(t, newStore(t)) })
}

func seedProduct(t *testing.T, s Store, price string) *model.Product {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	p := &model.Product{
		ID:          uuid.New().String(),
		Name:        "Widget",
		Description: "A widget",
		Price:       decimal.RequireFromString(price),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.WithinTx(context.Background(), func(tx Tx) error {
		return tx.CreateProduct(context.Background(), p)
	}))
	return p
}

func seedUser(t *testing.T, s Store, email string) *model.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	u := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: "hash",
		Name:         "Test User",
		Role:         model.RoleCustomer,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.WithinTx(context.Background(), func(tx Tx) error {
		return tx.CreateUser(context.Background(), u)
	}))
	return u
}

func createCart(t *testing.T, s Store, owner model.OwnerKey) *model.Cart {
	t.Helper()
	var cart *model.Cart
	require.NoError(t, s.WithinTx(context.Background(), func(tx Tx) error {
		var err error
		cart, err = tx.CreateCart(context.Background(), owner)
		return err
	}))
	return cart
}

func testCartCreate(t *testing.T, s Store) {
	ctx := context.Background()
	user := seedUser(t, s, "cart@example.com")
	owner := model.UserOwner(user.ID)

	_, err := s.GetCartByOwner(ctx, owner)
	assert.ErrorIs(t, err, ErrNotFound)

	cart := createCart(t, s, owner)
	assert.Equal(t, user.ID, cart.UserID)
	assert.Empty(t, cart.Items)

	// A second cart for the same owner is a conflict
	err = s.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.CreateCart(ctx, owner)
		return err
	})
	assert.ErrorIs(t, err, ErrConflict)

	err = s.WithinTx(ctx, func(tx Tx) error {
		locked, err := tx.LockCart(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, cart.ID, locked.ID)
		return nil
	})
	require.NoError(t, err)

	// Session and user namespaces are disjoint
	anon := createCart(t, s, model.SessionOwner(uuid.New().String()))
	assert.NotEqual(t, cart.ID, anon.ID)
	assert.Empty(t, anon.UserID)
}

func testCartItemUpsert(t *testing.T, s Store) {
	ctx := context.Background()
	product := seedProduct(t, s, "10.00")
	owner := model.SessionOwner(uuid.New().String())
	cart := createCart(t, s, owner)

	err := s.WithinTx(ctx, func(tx Tx) error {
		item, err := tx.UpsertCartItem(ctx, cart.ID, product.ID, 2, decimal.RequireFromString("10.00"))
		require.NoError(t, err)
		assert.Equal(t, 2, item.Quantity)

		item, err = tx.UpsertCartItem(ctx, cart.ID, product.ID, 3, decimal.RequireFromString("12.50"))
		require.NoError(t, err)
		assert.Equal(t, 5, item.Quantity)
		assert.True(t, decimal.RequireFromString("12.50").Equal(item.Price))
		return nil
	})
	require.NoError(t, err)

	got, err := s.GetCartByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 5, got.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("62.50").Equal(got.Total()))

	err = s.WithinTx(ctx, func(tx Tx) error {
		return tx.DeleteCartItem(ctx, cart.ID, product.ID)
	})
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(tx Tx) error {
		return tx.DeleteCartItem(ctx, cart.ID, product.ID)
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func testCartItemMove(t *testing.T, s Store) {
	ctx := context.Background()
	p1 := seedProduct(t, s, "5.00")
	p2 := seedProduct(t, s, "7.00")
	user := seedUser(t, s, "move@example.com")

	anon := createCart(t, s, model.SessionOwner(uuid.New().String()))
	userCart := createCart(t, s, model.UserOwner(user.ID))

	err := s.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.UpsertCartItem(ctx, anon.ID, p1.ID, 1, p1.Price); err != nil {
			return err
		}
		if _, err := tx.UpsertCartItem(ctx, anon.ID, p2.ID, 2, p2.Price); err != nil {
			return err
		}
		_, err := tx.UpsertCartItem(ctx, userCart.ID, p1.ID, 4, decimal.RequireFromString("4.00"))
		return err
	})
	require.NoError(t, err)

	err = s.WithinTx(ctx, func(tx Tx) error {
		items, err := tx.ListCartItems(ctx, anon.ID)
		require.NoError(t, err)
		require.Len(t, items, 2)

		for _, item := range items {
			if item.ProductID == p1.ID {
				continue
			}
			require.NoError(t, tx.MoveCartItem(ctx, item.ID, userCart.ID))
		}

		var target string
		userItems, err := tx.ListCartItems(ctx, userCart.ID)
		require.NoError(t, err)
		for _, item := range userItems {
			if item.ProductID == p1.ID {
				target = item.ID
			}
		}
		incremented, err := tx.IncrementCartItem(ctx, target, 1)
		require.NoError(t, err)
		assert.Equal(t, 5, incremented.Quantity)
		// Increment never re-stamps the price
		assert.True(t, decimal.RequireFromString("4.00").Equal(incremented.Price))

		return tx.DeleteCart(ctx, anon.ID)
	})
	require.NoError(t, err)

	got, err := s.GetCartByOwner(ctx, model.UserOwner(user.ID))
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.ElementsMatch(t, []string{p1.ID, p2.ID}, []string{got.Items[0].ProductID, got.Items[1].ProductID})
}

func testRollback(t *testing.T, s Store) {
	ctx := context.Background()
	owner := model.SessionOwner(uuid.New().String())

	err := s.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.CreateCart(ctx, owner); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = s.GetCartByOwner(ctx, owner)
	assert.ErrorIs(t, err, ErrNotFound)
}

func testOrders(t *testing.T, s Store) {
	ctx := context.Background()
	alice := seedUser(t, s, "alice@example.com")
	bob := seedUser(t, s, "bob@example.com")
	product := seedProduct(t, s, "3.00")

	newOrder := func(userID string, createdAt time.Time) *model.Order {
		o := &model.Order{
			ID:        uuid.New().String(),
			UserID:    userID,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		}
		o.Items = []model.OrderItem{{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			ProductID: product.ID,
			Quantity:  2,
			Price:     product.Price,
		}}
		o.RecalculateTotal()
		require.NoError(t, s.WithinTx(ctx, func(tx Tx) error { return tx.CreateOrder(ctx, o) }))
		return o
	}

	base := time.Now().UTC().Truncate(time.Millisecond)
	first := newOrder(alice.ID, base)
	second := newOrder(alice.ID, base.Add(time.Second))
	newOrder(bob.ID, base.Add(2*time.Second))

	all, err := s.ListOrders(ctx, OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := s.ListOrders(ctx, OrderFilter{UserID: alice.ID})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)
	require.Len(t, mine[1].Items, 1)

	err = s.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(ctx, first.ID)
		if err != nil {
			return err
		}
		o.Items[0].Quantity = 5
		o.RecalculateTotal()
		o.UpdatedAt = time.Now().UTC()
		return tx.UpdateOrder(ctx, o)
	})
	require.NoError(t, err)

	got, err := s.GetOrder(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("15.00").Equal(got.Total))

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error { return tx.DeleteOrder(ctx, first.ID) }))
	_, err = s.GetOrder(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func testUsers(t *testing.T, s Store) {
	ctx := context.Background()
	u := seedUser(t, s, "Mixed@Example.com")

	got, err := s.GetUserByEmail(ctx, "mixed@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, model.RoleCustomer, got.Role)

	dup := *u
	dup.ID = uuid.New().String()
	dup.Email = "mixed@example.com"
	err = s.WithinTx(ctx, func(tx Tx) error { return tx.CreateUser(ctx, &dup) })
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = s.GetUser(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func testProductDelete(t *testing.T, s Store) {
	ctx := context.Background()
	product := seedProduct(t, s, "1.00")
	owner := model.SessionOwner(uuid.New().String())
	cart := createCart(t, s, owner)

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.UpsertCartItem(ctx, cart.ID, product.ID, 1, product.Price)
		return err
	}))
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error { return tx.DeleteProduct(ctx, product.ID) }))

	got, err := s.GetCartByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, got.Items)

	_, err = s.GetProduct(ctx, product.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Ordered products stay, and so do the orders
	ordered := seedProduct(t, s, "2.00")
	buyer := seedUser(t, s, "buyer@example.com")
	o := &model.Order{ID: uuid.New().String(), UserID: buyer.ID, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	o.Items = []model.OrderItem{{ID: uuid.New().String(), OrderID: o.ID, ProductID: ordered.ID, Quantity: 3, Price: ordered.Price}}
	o.RecalculateTotal()
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error { return tx.CreateOrder(ctx, o) }))

	err = s.WithinTx(ctx, func(tx Tx) error { return tx.DeleteProduct(ctx, ordered.ID) })
	assert.ErrorIs(t, err, ErrReferenced)

	_, err = s.GetProduct(ctx, ordered.ID)
	assert.NoError(t, err)
	gotOrder, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, gotOrder.Items, 1)
	assert.Equal(t, ordered.ID, gotOrder.Items[0].ProductID)
	assert.Equal(t, 3, gotOrder.Items[0].Quantity)
}

func newCategory(name, slug string, productIDs ...string) *model.Category {
	now := time.Now().UTC().Truncate(time.Millisecond)
	if productIDs == nil {
		productIDs = []string{}
	}
	return &model.Category{
		ID:         uuid.New().String(),
		Name:       name,
		Slug:       slug,
		ProductIDs: productIDs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func testCategories(t *testing.T, s Store) {
	ctx := context.Background()
	p1 := seedProduct(t, s, "1.00")
	p2 := seedProduct(t, s, "2.00")

	toys := newCategory("Toys", "toys", p1.ID, p2.ID)
	books := newCategory("Books", "books")
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error { return tx.CreateCategory(ctx, toys) }))
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error { return tx.CreateCategory(ctx, books) }))

	err := s.WithinTx(ctx, func(tx Tx) error { return tx.CreateCategory(ctx, newCategory("Other Toys", "toys")) })
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := s.GetCategory(ctx, toys.ID)
	require.NoError(t, err)
	assert.Equal(t, "toys", got.Slug)
	assert.ElementsMatch(t, []string{p1.ID, p2.ID}, got.ProductIDs)

	all, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, books.ID, all[0].ID)
	assert.Empty(t, all[0].ProductIDs)
	assert.Len(t, all[1].ProductIDs, 2)

	products, err := s.ListCategoryProducts(ctx, toys.ID)
	require.NoError(t, err)
	assert.Len(t, products, 2)

	// Update replaces the product set
	toys.Name = "Games"
	toys.Slug = "games"
	toys.ProductIDs = []string{p2.ID}
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error { return tx.UpdateCategory(ctx, toys) }))
	got, err = s.GetCategory(ctx, toys.ID)
	require.NoError(t, err)
	assert.Equal(t, "games", got.Slug)
	assert.Equal(t, []string{p2.ID}, got.ProductIDs)

	books.Slug = "games"
	err = s.WithinTx(ctx, func(tx Tx) error { return tx.UpdateCategory(ctx, books) })
	assert.ErrorIs(t, err, ErrDuplicate)

	// Deleting a product drops its assignments
	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error { return tx.DeleteProduct(ctx, p2.ID) }))
	got, err = s.GetCategory(ctx, toys.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ProductIDs)

	require.NoError(t, s.WithinTx(ctx, func(tx Tx) error { return tx.DeleteCategory(ctx, toys.ID) }))
	_, err = s.GetCategory(ctx, toys.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ListCategoryProducts(ctx, toys.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	err = s.WithinTx(ctx, func(tx Tx) error { return tx.DeleteCategory(ctx, toys.ID) })
	assert.ErrorIs(t, err, ErrNotFound)
	err = s.WithinTx(ctx, func(tx Tx) error { return tx.UpdateCategory(ctx, toys) })
	assert.ErrorIs(t, err, ErrNotFound)

	// Products outlive their categories
	_, err = s.GetProduct(ctx, p1.ID)
	assert.NoError(t, err)
}

func testQuantityLimit(t *testing.T, s Store) {
	ctx := context.Background()
	product := seedProduct(t, s, "1.00")
	cart := createCart(t, s, model.SessionOwner(uuid.New().String()))

	upsert := func(quantity int) (*model.CartItem, error) {
		var item *model.CartItem
		err := s.WithinTx(ctx, func(tx Tx) error {
			var err error
			item, err = tx.UpsertCartItem(ctx, cart.ID, product.ID, quantity, product.Price)
			return err
		})
		return item, err
	}

	_, err := upsert(model.MaxLineQuantity + 1)
	assert.ErrorIs(t, err, ErrQuantityLimit)

	item, err := upsert(model.MaxLineQuantity - 1)
	require.NoError(t, err)

	_, err = upsert(2)
	assert.ErrorIs(t, err, ErrQuantityLimit)

	err = s.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.IncrementCartItem(ctx, item.ID, 2)
		return err
	})
	assert.ErrorIs(t, err, ErrQuantityLimit)

	item, err = upsert(1)
	require.NoError(t, err)
	assert.Equal(t, model.MaxLineQuantity, item.Quantity)
}

// addToOwner is the add-item transaction: lock or create the owner's cart,
// then upsert the line
func addToOwner(ctx context.Context, s Store, owner model.OwnerKey, product *model.Product, quantity int) error {
	return RetryOnConflict(ctx, s, func(tx Tx) error {
		c, err := tx.LockCart(ctx, owner)
		if errors.Is(err, ErrNotFound) {
			c, err = tx.CreateCart(ctx, owner)
		}
		if err != nil {
			return err
		}
		_, err = tx.UpsertCartItem(ctx, c.ID, product.ID, quantity, product.Price)
		return err
	})
}

func testConcurrentAddToNewCart(t *testing.T, s Store) {
	ctx := context.Background()
	product := seedProduct(t, s, "1.00")
	owner := model.SessionOwner(uuid.New().String())

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 1; i <= workers; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			errs <- addToOwner(ctx, s, owner, product, q)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.GetCartByOwner(ctx, owner)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, workers*(workers+1)/2, got.Items[0].Quantity)
}

func testConcurrentMerge(t *testing.T, s Store) {
	ctx := context.Background()
	p1 := seedProduct(t, s, "1.00")
	p2 := seedProduct(t, s, "2.00")
	user := seedUser(t, s, "merge@example.com")
	anonOwner := model.SessionOwner(uuid.New().String())
	userOwner := model.UserOwner(user.ID)

	require.NoError(t, addToOwner(ctx, s, userOwner, p1, 2))
	require.NoError(t, addToOwner(ctx, s, anonOwner, p1, 3))
	require.NoError(t, addToOwner(ctx, s, anonOwner, p2, 1))

	// merge folds the anonymous cart into the user's and deletes it; only
	// one of the racing transactions finds the anonymous cart
	merge := func() (bool, error) {
		merged := false
		err := RetryOnConflict(ctx, s, func(tx Tx) error {
			merged = false
			anon, err := tx.LockCart(ctx, anonOwner)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			target, err := tx.LockCart(ctx, userOwner)
			if err != nil {
				return err
			}
			anonItems, err := tx.ListCartItems(ctx, anon.ID)
			if err != nil {
				return err
			}
			targetItems, err := tx.ListCartItems(ctx, target.ID)
			if err != nil {
				return err
			}
			existing := make(map[string]string, len(targetItems))
			for _, item := range targetItems {
				existing[item.ProductID] = item.ID
			}
			for _, item := range anonItems {
				if lineID, ok := existing[item.ProductID]; ok {
					if _, err := tx.IncrementCartItem(ctx, lineID, item.Quantity); err != nil {
						return err
					}
					continue
				}
				if err := tx.MoveCartItem(ctx, item.ID, target.ID); err != nil {
					return err
				}
			}
			merged = true
			return tx.DeleteCart(ctx, anon.ID)
		})
		return merged, err
	}

	const workers = 4
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		merges int
	)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			merged, err := merge()
			if merged && err == nil {
				mu.Lock()
				merges++
				mu.Unlock()
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, merges)

	got, err := s.GetCartByOwner(ctx, userOwner)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	quantities := map[string]int{}
	for _, item := range got.Items {
		quantities[item.ProductID] = item.Quantity
	}
	assert.Equal(t, map[string]int{p1.ID: 5, p2.ID: 1}, quantities)

	_, err = s.GetCartByOwner(ctx, anonOwner)
	assert.ErrorIs(t, err, ErrNotFound)
}
