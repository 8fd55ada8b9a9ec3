package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-shop-core/internal/event"
	"github.com/example/ec-shop-core/internal/infrastructure/cache"
	"github.com/example/ec-shop-core/internal/infrastructure/store"
	"github.com/example/ec-shop-core/internal/infrastructure/store/storetest"
	"github.com/example/ec-shop-core/internal/model"
	"github.com/example/ec-shop-core/internal/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pgEnv struct {
	service  *Service
	store    *store.PostgresStore
	sessions *session.MemoryStore
}

// newPostgresEnv runs the cart service against a real PostgreSQL so row
// locks and unique indexes decide the races
func newPostgresEnv(t *testing.T) *pgEnv {
	t.Helper()
	db, err := store.ConnectPostgres(storetest.StartPostgres(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.RunMigrations(db, storetest.MigrationsDir))

	st := store.NewPostgresStore(db)
	sessions := session.NewMemoryStore(time.Hour)
	return &pgEnv{
		service:  NewService(st, sessions, cache.NopCache{}, event.NewEmitter(nil)),
		store:    st,
		sessions: sessions,
	}
}

func (e *pgEnv) seedProduct(t *testing.T, p string) *model.Product {
	t.Helper()
	now := time.Now().UTC()
	prod := &model.Product{ID: uuid.New().String(), Name: "Product", Price: price(p), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, e.store.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateProduct(context.Background(), prod)
	}))
	return prod
}

func (e *pgEnv) seedUser(t *testing.T) string {
	t.Helper()
	now := time.Now().UTC()
	u := &model.User{
		ID:           uuid.New().String(),
		Email:        uuid.New().String() + "@example.com",
		PasswordHash: "hash",
		Name:         "Shopper",
		Role:         model.RoleCustomer,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.store.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateUser(context.Background(), u)
	}))
	return u.ID
}

// ============================================
// PostgreSQL Concurrency Tests
// ============================================

func TestPostgres_ConcurrentCartWrites(t *testing.T) {
	env := newPostgresEnv(t)

	t.Run("adds to a new cart", func(t *testing.T) {
		ctx := context.Background()
		prod := env.seedProduct(t, "2.00")
		sess, err := env.sessions.Create(ctx)
		require.NoError(t, err)
		owner := model.SessionOwner(sess)

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := 1; i <= workers; i++ {
			wg.Add(1)
			go func(q int) {
				defer wg.Done()
				_, err := env.service.AddItem(ctx, owner, prod.ID, q)
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		c, err := env.store.GetCartByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, c.Items, 1)
		assert.Equal(t, workers*(workers+1)/2, c.Items[0].Quantity)

		cartID, err := env.sessions.CartID(ctx, sess)
		require.NoError(t, err)
		assert.Equal(t, c.ID, cartID)
	})

	t.Run("logins merge once", func(t *testing.T) {
		ctx := context.Background()
		a := env.seedProduct(t, "1.00")
		b := env.seedProduct(t, "3.00")
		userID := env.seedUser(t)
		sess, err := env.sessions.Create(ctx)
		require.NoError(t, err)

		_, err = env.service.AddItem(ctx, model.UserOwner(userID), a.ID, 1)
		require.NoError(t, err)
		_, err = env.service.AddItem(ctx, model.SessionOwner(sess), a.ID, 2)
		require.NoError(t, err)
		_, err = env.service.AddItem(ctx, model.SessionOwner(sess), b.ID, 4)
		require.NoError(t, err)

		var wg sync.WaitGroup
		results := make([]*MergeResult, 5)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r, err := env.service.MergeOnLogin(ctx, sess, userID)
				assert.NoError(t, err)
				results[i] = r
			}(i)
		}
		wg.Wait()

		merged := 0
		for _, r := range results {
			if r != nil && r.Merged {
				merged++
			}
		}
		assert.Equal(t, 1, merged)

		c, err := env.store.GetCartByOwner(ctx, model.UserOwner(userID))
		require.NoError(t, err)
		require.Len(t, c.Items, 2)
		assert.Equal(t, 3, lineFor(c, a.ID).Quantity)
		assert.Equal(t, 4, lineFor(c, b.ID).Quantity)

		_, err = env.store.GetCartByOwner(ctx, model.SessionOwner(sess))
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("adds race a merge", func(t *testing.T) {
		ctx := context.Background()
		a := env.seedProduct(t, "1.00")
		userID := env.seedUser(t)
		sess, err := env.sessions.Create(ctx)
		require.NoError(t, err)

		_, err = env.service.AddItem(ctx, model.SessionOwner(sess), a.ID, 5)
		require.NoError(t, err)

		const adders = 4
		var wg sync.WaitGroup
		wg.Add(adders + 1)
		go func() {
			defer wg.Done()
			_, err := env.service.MergeOnLogin(ctx, sess, userID)
			assert.NoError(t, err)
		}()
		for i := 0; i < adders; i++ {
			go func() {
				defer wg.Done()
				_, err := env.service.AddItem(ctx, model.UserOwner(userID), a.ID, 1)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		c, err := env.store.GetCartByOwner(ctx, model.UserOwner(userID))
		require.NoError(t, err)
		require.Len(t, c.Items, 1)
		assert.Equal(t, 5+adders, c.Items[0].Quantity)
	})
}
