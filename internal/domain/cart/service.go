package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/ec-shop-core/internal/domain/product"
	"github.com/example/ec-shop-core/internal/event"
	"github.com/example/ec-shop-core/internal/infrastructure/cache"
	"github.com/example/ec-shop-core/internal/infrastructure/store"
	"github.com/example/ec-shop-core/internal/model"
	"github.com/example/ec-shop-core/internal/session"
	"golang.org/x/sync/singleflight"
)

const AggregateType = "Cart"

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrQuantityLimit   = fmt.Errorf("line quantity cannot exceed %d", model.MaxLineQuantity)
	ErrInvalidOwner    = errors.New("invalid cart owner")
	ErrCartNotFound    = errors.New("cart not found")
	ErrItemNotFound    = errors.New("item not in cart")
)

type Service struct {
	store    store.Store
	sessions session.Store
	cache    cache.CartCache
	events   *event.Emitter
	sfg      singleflight.Group // collapses concurrent cache misses per owner
}

func NewService(st store.Store, sessions session.Store, c cache.CartCache, events *event.Emitter) *Service {
	if c == nil {
		c = cache.NopCache{}
	}
	return &Service{
		store:    st,
		sessions: sessions,
		cache:    c,
		events:   events,
	}
}

// getOrCreate returns the owner's cart locked for the rest of tx, creating
// it if needed. A concurrent creation surfaces as store.ErrConflict.
func (s *Service) getOrCreate(ctx context.Context, tx store.Tx, owner model.OwnerKey) (*model.Cart, bool, error) {
	c, err := tx.LockCart(ctx, owner)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	c, err = tx.CreateCart(ctx, owner)
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// GetOrCreateCart returns the owner's cart with its items, creating an
// empty one if the owner has none
func (s *Service) GetOrCreateCart(ctx context.Context, owner model.OwnerKey) (*model.Cart, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}

	var (
		result  *model.Cart
		created bool
	)
	err := store.RetryOnConflict(ctx, s.store, func(tx store.Tx) error {
		c, isNew, err := s.getOrCreate(ctx, tx, owner)
		if err != nil {
			return err
		}
		if c.Items, err = tx.ListCartItems(ctx, c.ID); err != nil {
			return err
		}
		result, created = c, isNew
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get or create cart: %w", err)
	}

	if created {
		s.rememberCart(ctx, owner, result.ID)
	}
	return result, nil
}

// AddItem adds quantity of a product to the owner's cart. An existing line
// accumulates quantity; either way the line takes the product's current
// price.
func (s *Service) AddItem(ctx context.Context, owner model.OwnerKey, productID string, quantity int) (*model.CartItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if quantity > model.MaxLineQuantity {
		return nil, ErrQuantityLimit
	}
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}

	var (
		item    *model.CartItem
		created bool
	)
	err := store.RetryOnConflict(ctx, s.store, func(tx store.Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		if errors.Is(err, store.ErrNotFound) {
			return product.ErrProductNotFound
		}
		if err != nil {
			return err
		}

		c, isNew, err := s.getOrCreate(ctx, tx, owner)
		if err != nil {
			return err
		}

		item, err = tx.UpsertCartItem(ctx, c.ID, p.ID, quantity, p.Price)
		if err != nil {
			return err
		}
		created = isNew
		return nil
	})
	if errors.Is(err, product.ErrProductNotFound) {
		return nil, err
	}
	if errors.Is(err, store.ErrQuantityLimit) {
		return nil, ErrQuantityLimit
	}
	if err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}

	s.invalidate(ctx, owner)
	if created {
		s.rememberCart(ctx, owner, item.CartID)
	}
	s.events.Emit(ctx, item.CartID, AggregateType, EventItemAdded, CartItemAdded{
		CartID:       item.CartID,
		UserID:       ownerUserID(owner),
		ProductID:    item.ProductID,
		Quantity:     quantity,
		LineQuantity: item.Quantity,
		Price:        item.Price,
		AddedAt:      time.Now().UTC(),
	})
	return item, nil
}

// GetCart returns the owner's cart, or an empty cart view if the owner has
// none yet. Nothing is created.
func (s *Service) GetCart(ctx context.Context, owner model.OwnerKey) (*model.Cart, error) {
	if !owner.Valid() {
		return nil, ErrInvalidOwner
	}

	c, err := s.cache.Get(ctx, owner)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("[Cart] Cache read failed for %s: %v", owner, err)
	}

	v, err, _ := s.sfg.Do(owner.String(), func() (any, error) {
		// The version is taken before the load so a write committed in
		// between bumps it and the stale view is not stored
		version, verErr := s.cache.Version(ctx, owner)
		if verErr != nil {
			log.Printf("[Cart] Cache version read failed for %s: %v", owner, verErr)
		}
		c, err := s.loadCart(ctx, owner)
		if err != nil {
			return nil, err
		}
		if verErr == nil {
			if _, err := s.cache.SetIfVersion(ctx, owner, c, version); err != nil {
				log.Printf("[Cart] Cache write failed for %s: %v", owner, err)
			}
		}
		return c, nil
	})
	if errors.Is(err, ErrCartNotFound) {
		return emptyCart(owner), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	// Callers sharing a flight must not share item slices
	shared := v.(*model.Cart)
	c = &model.Cart{}
	*c = *shared
	c.Items = append([]model.CartItem(nil), shared.Items...)
	return c, nil
}

func (s *Service) loadCart(ctx context.Context, owner model.OwnerKey) (*model.Cart, error) {
	c, err := s.store.GetCartByOwner(ctx, owner)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCartNotFound
	}
	return c, err
}

// RemoveItem drops a product line from the owner's cart
func (s *Service) RemoveItem(ctx context.Context, owner model.OwnerKey, productID string) error {
	if !owner.Valid() {
		return ErrInvalidOwner
	}

	var cartID string
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockCart(ctx, owner)
		if err != nil {
			return err
		}
		cartID = c.ID
		return tx.DeleteCartItem(ctx, c.ID, productID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrItemNotFound
	}
	if err != nil {
		return fmt.Errorf("remove item: %w", err)
	}

	s.invalidate(ctx, owner)
	s.events.Emit(ctx, cartID, AggregateType, EventItemRemoved, CartItemRemoved{
		CartID:    cartID,
		UserID:    ownerUserID(owner),
		ProductID: productID,
		RemovedAt: time.Now().UTC(),
	})
	return nil
}

// Clear empties the owner's cart. An owner without a cart is left alone.
func (s *Service) Clear(ctx context.Context, owner model.OwnerKey) error {
	if !owner.Valid() {
		return ErrInvalidOwner
	}

	var cartID string
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockCart(ctx, owner)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		cartID = c.ID
		return tx.ClearCartItems(ctx, c.ID)
	})
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	if cartID == "" {
		return nil
	}

	s.invalidate(ctx, owner)
	s.events.Emit(ctx, cartID, AggregateType, EventCartCleared, CartCleared{
		CartID:    cartID,
		UserID:    ownerUserID(owner),
		ClearedAt: time.Now().UTC(),
	})
	return nil
}

// Invalidate drops cached views for the given owners. Other services that
// write cart rows call it after committing.
func (s *Service) Invalidate(ctx context.Context, owners ...model.OwnerKey) {
	s.invalidate(ctx, owners...)
}

func (s *Service) invalidate(ctx context.Context, owners ...model.OwnerKey) {
	if err := s.cache.Delete(ctx, owners...); err != nil {
		log.Printf("[Cart] Cache invalidation failed: %v", err)
	}
}

// rememberCart records a new session cart on the session
func (s *Service) rememberCart(ctx context.Context, owner model.OwnerKey, cartID string) {
	if owner.Kind != model.OwnerSession || s.sessions == nil {
		return
	}
	if err := s.sessions.SetCartID(ctx, owner.ID, cartID); err != nil {
		log.Printf("[Cart] Failed to record cart %s on session: %v", cartID, err)
	}
}

func emptyCart(owner model.OwnerKey) *model.Cart {
	c := &model.Cart{Items: []model.CartItem{}}
	switch owner.Kind {
	case model.OwnerUser:
		c.UserID = owner.ID
	case model.OwnerSession:
		c.SessionKey = owner.ID
	}
	return c
}

func ownerUserID(owner model.OwnerKey) string {
	if owner.Kind == model.OwnerUser {
		return owner.ID
	}
	return ""
}
