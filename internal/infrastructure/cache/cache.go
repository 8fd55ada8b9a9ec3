package cache

import (
	"context"
	"errors"

	"github.com/example/ec-shop-core/internal/model"
)

var ErrCacheMiss = errors.New("cache miss")

// CartCache holds read views of carts keyed by owner. Every cart write
// calls Delete, which also bumps the owner's version so that a view loaded
// before the write can no longer be stored.
//
// Readers fill the cache in three steps: take Version, load the cart from
// the store, then SetIfVersion with the token taken first.
type CartCache interface {
	Get(ctx context.Context, owner model.OwnerKey) (*model.Cart, error)
	// Version returns an opaque token for the owner's current version
	Version(ctx context.Context, owner model.OwnerKey) (string, error)
	// SetIfVersion stores cart only if the owner's version still equals
	// version. It reports whether the entry was written.
	SetIfVersion(ctx context.Context, owner model.OwnerKey, cart *model.Cart, version string) (bool, error)
	Delete(ctx context.Context, owners ...model.OwnerKey) error
}

// NopCache never holds anything
type NopCache struct{}

func (NopCache) Get(ctx context.Context, owner model.OwnerKey) (*model.Cart, error) {
	return nil, ErrCacheMiss
}

func (NopCache) Version(ctx context.Context, owner model.OwnerKey) (string, error) { return "", nil }

func (NopCache) SetIfVersion(ctx context.Context, owner model.OwnerKey, cart *model.Cart, version string) (bool, error) {
	return false, nil
}

func (NopCache) Delete(ctx context.Context, owners ...model.OwnerKey) error { return nil }
