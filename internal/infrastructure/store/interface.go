package store

import (
	"context"
	"errors"

	"github.com/example/ec-shop-core/internal/model"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
	// ErrConflict is returned when a transaction lost a race against a
	// concurrent writer. The transaction has been rolled back.
	ErrConflict = errors.New("concurrency conflict")
	// ErrReferenced is returned when deleting a row that other rows still
	// depend on, such as a product with order lines.
	ErrReferenced = errors.New("still referenced")
	// ErrQuantityLimit is returned when a line would exceed
	// model.MaxLineQuantity.
	ErrQuantityLimit = errors.New("line quantity limit exceeded")
)

// OrderFilter restricts an order listing. An empty UserID lists all orders.
type OrderFilter struct {
	UserID string
}

// Reader holds the read operations available both inside and outside a
// transaction.
type Reader interface {
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context) ([]*model.Product, error)

	GetCategory(ctx context.Context, id string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]*model.Category, error)
	// ListCategoryProducts returns the products assigned to a category.
	ListCategoryProducts(ctx context.Context, categoryID string) ([]*model.Product, error)

	// GetCartByOwner returns the owner's cart with its items.
	GetCartByOwner(ctx context.Context, owner model.OwnerKey) (*model.Cart, error)

	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]*model.Order, error)

	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// Tx is a unit of work. Writes become visible to other callers only after
// the surrounding WithinTx returns nil.
type Tx interface {
	Reader

	// LockCart returns the owner's cart (without items) and holds it
	// exclusively until the transaction ends.
	LockCart(ctx context.Context, owner model.OwnerKey) (*model.Cart, error)
	// CreateCart returns ErrConflict if a cart for owner already exists.
	CreateCart(ctx context.Context, owner model.OwnerKey) (*model.Cart, error)
	// DeleteCart removes the cart and its items.
	DeleteCart(ctx context.Context, cartID string) error
	ListCartItems(ctx context.Context, cartID string) ([]model.CartItem, error)
	// UpsertCartItem inserts the line or, if the product is already in the
	// cart, adds quantity to it. Either way the price is set to price.
	// ErrQuantityLimit leaves the line unchanged.
	UpsertCartItem(ctx context.Context, cartID, productID string, quantity int, price decimal.Decimal) (*model.CartItem, error)
	// IncrementCartItem adds quantity to a line and leaves its price alone.
	IncrementCartItem(ctx context.Context, itemID string, quantity int) (*model.CartItem, error)
	// MoveCartItem re-parents a line onto another cart.
	MoveCartItem(ctx context.Context, itemID, cartID string) error
	DeleteCartItem(ctx context.Context, cartID, productID string) error
	ClearCartItems(ctx context.Context, cartID string) error

	CreateProduct(ctx context.Context, p *model.Product) error
	UpdateProduct(ctx context.Context, p *model.Product) error
	// DeleteProduct drops the product from carts and categories. It
	// returns ErrReferenced if any order holds the product.
	DeleteProduct(ctx context.Context, id string) error

	// CreateCategory returns ErrDuplicate if the slug is taken.
	CreateCategory(ctx context.Context, c *model.Category) error
	// UpdateCategory replaces the category's fields and product set.
	UpdateCategory(ctx context.Context, c *model.Category) error
	DeleteCategory(ctx context.Context, id string) error

	// LockOrder returns the order with its items and holds it until the
	// transaction ends.
	LockOrder(ctx context.Context, id string) (*model.Order, error)
	CreateOrder(ctx context.Context, o *model.Order) error
	// UpdateOrder replaces the order's items and total.
	UpdateOrder(ctx context.Context, o *model.Order) error
	DeleteOrder(ctx context.Context, id string) error

	// CreateUser returns ErrDuplicate if the email is taken.
	CreateUser(ctx context.Context, u *model.User) error
}

// Store is the transactional persistence used by the domain services.
type Store interface {
	Reader
	// WithinTx runs fn in a single transaction. If fn returns an error
	// nothing it did is kept.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
