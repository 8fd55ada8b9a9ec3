package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/ec-shop-core/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory Store. Transactions are serialized behind a
// single lock and work on a copy of the data that replaces the live data
// on commit.
type MemoryStore struct {
	mu   sync.RWMutex
	data *memoryData
}

type memoryData struct {
	products   map[string]model.Product
	categories map[string]model.Category
	users      map[string]model.User
	carts      map[string]model.Cart // without items
	cartItems  map[string]model.CartItem
	orders     map[string]model.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &memoryData{
			products:   make(map[string]model.Product),
			categories: make(map[string]model.Category),
			users:      make(map[string]model.User),
			carts:      make(map[string]model.Cart),
			cartItems:  make(map[string]model.CartItem),
			orders:     make(map[string]model.Order),
		},
	}
}

// WithinTx runs fn against a private copy of the data
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.data.clone()
	if err := fn(&memoryTx{data: work}); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *MemoryStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getProduct(id)
}

func (s *MemoryStore) ListProducts(ctx context.Context) ([]*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listProducts(), nil
}

func (s *MemoryStore) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getCategory(id)
}

func (s *MemoryStore) ListCategories(ctx context.Context) ([]*model.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listCategories(), nil
}

func (s *MemoryStore) ListCategoryProducts(ctx context.Context, categoryID string) ([]*model.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listCategoryProducts(categoryID)
}

func (s *MemoryStore) GetCartByOwner(ctx context.Context, owner model.OwnerKey) (*model.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getCartByOwner(owner, true)
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getOrder(id)
}

func (s *MemoryStore) ListOrders(ctx context.Context, filter OrderFilter) ([]*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.listOrders(filter), nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getUser(id)
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.getUserByEmail(email)
}

// memoryTx owns its data exclusively, so it needs no locking
type memoryTx struct {
	data *memoryData
}

func (tx *memoryTx) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return tx.data.getProduct(id)
}

func (tx *memoryTx) ListProducts(ctx context.Context) ([]*model.Product, error) {
	return tx.data.listProducts(), nil
}

func (tx *memoryTx) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	return tx.data.getCategory(id)
}

func (tx *memoryTx) ListCategories(ctx context.Context) ([]*model.Category, error) {
	return tx.data.listCategories(), nil
}

func (tx *memoryTx) ListCategoryProducts(ctx context.Context, categoryID string) ([]*model.Product, error) {
	return tx.data.listCategoryProducts(categoryID)
}

func (tx *memoryTx) GetCartByOwner(ctx context.Context, owner model.OwnerKey) (*model.Cart, error) {
	return tx.data.getCartByOwner(owner, true)
}

func (tx *memoryTx) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return tx.data.getOrder(id)
}

func (tx *memoryTx) ListOrders(ctx context.Context, filter OrderFilter) ([]*model.Order, error) {
	return tx.data.listOrders(filter), nil
}

func (tx *memoryTx) GetUser(ctx context.Context, id string) (*model.User, error) {
	return tx.data.getUser(id)
}

func (tx *memoryTx) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return tx.data.getUserByEmail(email)
}

func (tx *memoryTx) LockCart(ctx context.Context, owner model.OwnerKey) (*model.Cart, error) {
	return tx.data.getCartByOwner(owner, false)
}

func (tx *memoryTx) CreateCart(ctx context.Context, owner model.OwnerKey) (*model.Cart, error) {
	if _, err := tx.data.getCartByOwner(owner, false); err == nil {
		return nil, ErrConflict
	}

	now := time.Now()
	c := model.Cart{
		ID:        uuid.New().String(),
		Items:     []model.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch owner.Kind {
	case model.OwnerUser:
		c.UserID = owner.ID
	case model.OwnerSession:
		c.SessionKey = owner.ID
	}
	tx.data.carts[c.ID] = c
	return &c, nil
}

func (tx *memoryTx) DeleteCart(ctx context.Context, cartID string) error {
	if _, ok := tx.data.carts[cartID]; !ok {
		return ErrNotFound
	}
	for id, item := range tx.data.cartItems {
		if item.CartID == cartID {
			delete(tx.data.cartItems, id)
		}
	}
	delete(tx.data.carts, cartID)
	return nil
}

func (tx *memoryTx) ListCartItems(ctx context.Context, cartID string) ([]model.CartItem, error) {
	return tx.data.itemsOf(cartID), nil
}

func (tx *memoryTx) UpsertCartItem(ctx context.Context, cartID, productID string, quantity int, price decimal.Decimal) (*model.CartItem, error) {
	if _, ok := tx.data.carts[cartID]; !ok {
		return nil, ErrNotFound
	}
	for id, item := range tx.data.cartItems {
		if item.CartID == cartID && item.ProductID == productID {
			if item.Quantity+quantity > model.MaxLineQuantity {
				return nil, ErrQuantityLimit
			}
			item.Quantity += quantity
			item.Price = price
			tx.data.cartItems[id] = item
			tx.data.touchCart(cartID)
			return &item, nil
		}
	}

	if quantity > model.MaxLineQuantity {
		return nil, ErrQuantityLimit
	}
	item := model.CartItem{
		ID:        uuid.New().String(),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		Price:     price,
	}
	tx.data.cartItems[item.ID] = item
	tx.data.touchCart(cartID)
	return &item, nil
}

func (tx *memoryTx) IncrementCartItem(ctx context.Context, itemID string, quantity int) (*model.CartItem, error) {
	item, ok := tx.data.cartItems[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	if item.Quantity+quantity > model.MaxLineQuantity {
		return nil, ErrQuantityLimit
	}
	item.Quantity += quantity
	tx.data.cartItems[itemID] = item
	tx.data.touchCart(item.CartID)
	return &item, nil
}

func (tx *memoryTx) MoveCartItem(ctx context.Context, itemID, cartID string) error {
	item, ok := tx.data.cartItems[itemID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := tx.data.carts[cartID]; !ok {
		return ErrNotFound
	}
	for _, other := range tx.data.cartItems {
		if other.CartID == cartID && other.ProductID == item.ProductID {
			return ErrDuplicate
		}
	}
	item.CartID = cartID
	tx.data.cartItems[itemID] = item
	tx.data.touchCart(cartID)
	return nil
}

func (tx *memoryTx) DeleteCartItem(ctx context.Context, cartID, productID string) error {
	for id, item := range tx.data.cartItems {
		if item.CartID == cartID && item.ProductID == productID {
			delete(tx.data.cartItems, id)
			tx.data.touchCart(cartID)
			return nil
		}
	}
	return ErrNotFound
}

func (tx *memoryTx) ClearCartItems(ctx context.Context, cartID string) error {
	for id, item := range tx.data.cartItems {
		if item.CartID == cartID {
			delete(tx.data.cartItems, id)
		}
	}
	tx.data.touchCart(cartID)
	return nil
}

func (tx *memoryTx) CreateProduct(ctx context.Context, p *model.Product) error {
	if _, ok := tx.data.products[p.ID]; ok {
		return ErrDuplicate
	}
	tx.data.products[p.ID] = *p
	return nil
}

func (tx *memoryTx) UpdateProduct(ctx context.Context, p *model.Product) error {
	if _, ok := tx.data.products[p.ID]; !ok {
		return ErrNotFound
	}
	tx.data.products[p.ID] = *p
	return nil
}

func (tx *memoryTx) DeleteProduct(ctx context.Context, id string) error {
	if _, ok := tx.data.products[id]; !ok {
		return ErrNotFound
	}
	for _, o := range tx.data.orders {
		for _, item := range o.Items {
			if item.ProductID == id {
				return ErrReferenced
			}
		}
	}
	delete(tx.data.products, id)
	for itemID, item := range tx.data.cartItems {
		if item.ProductID == id {
			delete(tx.data.cartItems, itemID)
		}
	}
	for catID, c := range tx.data.categories {
		if i := sort.SearchStrings(c.ProductIDs, id); i < len(c.ProductIDs) && c.ProductIDs[i] == id {
			c.ProductIDs = append(c.ProductIDs[:i:i], c.ProductIDs[i+1:]...)
			tx.data.categories[catID] = c
		}
	}
	return nil
}

func (tx *memoryTx) CreateCategory(ctx context.Context, c *model.Category) error {
	if _, ok := tx.data.categories[c.ID]; ok {
		return ErrDuplicate
	}
	return tx.data.putCategory(c)
}

func (tx *memoryTx) UpdateCategory(ctx context.Context, c *model.Category) error {
	if _, ok := tx.data.categories[c.ID]; !ok {
		return ErrNotFound
	}
	return tx.data.putCategory(c)
}

func (tx *memoryTx) DeleteCategory(ctx context.Context, id string) error {
	if _, ok := tx.data.categories[id]; !ok {
		return ErrNotFound
	}
	delete(tx.data.categories, id)
	return nil
}

func (tx *memoryTx) LockOrder(ctx context.Context, id string) (*model.Order, error) {
	return tx.data.getOrder(id)
}

func (tx *memoryTx) CreateOrder(ctx context.Context, o *model.Order) error {
	if _, ok := tx.data.orders[o.ID]; ok {
		return ErrDuplicate
	}
	tx.data.orders[o.ID] = copyOrder(*o)
	return nil
}

func (tx *memoryTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	if _, ok := tx.data.orders[o.ID]; !ok {
		return ErrNotFound
	}
	tx.data.orders[o.ID] = copyOrder(*o)
	return nil
}

func (tx *memoryTx) DeleteOrder(ctx context.Context, id string) error {
	if _, ok := tx.data.orders[id]; !ok {
		return ErrNotFound
	}
	delete(tx.data.orders, id)
	return nil
}

func (tx *memoryTx) CreateUser(ctx context.Context, u *model.User) error {
	if _, err := tx.data.getUserByEmail(u.Email); err == nil {
		return ErrDuplicate
	}
	tx.data.users[u.ID] = *u
	return nil
}

// memoryData helpers

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		products:   make(map[string]model.Product, len(d.products)),
		categories: make(map[string]model.Category, len(d.categories)),
		users:      make(map[string]model.User, len(d.users)),
		carts:      make(map[string]model.Cart, len(d.carts)),
		cartItems:  make(map[string]model.CartItem, len(d.cartItems)),
		orders:     make(map[string]model.Order, len(d.orders)),
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.categories {
		c.categories[k] = copyCategory(v)
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.carts {
		c.carts[k] = v
	}
	for k, v := range d.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = copyOrder(v)
	}
	return c
}

func (d *memoryData) getProduct(id string) (*model.Product, error) {
	p, ok := d.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (d *memoryData) listProducts() []*model.Product {
	products := make([]*model.Product, 0, len(d.products))
	for _, p := range d.products {
		p := p
		products = append(products, &p)
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].ID < products[j].ID
		}
		return products[i].CreatedAt.Before(products[j].CreatedAt)
	})
	return products
}

func (d *memoryData) getCategory(id string) (*model.Category, error) {
	c, ok := d.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	c = copyCategory(c)
	return &c, nil
}

func (d *memoryData) listCategories() []*model.Category {
	categories := make([]*model.Category, 0, len(d.categories))
	for _, c := range d.categories {
		c = copyCategory(c)
		categories = append(categories, &c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].Name == categories[j].Name {
			return categories[i].ID < categories[j].ID
		}
		return categories[i].Name < categories[j].Name
	})
	return categories
}

func (d *memoryData) listCategoryProducts(categoryID string) ([]*model.Product, error) {
	c, ok := d.categories[categoryID]
	if !ok {
		return nil, ErrNotFound
	}
	products := make([]*model.Product, 0, len(c.ProductIDs))
	for _, p := range d.listProducts() {
		if i := sort.SearchStrings(c.ProductIDs, p.ID); i < len(c.ProductIDs) && c.ProductIDs[i] == p.ID {
			products = append(products, p)
		}
	}
	return products, nil
}

// putCategory stores c, enforcing slug uniqueness and product existence
func (d *memoryData) putCategory(c *model.Category) error {
	for id, other := range d.categories {
		if id != c.ID && other.Slug == c.Slug {
			return ErrDuplicate
		}
	}
	for _, productID := range c.ProductIDs {
		if _, ok := d.products[productID]; !ok {
			return ErrNotFound
		}
	}
	stored := copyCategory(*c)
	sort.Strings(stored.ProductIDs)
	d.categories[c.ID] = stored
	return nil
}

func (d *memoryData) getCartByOwner(owner model.OwnerKey, withItems bool) (*model.Cart, error) {
	for _, c := range d.carts {
		if c.Owner() == owner {
			c.Items = []model.CartItem{}
			if withItems {
				c.Items = d.itemsOf(c.ID)
			}
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memoryData) itemsOf(cartID string) []model.CartItem {
	items := make([]model.CartItem, 0)
	for _, item := range d.cartItems {
		if item.CartID == cartID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items
}

func (d *memoryData) touchCart(cartID string) {
	if c, ok := d.carts[cartID]; ok {
		c.UpdatedAt = time.Now()
		d.carts[cartID] = c
	}
}

func (d *memoryData) getOrder(id string) (*model.Order, error) {
	o, ok := d.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

func (d *memoryData) listOrders(filter OrderFilter) []*model.Order {
	orders := make([]*model.Order, 0)
	for _, o := range d.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		o = copyOrder(o)
		orders = append(orders, &o)
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders
}

func (d *memoryData) getUser(id string) (*model.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (d *memoryData) getUserByEmail(email string) (*model.User, error) {
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func copyCategory(c model.Category) model.Category {
	ids := make([]string, len(c.ProductIDs))
	copy(ids, c.ProductIDs)
	c.ProductIDs = ids
	return c
}

func copyOrder(o model.Order) model.Order {
	items := make([]model.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}
