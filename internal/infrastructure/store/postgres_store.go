package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/example/ec-shop-core/internal/model"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgreSQL error codes the store classifies
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgInvalidText          = "22P02"
	pgCheckViolation       = "23514"
	pgNumericOutOfRange    = "22003"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore implements Store on PostgreSQL. Cart uniqueness per owner
// is enforced by unique indexes; cart rows are locked with SELECT ... FOR
// UPDATE for the duration of a transaction.
type PostgresStore struct {
	pgReader
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{pgReader: pgReader{q: db}, db: db}
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// WithinTx runs fn in a READ COMMITTED transaction
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&postgresTx{pgReader: pgReader{q: sqlTx}}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Printf("[Store] Rollback failed: %v", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapErr(err, "commit transaction")
	}
	return nil
}

// mapErr translates driver errors into the store's sentinel errors
func mapErr(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgInvalidText, pgForeignKeyViolation:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, ErrDuplicate, pqErr.Constraint)
		case pgSerializationFailure, pgDeadlockDetected:
			return fmt.Errorf("%s: %w: %s", op, ErrConflict, pqErr.Message)
		case pgNumericOutOfRange:
			return fmt.Errorf("%s: %w", op, ErrQuantityLimit)
		case pgCheckViolation:
			if strings.HasSuffix(pqErr.Constraint, "_quantity_range") {
				return fmt.Errorf("%s: %w", op, ErrQuantityLimit)
			}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func ownerColumn(owner model.OwnerKey) (string, error) {
	switch owner.Kind {
	case model.OwnerUser:
		return "user_id", nil
	case model.OwnerSession:
		return "session_key", nil
	default:
		return "", fmt.Errorf("unknown owner kind %q", owner.Kind)
	}
}

func requireRows(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// pgReader implements Reader on either the pool or a transaction
type pgReader struct {
	q queryer
}

// Products

func (r pgReader) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, description, price, created_at, updated_at
		 FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "get product")
	}
	return &p, nil
}

func (r pgReader) ListProducts(ctx context.Context) ([]*model.Product, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, description, price, created_at, updated_at
		 FROM products
		 ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, mapErr(err, "list products")
	}
	defer rows.Close()

	products := make([]*model.Product, 0)
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

// Categories

func (r pgReader) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	var c model.Category
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, slug, description, created_at, updated_at
		 FROM categories WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "get category")
	}

	assigned, err := r.categoryProductIDs(ctx, []string{c.ID})
	if err != nil {
		return nil, err
	}
	c.ProductIDs = assigned[c.ID]
	if c.ProductIDs == nil {
		c.ProductIDs = []string{}
	}
	return &c, nil
}

func (r pgReader) ListCategories(ctx context.Context) ([]*model.Category, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, slug, description, created_at, updated_at
		 FROM categories
		 ORDER BY name ASC, id ASC`,
	)
	if err != nil {
		return nil, mapErr(err, "list categories")
	}
	defer rows.Close()

	categories := make([]*model.Category, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, &c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	assigned, err := r.categoryProductIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range categories {
		c.ProductIDs = assigned[c.ID]
		if c.ProductIDs == nil {
			c.ProductIDs = []string{}
		}
	}
	return categories, nil
}

func (r pgReader) categoryProductIDs(ctx context.Context, categoryIDs []string) (map[string][]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT category_id, product_id FROM category_products
		 WHERE category_id = ANY($1::uuid[])
		 ORDER BY product_id ASC`,
		pq.Array(categoryIDs),
	)
	if err != nil {
		return nil, mapErr(err, "list category products")
	}
	defer rows.Close()

	assigned := make(map[string][]string, len(categoryIDs))
	for rows.Next() {
		var categoryID, productID string
		if err := rows.Scan(&categoryID, &productID); err != nil {
			return nil, fmt.Errorf("scan category product: %w", err)
		}
		assigned[categoryID] = append(assigned[categoryID], productID)
	}
	return assigned, rows.Err()
}

func (r pgReader) ListCategoryProducts(ctx context.Context, categoryID string) ([]*model.Product, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, categoryID,
	).Scan(&exists)
	if err != nil {
		return nil, mapErr(err, "get category")
	}
	if !exists {
		return nil, ErrNotFound
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT p.id, p.name, p.description, p.price, p.created_at, p.updated_at
		 FROM products p
		 JOIN category_products cp ON cp.product_id = p.id
		 WHERE cp.category_id = $1
		 ORDER BY p.created_at ASC, p.id ASC`,
		categoryID,
	)
	if err != nil {
		return nil, mapErr(err, "list category products")
	}
	defer rows.Close()

	products := make([]*model.Product, 0)
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, &p)
	}
	return products, rows.Err()
}

// Carts

func (r pgReader) GetCartByOwner(ctx context.Context, owner model.OwnerKey) (*model.Cart, error) {
	c, err := r.findCart(ctx, owner, false)
	if err != nil {
		return nil, err
	}
	if c.Items, err = r.listCartItems(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (r pgReader) findCart(ctx context.Context, owner model.OwnerKey, forUpdate bool) (*model.Cart, error) {
	column, err := ownerColumn(owner)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, user_id, session_key, created_at, updated_at FROM carts WHERE ` + column + ` = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		c          model.Cart
		userID     sql.NullString
		sessionKey sql.NullString
	)
	err = r.q.QueryRowContext(ctx, query, owner.ID).Scan(&c.ID, &userID, &sessionKey, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "find cart")
	}
	c.UserID = userID.String
	c.SessionKey = sessionKey.String
	c.Items = []model.CartItem{}
	return &c, nil
}

func (r pgReader) listCartItems(ctx context.Context, cartID string) ([]model.CartItem, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, cart_id, product_id, quantity, price
		 FROM cart_items
		 WHERE cart_id = $1
		 ORDER BY product_id ASC`,
		cartID,
	)
	if err != nil {
		return nil, mapErr(err, "list cart items")
	}
	defer rows.Close()

	items := make([]model.CartItem, 0)
	for rows.Next() {
		var item model.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Orders

func (r pgReader) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return r.findOrder(ctx, id, false)
}

func (r pgReader) findOrder(ctx context.Context, id string, forUpdate bool) (*model.Order, error) {
	query := `SELECT id, user_id, total, created_at, updated_at FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var o model.Order
	err := r.q.QueryRowContext(ctx, query, id).Scan(&o.ID, &o.UserID, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "get order")
	}

	items, err := r.orderItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	if o.Items == nil {
		o.Items = []model.OrderItem{}
	}
	return &o, nil
}

func (r pgReader) ListOrders(ctx context.Context, filter OrderFilter) ([]*model.Order, error) {
	query := `SELECT id, user_id, total, created_at, updated_at FROM orders`
	var args []any
	if filter.UserID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err, "list orders")
	}
	defer rows.Close()

	orders := make([]*model.Order, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Total, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, &o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.orderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Items = items[o.ID]
		if o.Items == nil {
			o.Items = []model.OrderItem{}
		}
	}
	return orders, nil
}

func (r pgReader) orderItems(ctx context.Context, orderIDs []string) (map[string][]model.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, price
		 FROM order_items
		 WHERE order_id = ANY($1::uuid[])
		 ORDER BY product_id ASC`,
		pq.Array(orderIDs),
	)
	if err != nil {
		return nil, mapErr(err, "list order items")
	}
	defer rows.Close()

	byOrder := make(map[string][]model.OrderItem, len(orderIDs))
	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		byOrder[item.OrderID] = append(byOrder[item.OrderID], item)
	}
	return byOrder, rows.Err()
}

// Users

func (r pgReader) GetUser(ctx context.Context, id string) (*model.User, error) {
	return r.findUser(ctx, `WHERE id = $1`, id)
}

func (r pgReader) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findUser(ctx, `WHERE LOWER(email) = LOWER($1)`, email)
}

func (r pgReader) findUser(ctx context.Context, where string, arg string) (*model.User, error) {
	var u model.User
	err := r.q.QueryRowContext(ctx,
		`SELECT id, email, password_hash, name, role, is_active, created_at, updated_at
		 FROM users `+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err, "get user")
	}
	return &u, nil
}

// postgresTx implements Tx on a *sql.Tx
type postgresTx struct {
	pgReader
}

func (tx *postgresTx) LockCart(ctx context.Context, owner model.OwnerKey) (*model.Cart, error) {
	return tx.findCart(ctx, owner, true)
}

func (tx *postgresTx) CreateCart(ctx context.Context, owner model.OwnerKey) (*model.Cart, error) {
	if _, err := ownerColumn(owner); err != nil {
		return nil, err
	}

	now := time.Now()
	c := model.Cart{
		ID:        uuid.New().String(),
		Items:     []model.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	userID := sql.NullString{}
	sessionKey := sql.NullString{}
	if owner.Kind == model.OwnerUser {
		c.UserID = owner.ID
		userID = sql.NullString{String: owner.ID, Valid: true}
	} else {
		c.SessionKey = owner.ID
		sessionKey = sql.NullString{String: owner.ID, Valid: true}
	}

	// A concurrent insert for the same owner makes this a no-op, which
	// the caller sees as ErrConflict and retries.
	res, err := tx.q.ExecContext(ctx,
		`INSERT INTO carts (id, user_id, session_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT DO NOTHING`,
		c.ID, userID, sessionKey, now,
	)
	if err != nil {
		return nil, mapErr(err, "create cart")
	}
	if err := requireRows(res, "create cart"); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("create cart for %s: %w", owner, ErrConflict)
		}
		return nil, err
	}
	return &c, nil
}

func (tx *postgresTx) DeleteCart(ctx context.Context, cartID string) error {
	res, err := tx.q.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return mapErr(err, "delete cart")
	}
	return requireRows(res, "delete cart")
}

func (tx *postgresTx) ListCartItems(ctx context.Context, cartID string) ([]model.CartItem, error) {
	return tx.listCartItems(ctx, cartID)
}

func (tx *postgresTx) UpsertCartItem(ctx context.Context, cartID, productID string, quantity int, price decimal.Decimal) (*model.CartItem, error) {
	var item model.CartItem
	err := tx.q.QueryRowContext(ctx,
		`INSERT INTO cart_items (id, cart_id, product_id, quantity, price)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (cart_id, product_id) DO UPDATE
		 SET quantity = cart_items.quantity + EXCLUDED.quantity,
		     price = EXCLUDED.price
		 RETURNING id, cart_id, product_id, quantity, price`,
		uuid.New().String(), cartID, productID, quantity, price,
	).Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.Price)
	if err != nil {
		return nil, mapErr(err, "upsert cart item")
	}
	if err := tx.touchCart(ctx, cartID); err != nil {
		return nil, err
	}
	return &item, nil
}

func (tx *postgresTx) IncrementCartItem(ctx context.Context, itemID string, quantity int) (*model.CartItem, error) {
	var item model.CartItem
	err := tx.q.QueryRowContext(ctx,
		`UPDATE cart_items SET quantity = quantity + $2
		 WHERE id = $1
		 RETURNING id, cart_id, product_id, quantity, price`,
		itemID, quantity,
	).Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.Price)
	if err != nil {
		return nil, mapErr(err, "increment cart item")
	}
	if err := tx.touchCart(ctx, item.CartID); err != nil {
		return nil, err
	}
	return &item, nil
}

func (tx *postgresTx) MoveCartItem(ctx context.Context, itemID, cartID string) error {
	res, err := tx.q.ExecContext(ctx, `UPDATE cart_items SET cart_id = $2 WHERE id = $1`, itemID, cartID)
	if err != nil {
		return mapErr(err, "move cart item")
	}
	if err := requireRows(res, "move cart item"); err != nil {
		return err
	}
	return tx.touchCart(ctx, cartID)
}

func (tx *postgresTx) DeleteCartItem(ctx context.Context, cartID, productID string) error {
	res, err := tx.q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID,
	)
	if err != nil {
		return mapErr(err, "delete cart item")
	}
	if err := requireRows(res, "delete cart item"); err != nil {
		return err
	}
	return tx.touchCart(ctx, cartID)
}

func (tx *postgresTx) ClearCartItems(ctx context.Context, cartID string) error {
	if _, err := tx.q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return mapErr(err, "clear cart items")
	}
	return tx.touchCart(ctx, cartID)
}

func (tx *postgresTx) touchCart(ctx context.Context, cartID string) error {
	if _, err := tx.q.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
		return mapErr(err, "touch cart")
	}
	return nil
}

func (tx *postgresTx) CreateProduct(ctx context.Context, p *model.Product) error {
	_, err := tx.q.ExecContext(ctx,
		`INSERT INTO products (id, name, description, price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Description, p.Price, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, "create product")
	}
	return nil
}

func (tx *postgresTx) UpdateProduct(ctx context.Context, p *model.Product) error {
	res, err := tx.q.ExecContext(ctx,
		`UPDATE products SET name = $2, description = $3, price = $4, updated_at = $5
		 WHERE id = $1`,
		p.ID, p.Name, p.Description, p.Price, p.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, "update product")
	}
	return requireRows(res, "update product")
}

func (tx *postgresTx) DeleteProduct(ctx context.Context, id string) error {
	res, err := tx.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		// order_items restricts deletion of ordered products
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgForeignKeyViolation {
			return fmt.Errorf("delete product: %w", ErrReferenced)
		}
		return mapErr(err, "delete product")
	}
	return requireRows(res, "delete product")
}

func (tx *postgresTx) CreateCategory(ctx context.Context, c *model.Category) error {
	_, err := tx.q.ExecContext(ctx,
		`INSERT INTO categories (id, name, slug, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.Slug, c.Description, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, "create category")
	}
	return tx.assignProducts(ctx, c)
}

func (tx *postgresTx) UpdateCategory(ctx context.Context, c *model.Category) error {
	res, err := tx.q.ExecContext(ctx,
		`UPDATE categories SET name = $2, slug = $3, description = $4, updated_at = $5
		 WHERE id = $1`,
		c.ID, c.Name, c.Slug, c.Description, c.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, "update category")
	}
	if err := requireRows(res, "update category"); err != nil {
		return err
	}

	if _, err := tx.q.ExecContext(ctx, `DELETE FROM category_products WHERE category_id = $1`, c.ID); err != nil {
		return mapErr(err, "clear category products")
	}
	return tx.assignProducts(ctx, c)
}

func (tx *postgresTx) assignProducts(ctx context.Context, c *model.Category) error {
	if len(c.ProductIDs) == 0 {
		return nil
	}
	_, err := tx.q.ExecContext(ctx,
		`INSERT INTO category_products (category_id, product_id)
		 SELECT $1, unnest($2::uuid[])
		 ON CONFLICT DO NOTHING`,
		c.ID, pq.Array(c.ProductIDs),
	)
	if err != nil {
		return mapErr(err, "assign category products")
	}
	return nil
}

func (tx *postgresTx) DeleteCategory(ctx context.Context, id string) error {
	res, err := tx.q.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "delete category")
	}
	return requireRows(res, "delete category")
}

func (tx *postgresTx) LockOrder(ctx context.Context, id string) (*model.Order, error) {
	return tx.findOrder(ctx, id, true)
}

func (tx *postgresTx) CreateOrder(ctx context.Context, o *model.Order) error {
	_, err := tx.q.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, total, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.UserID, o.Total, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, "create order")
	}
	return tx.insertOrderItems(ctx, o)
}

func (tx *postgresTx) UpdateOrder(ctx context.Context, o *model.Order) error {
	res, err := tx.q.ExecContext(ctx,
		`UPDATE orders SET total = $2, updated_at = $3 WHERE id = $1`,
		o.ID, o.Total, o.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, "update order")
	}
	if err := requireRows(res, "update order"); err != nil {
		return err
	}
	if _, err := tx.q.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, o.ID); err != nil {
		return mapErr(err, "replace order items")
	}
	return tx.insertOrderItems(ctx, o)
}

func (tx *postgresTx) insertOrderItems(ctx context.Context, o *model.Order) error {
	for _, item := range o.Items {
		_, err := tx.q.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity, price)
			 VALUES ($1, $2, $3, $4, $5)`,
			item.ID, o.ID, item.ProductID, item.Quantity, item.Price,
		)
		if err != nil {
			return mapErr(err, "insert order item")
		}
	}
	return nil
}

func (tx *postgresTx) DeleteOrder(ctx context.Context, id string) error {
	res, err := tx.q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "delete order")
	}
	return requireRows(res, "delete order")
}

func (tx *postgresTx) CreateUser(ctx context.Context, u *model.User) error {
	_, err := tx.q.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name, role, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.PasswordHash, u.Name, int(u.Role), u.IsActive, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, "create user")
	}
	return nil
}
