package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-shop-core/internal/authz"
	"github.com/example/ec-shop-core/internal/event"
	"github.com/example/ec-shop-core/internal/infrastructure/store"
	"github.com/example/ec-shop-core/internal/model"
	"github.com/google/uuid"
)

const AggregateType = "Order"

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrEmptyOrder      = errors.New("order must have at least one item")
	ErrItemNotFound    = errors.New("item not in order")
	ErrInvalidQuantity = fmt.Errorf("quantity must be between 0 and %d", model.MaxLineQuantity)
)

// ItemQuantity sets the quantity of one order line. Zero removes the line.
type ItemQuantity struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartInvalidator drops cached cart views after orders consume a cart
type CartInvalidator interface {
	Invalidate(ctx context.Context, owners ...model.OwnerKey)
}

type Service struct {
	store  store.Store
	authz  *authz.Engine
	carts  CartInvalidator
	events *event.Emitter
}

func NewService(st store.Store, engine *authz.Engine, carts CartInvalidator, events *event.Emitter) *Service {
	return &Service{store: st, authz: engine, carts: carts, events: events}
}

// Place turns the caller's cart into an order at the cart's snapshot
// prices and empties the cart
func (s *Service) Place(ctx context.Context, principal *model.Principal) (*model.Order, error) {
	if err := s.authz.Authorize(principal, authz.ResourceOrder, authz.ActionCreate, ""); err != nil {
		return nil, err
	}
	owner := model.UserOwner(principal.UserID)

	var placed *model.Order
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		c, err := tx.LockCart(ctx, owner)
		if errors.Is(err, store.ErrNotFound) {
			return ErrEmptyCart
		}
		if err != nil {
			return err
		}
		items, err := tx.ListCartItems(ctx, c.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}

		now := time.Now().UTC()
		o := &model.Order{
			ID:        uuid.New().String(),
			UserID:    principal.UserID,
			Items:     make([]model.OrderItem, 0, len(items)),
			CreatedAt: now,
			UpdatedAt: now,
		}
		for _, item := range items {
			o.Items = append(o.Items, model.OrderItem{
				ID:        uuid.New().String(),
				OrderID:   o.ID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				Price:     item.Price,
			})
		}
		o.RecalculateTotal()

		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.ClearCartItems(ctx, c.ID); err != nil {
			return err
		}
		placed = o
		return nil
	})
	if errors.Is(err, ErrEmptyCart) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	if s.carts != nil {
		s.carts.Invalidate(ctx, owner)
	}
	s.events.Emit(ctx, placed.ID, AggregateType, EventOrderPlaced, OrderPlaced{
		OrderID:  placed.ID,
		UserID:   placed.UserID,
		Items:    eventItems(placed.Items),
		Total:    placed.Total,
		PlacedAt: placed.CreatedAt,
	})
	return placed, nil
}

// List returns the orders visible to principal, newest first
func (s *Service) List(ctx context.Context, principal *model.Principal) ([]*model.Order, error) {
	if err := s.authz.Authorize(principal, authz.ResourceOrder, authz.ActionList, ""); err != nil {
		return nil, err
	}

	filter, ok := authz.OrderFilter(principal)
	if !ok {
		return []*model.Order{}, nil
	}
	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return authz.ScopeOrders(principal, orders), nil
}

func (s *Service) Get(ctx context.Context, principal *model.Principal, orderID string) (*model.Order, error) {
	if err := s.authz.Authorize(principal, authz.ResourceOrder, authz.ActionRetrieve, ""); err != nil {
		return nil, err
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := s.authz.Authorize(principal, authz.ResourceOrder, authz.ActionRetrieve, o.UserID); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateItems sets line quantities on one of the caller's orders and
// recomputes the total
func (s *Service) UpdateItems(ctx context.Context, principal *model.Principal, orderID string, changes []ItemQuantity) (*model.Order, error) {
	if err := s.authz.Authorize(principal, authz.ResourceOrder, authz.ActionUpdate, ""); err != nil {
		return nil, err
	}
	for _, c := range changes {
		if c.Quantity < 0 || c.Quantity > model.MaxLineQuantity {
			return nil, ErrInvalidQuantity
		}
	}

	var updated *model.Order
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		o, err := s.lockOwned(ctx, tx, principal, authz.ActionUpdate, orderID)
		if err != nil {
			return err
		}
		if err := applyQuantities(o, changes); err != nil {
			return err
		}
		o.RecalculateTotal()
		o.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, s.wrap("update order", err)
	}

	s.events.Emit(ctx, updated.ID, AggregateType, EventOrderUpdated, OrderUpdated{
		OrderID:   updated.ID,
		UserID:    updated.UserID,
		Items:     eventItems(updated.Items),
		Total:     updated.Total,
		UpdatedAt: updated.UpdatedAt,
	})
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, principal *model.Principal, orderID string) error {
	if err := s.authz.Authorize(principal, authz.ResourceOrder, authz.ActionDelete, ""); err != nil {
		return err
	}

	var userID string
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		o, err := s.lockOwned(ctx, tx, principal, authz.ActionDelete, orderID)
		if err != nil {
			return err
		}
		userID = o.UserID
		return tx.DeleteOrder(ctx, o.ID)
	})
	if err != nil {
		return s.wrap("delete order", err)
	}

	s.events.Emit(ctx, orderID, AggregateType, EventOrderDeleted, OrderDeleted{
		OrderID:   orderID,
		UserID:    userID,
		DeletedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Service) lockOwned(ctx context.Context, tx store.Tx, principal *model.Principal, act authz.Action, orderID string) (*model.Order, error) {
	o, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(principal, authz.ResourceOrder, act, o.UserID); err != nil {
		return nil, err
	}
	return o, nil
}

// wrap passes domain errors through and wraps the rest
func (s *Service) wrap(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrOrderNotFound
	case errors.Is(err, authz.ErrForbidden),
		errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrEmptyOrder):
		return err
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func applyQuantities(o *model.Order, changes []ItemQuantity) error {
	index := make(map[string]int, len(o.Items))
	for i, item := range o.Items {
		index[item.ProductID] = i
	}

	removed := make(map[string]bool)
	for _, c := range changes {
		i, ok := index[c.ProductID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrItemNotFound, c.ProductID)
		}
		if c.Quantity == 0 {
			removed[c.ProductID] = true
			continue
		}
		delete(removed, c.ProductID)
		o.Items[i].Quantity = c.Quantity
	}

	kept := o.Items[:0]
	for _, item := range o.Items {
		if !removed[item.ProductID] {
			kept = append(kept, item)
		}
	}
	if len(kept) == 0 {
		return ErrEmptyOrder
	}
	o.Items = kept
	return nil
}
