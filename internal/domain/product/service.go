package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/ec-shop-core/internal/authz"
	"github.com/example/ec-shop-core/internal/event"
	"github.com/example/ec-shop-core/internal/infrastructure/store"
	"github.com/example/ec-shop-core/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const AggregateType = "Product"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidPrice    = errors.New("price must be positive")
	ErrInvalidName     = errors.New("name must be 1 to 50 characters")
	ErrProductInUse    = errors.New("product has been ordered and cannot be deleted")
)

// MaxNameLength matches the products.name column
const MaxNameLength = 50

// Input is the full set of writable product fields
type Input struct {
	Name        string
	Description string
	Price       decimal.Decimal
}

// Patch holds the fields of a partial update; nil fields are left alone
type Patch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
}

type Service struct {
	store  store.Store
	authz  *authz.Engine
	events *event.Emitter
}

func NewService(st store.Store, engine *authz.Engine, events *event.Emitter) *Service {
	return &Service{store: st, authz: engine, events: events}
}

func (s *Service) Create(ctx context.Context, principal *model.Principal, in Input) (*model.Product, error) {
	if err := s.authz.Authorize(principal, authz.ResourceProduct, authz.ActionCreate, ""); err != nil {
		return nil, err
	}
	in, err := validate(in)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &model.Product{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateProduct(ctx, p)
	}); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.events.Emit(ctx, p.ID, AggregateType, EventProductCreated, ProductCreated{
		ProductID:   p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		CreatedAt:   now,
	})
	return p, nil
}

// Update replaces every writable field
func (s *Service) Update(ctx context.Context, principal *model.Principal, productID string, in Input) (*model.Product, error) {
	if err := s.authz.Authorize(principal, authz.ResourceProduct, authz.ActionUpdate, ""); err != nil {
		return nil, err
	}
	in, err := validate(in)
	if err != nil {
		return nil, err
	}

	return s.modify(ctx, productID, func(p *model.Product) {
		p.Name = in.Name
		p.Description = in.Description
		p.Price = in.Price
	})
}

// Patch changes only the fields present in patch
func (s *Service) Patch(ctx context.Context, principal *model.Principal, productID string, patch Patch) (*model.Product, error) {
	if err := s.authz.Authorize(principal, authz.ResourceProduct, authz.ActionPartialUpdate, ""); err != nil {
		return nil, err
	}

	return s.modifyChecked(ctx, productID, func(p *model.Product) error {
		in := Input{Name: p.Name, Description: p.Description, Price: p.Price}
		if patch.Name != nil {
			in.Name = *patch.Name
		}
		if patch.Description != nil {
			in.Description = *patch.Description
		}
		if patch.Price != nil {
			in.Price = *patch.Price
		}
		valid, err := validate(in)
		if err != nil {
			return err
		}
		p.Name, p.Description, p.Price = valid.Name, valid.Description, valid.Price
		return nil
	})
}

func (s *Service) Delete(ctx context.Context, principal *model.Principal, productID string) error {
	if err := s.authz.Authorize(principal, authz.ResourceProduct, authz.ActionDelete, ""); err != nil {
		return err
	}

	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		return tx.DeleteProduct(ctx, productID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrProductNotFound
	}
	if errors.Is(err, store.ErrReferenced) {
		return ErrProductInUse
	}
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	s.events.Emit(ctx, productID, AggregateType, EventProductDeleted, ProductDeleted{
		ProductID: productID,
		DeletedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Service) Get(ctx context.Context, principal *model.Principal, productID string) (*model.Product, error) {
	if err := s.authz.Authorize(principal, authz.ResourceProduct, authz.ActionRetrieve, ""); err != nil {
		return nil, err
	}

	p, err := s.store.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, principal *model.Principal) ([]*model.Product, error) {
	if err := s.authz.Authorize(principal, authz.ResourceProduct, authz.ActionList, ""); err != nil {
		return nil, err
	}

	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (s *Service) modify(ctx context.Context, productID string, apply func(p *model.Product)) (*model.Product, error) {
	return s.modifyChecked(ctx, productID, func(p *model.Product) error {
		apply(p)
		return nil
	})
}

func (s *Service) modifyChecked(ctx context.Context, productID string, apply func(p *model.Product) error) (*model.Product, error) {
	var updated *model.Product
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if err := apply(p); err != nil {
			return err
		}
		p.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateProduct(ctx, p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrProductNotFound
	}
	if errors.Is(err, ErrInvalidName) || errors.Is(err, ErrInvalidPrice) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	s.events.Emit(ctx, updated.ID, AggregateType, EventProductUpdated, ProductUpdated{
		ProductID:   updated.ID,
		Name:        updated.Name,
		Description: updated.Description,
		Price:       updated.Price,
		UpdatedAt:   updated.UpdatedAt,
	})
	return updated, nil
}

// validate normalizes in. Prices are kept to cents.
func validate(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || utf8.RuneCountInString(in.Name) > MaxNameLength {
		return in, ErrInvalidName
	}
	in.Price = in.Price.Round(2)
	if !in.Price.IsPositive() {
		return in, ErrInvalidPrice
	}
	return in, nil
}
