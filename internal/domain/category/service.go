package category

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/ec-shop-core/internal/authz"
	"github.com/example/ec-shop-core/internal/domain/product"
	"github.com/example/ec-shop-core/internal/event"
	"github.com/example/ec-shop-core/internal/infrastructure/store"
	"github.com/example/ec-shop-core/internal/model"
	"github.com/google/uuid"
)

const AggregateType = "Category"

const (
	// MaxNameLength matches the categories.name column
	MaxNameLength = 50
	// MaxSlugLength matches the categories.slug column
	MaxSlugLength = 60
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrInvalidName      = errors.New("name must be 1 to 50 characters")
	ErrInvalidSlug      = errors.New("invalid slug format")
	ErrSlugTaken        = errors.New("slug already in use")
)

// slugRegex validates slug format (lowercase letters, numbers, hyphens)
var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

var (
	slugInvalidChars = regexp.MustCompile(`[^a-z0-9-]`)
	slugHyphenRuns   = regexp.MustCompile(`-+`)
)

// Input is the full set of writable category fields. An empty Slug is
// generated from Name. ProductIDs replaces the category's product set.
type Input struct {
	Name        string
	Slug        string
	Description string
	ProductIDs  []string
}

// Service handles category operations
type Service struct {
	store  store.Store
	authz  *authz.Engine
	events *event.Emitter
}

func NewService(st store.Store, engine *authz.Engine, events *event.Emitter) *Service {
	return &Service{store: st, authz: engine, events: events}
}

// Create creates a new category
func (s *Service) Create(ctx context.Context, principal *model.Principal, in Input) (*model.Category, error) {
	if err := s.authz.Authorize(principal, authz.ResourceCategory, authz.ActionCreate, ""); err != nil {
		return nil, err
	}
	in, err := validate(in)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &model.Category{
		ID:          uuid.New().String(),
		Name:        in.Name,
		Slug:        in.Slug,
		Description: in.Description,
		ProductIDs:  in.ProductIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		if err := requireProducts(ctx, tx, c.ProductIDs); err != nil {
			return err
		}
		return tx.CreateCategory(ctx, c)
	})
	if err := mapWriteErr(err); err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}

	s.events.Emit(ctx, c.ID, AggregateType, EventCategoryCreated, CategoryCreated{
		CategoryID:  c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		ProductIDs:  c.ProductIDs,
		CreatedAt:   now,
	})
	return c, nil
}

// Update replaces every writable field, including the product set
func (s *Service) Update(ctx context.Context, principal *model.Principal, categoryID string, in Input) (*model.Category, error) {
	if err := s.authz.Authorize(principal, authz.ResourceCategory, authz.ActionUpdate, ""); err != nil {
		return nil, err
	}
	in, err := validate(in)
	if err != nil {
		return nil, err
	}

	var updated *model.Category
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		c, err := tx.GetCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		if err := requireProducts(ctx, tx, in.ProductIDs); err != nil {
			return err
		}
		c.Name = in.Name
		c.Slug = in.Slug
		c.Description = in.Description
		c.ProductIDs = in.ProductIDs
		c.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateCategory(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err := mapWriteErr(err); err != nil {
		return nil, fmt.Errorf("update category: %w", err)
	}

	s.events.Emit(ctx, updated.ID, AggregateType, EventCategoryUpdated, CategoryUpdated{
		CategoryID:  updated.ID,
		Name:        updated.Name,
		Slug:        updated.Slug,
		Description: updated.Description,
		ProductIDs:  updated.ProductIDs,
		UpdatedAt:   updated.UpdatedAt,
	})
	return updated, nil
}

// Delete deletes a category. Its products are left alone.
func (s *Service) Delete(ctx context.Context, principal *model.Principal, categoryID string) error {
	if err := s.authz.Authorize(principal, authz.ResourceCategory, authz.ActionDelete, ""); err != nil {
		return err
	}

	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		return tx.DeleteCategory(ctx, categoryID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrCategoryNotFound
	}
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	s.events.Emit(ctx, categoryID, AggregateType, EventCategoryDeleted, CategoryDeleted{
		CategoryID: categoryID,
		DeletedAt:  time.Now().UTC(),
	})
	return nil
}

func (s *Service) Get(ctx context.Context, principal *model.Principal, categoryID string) (*model.Category, error) {
	if err := s.authz.Authorize(principal, authz.ResourceCategory, authz.ActionRetrieve, ""); err != nil {
		return nil, err
	}

	c, err := s.store.GetCategory(ctx, categoryID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, principal *model.Principal) ([]*model.Category, error) {
	if err := s.authz.Authorize(principal, authz.ResourceCategory, authz.ActionList, ""); err != nil {
		return nil, err
	}

	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// Products lists the products assigned to a category
func (s *Service) Products(ctx context.Context, principal *model.Principal, categoryID string) ([]*model.Product, error) {
	if err := s.authz.Authorize(principal, authz.ResourceCategory, authz.ActionRetrieve, ""); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(principal, authz.ResourceProduct, authz.ActionList, ""); err != nil {
		return nil, err
	}

	products, err := s.store.ListCategoryProducts(ctx, categoryID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("list category products: %w", err)
	}
	return products, nil
}

// requireProducts checks that every id names an existing product
func requireProducts(ctx context.Context, tx store.Tx, ids []string) error {
	for _, id := range ids {
		if _, err := tx.GetProduct(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", product.ErrProductNotFound, id)
			}
			return err
		}
	}
	return nil
}

// mapWriteErr turns store errors from a create or update into domain errors
func mapWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, product.ErrProductNotFound):
		return err
	case errors.Is(err, store.ErrDuplicate):
		return ErrSlugTaken
	case errors.Is(err, store.ErrNotFound):
		return ErrCategoryNotFound
	}
	return err
}

// validate normalizes in. ProductIDs come back sorted without duplicates.
func validate(in Input) (Input, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || utf8.RuneCountInString(in.Name) > MaxNameLength {
		return in, ErrInvalidName
	}

	// Generate slug from name if not provided
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Slug == "" {
		in.Slug = generateSlug(in.Name)
	}
	if len(in.Slug) > MaxSlugLength || !slugRegex.MatchString(in.Slug) {
		return in, ErrInvalidSlug
	}

	in.Description = strings.TrimSpace(in.Description)

	seen := make(map[string]bool, len(in.ProductIDs))
	ids := make([]string, 0, len(in.ProductIDs))
	for _, id := range in.ProductIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	in.ProductIDs = ids
	return in, nil
}

// generateSlug creates a URL-friendly slug from a name
func generateSlug(name string) string {
	slug := strings.ToLower(name)
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.ReplaceAll(slug, "_", "-")
	slug = slugInvalidChars.ReplaceAllString(slug, "")
	slug = slugHyphenRuns.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
