// Package authz decides which roles may act on products, categories,
// orders and privileged accounts, and narrows order listings to what the
// caller may see.
package authz

import (
	"errors"
	"fmt"

	"github.com/example/ec-shop-core/internal/infrastructure/store"
	"github.com/example/ec-shop-core/internal/model"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
)

type Resource string

const (
	ResourceProduct  Resource = "product"
	ResourceCategory Resource = "category"
	ResourceOrder    Resource = "order"
	// ResourceAccount covers accounts with a role other than customer.
	// Customer self sign-up is not gated.
	ResourceAccount Resource = "account"
)

type Action string

const (
	ActionList          Action = "list"
	ActionRetrieve      Action = "retrieve"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionPartialUpdate Action = "partial_update"
	ActionDelete        Action = "delete"
)

var (
	Resources = []Resource{ResourceProduct, ResourceCategory, ResourceOrder, ResourceAccount}
	Actions   = []Action{ActionList, ActionRetrieve, ActionCreate, ActionUpdate, ActionPartialUpdate, ActionDelete}
)

// Scope is how far a grant reaches
type Scope int

const (
	ScopeNone Scope = iota
	// ScopeAll applies to every resource instance
	ScopeAll
	// ScopeOwn applies only to instances owned by the caller
	ScopeOwn
)

type ruleKey struct {
	resource Resource
	action   Action
}

type grants map[model.Role]Scope

// Engine evaluates the rule table. The zero value denies everything; use
// NewEngine.
type Engine struct {
	rules map[ruleKey]grants
}

func NewEngine() *Engine {
	adminOnly := grants{model.RoleAdmin: ScopeAll}
	anyRole := grants{model.RoleAdmin: ScopeAll, model.RoleStaff: ScopeAll, model.RoleCustomer: ScopeAll}
	readOrders := grants{model.RoleAdmin: ScopeAll, model.RoleStaff: ScopeAll, model.RoleCustomer: ScopeOwn}
	customerOwn := grants{model.RoleCustomer: ScopeOwn}

	return &Engine{rules: map[ruleKey]grants{
		{ResourceProduct, ActionCreate}:        adminOnly,
		{ResourceProduct, ActionUpdate}:        adminOnly,
		{ResourceProduct, ActionPartialUpdate}: adminOnly,
		{ResourceProduct, ActionDelete}:        adminOnly,
		{ResourceProduct, ActionList}:          anyRole,
		{ResourceProduct, ActionRetrieve}:      anyRole,

		{ResourceCategory, ActionCreate}:        adminOnly,
		{ResourceCategory, ActionUpdate}:        adminOnly,
		{ResourceCategory, ActionPartialUpdate}: adminOnly,
		{ResourceCategory, ActionDelete}:        adminOnly,
		{ResourceCategory, ActionList}:          anyRole,
		{ResourceCategory, ActionRetrieve}:      anyRole,

		{ResourceAccount, ActionCreate}: adminOnly,

		{ResourceOrder, ActionList}:     readOrders,
		{ResourceOrder, ActionRetrieve}: readOrders,
		{ResourceOrder, ActionCreate}:   customerOwn,
		{ResourceOrder, ActionUpdate}:   customerOwn,
		{ResourceOrder, ActionDelete}:   customerOwn,
	}}
}

// ScopeFor returns the grant the role holds for the action
func (e *Engine) ScopeFor(role model.Role, res Resource, act Action) Scope {
	g, ok := e.rules[ruleKey{res, act}]
	if !ok {
		return ScopeNone
	}
	return g[role]
}

// Authorize returns nil if principal may perform act on res. ownerID is
// the owning user of the instance acted on; it is ignored for ScopeAll
// grants and may be empty when no instance is involved yet.
func (e *Engine) Authorize(principal *model.Principal, res Resource, act Action, ownerID string) error {
	if principal == nil || principal.UserID == "" {
		return ErrUnauthenticated
	}
	if !principal.Role.Valid() {
		return fmt.Errorf("%w: unknown role", ErrForbidden)
	}

	switch e.ScopeFor(principal.Role, res, act) {
	case ScopeAll:
		return nil
	case ScopeOwn:
		if ownerID != "" && ownerID != principal.UserID {
			return fmt.Errorf("%w: %s may only %s own %s", ErrForbidden, principal.Role, act, res)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s may not %s %s", ErrForbidden, principal.Role, act, res)
	}
}

// ScopeOrders filters orders down to those principal may see. It is
// applied after Authorize has allowed the listing.
func ScopeOrders(principal *model.Principal, orders []*model.Order) []*model.Order {
	if principal == nil {
		return []*model.Order{}
	}

	switch principal.Role {
	case model.RoleAdmin, model.RoleStaff:
		return orders
	case model.RoleCustomer:
		own := make([]*model.Order, 0, len(orders))
		for _, o := range orders {
			if o.UserID == principal.UserID {
				own = append(own, o)
			}
		}
		return own
	default:
		return []*model.Order{}
	}
}

// OrderFilter is ScopeOrders expressed as a store query. ok is false when
// the principal may see no orders at all.
func OrderFilter(principal *model.Principal) (filter store.OrderFilter, ok bool) {
	if principal == nil {
		return store.OrderFilter{}, false
	}

	switch principal.Role {
	case model.RoleAdmin, model.RoleStaff:
		return store.OrderFilter{}, true
	case model.RoleCustomer:
		return store.OrderFilter{UserID: principal.UserID}, true
	default:
		return store.OrderFilter{}, false
	}
}
