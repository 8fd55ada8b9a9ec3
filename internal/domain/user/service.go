package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/example/ec-shop-core/internal/auth"
	"github.com/example/ec-shop-core/internal/authz"
	"github.com/example/ec-shop-core/internal/event"
	"github.com/example/ec-shop-core/internal/infrastructure/store"
	"github.com/example/ec-shop-core/internal/model"
	"github.com/google/uuid"
)

const AggregateType = "User"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidEmail       = errors.New("a valid email is required")
	ErrInvalidName        = errors.New("name is required")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserDeactivated    = errors.New("user account is deactivated")
)

const maxEmailLength = 254

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9](?:[a-zA-Z0-9\-]*[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9\-]*[a-zA-Z0-9])?)*\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// RegisterInput carries the fields of a sign-up. Role is a role name or
// number; empty means customer. Only callers allowed to create accounts
// may pick any other role.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     string
}

// Service handles user domain operations
type Service struct {
	store  store.Store
	authz  *authz.Engine
	events *event.Emitter
}

// NewService creates a new user service
func NewService(st store.Store, engine *authz.Engine, events *event.Emitter) *Service {
	return &Service{store: st, authz: engine, events: events}
}

// Register creates a new active user. principal is the caller, nil for a
// self sign-up; a role other than customer needs an account-create grant.
func (s *Service) Register(ctx context.Context, principal *model.Principal, in RegisterInput) (*model.User, error) {
	role := model.RoleCustomer
	if strings.TrimSpace(in.Role) != "" {
		parsed, err := model.ParseRole(in.Role)
		if err != nil {
			return nil, err
		}
		role = parsed
	}
	if role != model.RoleCustomer {
		if err := s.authz.Authorize(principal, authz.ResourceAccount, authz.ActionCreate, ""); err != nil {
			return nil, err
		}
	}
	return s.create(ctx, in, role)
}

// EnsureAdmin creates an admin account unless the email is already
// registered. It bootstraps the first admin at startup.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*model.User, bool, error) {
	u, err := s.create(ctx, RegisterInput{Email: email, Password: password, Name: "Administrator"}, model.RoleAdmin)
	if errors.Is(err, ErrEmailTaken) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (s *Service) create(ctx context.Context, in RegisterInput, role model.Role) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}

	passwordHash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		return tx.CreateUser(ctx, u)
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}

	s.events.Emit(ctx, u.ID, AggregateType, EventUserRegistered, UserRegistered{
		UserID:    u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: now,
	})
	return u, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		auth.CheckNoPassword(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrUserDeactivated
	}

	s.events.Emit(ctx, u.ID, AggregateType, EventUserLoggedIn, UserLoggedIn{
		UserID:   u.ID,
		LoggedAt: time.Now().UTC(),
	})
	return u, nil
}

// Get returns an active user
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !u.IsActive {
		return nil, ErrUserDeactivated
	}
	return u, nil
}
