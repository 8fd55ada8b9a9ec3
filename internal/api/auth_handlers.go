package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/example/ec-shop-core/internal/auth"
	"github.com/example/ec-shop-core/internal/authz"
	"github.com/example/ec-shop-core/internal/domain/cart"
	"github.com/example/ec-shop-core/internal/domain/user"
	"github.com/example/ec-shop-core/internal/identity"
	"github.com/example/ec-shop-core/internal/model"
)

const refreshCookiePath = "/api/auth/refresh"

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	userService *user.Service
	carts       *cart.Service
	resolver    *identity.Resolver
	jwtService  *auth.JWTService
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(userService *user.Service, carts *cart.Service, resolver *identity.Resolver, jwtService *auth.JWTService) *AuthHandlers {
	return &AuthHandlers{
		userService: userService,
		carts:       carts,
		resolver:    resolver,
		jwtService:  jwtService,
	}
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	// Role is optional; a role name or number. Roles other than customer
	// need an admin caller.
	Role string `json:"role,omitempty"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse represents the authentication response
type AuthResponse struct {
	User        UserResponse      `json:"user"`
	AccessToken string            `json:"access_token"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Role        model.Role        `json:"role"`
	Cart        *cart.MergeResult `json:"cart,omitempty"`
	Message     string            `json:"message,omitempty"`
}

// UserResponse represents user data in responses
type UserResponse struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      model.Role `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// Register handles user registration
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	caller := principal(r)
	newUser, err := h.userService.Register(r.Context(), caller, user.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	// A signed-in caller is creating an account for someone else; their
	// own credentials stay in place.
	if caller != nil {
		respondJSON(w, http.StatusCreated, AuthResponse{
			User:    toUserResponse(newUser),
			Role:    newUser.Role,
			Message: "User created",
		})
		return
	}

	resp, err := h.issueTokens(w, r, newUser)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.Message = "Registration successful"
	respondJSON(w, http.StatusCreated, resp)
}

// Login authenticates the user and folds the caller's anonymous cart into
// the user's cart before any token is issued.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	u, err := h.userService.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	sessionID, err := h.resolver.AnonymousSession(r.Context(), sessionCookie(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	merge, err := h.carts.MergeOnLogin(r.Context(), sessionID, u.ID)
	if err != nil {
		log.Printf("[API] Cart merge failed for user %s: %v", u.ID, err)
		respondError(w, r, err)
		return
	}

	resp, err := h.issueTokens(w, r, u)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if merge.Merged {
		resp.Cart = merge
	}
	resp.Message = "Login successful"
	respondJSON(w, http.StatusOK, resp)
}

// Logout clears the auth cookies and ends the anonymous session. Tokens are
// stateless and stay valid until they expire.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	// Best-effort
	if err := h.resolver.EndSession(r.Context(), sessionCookie(r)); err != nil {
		log.Printf("[API] Failed to end session on logout: %v", err)
	}
	h.clearAuthCookies(w)
	clearSessionCookie(w)

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Logout successful",
	})
}

// Refresh issues a new token pair from a valid refresh token cookie
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshCookie, err := r.Cookie("refresh_token")
	if err != nil {
		respondJSONError(w, "no refresh token", KindUnauthenticated, http.StatusUnauthorized)
		return
	}

	userID, err := h.jwtService.ValidateRefreshToken(refreshCookie.Value)
	if err != nil {
		h.clearAuthCookies(w)
		respondError(w, r, err)
		return
	}

	u, err := h.userService.Get(r.Context(), userID)
	if err != nil {
		h.clearAuthCookies(w)
		if errors.Is(err, user.ErrUserNotFound) {
			err = auth.ErrInvalidToken
		}
		respondError(w, r, err)
		return
	}

	resp, err := h.issueTokens(w, r, u)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp.Message = "Token refreshed"
	respondJSON(w, http.StatusOK, resp)
}

// Me returns the current authenticated user's information
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	if p == nil {
		respondError(w, r, authz.ErrUnauthenticated)
		return
	}

	u, err := h.userService.Get(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(u))
}

// Helper methods

func (h *AuthHandlers) issueTokens(w http.ResponseWriter, r *http.Request, u *model.User) (*AuthResponse, error) {
	accessToken, accessExpiry, err := h.jwtService.GenerateAccessToken(u.Principal())
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExpiry, err := h.jwtService.GenerateRefreshToken(u.ID)
	if err != nil {
		return nil, err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Path:     "/",
		Expires:  accessExpiry,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Path:     refreshCookiePath,
		Expires:  refreshExpiry,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	return &AuthResponse{
		User:        toUserResponse(u),
		AccessToken: accessToken,
		ExpiresAt:   accessExpiry,
		Role:        u.Role,
	}, nil
}

func (h *AuthHandlers) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     "refresh_token",
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
	})
}
