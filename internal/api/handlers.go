package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/ec-shop-core/internal/api/middleware"
	"github.com/example/ec-shop-core/internal/domain/cart"
	"github.com/example/ec-shop-core/internal/domain/category"
	"github.com/example/ec-shop-core/internal/domain/order"
	"github.com/example/ec-shop-core/internal/domain/product"
	"github.com/example/ec-shop-core/internal/identity"
	"github.com/example/ec-shop-core/internal/model"
)

// SessionCookieName carries the anonymous session id
const SessionCookieName = "cart_session"

// Handlers serves the catalog, cart and order endpoints
type Handlers struct {
	products   *product.Service
	categories *category.Service
	carts      *cart.Service
	orders     *order.Service
	resolver   *identity.Resolver
	sessionTTL time.Duration
}

func NewHandlers(products *product.Service, categories *category.Service, carts *cart.Service, orders *order.Service, resolver *identity.Resolver, sessionTTL time.Duration) *Handlers {
	return &Handlers{
		products:   products,
		categories: categories,
		carts:      carts,
		orders:     orders,
		resolver:   resolver,
		sessionTTL: sessionTTL,
	}
}

// Health reports that the process is serving
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON reads the request body into v, answering 400 on failure
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}

// principal returns the authenticated caller, or nil
func principal(r *http.Request) *model.Principal {
	p, _ := middleware.GetPrincipal(r.Context())
	return p
}

func sessionCookie(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, sessionID string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
