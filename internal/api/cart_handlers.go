package api

import (
	"errors"
	"net/http"

	"github.com/example/ec-shop-core/internal/domain/product"
	"github.com/example/ec-shop-core/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AddToCartRequest is the body of POST /api/cart/items
type AddToCartRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CartItemResponse is one cart line with its computed total
type CartItemResponse struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
}

// CartResponse is the cart view returned by the cart endpoints
type CartResponse struct {
	ID    string             `json:"id,omitempty"`
	Items []CartItemResponse `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

func toCartResponse(c *model.Cart) CartResponse {
	resp := CartResponse{ID: c.ID, Items: make([]CartItemResponse, 0, len(c.Items)), Total: c.Total()}
	for _, item := range c.Items {
		resp.Items = append(resp.Items, toCartItemResponse(item))
	}
	return resp
}

func toCartItemResponse(item model.CartItem) CartItemResponse {
	return CartItemResponse{
		ID:        item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Price:     item.Price,
		Total:     item.Total(),
	}
}

// cartOwner resolves whose cart the request addresses and persists a newly
// started anonymous session in a cookie.
func (h *Handlers) cartOwner(w http.ResponseWriter, r *http.Request) (model.OwnerKey, bool) {
	res, err := h.resolver.ResolveOwner(r.Context(), principal(r), sessionCookie(r))
	if err != nil {
		respondError(w, r, err)
		return model.OwnerKey{}, false
	}
	if res.SessionCreated {
		setSessionCookie(w, r, res.SessionID, h.sessionTTL)
	}
	return res.Owner, true
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.cartOwner(w, r)
	if !ok {
		return
	}
	c, err := h.carts.GetCart(r.Context(), owner)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req AddToCartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	owner, ok := h.cartOwner(w, r)
	if !ok {
		return
	}

	item, err := h.carts.AddItem(r.Context(), owner, req.ProductID, req.Quantity)
	if errors.Is(err, product.ErrProductNotFound) {
		// The product is part of the request body, not the resource
		respondJSONError(w, err.Error(), KindProductNotFound, http.StatusBadRequest)
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartItemResponse(*item))
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.cartOwner(w, r)
	if !ok {
		return
	}
	if err := h.carts.RemoveItem(r.Context(), owner, chi.URLParam(r, "productID")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.cartOwner(w, r)
	if !ok {
		return
	}
	if err := h.carts.Clear(r.Context(), owner); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
