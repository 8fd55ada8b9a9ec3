package api

import (
	"net/http"

	"github.com/example/ec-shop-core/internal/domain/order"
	"github.com/go-chi/chi/v5"
)

// UpdateOrderRequest sets new quantities on order lines
type UpdateOrderRequest struct {
	Items []order.ItemQuantity `json:"items"`
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Place(r.Context(), principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.orders.UpdateItems(r.Context(), principal(r), chi.URLParam(r, "id"), req.Items)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
