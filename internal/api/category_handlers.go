package api

import (
	"net/http"

	"github.com/example/ec-shop-core/internal/domain/category"
	"github.com/go-chi/chi/v5"
)

// CategoryRequest is the body of category create and full update. An
// empty slug is generated from the name; product_ids replaces the
// category's products.
type CategoryRequest struct {
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Description string   `json:"description"`
	ProductIDs  []string `json:"product_ids"`
}

func (req CategoryRequest) input() category.Input {
	return category.Input{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		ProductIDs:  req.ProductIDs,
	}
}

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context(), principal(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}

func (h *Handlers) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.categories.Get(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) ListCategoryProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.categories.Products(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.categories.Create(r.Context(), principal(r), req.input())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handlers) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.categories.Update(r.Context(), principal(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handlers) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
