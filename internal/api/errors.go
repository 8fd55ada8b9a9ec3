package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/example/ec-shop-core/internal/auth"
	"github.com/example/ec-shop-core/internal/authz"
	"github.com/example/ec-shop-core/internal/domain/cart"
	"github.com/example/ec-shop-core/internal/domain/category"
	"github.com/example/ec-shop-core/internal/domain/order"
	"github.com/example/ec-shop-core/internal/domain/product"
	"github.com/example/ec-shop-core/internal/domain/user"
	"github.com/example/ec-shop-core/internal/model"
)

// Error kinds returned in the "kind" field of error responses
const (
	KindInvalidQuantity = "invalid_quantity"
	KindProductNotFound = "product_not_found"
	KindNotFound        = "not_found"
	KindUnauthenticated = "unauthenticated"
	KindForbidden       = "forbidden"
	KindValidation      = "validation"
	KindConflict        = "conflict"
	KindInternal        = "internal"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type errorMapping struct {
	err    error
	status int
	kind   string
}

// errorTable is checked in order with errors.Is. Anything not listed is an
// internal error and its message is not exposed.
var errorTable = []errorMapping{
	{cart.ErrInvalidQuantity, http.StatusBadRequest, KindInvalidQuantity},
	{cart.ErrQuantityLimit, http.StatusBadRequest, KindInvalidQuantity},
	{order.ErrInvalidQuantity, http.StatusBadRequest, KindInvalidQuantity},
	{product.ErrProductNotFound, http.StatusNotFound, KindProductNotFound},
	{authz.ErrUnauthenticated, http.StatusUnauthorized, KindUnauthenticated},
	{authz.ErrForbidden, http.StatusForbidden, KindForbidden},

	{cart.ErrItemNotFound, http.StatusNotFound, KindNotFound},
	{order.ErrOrderNotFound, http.StatusNotFound, KindNotFound},
	{order.ErrItemNotFound, http.StatusNotFound, KindNotFound},
	{user.ErrUserNotFound, http.StatusNotFound, KindNotFound},
	{category.ErrCategoryNotFound, http.StatusNotFound, KindNotFound},

	{user.ErrInvalidCredentials, http.StatusUnauthorized, KindUnauthenticated},
	{auth.ErrInvalidToken, http.StatusUnauthorized, KindUnauthenticated},
	{auth.ErrExpiredToken, http.StatusUnauthorized, KindUnauthenticated},
	{user.ErrUserDeactivated, http.StatusForbidden, KindForbidden},
	{user.ErrEmailTaken, http.StatusConflict, KindConflict},
	{product.ErrProductInUse, http.StatusConflict, KindConflict},
	{category.ErrSlugTaken, http.StatusConflict, KindConflict},

	{order.ErrEmptyCart, http.StatusBadRequest, KindValidation},
	{order.ErrEmptyOrder, http.StatusBadRequest, KindValidation},
	{product.ErrInvalidName, http.StatusBadRequest, KindValidation},
	{product.ErrInvalidPrice, http.StatusBadRequest, KindValidation},
	{category.ErrInvalidName, http.StatusBadRequest, KindValidation},
	{category.ErrInvalidSlug, http.StatusBadRequest, KindValidation},
	{user.ErrInvalidEmail, http.StatusBadRequest, KindValidation},
	{user.ErrInvalidName, http.StatusBadRequest, KindValidation},
	{auth.ErrPasswordTooShort, http.StatusBadRequest, KindValidation},
	{auth.ErrPasswordTooLong, http.StatusBadRequest, KindValidation},
	{model.ErrInvalidRole, http.StatusBadRequest, KindValidation},
}

// classify maps err to its HTTP status, kind and client-facing message
func classify(err error) (int, string, string) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, m.kind, m.err.Error()
		}
	}
	return http.StatusInternalServerError, KindInternal, "internal server error"
}

// respondError writes err as a JSON error response
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, message := classify(err)
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	respondJSONError(w, message, kind, status)
}

// respondJSONError writes a JSON error response
func respondJSONError(w http.ResponseWriter, message, kind string, status int) {
	respondJSON(w, status, ErrorResponse{Error: message, Kind: kind})
}

func badRequest(w http.ResponseWriter, message string) {
	respondJSONError(w, message, KindValidation, http.StatusBadRequest)
}
