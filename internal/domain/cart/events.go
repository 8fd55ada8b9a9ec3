package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventItemAdded   = "CartItemAdded"
	EventItemRemoved = "CartItemRemoved"
	EventCartCleared = "CartCleared"
	EventCartMerged  = "CartMerged"
)

type CartItemAdded struct {
	CartID       string          `json:"cart_id"`
	UserID       string          `json:"user_id,omitempty"`
	ProductID    string          `json:"product_id"`
	Quantity     int             `json:"quantity"`
	LineQuantity int             `json:"line_quantity"`
	Price        decimal.Decimal `json:"price"`
	AddedAt      time.Time       `json:"added_at"`
}

type CartItemRemoved struct {
	CartID    string    `json:"cart_id"`
	UserID    string    `json:"user_id,omitempty"`
	ProductID string    `json:"product_id"`
	RemovedAt time.Time `json:"removed_at"`
}

type CartCleared struct {
	CartID    string    `json:"cart_id"`
	UserID    string    `json:"user_id,omitempty"`
	ClearedAt time.Time `json:"cleared_at"`
}

type CartMerged struct {
	CartID          string    `json:"cart_id"`
	UserID          string    `json:"user_id"`
	AnonymousCartID string    `json:"anonymous_cart_id"`
	Moved           int       `json:"moved"`
	Incremented     int       `json:"incremented"`
	MergedAt        time.Time `json:"merged_at"`
}
