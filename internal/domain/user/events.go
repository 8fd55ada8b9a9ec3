package user

import (
	"time"

	"github.com/example/ec-shop-core/internal/model"
)

const (
	EventUserRegistered = "UserRegistered"
	EventUserLoggedIn   = "UserLoggedIn"
)

// UserRegistered is emitted when a new user is registered
type UserRegistered struct {
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      model.Role `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}

// UserLoggedIn is emitted when user successfully logs in
type UserLoggedIn struct {
	UserID   string    `json:"user_id"`
	LoggedAt time.Time `json:"logged_at"`
}
