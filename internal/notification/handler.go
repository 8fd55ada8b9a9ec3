// Package notification turns domain events into customer notifications.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/example/ec-shop-core/internal/domain/order"
	"github.com/example/ec-shop-core/internal/email"
	"github.com/example/ec-shop-core/internal/event"
	"github.com/example/ec-shop-core/internal/infrastructure/store"
	"github.com/shopspring/decimal"
)

// Mailer sends order confirmations
type Mailer interface {
	SendOrderConfirmation(to, orderID string, total decimal.Decimal, items []email.OrderItem) error
}

// Handler processes events for sending notifications
type Handler struct {
	mailer Mailer
	reader store.Reader
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer, reader store.Reader) *Handler {
	return &Handler{
		mailer: mailer,
		reader: reader,
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var evt event.Event
	if err := json.Unmarshal(value, &evt); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	// Only process OrderPlaced events
	if evt.EventType == order.EventOrderPlaced {
		return h.handleOrderPlaced(ctx, evt)
	}

	return nil
}

func (h *Handler) handleOrderPlaced(ctx context.Context, evt event.Event) error {
	var e order.OrderPlaced
	if err := evt.Decode(&e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderPlaced event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing OrderPlaced event for order %s, user %s", e.OrderID, e.UserID)

	u, err := h.reader.GetUser(ctx, e.UserID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("[Notifier] User not found: %s", e.UserID)
		return nil
	}
	if err != nil {
		log.Printf("[Notifier] Error getting user %s: %v", e.UserID, err)
		return err
	}

	emailItems := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		emailItems[i] = email.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
		// Deleted products are listed by ID
		if p, err := h.reader.GetProduct(ctx, item.ProductID); err == nil {
			emailItems[i].Name = p.Name
		}
	}

	if err := h.mailer.SendOrderConfirmation(u.Email, e.OrderID, e.Total, emailItems); err != nil {
		log.Printf("[Notifier] Failed to send email to %s: %v", u.Email, err)
		return err
	}

	log.Printf("[Notifier] Order confirmation email sent to %s for order %s", u.Email, e.OrderID)
	return nil
}
