package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/ec-shop-core/internal/infrastructure/store"
	"github.com/example/ec-shop-core/internal/model"
)

// MergeResult describes what MergeOnLogin did
type MergeResult struct {
	// Merged is false when there was nothing to merge
	Merged          bool   `json:"merged"`
	CartID          string `json:"cart_id,omitempty"`
	AnonymousCartID string `json:"anonymous_cart_id,omitempty"`
	// Moved counts lines re-parented onto the user's cart
	Moved int `json:"moved"`
	// Incremented counts lines folded into an existing line
	Incremented int `json:"incremented"`
	// Capped counts folded lines whose sum was cut to the line limit
	Capped int `json:"capped,omitempty"`
}

// MergeOnLogin folds the cart of anonymous session sessionID into the
// cart of userID and deletes the anonymous cart, all in one transaction.
// Lines for products the user already has add their quantity and keep the
// user's price, up to model.MaxLineQuantity; other lines move over
// unchanged. With no session or no
// anonymous cart nothing happens and no cart is created.
func (s *Service) MergeOnLogin(ctx context.Context, sessionID, userID string) (*MergeResult, error) {
	if sessionID == "" {
		return &MergeResult{}, nil
	}
	if userID == "" {
		return nil, ErrInvalidOwner
	}

	anonOwner := model.SessionOwner(sessionID)
	userOwner := model.UserOwner(userID)

	var result *MergeResult
	err := store.RetryOnConflict(ctx, s.store, func(tx store.Tx) error {
		result = &MergeResult{}

		anon, err := tx.LockCart(ctx, anonOwner)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		target, _, err := s.getOrCreate(ctx, tx, userOwner)
		if err != nil {
			return err
		}

		anonItems, err := tx.ListCartItems(ctx, anon.ID)
		if err != nil {
			return err
		}
		targetItems, err := tx.ListCartItems(ctx, target.ID)
		if err != nil {
			return err
		}
		existing := make(map[string]model.CartItem, len(targetItems))
		for _, item := range targetItems {
			existing[item.ProductID] = item
		}

		for _, item := range anonItems {
			if line, ok := existing[item.ProductID]; ok {
				add := item.Quantity
				if room := model.MaxLineQuantity - line.Quantity; add > room {
					add = room
					result.Capped++
				}
				if add > 0 {
					if _, err := tx.IncrementCartItem(ctx, line.ID, add); err != nil {
						return fmt.Errorf("increment %s: %w", item.ProductID, err)
					}
				}
				result.Incremented++
				continue
			}
			if err := tx.MoveCartItem(ctx, item.ID, target.ID); err != nil {
				return fmt.Errorf("move %s: %w", item.ProductID, err)
			}
			result.Moved++
		}

		// Remaining lines were folded in above and go with the cart
		if err := tx.DeleteCart(ctx, anon.ID); err != nil {
			return fmt.Errorf("delete anonymous cart: %w", err)
		}

		result.Merged = true
		result.CartID = target.ID
		result.AnonymousCartID = anon.ID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("merge cart: %w", err)
	}
	if !result.Merged {
		return result, nil
	}

	log.Printf("[Cart] Merged cart %s into %s for user %s (moved=%d incremented=%d capped=%d)",
		result.AnonymousCartID, result.CartID, userID, result.Moved, result.Incremented, result.Capped)

	if s.sessions != nil {
		if err := s.sessions.SetCartID(ctx, sessionID, result.CartID); err != nil {
			log.Printf("[Cart] Failed to repoint session cart: %v", err)
		}
	}
	s.invalidate(ctx, anonOwner, userOwner)
	s.events.Emit(ctx, result.CartID, AggregateType, EventCartMerged, CartMerged{
		CartID:          result.CartID,
		UserID:          userID,
		AnonymousCartID: result.AnonymousCartID,
		Moved:           result.Moved,
		Incremented:     result.Incremented,
		MergedAt:        time.Now().UTC(),
	})
	return result, nil
}
