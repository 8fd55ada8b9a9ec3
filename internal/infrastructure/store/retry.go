package store

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// RetryOnConflict runs fn in a transaction and runs it once more if the
// first attempt lost a race. A second conflict is returned wrapped.
func RetryOnConflict(ctx context.Context, s Store, fn func(tx Tx) error) error {
	err := s.WithinTx(ctx, fn)
	if !errors.Is(err, ErrConflict) {
		return err
	}

	log.Printf("[Store] Transaction conflict, retrying: %v", err)
	err = s.WithinTx(ctx, fn)
	if errors.Is(err, ErrConflict) {
		return fmt.Errorf("transaction retry failed: %w", err)
	}
	return err
}
