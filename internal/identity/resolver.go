// Package identity decides which owner key a request's cart belongs to.
package identity

import (
	"context"
	"fmt"

	"github.com/example/ec-shop-core/internal/model"
	"github.com/example/ec-shop-core/internal/session"
)

// Resolution is the outcome of ResolveOwner
type Resolution struct {
	Owner model.OwnerKey
	// SessionID is the anonymous session in effect, if any
	SessionID string
	// SessionCreated is set when a new session was started and must be
	// persisted by the transport
	SessionCreated bool
}

type Resolver struct {
	sessions session.Store
}

func NewResolver(sessions session.Store) *Resolver {
	return &Resolver{sessions: sessions}
}

// ResolveOwner returns the user owner key for an authenticated principal.
// For anonymous callers it uses the presented session when it is live, or
// starts a new one.
func (r *Resolver) ResolveOwner(ctx context.Context, principal *model.Principal, sessionID string) (Resolution, error) {
	if principal != nil && principal.UserID != "" {
		return Resolution{Owner: model.UserOwner(principal.UserID), SessionID: sessionID}, nil
	}

	if sessionID != "" {
		ok, err := r.sessions.Exists(ctx, sessionID)
		if err != nil {
			return Resolution{}, fmt.Errorf("check session: %w", err)
		}
		if ok {
			return Resolution{Owner: model.SessionOwner(sessionID), SessionID: sessionID}, nil
		}
	}

	id, err := r.sessions.Create(ctx)
	if err != nil {
		return Resolution{}, fmt.Errorf("create session: %w", err)
	}
	return Resolution{
		Owner:          model.SessionOwner(id),
		SessionID:      id,
		SessionCreated: true,
	}, nil
}

// AnonymousSession returns sessionID if it names a live session, or "".
// It never creates a session.
func (r *Resolver) AnonymousSession(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", nil
	}
	ok, err := r.sessions.Exists(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("check session: %w", err)
	}
	if !ok {
		return "", nil
	}
	return sessionID, nil
}

// EndSession discards an anonymous session. Unknown ids are ignored.
func (r *Resolver) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := r.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}
