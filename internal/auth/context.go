package auth

import (
	"context"

	"github.com/google/uuid"
)

// identity is the Provider consulted when resolving the request actor.
var identity Provider = SessionProvider{}

// ActorID returns the current session user as an audit actor reference, nil
// when the request is unauthenticated.
func ActorID(ctx context.Context) *uuid.UUID {
	id, ok := identity.CurrentUserID(ctx)
	if !ok {
		return nil
	}
	return &id
}
