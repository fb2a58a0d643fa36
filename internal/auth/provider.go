// Package auth is the boundary with the external authentication provider.
// The core never validates credentials itself; it only consumes an
// authenticated user identifier per request.
package auth

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

// Provider supplies the authenticated user id for the current request.
type Provider interface {
	CurrentUserID(ctx context.Context) (uuid.UUID, bool)
}

// SessionProvider resolves the current user from the request session.
type SessionProvider struct{}

// CurrentUserID reads the user id stored in the session, if any.
func (SessionProvider) CurrentUserID(ctx context.Context) (uuid.UUID, bool) {
	sess := shared.SessionFromContext(ctx)
	if sess == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(sess.User())
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// CredentialStore reads stored credentials for the local verifier.
type CredentialStore interface {
	Credential(ctx context.Context, q db.Queryer, username string) (uuid.UUID, string, bool, error)
	TouchLastLogin(ctx context.Context, q db.Queryer, id uuid.UUID) error
}

// LocalVerifier checks username/password pairs against the users table. It
// stands in for the external provider on local deployments, mirroring the
// original platform's email+password adapter.
type LocalVerifier struct {
	q      db.Queryer
	store  CredentialStore
	logger *slog.Logger
}

// NewLocalVerifier builds a LocalVerifier. A nil logger falls back to the
// process default.
func NewLocalVerifier(q db.Queryer, store CredentialStore, logger *slog.Logger) *LocalVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalVerifier{q: q, store: store, logger: logger}
}

// Verify returns the user id when the credentials match an active account.
// Every failure mode collapses into ErrInvalidCredentials.
func (v *LocalVerifier) Verify(ctx context.Context, username, password string) (uuid.UUID, error) {
	id, hash, active, err := v.store.Credential(ctx, v.q, username)
	if err != nil {
		return uuid.Nil, shared.ErrInvalidCredentials
	}
	if !active || hash == "" {
		return uuid.Nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return uuid.Nil, shared.ErrInvalidCredentials
	}
	if err := v.store.TouchLastLogin(ctx, v.q, id); err != nil {
		v.logger.Warn("touch last login", slog.String("user_id", id.String()), slog.Any("error", err))
	}
	return id, nil
}
