package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/198cad/orcish-dashboard/internal/platform/db"
	"github.com/198cad/orcish-dashboard/internal/shared"
)

type stubCredentialStore struct {
	id        uuid.UUID
	hash      string
	active    bool
	credErr   error
	touchErr  error
	touchedID uuid.UUID
}

func (s *stubCredentialStore) Credential(_ context.Context, _ db.Queryer, _ string) (uuid.UUID, string, bool, error) {
	return s.id, s.hash, s.active, s.credErr
}

func (s *stubCredentialStore) TouchLastLogin(_ context.Context, _ db.Queryer, id uuid.UUID) error {
	s.touchedID = id
	return s.touchErr
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
}

func TestVerifyReturnsUserID(t *testing.T) {
	store := &stubCredentialStore{id: uuid.New(), hash: mustHash(t, "s3cret"), active: true}
	v := NewLocalVerifier(nil, store, nil)

	id, err := v.Verify(context.Background(), "pat", "s3cret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id != store.id {
		t.Fatalf("id = %s, want %s", id, store.id)
	}
	if store.touchedID != store.id {
		t.Fatalf("last login not touched for %s", store.id)
	}
}

func TestVerifyCollapsesFailures(t *testing.T) {
	cases := map[string]*stubCredentialStore{
		"store error":    {credErr: errors.New("down")},
		"inactive":       {id: uuid.New(), hash: mustHash(t, "s3cret"), active: false},
		"empty hash":     {id: uuid.New(), active: true},
		"wrong password": {id: uuid.New(), hash: mustHash(t, "other"), active: true},
	}
	for name, store := range cases {
		t.Run(name, func(t *testing.T) {
			v := NewLocalVerifier(nil, store, nil)
			if _, err := v.Verify(context.Background(), "pat", "s3cret"); !errors.Is(err, shared.ErrInvalidCredentials) {
				t.Fatalf("err = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestVerifySucceedsWhenTouchFails(t *testing.T) {
	store := &stubCredentialStore{
		id:       uuid.New(),
		hash:     mustHash(t, "s3cret"),
		active:   true,
		touchErr: errors.New("write timeout"),
	}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	v := NewLocalVerifier(nil, store, logger)

	id, err := v.Verify(context.Background(), "pat", "s3cret")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id != store.id {
		t.Fatalf("id = %s, want %s", id, store.id)
	}
	if !bytes.Contains(buf.Bytes(), []byte("touch last login")) {
		t.Fatalf("expected touch failure warning, log: %s", buf.String())
	}
}
