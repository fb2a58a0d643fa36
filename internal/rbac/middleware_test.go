package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/198cad/orcish-dashboard/internal/shared"
)

type denialRecorder struct {
	denied []string
}

func (d *denialRecorder) CountDenial(permission string) {
	d.denied = append(d.denied, permission)
}

func requestAs(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	if userID == "" {
		return req
	}
	sess := &shared.Session{}
	sess.SetUser(userID)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

// guardFor builds a Middleware whose single known user holds exactly perms
// through one direct role.
func guardFor(t *testing.T, perms ...string) (Middleware, uuid.UUID, *denialRecorder) {
	t.Helper()
	user := uuid.New()
	role := uuid.New()
	store := &stubResolverStore{
		users:     map[uuid.UUID]bool{user: true},
		direct:    map[uuid.UUID][]uuid.UUID{user: {role}},
		rolePerms: map[uuid.UUID][]string{role: perms},
	}
	denials := &denialRecorder{}
	m := Middleware{
		Resolver: NewResolver(nil, store, stubAncestors{}, nil),
		Denials:  denials,
	}
	return m, user, denials
}

func serve(m func(http.Handler) http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	m(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, req)
	return rec
}

func TestRequireAnyAllowsGrantedUser(t *testing.T) {
	guard, user, denials := guardFor(t, "users.view")

	rec := serve(guard.RequireAny("users.view"), requestAs(user.String()))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if len(denials.denied) != 0 {
		t.Fatalf("expected no denials, got %v", denials.denied)
	}
}

func TestRequireAnyRejectsAnonymous(t *testing.T) {
	guard, _, denials := guardFor(t, "users.view")

	rec := serve(guard.RequireAny("users.view"), requestAs(""))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for anonymous request, got %d", rec.Code)
	}
	if len(denials.denied) != 1 || denials.denied[0] != "users.view" {
		t.Fatalf("expected denial counted, got %v", denials.denied)
	}
}

func TestRequireAnyRejectsMissingPermission(t *testing.T) {
	guard, user, _ := guardFor(t, "users.view")

	rec := serve(guard.RequireAny("users.edit"), requestAs(user.String()))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireAllNeedsEveryPermission(t *testing.T) {
	guard, user, _ := guardFor(t, "users.view", "users.edit")

	if rec := serve(guard.RequireAll("users.view", "users.edit"), requestAs(user.String())); rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
	if rec := serve(guard.RequireAll("users.view", "roles.edit"), requestAs(user.String())); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 when one permission is missing, got %d", rec.Code)
	}
}

func TestRequireAnyNormalizesCase(t *testing.T) {
	guard, user, _ := guardFor(t, "users.view")

	if rec := serve(guard.RequireAny("  USERS.VIEW "), requestAs(user.String())); rec.Code != http.StatusNoContent {
		t.Fatalf("expected case-insensitive permission match, got %d", rec.Code)
	}
}

func TestRequireAnyRejectsGarbageSessionUser(t *testing.T) {
	guard, _, _ := guardFor(t, "users.view")

	rec := serve(guard.RequireAny("users.view"), requestAs("not-a-uuid"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unparseable session user, got %d", rec.Code)
	}
}

func TestNormalizePermissionsDedupes(t *testing.T) {
	got := normalizePermissions([]string{"a", "A", " a ", "", "b"})
	if len(got) != 2 {
		t.Fatalf("expected 2 unique permissions, got %v", got)
	}
}
