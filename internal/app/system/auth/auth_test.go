package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const testKey = "abcdef0123456789abcdef0123456789abcdef01"

func newManager(t *testing.T) *SessionManager {
	t.Helper()
	sm, err := NewSessionManager(testKey, "", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager() error: %v", err)
	}
	return sm
}

// stubFetcher serves canned users by hex id.
type stubFetcher struct {
	users map[string]*SessionUser
}

func (f stubFetcher) FetchUser(_ context.Context, userID string) *SessionUser {
	return f.users[userID]
}

func TestNewSessionManager_KeyPolicy(t *testing.T) {
	logger := zap.NewNop()

	t.Run("empty key fails", func(t *testing.T) {
		if _, err := NewSessionManager("", "", "", time.Hour, false, logger); err == nil {
			t.Error("empty session key should be rejected")
		}
	})

	t.Run("short key fails in secure mode", func(t *testing.T) {
		if _, err := NewSessionManager("short", "", "", time.Hour, true, logger); err == nil {
			t.Error("short key should be rejected when secure")
		}
	})

	t.Run("placeholder key fails in secure mode", func(t *testing.T) {
		key := "change-me-change-me-change-me-change-me!"
		if _, err := NewSessionManager(key, "", "", time.Hour, true, logger); err == nil {
			t.Error("placeholder key should be rejected when secure")
		}
	})

	t.Run("short key is allowed in dev mode", func(t *testing.T) {
		if _, err := NewSessionManager("short", "", "", time.Hour, false, logger); err != nil {
			t.Errorf("dev mode should tolerate a weak key, got %v", err)
		}
	})

	t.Run("cookie name defaults", func(t *testing.T) {
		sm := newManager(t)
		if got := sm.SessionName(); got != "promptdeck-session" {
			t.Errorf("SessionName() = %q, want %q", got, "promptdeck-session")
		}
	})
}

// roundTrip creates a session, replays its cookies through LoadSessionUser,
// and returns whatever landed in the request context.
func roundTrip(t *testing.T, sm *SessionManager, userID primitive.ObjectID, email, role string) (*SessionUser, bool) {
	t.Helper()

	rec := httptest.NewRecorder()
	if err := sm.CreateSession(rec, httptest.NewRequest(http.MethodPost, "/login", nil), userID, email, role, ""); err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}

	var got *SessionUser
	var ok bool
	handler := sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = CurrentUser(r)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got, ok
}

func TestSessionRoundTrip(t *testing.T) {
	sm := newManager(t)
	userID := primitive.NewObjectID()

	user, ok := roundTrip(t, sm, userID, "round@test.com", "member")
	if !ok {
		t.Fatal("session cookie did not yield a user")
	}
	if user.ID != userID.Hex() {
		t.Errorf("ID = %q, want %q", user.ID, userID.Hex())
	}
	if user.Email != "round@test.com" {
		t.Errorf("Email = %q, want %q", user.Email, "round@test.com")
	}
	if user.Role != "member" {
		t.Errorf("Role = %q, want %q", user.Role, "member")
	}
	if user.Token == "" {
		t.Error("session should carry a generated token")
	}
	if user.UserID() != userID {
		t.Errorf("UserID() = %v, want %v", user.UserID(), userID)
	}
}

func TestLoadSessionUser_FetcherOverridesSnapshot(t *testing.T) {
	sm := newManager(t)
	userID := primitive.NewObjectID()

	// The DB says member even though the cookie snapshot says admin.
	sm.SetUserFetcher(stubFetcher{users: map[string]*SessionUser{
		userID.Hex(): {ID: userID.Hex(), Name: "Fresh", Email: "fresh@test.com", Role: "member"},
	}})

	user, ok := roundTrip(t, sm, userID, "stale@test.com", "admin")
	if !ok {
		t.Fatal("session cookie did not yield a user")
	}
	if user.Role != "member" {
		t.Errorf("Role = %q, want the fetched value %q", user.Role, "member")
	}
	if user.Email != "fresh@test.com" {
		t.Errorf("Email = %q, want the fetched value %q", user.Email, "fresh@test.com")
	}
	if user.Token == "" {
		t.Error("token from the cookie should survive the fetch")
	}
}

func TestLoadSessionUser_MissingUserInvalidatesSession(t *testing.T) {
	sm := newManager(t)
	sm.SetUserFetcher(stubFetcher{users: map[string]*SessionUser{}})

	_, ok := roundTrip(t, sm, primitive.NewObjectID(), "gone@test.com", "member")
	if ok {
		t.Error("deleted or disabled users should not get a context user")
	}
}

func TestLoadSessionUser_TamperedCookie(t *testing.T) {
	sm := newManager(t)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: sm.SessionName(), Value: "garbage-value"})

	nextCalled := false
	var ok bool
	handler := sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		_, ok = CurrentUser(r)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !nextCalled {
		t.Fatal("a bad cookie must not fail the request")
	}
	if ok {
		t.Error("a bad cookie must not yield a user")
	}
}

func TestDestroySession(t *testing.T) {
	sm := newManager(t)
	userID := primitive.NewObjectID()

	rec := httptest.NewRecorder()
	if err := sm.CreateSession(rec, httptest.NewRequest(http.MethodPost, "/login", nil), userID, "bye@test.com", "member", ""); err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}

	logoutReq := httptest.NewRequest(http.MethodPost, "/logout", nil)
	for _, c := range rec.Result().Cookies() {
		logoutReq.AddCookie(c)
	}
	logoutRec := httptest.NewRecorder()
	sm.DestroySession(logoutRec, logoutReq)

	// Replaying the post-logout cookie yields no user.
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	for _, c := range logoutRec.Result().Cookies() {
		req.AddCookie(c)
	}
	var ok bool
	handler := sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = CurrentUser(r)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if ok {
		t.Error("destroyed session should not yield a user")
	}
}

func TestRequireSignedIn(t *testing.T) {
	sm := newManager(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("browser is redirected with return", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/projects?page=2", nil)
		req.Header.Set("Accept", "text/html")
		rec := httptest.NewRecorder()

		sm.RequireSignedIn(next).ServeHTTP(rec, req)

		if rec.Code != http.StatusSeeOther {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusSeeOther)
		}
		loc := rec.Header().Get("Location")
		if !strings.HasPrefix(loc, "/login?return=") {
			t.Errorf("Location = %q, want a /login?return= redirect", loc)
		}
		if !strings.Contains(loc, "%2Fprojects") {
			t.Errorf("Location = %q, should carry the escaped original URI", loc)
		}
	})

	t.Run("api caller gets 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/projects", nil)
		rec := httptest.NewRecorder()

		sm.RequireSignedIn(next).ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("user in context passes", func(t *testing.T) {
		req := WithTestUser(httptest.NewRequest(http.MethodGet, "/projects", nil), &SessionUser{ID: primitive.NewObjectID().Hex(), Role: "member"})
		rec := httptest.NewRecorder()

		sm.RequireSignedIn(next).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})
}

func TestRequireJSONUser(t *testing.T) {
	sm := newManager(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("anonymous gets a JSON 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		sm.RequireJSONUser(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/projects", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if body := rec.Body.String(); !strings.Contains(body, "Authentication required") {
			t.Errorf("body = %q, want an Authentication required error", body)
		}
	})

	t.Run("user in context passes", func(t *testing.T) {
		req := WithTestUser(httptest.NewRequest(http.MethodGet, "/api/projects", nil), &SessionUser{ID: primitive.NewObjectID().Hex()})
		rec := httptest.NewRecorder()
		sm.RequireJSONUser(next).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})
}

func TestRequireRole(t *testing.T) {
	sm := newManager(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	adminOnly := sm.RequireRole("admin")(next)

	t.Run("matching role passes", func(t *testing.T) {
		req := WithTestUser(httptest.NewRequest(http.MethodGet, "/admin", nil), &SessionUser{Role: "admin"})
		rec := httptest.NewRecorder()
		adminOnly.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("role comparison is case insensitive", func(t *testing.T) {
		req := WithTestUser(httptest.NewRequest(http.MethodGet, "/admin", nil), &SessionUser{Role: " Admin "})
		rec := httptest.NewRecorder()
		adminOnly.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("wrong role forbidden", func(t *testing.T) {
		req := WithTestUser(httptest.NewRequest(http.MethodGet, "/admin", nil), &SessionUser{Role: "member"})
		rec := httptest.NewRecorder()
		adminOnly.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("wrong role browser redirects to forbidden", func(t *testing.T) {
		req := WithTestUser(httptest.NewRequest(http.MethodGet, "/admin", nil), &SessionUser{Role: "member"})
		req.Header.Set("Accept", "text/html")
		rec := httptest.NewRecorder()
		adminOnly.ServeHTTP(rec, req)
		if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/forbidden" {
			t.Errorf("got %d %q, want 303 /forbidden", rec.Code, rec.Header().Get("Location"))
		}
	})

	t.Run("anonymous unauthorized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		adminOnly.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})
}

func TestGenerateSessionToken(t *testing.T) {
	a, err := GenerateSessionToken()
	if err != nil {
		t.Fatalf("GenerateSessionToken() error: %v", err)
	}
	b, err := GenerateSessionToken()
	if err != nil {
		t.Fatalf("GenerateSessionToken() error: %v", err)
	}
	if a == b {
		t.Error("tokens should be unique")
	}
	if len(a) < 32 {
		t.Errorf("token length = %d, want at least 32", len(a))
	}
}
