package auditlog

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/promptdeck/promptdeck/internal/app/store/audit"
	"github.com/promptdeck/promptdeck/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func newTestLogger(t *testing.T, cfg Config) (*Logger, *audit.Store) {
	t.Helper()
	store := audit.New(testutil.SetupTestDB(t))
	return New(store, zap.NewNop(), cfg), store
}

func TestLogger_NilIsNoop(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	var l *Logger
	// Must not panic; handlers call these without checking for nil.
	l.Log(ctx, audit.Event{Category: audit.CategoryAuth, EventType: audit.EventLogout})
	l.LoginFailedUserNotFound(ctx, httptest.NewRequest(http.MethodPost, "/login", nil), "x@test.com")
}

func TestLogger_CategoryToggles(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	t.Run("off skips the store", func(t *testing.T) {
		l, store := newTestLogger(t, Config{Auth: "off", Admin: "off"})
		l.Log(ctx, audit.Event{Category: audit.CategoryAuth, EventType: audit.EventLogout})

		n, err := store.CountByFilter(ctx, audit.QueryFilter{})
		if err != nil {
			t.Fatalf("CountByFilter() error: %v", err)
		}
		if n != 0 {
			t.Errorf("count = %d, want 0 with auditing off", n)
		}
	})

	t.Run("log-only skips the store", func(t *testing.T) {
		l, store := newTestLogger(t, Config{Auth: "log", Admin: "log"})
		l.Log(ctx, audit.Event{Category: audit.CategoryAuth, EventType: audit.EventLogout})

		n, err := store.CountByFilter(ctx, audit.QueryFilter{})
		if err != nil {
			t.Fatalf("CountByFilter() error: %v", err)
		}
		if n != 0 {
			t.Errorf("count = %d, want 0 in log-only mode", n)
		}
	})

	t.Run("all persists per category", func(t *testing.T) {
		l, store := newTestLogger(t, Config{Auth: "all", Admin: "off"})
		l.Log(ctx, audit.Event{Category: audit.CategoryAuth, EventType: audit.EventLogout})
		l.Log(ctx, audit.Event{Category: audit.CategoryAdmin, EventType: audit.EventUserDeleted})

		events, err := store.GetRecent(ctx, 10)
		if err != nil {
			t.Fatalf("GetRecent() error: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("len = %d, want only the auth event", len(events))
		}
		if events[0].EventType != audit.EventLogout {
			t.Errorf("event = %q, want %q", events[0].EventType, audit.EventLogout)
		}
	})
}

func TestLogger_LoginHelpers(t *testing.T) {
	l, store := newTestLogger(t, Config{Auth: "db", Admin: "db"})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.Header.Set("User-Agent", "test-agent")

	l.LoginSuccess(ctx, req, userID, "password", "helper@test.com")
	l.LoginFailedWrongPassword(ctx, req, userID, "helper@test.com")

	events, err := store.GetByUser(ctx, userID, 10)
	if err != nil {
		t.Fatalf("GetByUser() error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}

	byType := make(map[string]audit.Event, len(events))
	for _, e := range events {
		byType[e.EventType] = e
	}

	success, ok := byType[audit.EventLoginSuccess]
	if !ok {
		t.Fatal("login_success event missing")
	}
	if !success.Success {
		t.Error("login_success should be marked successful")
	}
	if success.Details["email"] != "helper@test.com" {
		t.Errorf("email detail = %q", success.Details["email"])
	}
	if success.UserAgent != "test-agent" {
		t.Errorf("UserAgent = %q", success.UserAgent)
	}

	failed, ok := byType[audit.EventLoginFailedWrongPassword]
	if !ok {
		t.Fatal("login_failed_wrong_password event missing")
	}
	if failed.Success {
		t.Error("failed login should not be marked successful")
	}
	if failed.FailureReason == "" {
		t.Error("failed login should carry a failure reason")
	}
}

func TestLogger_AdminHelpers(t *testing.T) {
	l, store := newTestLogger(t, Config{Auth: "db", Admin: "db"})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	actorID := primitive.NewObjectID()
	targetID := primitive.NewObjectID()
	req := httptest.NewRequest(http.MethodPost, "/admin/users", nil)

	l.UserCreated(ctx, req, actorID, targetID, "admin", "password")
	l.RoleAssigned(ctx, req, actorID, targetID, "admin")

	events, err := store.Query(ctx, audit.QueryFilter{ActorID: &actorID})
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	for _, e := range events {
		if e.Category != audit.CategoryAdmin {
			t.Errorf("category = %q, want %q", e.Category, audit.CategoryAdmin)
		}
		if e.UserID == nil || *e.UserID != targetID {
			t.Error("admin events should record the affected user")
		}
	}
}
