package login

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	errorsfeature "github.com/promptdeck/promptdeck/internal/app/features/errors"
	"github.com/promptdeck/promptdeck/internal/app/store/ratelimit"
	rolestore "github.com/promptdeck/promptdeck/internal/app/store/roles"
	userstore "github.com/promptdeck/promptdeck/internal/app/store/users"
	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/app/system/authutil"
	"github.com/promptdeck/promptdeck/internal/domain/models"
	"github.com/promptdeck/promptdeck/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T, rateLimitStore *ratelimit.Store) (*Handler, *mongo.Database) {
	t.Helper()
	testutil.MustBootTemplates(t)

	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	sessionMgr, err := auth.NewSessionManager("test-session-key-0123456789abcdef0123456789abcdef", "", "", time.Hour, false, logger)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}

	h := NewHandler(db, sessionMgr, errorsfeature.NewErrorLogger(logger), nil, rateLimitStore, false, logger)
	return h, db
}

func seedUser(t *testing.T, db *mongo.Database, email, password, status string) models.User {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	hash, err := authutil.HashPassword(password)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user, err := userstore.New(db).Create(ctx, userstore.CreateInput{
		FullName:     "Test User",
		Email:        email,
		AuthMethod:   models.AuthPassword,
		PasswordHash: &hash,
		Status:       status,
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func postLogin(h *Handler, form url.Values) *testutil.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = testutil.WithCSRFToken(req)

	rec := testutil.NewRecorder()
	h.handlePasswordLogin(rec.ResponseRecorder, req)
	return rec
}

func TestPasswordLogin_Success(t *testing.T) {
	h, db := newTestHandler(t, nil)
	seedUser(t, db, "login@test.com", "validpassword123", "active")

	rec := postLogin(h, url.Values{
		"email":    {"login@test.com"},
		"password": {"validpassword123"},
	})
	rec.AssertRedirect(t, "/dashboard")

	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Error("successful login should set a session cookie")
	}
}

func TestPasswordLogin_RoleSnapshot(t *testing.T) {
	h, db := newTestHandler(t, nil)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user := seedUser(t, db, "admin@test.com", "validpassword123", "active")
	if err := rolestore.New(db).Assign(ctx, user.ID, models.RoleAdmin); err != nil {
		t.Fatalf("failed to assign role: %v", err)
	}

	rec := postLogin(h, url.Values{
		"email":    {"admin@test.com"},
		"password": {"validpassword123"},
	})
	rec.AssertRedirect(t, "/dashboard")
}

func TestPasswordLogin_WrongPassword(t *testing.T) {
	h, db := newTestHandler(t, nil)
	seedUser(t, db, "login@test.com", "validpassword123", "active")

	rec := postLogin(h, url.Values{
		"email":    {"login@test.com"},
		"password": {"wrongpassword"},
	})
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "Invalid credentials")
}

func TestPasswordLogin_UnknownUser(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := postLogin(h, url.Values{
		"email":    {"nobody@test.com"},
		"password": {"whatever123"},
	})
	rec.AssertStatus(t, http.StatusOK)
	// Unknown user and wrong password are indistinguishable on purpose.
	rec.AssertContains(t, "Invalid credentials")
}

func TestPasswordLogin_DisabledUser(t *testing.T) {
	h, db := newTestHandler(t, nil)
	seedUser(t, db, "off@test.com", "validpassword123", "disabled")

	rec := postLogin(h, url.Values{
		"email":    {"off@test.com"},
		"password": {"validpassword123"},
	})
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "Account is disabled")
}

func TestPasswordLogin_MissingFields(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	rec := postLogin(h, url.Values{"email": {"x@test.com"}})
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "Enter your email and password.")
}

func TestPasswordLogin_ReturnURL(t *testing.T) {
	h, db := newTestHandler(t, nil)
	seedUser(t, db, "back@test.com", "validpassword123", "active")

	t.Run("relative return is honored", func(t *testing.T) {
		rec := postLogin(h, url.Values{
			"email":    {"back@test.com"},
			"password": {"validpassword123"},
			"return":   {"/admin/users"},
		})
		rec.AssertRedirect(t, "/admin/users")
	})

	t.Run("absolute return falls back to dashboard", func(t *testing.T) {
		rec := postLogin(h, url.Values{
			"email":    {"back@test.com"},
			"password": {"validpassword123"},
			"return":   {"https://evil.example.com/"},
		})
		rec.AssertRedirect(t, "/dashboard")
	})
}

func TestPasswordLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.MustBootTemplates(t)
	logger := zap.NewNop()

	sessionMgr, err := auth.NewSessionManager("test-session-key-0123456789abcdef0123456789abcdef", "", "", time.Hour, false, logger)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}

	rateLimitStore := ratelimit.New(db, 3, time.Minute, time.Minute)
	h := NewHandler(db, sessionMgr, errorsfeature.NewErrorLogger(logger), nil, rateLimitStore, false, logger)

	seedUser(t, db, "locked@test.com", "validpassword123", "active")

	form := url.Values{
		"email":    {"locked@test.com"},
		"password": {"wrongpassword"},
	}
	for i := 0; i < 3; i++ {
		postLogin(h, form)
	}

	// Lockout now rejects even the correct password.
	rec := postLogin(h, url.Values{
		"email":    {"locked@test.com"},
		"password": {"validpassword123"},
	})
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "Too many failed sign-in attempts")
}

func TestPasswordLogin_SuccessClearsRateLimit(t *testing.T) {
	db := testutil.SetupTestDB(t)
	testutil.MustBootTemplates(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	logger := zap.NewNop()

	sessionMgr, err := auth.NewSessionManager("test-session-key-0123456789abcdef0123456789abcdef", "", "", time.Hour, false, logger)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}

	rateLimitStore := ratelimit.New(db, 5, time.Minute, time.Minute)
	h := NewHandler(db, sessionMgr, errorsfeature.NewErrorLogger(logger), nil, rateLimitStore, false, logger)

	seedUser(t, db, "clean@test.com", "validpassword123", "active")

	postLogin(h, url.Values{"email": {"clean@test.com"}, "password": {"wrong1"}})
	postLogin(h, url.Values{"email": {"clean@test.com"}, "password": {"wrong2"}})

	rec := postLogin(h, url.Values{
		"email":    {"clean@test.com"},
		"password": {"validpassword123"},
	})
	rec.AssertRedirect(t, "/dashboard")

	attempt, err := rateLimitStore.GetAttempt(ctx, "clean@test.com")
	if err != nil {
		t.Fatalf("GetAttempt() error: %v", err)
	}
	if attempt != nil {
		t.Error("rate limit record should be cleared after a successful sign-in")
	}
}

func TestShowLogin_ErrorCodes(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	tests := []struct {
		code string
		want string
	}{
		{"invalid_state", "Sign-in link expired"},
		{"account_disabled", "Account is disabled."},
		{"service_unavailable", "Service temporarily unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/login?error="+tt.code, nil)
			req = testutil.WithCSRFToken(req)
			rec := testutil.NewRecorder()
			h.showLogin(rec.ResponseRecorder, req)
			rec.AssertStatus(t, http.StatusOK)
			rec.AssertContains(t, tt.want)
		})
	}
}

func TestCreateSession_RoleDefaultsToMember(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	// No role row exists for this user; the snapshot must fall back to
	// member rather than erroring.
	req := testutil.WithCSRFToken(httptest.NewRequest(http.MethodPost, "/login", nil))
	rec := testutil.NewRecorder()

	if err := h.createSession(rec.ResponseRecorder, req, primitive.NewObjectID(), "snap@test.com"); err != nil {
		t.Fatalf("createSession() error: %v", err)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Error("createSession should write the session cookie")
	}
}
