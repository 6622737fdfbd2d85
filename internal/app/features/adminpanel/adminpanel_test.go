package adminpanel

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	errorsfeature "github.com/promptdeck/promptdeck/internal/app/features/errors"
	rolestore "github.com/promptdeck/promptdeck/internal/app/store/roles"
	userstore "github.com/promptdeck/promptdeck/internal/app/store/users"
	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/domain/models"
	"github.com/promptdeck/promptdeck/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type panelEnv struct {
	router    http.Handler
	db        *mongo.Database
	userStore *userstore.Store
	roleStore *rolestore.Store
	admin     testutil.TestUser
}

func newPanelEnv(t *testing.T) *panelEnv {
	t.Helper()
	testutil.MustBootTemplates(t)

	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()

	sessionMgr, err := auth.NewSessionManager("test-session-key-0123456789abcdef0123456789abcdef", "", "", time.Hour, false, logger)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}

	h := NewHandler(db, errorsfeature.NewErrorLogger(logger), nil, logger)

	return &panelEnv{
		router:    Routes(h, sessionMgr),
		db:        db,
		userStore: userstore.New(db),
		roleStore: rolestore.New(db),
		admin:     testutil.AdminUser(),
	}
}

func (e *panelEnv) get(t *testing.T, target string, user *testutil.TestUser) *testutil.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if user != nil {
		req = testutil.WithUser(req, *user)
	}
	req = testutil.WithCSRFToken(req)

	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec.ResponseRecorder, req)
	return rec
}

func (e *panelEnv) post(t *testing.T, target string, form url.Values, user testutil.TestUser) *testutil.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = testutil.WithUser(req, user)
	req = testutil.WithCSRFToken(req)

	rec := testutil.NewRecorder()
	e.router.ServeHTTP(rec.ResponseRecorder, req)
	return rec
}

func (e *panelEnv) seedUser(t *testing.T, name, email string) models.User {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	user, err := e.userStore.Create(ctx, userstore.CreateInput{
		FullName:   name,
		Email:      email,
		AuthMethod: models.AuthGoogle,
	})
	if err != nil {
		t.Fatalf("failed to seed user %s: %v", email, err)
	}
	return user
}

func TestPanel_AccessControl(t *testing.T) {
	env := newPanelEnv(t)

	t.Run("anonymous is unauthorized", func(t *testing.T) {
		rec := env.get(t, "/users", nil)
		rec.AssertStatus(t, http.StatusUnauthorized)
	})

	t.Run("member is forbidden", func(t *testing.T) {
		member := testutil.MemberUser()
		rec := env.get(t, "/users", &member)
		rec.AssertStatus(t, http.StatusForbidden)
	})

	t.Run("admin can view the list", func(t *testing.T) {
		rec := env.get(t, "/users", &env.admin)
		rec.AssertStatus(t, http.StatusOK)
	})
}

func TestPanel_List(t *testing.T) {
	env := newPanelEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	alice := env.seedUser(t, "Alice", "alice@test.com")
	env.seedUser(t, "Bob", "bob@test.com")
	if err := env.roleStore.Assign(ctx, alice.ID, models.RoleAdmin); err != nil {
		t.Fatalf("failed to assign role: %v", err)
	}

	t.Run("lists all users", func(t *testing.T) {
		rec := env.get(t, "/users", &env.admin)
		rec.AssertStatus(t, http.StatusOK)
		rec.AssertContains(t, "alice@test.com")
		rec.AssertContains(t, "bob@test.com")
	})

	t.Run("search narrows by email prefix", func(t *testing.T) {
		rec := env.get(t, "/users?search=alice", &env.admin)
		rec.AssertStatus(t, http.StatusOK)
		rec.AssertContains(t, "alice@test.com")
		if strings.Contains(rec.Body.String(), "bob@test.com") {
			t.Error("search for alice should not return bob")
		}
	})

	t.Run("role filter selects admins", func(t *testing.T) {
		rec := env.get(t, "/users?role=admin", &env.admin)
		rec.AssertStatus(t, http.StatusOK)
		rec.AssertContains(t, "alice@test.com")
		if strings.Contains(rec.Body.String(), "bob@test.com") {
			t.Error("admin filter should not return members")
		}
	})

	t.Run("status filter selects disabled users", func(t *testing.T) {
		disabled := "disabled"
		bob, err := env.userStore.GetByEmail(ctx, "bob@test.com")
		if err != nil {
			t.Fatalf("failed to load bob: %v", err)
		}
		if err := env.userStore.Update(ctx, bob.ID, userstore.UpdateInput{Status: &disabled}); err != nil {
			t.Fatalf("failed to disable bob: %v", err)
		}

		rec := env.get(t, "/users?status=disabled", &env.admin)
		rec.AssertStatus(t, http.StatusOK)
		rec.AssertContains(t, "bob@test.com")
		if strings.Contains(rec.Body.String(), "alice@test.com") {
			t.Error("disabled filter should not return active users")
		}
	})
}

func TestPanel_Create(t *testing.T) {
	env := newPanelEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	t.Run("creates a password user", func(t *testing.T) {
		rec := env.post(t, "/users/new", url.Values{
			"full_name":     {"New Person"},
			"email":         {"new@test.com"},
			"auth_method":   {"password"},
			"role":          {"member"},
			"temp_password": {"goodpassword123"},
		}, env.admin)
		rec.AssertRedirect(t, "/admin/users")

		user, err := env.userStore.GetByEmail(ctx, "new@test.com")
		if err != nil {
			t.Fatalf("created user not found: %v", err)
		}
		if user.PasswordHash == nil || *user.PasswordHash == "" {
			t.Error("password user should have a stored hash")
		}
	})

	t.Run("admin role writes an assignment row", func(t *testing.T) {
		rec := env.post(t, "/users/new", url.Values{
			"full_name":     {"New Admin"},
			"email":         {"newadmin@test.com"},
			"auth_method":   {"password"},
			"role":          {"admin"},
			"temp_password": {"goodpassword123"},
		}, env.admin)
		rec.AssertRedirect(t, "/admin/users")

		user, err := env.userStore.GetByEmail(ctx, "newadmin@test.com")
		if err != nil {
			t.Fatalf("created user not found: %v", err)
		}
		row, err := env.roleStore.GetByUserID(ctx, user.ID)
		if err != nil {
			t.Fatalf("role row not found: %v", err)
		}
		if row.Role != models.RoleAdmin {
			t.Errorf("Role = %q, want %q", row.Role, models.RoleAdmin)
		}
	})

	t.Run("weak password is rejected", func(t *testing.T) {
		rec := env.post(t, "/users/new", url.Values{
			"full_name":     {"Weak"},
			"email":         {"weak@test.com"},
			"auth_method":   {"password"},
			"temp_password": {"short"},
		}, env.admin)
		rec.AssertStatus(t, http.StatusOK)
		rec.AssertContains(t, "Password must be at least 8 characters.")
	})

	t.Run("duplicate email is rejected", func(t *testing.T) {
		env.seedUser(t, "Existing", "dup@test.com")
		rec := env.post(t, "/users/new", url.Values{
			"full_name":     {"Copy"},
			"email":         {"DUP@test.com"},
			"auth_method":   {"password"},
			"temp_password": {"goodpassword123"},
		}, env.admin)
		rec.AssertStatus(t, http.StatusOK)
		rec.AssertContains(t, "A user with that email already exists.")
	})
}

func TestPanel_SetRole(t *testing.T) {
	env := newPanelEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	target := env.seedUser(t, "Target", "target@test.com")

	t.Run("promotes to admin", func(t *testing.T) {
		rec := env.post(t, "/users/"+target.ID.Hex()+"/role", url.Values{"role": {"admin"}}, env.admin)
		rec.AssertRedirect(t, "/admin/users")

		row, err := env.roleStore.GetByUserID(ctx, target.ID)
		if err != nil {
			t.Fatalf("role row not found: %v", err)
		}
		if row.Role != models.RoleAdmin {
			t.Errorf("Role = %q, want %q", row.Role, models.RoleAdmin)
		}
	})

	t.Run("invalid role is rejected", func(t *testing.T) {
		rec := env.post(t, "/users/"+target.ID.Hex()+"/role", url.Values{"role": {"superuser"}}, env.admin)
		rec.AssertStatus(t, http.StatusBadRequest)
	})

	t.Run("self demotion is forbidden", func(t *testing.T) {
		rec := env.post(t, "/users/"+env.admin.ID+"/role", url.Values{"role": {"member"}}, env.admin)
		rec.AssertStatus(t, http.StatusForbidden)
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		rec := env.post(t, "/users/"+primitive.NewObjectID().Hex()+"/role", url.Values{"role": {"admin"}}, env.admin)
		rec.AssertStatus(t, http.StatusNotFound)
	})

	t.Run("malformed id is not found", func(t *testing.T) {
		rec := env.post(t, "/users/not-an-id/role", url.Values{"role": {"admin"}}, env.admin)
		rec.AssertStatus(t, http.StatusNotFound)
	})
}

func TestPanel_DisableEnable(t *testing.T) {
	env := newPanelEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	target := env.seedUser(t, "Target", "target@test.com")

	t.Run("disable marks the user disabled", func(t *testing.T) {
		rec := env.post(t, "/users/"+target.ID.Hex()+"/disable", nil, env.admin)
		rec.AssertRedirect(t, "/admin/users")

		got, err := env.userStore.GetByID(ctx, target.ID)
		if err != nil {
			t.Fatalf("failed to load user: %v", err)
		}
		if got.Status != "disabled" {
			t.Errorf("Status = %q, want %q", got.Status, "disabled")
		}
	})

	t.Run("enable reactivates", func(t *testing.T) {
		rec := env.post(t, "/users/"+target.ID.Hex()+"/enable", nil, env.admin)
		rec.AssertRedirect(t, "/admin/users")

		got, err := env.userStore.GetByID(ctx, target.ID)
		if err != nil {
			t.Fatalf("failed to load user: %v", err)
		}
		if got.Status != "active" {
			t.Errorf("Status = %q, want %q", got.Status, "active")
		}
	})

	t.Run("self disable is forbidden", func(t *testing.T) {
		rec := env.post(t, "/users/"+env.admin.ID+"/disable", nil, env.admin)
		rec.AssertStatus(t, http.StatusForbidden)
	})
}

func TestPanel_Delete(t *testing.T) {
	env := newPanelEnv(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	target := env.seedUser(t, "Target", "target@test.com")
	if err := env.roleStore.Assign(ctx, target.ID, models.RoleAdmin); err != nil {
		t.Fatalf("failed to assign role: %v", err)
	}

	t.Run("self delete is forbidden", func(t *testing.T) {
		rec := env.post(t, "/users/"+env.admin.ID+"/delete", nil, env.admin)
		rec.AssertStatus(t, http.StatusForbidden)
	})

	t.Run("delete removes the user and its role row", func(t *testing.T) {
		rec := env.post(t, "/users/"+target.ID.Hex()+"/delete", nil, env.admin)
		rec.AssertRedirect(t, "/admin/users")

		if _, err := env.userStore.GetByID(ctx, target.ID); err != mongo.ErrNoDocuments {
			t.Errorf("GetByID() error = %v, want ErrNoDocuments", err)
		}
		err := env.db.Collection("user_roles").FindOne(ctx, bson.M{"user_id": target.ID}).Err()
		if err != mongo.ErrNoDocuments {
			t.Errorf("role row lookup error = %v, want ErrNoDocuments", err)
		}
	})

	t.Run("deleting again is not found", func(t *testing.T) {
		rec := env.post(t, "/users/"+target.ID.Hex()+"/delete", nil, env.admin)
		rec.AssertStatus(t, http.StatusNotFound)
	})
}
