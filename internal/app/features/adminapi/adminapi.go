// internal/app/features/adminapi/adminapi.go

// Package adminapi provides the JSON user management API under /api/admin.
//
// Every request passes through RequireAdmin, which re-resolves the caller's
// role from the database rather than trusting the session snapshot:
//   - 401 when no authenticated session is present
//   - 403 when the caller resolves to a non-admin role
//   - 500 when the role lookup itself fails (deny on uncertainty)
//
// Handlers then add 400 for malformed input and 500 for store failures.
package adminapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	errorsfeature "github.com/promptdeck/promptdeck/internal/app/features/errors"
	rolestore "github.com/promptdeck/promptdeck/internal/app/store/roles"
	userstore "github.com/promptdeck/promptdeck/internal/app/store/users"
	"github.com/promptdeck/promptdeck/internal/app/system/auditlog"
	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/app/system/authutil"
	"github.com/promptdeck/promptdeck/internal/app/system/authz"
	"github.com/promptdeck/promptdeck/internal/app/system/inputval"
	"github.com/promptdeck/promptdeck/internal/app/system/jsonutil"
	"github.com/promptdeck/promptdeck/internal/app/system/normalize"
	"github.com/promptdeck/promptdeck/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler provides the admin JSON API.
type Handler struct {
	userStore   *userstore.Store
	roleStore   *rolestore.Store
	resolver    *authz.Resolver
	errLog      *errorsfeature.ErrorLogger
	auditLogger *auditlog.Logger
	logger      *zap.Logger
}

// NewHandler creates a new admin API Handler.
func NewHandler(
	db *mongo.Database,
	resolver *authz.Resolver,
	errLog *errorsfeature.ErrorLogger,
	auditLogger *auditlog.Logger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		userStore:   userstore.New(db),
		roleStore:   rolestore.New(db),
		resolver:    resolver,
		errLog:      errLog,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// Routes returns a chi.Router with the admin API mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(h.RequireAdmin)

	r.Get("/users", h.listUsers)
	r.Post("/users", h.createUser)
	r.Delete("/users", h.deleteUser)
	r.Post("/users/role", h.setRole)

	return r
}

// RequireAdmin gates the admin API. The session role is a display hint;
// authority comes from re-resolving against the role collection on every
// request.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := auth.CurrentUser(r)
		if !ok {
			jsonutil.Unauthorized(w, "Authentication required")
			return
		}

		decision := h.resolver.Resolve(r.Context(), user.ID, user.Email)
		switch {
		case decision.IsAdmin():
			next.ServeHTTP(w, r)
		case decision.Reason == authz.ReasonLookupError:
			jsonutil.InternalError(w, "Authorization check failed")
		default:
			// A missing role row is an ordinary non-admin, not an error.
			h.auditLogger.AdminDenied(r.Context(), r, user.ID, string(decision.Reason))
			jsonutil.Forbidden(w, "Admin access required")
		}
	})
}

// userOut is the JSON shape for a user in API responses.
type userOut struct {
	ID         string `json:"id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	AuthMethod string `json:"auth_method"`
	Status     string `json:"status"`
	Role       string `json:"role"`
}

// listUsers returns all users with their resolved roles.
func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userStore.ListAll(r.Context())
	if err != nil {
		h.errLog.Log(r, "failed to list users", err)
		jsonutil.InternalError(w, "Failed to list users")
		return
	}

	ids := make([]primitive.ObjectID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	roles, err := h.roleStore.RolesForUsers(r.Context(), ids)
	if err != nil {
		h.errLog.Log(r, "failed to load roles", err)
		jsonutil.InternalError(w, "Failed to list users")
		return
	}

	out := make([]userOut, 0, len(users))
	for _, u := range users {
		role := models.RoleMember
		if assigned, ok := roles[u.ID]; ok && models.IsValidRole(assigned) {
			role = assigned
		}
		out = append(out, userOut{
			ID:         u.ID.Hex(),
			FullName:   u.FullName,
			Email:      u.Email,
			AuthMethod: u.AuthMethod,
			Status:     u.Status,
			Role:       role,
		})
	}

	jsonutil.OK(w, map[string]any{"users": out})
}

// createUserIn is the request body for user creation.
type createUserIn struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	AuthMethod string `json:"auth_method"`
	Password   string `json:"password,omitempty"`
	Role       string `json:"role,omitempty"`
}

// createUser creates a user and, for an elevated role, its assignment.
func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in createUserIn
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	in.AuthMethod = normalize.AuthMethod(in.AuthMethod)
	role := normalize.Role(in.Role)
	if role == "" {
		role = models.RoleMember
	}

	switch {
	case in.FullName == "":
		jsonutil.BadRequest(w, "full_name is required")
		return
	case !inputval.IsValidEmail(in.Email):
		jsonutil.BadRequest(w, "A valid email is required")
		return
	case !inputval.IsValidAuthMethod(in.AuthMethod):
		jsonutil.BadRequest(w, "auth_method must be one of: "+strings.Join(inputval.AllowedAuthMethodsList(), ", "))
		return
	case !models.IsValidRole(role):
		jsonutil.BadRequest(w, "role must be admin or member")
		return
	}

	input := userstore.CreateInput{
		FullName:   in.FullName,
		Email:      in.Email,
		AuthMethod: in.AuthMethod,
	}

	if in.AuthMethod == models.AuthPassword {
		if err := authutil.ValidatePassword(in.Password); err != nil {
			jsonutil.BadRequest(w, err.Error())
			return
		}
		hash, err := authutil.HashPassword(in.Password)
		if err != nil {
			h.errLog.Log(r, "failed to hash password", err)
			jsonutil.InternalError(w, "Failed to create user")
			return
		}
		input.PasswordHash = &hash
	}

	user, err := h.userStore.Create(r.Context(), input)
	if err != nil {
		if err == userstore.ErrDuplicateEmail {
			jsonutil.BadRequest(w, "A user with that email already exists")
			return
		}
		h.errLog.Log(r, "failed to create user", err)
		jsonutil.InternalError(w, "Failed to create user")
		return
	}

	if role == models.RoleAdmin {
		if err := h.roleStore.Assign(r.Context(), user.ID, role); err != nil {
			h.errLog.Log(r, "failed to assign role", err)
			jsonutil.InternalError(w, "User created but role assignment failed")
			return
		}
		h.auditLogger.RoleAssigned(r.Context(), r, actor.UserID(), user.ID, role)
	}

	h.auditLogger.UserCreated(r.Context(), r, actor.UserID(), user.ID, role, user.AuthMethod)

	jsonutil.OK(w, map[string]any{
		"message": "User created",
		"user": userOut{
			ID:         user.ID.Hex(),
			FullName:   user.FullName,
			Email:      user.Email,
			AuthMethod: user.AuthMethod,
			Status:     user.Status,
			Role:       role,
		},
	})
}

// deleteUserIn is the request body for user deletion. The target rides in
// the body, not the path, so a missing id is a validation error rather than
// an unmatched route.
type deleteUserIn struct {
	UserID string `json:"user_id"`
}

// deleteUser removes a user and its role assignment.
func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in deleteUserIn
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if in.UserID == "" {
		jsonutil.BadRequest(w, "user_id is required")
		return
	}

	objID, err := primitive.ObjectIDFromHex(in.UserID)
	if err != nil {
		jsonutil.BadRequest(w, "Invalid user id")
		return
	}

	if actor.UserID() == objID {
		jsonutil.Forbidden(w, "Cannot delete your own account")
		return
	}

	deleted, err := h.userStore.Delete(r.Context(), objID)
	if err != nil {
		h.errLog.Log(r, "failed to delete user", err)
		jsonutil.InternalError(w, "Failed to delete user")
		return
	}
	if deleted == 0 {
		jsonutil.NotFound(w, "User not found")
		return
	}

	if err := h.roleStore.Remove(r.Context(), objID); err != nil {
		h.logger.Warn("failed to remove role assignment", zap.Error(err))
	}

	h.auditLogger.UserDeleted(r.Context(), r, actor.UserID(), objID)

	jsonutil.OK(w, map[string]string{"message": "User deleted"})
}

// setRoleIn is the request body for role assignment.
type setRoleIn struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// setRole upserts a user's role assignment.
func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	var in setRoleIn
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	objID, err := primitive.ObjectIDFromHex(in.UserID)
	if err != nil {
		jsonutil.BadRequest(w, "Invalid user id")
		return
	}

	role := normalize.Role(in.Role)
	if !models.IsValidRole(role) {
		jsonutil.BadRequest(w, "role must be admin or member")
		return
	}

	// Self-demotion is rejected so a lone admin cannot lock out the panel.
	if actor.UserID() == objID && role != models.RoleAdmin {
		jsonutil.Forbidden(w, "Cannot change your own role")
		return
	}

	if _, err := h.userStore.GetByID(r.Context(), objID); err != nil {
		if err == mongo.ErrNoDocuments {
			jsonutil.NotFound(w, "User not found")
			return
		}
		h.errLog.Log(r, "failed to load user", err)
		jsonutil.InternalError(w, "Failed to set role")
		return
	}

	if err := h.roleStore.Assign(r.Context(), objID, role); err != nil {
		h.errLog.Log(r, "failed to assign role", err)
		jsonutil.InternalError(w, "Failed to set role")
		return
	}

	h.auditLogger.RoleAssigned(r.Context(), r, actor.UserID(), objID, role)

	jsonutil.OK(w, map[string]string{"message": "Role updated"})
}
