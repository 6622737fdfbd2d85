// internal/app/features/adminpanel/adminpanel.go
package adminpanel

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	errorsfeature "github.com/promptdeck/promptdeck/internal/app/features/errors"
	rolestore "github.com/promptdeck/promptdeck/internal/app/store/roles"
	userstore "github.com/promptdeck/promptdeck/internal/app/store/users"
	"github.com/promptdeck/promptdeck/internal/app/system/auditlog"
	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/app/system/authutil"
	"github.com/promptdeck/promptdeck/internal/app/system/normalize"
	"github.com/promptdeck/promptdeck/internal/app/system/viewdata"
	"github.com/promptdeck/promptdeck/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const pageSize = 20

// Handler provides the admin user management pages.
type Handler struct {
	userStore   *userstore.Store
	roleStore   *rolestore.Store
	errLog      *errorsfeature.ErrorLogger
	auditLogger *auditlog.Logger
	logger      *zap.Logger
}

// NewHandler creates a new admin panel Handler.
func NewHandler(
	db *mongo.Database,
	errLog *errorsfeature.ErrorLogger,
	auditLogger *auditlog.Logger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		userStore:   userstore.New(db),
		roleStore:   rolestore.New(db),
		errLog:      errLog,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// userRow represents a user in the list.
type userRow struct {
	ID       primitive.ObjectID
	FullName string
	Email    string
	Role     string
	Auth     string
	Status   string
}

// ListVM is the view model for the users list.
type ListVM struct {
	viewdata.BaseVM

	SearchQuery    string
	Status         string // "", active, disabled
	RoleFilter     string // "", admin, member
	AvailableRoles []string

	Page       int
	PrevPage   int
	NextPage   int
	Total      int64
	TotalPages int
	RangeStart int
	RangeEnd   int
	HasPrev    bool
	HasNext    bool

	Rows []userRow
}

// Routes returns a chi.Router with admin panel routes mounted.
// The route guard already re-resolves the role for the /admin subtree;
// RequireRole is a second gate for direct mounting in tests.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireRole(models.RoleAdmin))

	r.Get("/", h.list)
	r.Get("/users", h.list)
	r.Get("/users/new", h.showNew)
	r.Post("/users/new", h.create)
	r.Post("/users/{id}/role", h.setRole)
	r.Post("/users/{id}/disable", h.disable)
	r.Post("/users/{id}/enable", h.enable)
	r.Post("/users/{id}/delete", h.delete)

	return r
}

// list displays all users with search, filters, and pagination.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	searchQ := strings.TrimSpace(q.Get("search"))
	status := normalize.Status(q.Get("status"))
	roleFilter := normalize.Role(q.Get("role"))

	page := 1
	if pageStr := q.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}

	filter := bson.M{}
	if status == "active" || status == "disabled" {
		filter["status"] = status
	}
	if searchQ != "" {
		qFold := text.Fold(searchQ)
		hiFold := qFold + "￿"
		filter["email_ci"] = bson.M{"$gte": qFold, "$lt": hiFold}
	}

	// Role lives in a separate collection; a role filter selects by the
	// matching user ids up front.
	if roleFilter != "" && models.IsValidRole(roleFilter) {
		ids, err := h.roleIDsFor(r, roleFilter)
		if err != nil {
			h.errLog.Log(r, "failed to filter by role", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		filter["_id"] = bson.M{"$in": ids}
	}

	total, err := h.userStore.Count(r.Context(), filter)
	if err != nil {
		h.errLog.Log(r, "failed to count users", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}

	offset := (page - 1) * pageSize

	findOpts := options.Find().
		SetSort(bson.D{{Key: "email_ci", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(pageSize))

	users, err := h.userStore.Find(r.Context(), filter, findOpts)
	if err != nil {
		h.errLog.Log(r, "failed to list users", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ids := make([]primitive.ObjectID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	roles, err := h.roleStore.RolesForUsers(r.Context(), ids)
	if err != nil {
		h.errLog.Log(r, "failed to load roles", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	rows := make([]userRow, 0, len(users))
	for _, u := range users {
		role := models.RoleMember
		if assigned, ok := roles[u.ID]; ok && models.IsValidRole(assigned) {
			role = assigned
		}
		rows = append(rows, userRow{
			ID:       u.ID,
			FullName: u.FullName,
			Email:    u.Email,
			Role:     role,
			Auth:     formatAuthMethod(u.AuthMethod),
			Status:   normalize.Status(u.Status),
		})
	}

	rangeStart := offset + 1
	rangeEnd := offset + len(rows)
	if total == 0 {
		rangeStart = 0
		rangeEnd = 0
	}

	vm := ListVM{
		BaseVM:         viewdata.New(r),
		SearchQuery:    searchQ,
		Status:         status,
		RoleFilter:     roleFilter,
		AvailableRoles: models.AllRoles(),
		Page:           page,
		PrevPage:       page - 1,
		NextPage:       page + 1,
		Total:          total,
		TotalPages:     totalPages,
		RangeStart:     rangeStart,
		RangeEnd:       rangeEnd,
		HasPrev:        page > 1,
		HasNext:        page < totalPages,
		Rows:           rows,
	}
	vm.Title = "Users"

	templates.Render(w, r, "adminpanel/list", vm)
}

func (h *Handler) roleIDsFor(r *http.Request, role string) ([]primitive.ObjectID, error) {
	if role == models.RoleAdmin {
		return h.roleStore.ListByRole(r.Context(), models.RoleAdmin)
	}

	// Member means no admin assignment; select everyone not in the admin set.
	adminIDs, err := h.roleStore.ListByRole(r.Context(), models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	adminSet := make(map[primitive.ObjectID]bool, len(adminIDs))
	for _, id := range adminIDs {
		adminSet[id] = true
	}

	all, err := h.userStore.Find(r.Context(), bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(all))
	for _, u := range all {
		if !adminSet[u.ID] {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// NewUserVM is the view model for creating a new user.
type NewUserVM struct {
	viewdata.BaseVM
	FullName       string
	Email          string
	AuthMethod     string
	SelectedRole   string
	AvailableRoles []string
	Error          string
}

// showNew displays the new user form.
func (h *Handler) showNew(w http.ResponseWriter, r *http.Request) {
	vm := NewUserVM{
		BaseVM:         viewdata.New(r),
		AuthMethod:     models.AuthPassword,
		SelectedRole:   models.RoleMember,
		AvailableRoles: models.AllRoles(),
	}
	vm.Title = "New User"
	vm.BackURL = "/admin/users"

	templates.Render(w, r, "adminpanel/new", vm)
}

// create creates a new user and, when an elevated role is chosen, its
// role assignment.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	if err := r.ParseForm(); err != nil {
		h.errLog.Log(r, "failed to parse form", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	fullName := r.FormValue("full_name")
	email := r.FormValue("email")
	authMethod := normalize.AuthMethod(r.FormValue("auth_method"))
	role := normalize.Role(r.FormValue("role"))
	if !models.IsValidRole(role) {
		role = models.RoleMember
	}

	renderErr := func(msg string) {
		vm := NewUserVM{
			BaseVM:         viewdata.New(r),
			FullName:       fullName,
			Email:          email,
			AuthMethod:     authMethod,
			SelectedRole:   role,
			AvailableRoles: models.AllRoles(),
			Error:          msg,
		}
		vm.Title = "New User"
		vm.BackURL = "/admin/users"
		templates.Render(w, r, "adminpanel/new", vm)
	}

	input := userstore.CreateInput{
		FullName:   fullName,
		Email:      email,
		AuthMethod: authMethod,
	}

	if authMethod == models.AuthPassword {
		password := r.FormValue("temp_password")
		if err := authutil.ValidatePassword(password); err != nil {
			renderErr(err.Error())
			return
		}
		hash, err := authutil.HashPassword(password)
		if err != nil {
			h.errLog.Log(r, "failed to hash password", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		input.PasswordHash = &hash
	}

	user, err := h.userStore.Create(r.Context(), input)
	if err != nil {
		if err == userstore.ErrDuplicateEmail {
			renderErr("A user with that email already exists.")
			return
		}
		h.errLog.Log(r, "failed to create user", err)
		renderErr("Failed to create user.")
		return
	}

	if role == models.RoleAdmin {
		if err := h.roleStore.Assign(r.Context(), user.ID, role); err != nil {
			h.errLog.Log(r, "failed to assign role", err)
		} else {
			h.auditLogger.RoleAssigned(r.Context(), r, actor.UserID(), user.ID, role)
		}
	}

	h.auditLogger.UserCreated(r.Context(), r, actor.UserID(), user.ID, role, user.AuthMethod)

	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

// setRole changes a user's role assignment.
func (h *Handler) setRole(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	role := normalize.Role(r.FormValue("role"))
	if !models.IsValidRole(role) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// An admin cannot demote themselves; a second admin has to do it.
	if actor.UserID() == objID && role != models.RoleAdmin {
		http.Error(w, "Cannot change your own role", http.StatusForbidden)
		return
	}

	if _, err := h.userStore.GetByID(r.Context(), objID); err != nil {
		http.NotFound(w, r)
		return
	}

	if err := h.roleStore.Assign(r.Context(), objID, role); err != nil {
		h.errLog.Log(r, "failed to assign role", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.auditLogger.RoleAssigned(r.Context(), r, actor.UserID(), objID, role)

	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

// disable marks a user disabled. Disabled users fail the per-request
// session fetch and are signed out on their next request.
func (h *Handler) disable(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, "disabled")
}

// enable re-activates a disabled user.
func (h *Handler) enable(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, "active")
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, status string) {
	actor, _ := auth.CurrentUser(r)

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if actor.UserID() == objID && status == "disabled" {
		http.Error(w, "Cannot disable your own account", http.StatusForbidden)
		return
	}

	if err := h.userStore.Update(r.Context(), objID, userstore.UpdateInput{Status: &status}); err != nil {
		h.errLog.Log(r, "failed to update user status", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

// delete removes a user and its role assignment.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.CurrentUser(r)

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if actor.UserID() == objID {
		http.Error(w, "Cannot delete your own account", http.StatusForbidden)
		return
	}

	deleted, err := h.userStore.Delete(r.Context(), objID)
	if err != nil {
		h.errLog.Log(r, "failed to delete user", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if deleted == 0 {
		http.NotFound(w, r)
		return
	}

	if err := h.roleStore.Remove(r.Context(), objID); err != nil {
		h.logger.Warn("failed to remove role assignment", zap.Error(err))
	}

	h.auditLogger.UserDeleted(r.Context(), r, actor.UserID(), objID)

	http.Redirect(w, r, "/admin/users", http.StatusSeeOther)
}

func formatAuthMethod(m string) string {
	switch m {
	case models.AuthPassword:
		return "Password"
	case models.AuthGoogle:
		return "Google"
	case models.AuthTrust:
		return "Trust"
	default:
		return m
	}
}
