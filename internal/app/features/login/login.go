// internal/app/features/login/login.go
package login

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/go-chi/chi/v5"
	errorsfeature "github.com/promptdeck/promptdeck/internal/app/features/errors"
	"github.com/promptdeck/promptdeck/internal/app/store/ratelimit"
	rolestore "github.com/promptdeck/promptdeck/internal/app/store/roles"
	userstore "github.com/promptdeck/promptdeck/internal/app/store/users"
	"github.com/promptdeck/promptdeck/internal/app/system/auditlog"
	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/app/system/authutil"
	"github.com/promptdeck/promptdeck/internal/app/system/viewdata"
	"github.com/promptdeck/promptdeck/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler provides sign-in handlers.
type Handler struct {
	userStore         *userstore.Store
	roleStore         *rolestore.Store
	rateLimitStore    *ratelimit.Store // nil if rate limiting disabled
	sessionMgr        *auth.SessionManager
	errLog            *errorsfeature.ErrorLogger
	auditLogger       *auditlog.Logger
	trustLoginEnabled bool // only enable in dev mode
	logger            *zap.Logger
}

// NewHandler creates a new login Handler.
// Set trustLoginEnabled to true only in development mode.
// rateLimitStore can be nil to disable rate limiting.
func NewHandler(
	db *mongo.Database,
	sessionMgr *auth.SessionManager,
	errLog *errorsfeature.ErrorLogger,
	auditLogger *auditlog.Logger,
	rateLimitStore *ratelimit.Store,
	trustLoginEnabled bool,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		userStore:         userstore.New(db),
		roleStore:         rolestore.New(db),
		rateLimitStore:    rateLimitStore,
		sessionMgr:        sessionMgr,
		errLog:            errLog,
		auditLogger:       auditLogger,
		trustLoginEnabled: trustLoginEnabled,
		logger:            logger,
	}
}

// LoginVM is the view model for the sign-in page.
type LoginVM struct {
	viewdata.BaseVM
	Error         string
	Email         string
	ReturnURL     string
	GoogleEnabled bool
	TrustEnabled  bool
}

// GoogleEnabled controls whether the Google sign-in button is shown.
// Set by bootstrap after handler construction.
var googleEnabled bool

// SetGoogleEnabled toggles display of the Google sign-in option.
func SetGoogleEnabled(enabled bool) {
	googleEnabled = enabled
}

// Routes returns a chi.Router with sign-in routes mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.showLogin)
	r.Post("/", h.handlePasswordLogin)

	// Trust auth skips the password check. Development only; these routes
	// are not mounted in production.
	if h.trustLoginEnabled {
		r.Get("/trust", h.showTrustLogin)
		r.Post("/trust", h.handleTrustLogin)
	}

	return r
}

func (h *Handler) loginVM(r *http.Request, errMsg, email, returnURL string) LoginVM {
	vm := LoginVM{
		BaseVM:        viewdata.New(r),
		Error:         errMsg,
		Email:         email,
		ReturnURL:     returnURL,
		GoogleEnabled: googleEnabled,
		TrustEnabled:  h.trustLoginEnabled,
	}
	vm.Title = "Sign in"
	return vm
}

// showLogin displays the sign-in page.
func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	errorCode := r.URL.Query().Get("error")
	errorMsg := ""
	switch errorCode {
	case "invalid_state":
		errorMsg = "Sign-in link expired. Please try again."
	case "account_disabled":
		errorMsg = "Account is disabled."
	case "service_unavailable":
		errorMsg = "Service temporarily unavailable. Please try again."
	case "":
		// No error
	default:
		errorMsg = errorCode
	}

	templates.Render(w, r, "login/index", h.loginVM(r, errorMsg, "", query.Get(r, "return")))
}

// handlePasswordLogin processes the email + password form.
func (h *Handler) handlePasswordLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.errLog.Log(r, "failed to parse form", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	email := r.FormValue("email")
	password := r.FormValue("password")
	returnURL := r.FormValue("return")

	if email == "" || password == "" {
		templates.Render(w, r, "login/index", h.loginVM(r, "Enter your email and password.", email, returnURL))
		return
	}

	// Rate limit check before touching credentials.
	if h.rateLimitStore != nil {
		allowed, _, lockedUntil := h.rateLimitStore.CheckAllowed(r.Context(), email)
		if !allowed {
			h.auditLogger.LoginRateLimited(r.Context(), r, email)
			templates.Render(w, r, "login/index", h.loginVM(r, lockoutMessage(lockedUntil), email, returnURL))
			return
		}
	}

	user, err := h.userStore.GetByEmail(r.Context(), email)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			if h.rateLimitStore != nil {
				h.rateLimitStore.RecordFailure(r.Context(), email)
			}
			h.auditLogger.LoginFailedUserNotFound(r.Context(), r, email)
			templates.Render(w, r, "login/index", h.loginVM(r, "Invalid credentials", email, returnURL))
			return
		}
		h.errLog.Log(r, "database error during login lookup", err)
		templates.Render(w, r, "login/index", h.loginVM(r, "Service temporarily unavailable. Please try again.", email, returnURL))
		return
	}

	if user.Status != "active" {
		if h.rateLimitStore != nil {
			h.rateLimitStore.RecordFailure(r.Context(), email)
		}
		h.auditLogger.LoginFailedUserDisabled(r.Context(), r, user.ID, email)
		templates.Render(w, r, "login/index", h.loginVM(r, "Account is disabled", email, returnURL))
		return
	}

	if user.AuthMethod == models.AuthGoogle {
		// Google accounts have no password; send them to the OAuth flow.
		http.Redirect(w, r, "/auth/google?return="+returnURL, http.StatusSeeOther)
		return
	}

	if user.PasswordHash == nil || !authutil.CheckPassword(password, *user.PasswordHash) {
		if h.rateLimitStore != nil {
			lockedOut, lockedUntil := h.rateLimitStore.RecordFailure(r.Context(), email)
			if lockedOut {
				h.auditLogger.LoginLockedOut(r.Context(), r, email)
				templates.Render(w, r, "login/index", h.loginVM(r, lockoutMessage(lockedUntil), email, returnURL))
				return
			}
		}
		h.auditLogger.LoginFailedWrongPassword(r.Context(), r, user.ID, email)
		templates.Render(w, r, "login/index", h.loginVM(r, "Invalid credentials", email, returnURL))
		return
	}

	if h.rateLimitStore != nil {
		h.rateLimitStore.ClearOnSuccess(r.Context(), email)
	}

	if err := h.createSession(w, r, user.ID, user.Email); err != nil {
		h.errLog.Log(r, "failed to create session", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.auditLogger.LoginSuccess(r.Context(), r, user.ID, user.AuthMethod, user.Email)

	http.Redirect(w, r, urlutil.SafeReturn(returnURL, "", "/dashboard"), http.StatusSeeOther)
}

// TrustLoginVM is the view model for trust login.
type TrustLoginVM struct {
	viewdata.BaseVM
	Error string
	Email string
}

// showTrustLogin displays the trust login form.
func (h *Handler) showTrustLogin(w http.ResponseWriter, r *http.Request) {
	vm := TrustLoginVM{
		BaseVM: viewdata.New(r),
	}
	vm.Title = "Trust Login"

	templates.Render(w, r, "login/trust", vm)
}

// handleTrustLogin processes trust login (development only).
func (h *Handler) handleTrustLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.errLog.Log(r, "failed to parse form", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	email := r.FormValue("email")

	user, err := h.userStore.GetByEmail(r.Context(), email)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			h.auditLogger.LoginFailedUserNotFound(r.Context(), r, email)
			vm := TrustLoginVM{
				BaseVM: viewdata.New(r),
				Error:  "User not found",
				Email:  email,
			}
			templates.Render(w, r, "login/trust", vm)
			return
		}
		h.errLog.Log(r, "database error during trust login lookup", err)
		vm := TrustLoginVM{
			BaseVM: viewdata.New(r),
			Error:  "Service temporarily unavailable. Please try again.",
			Email:  email,
		}
		templates.Render(w, r, "login/trust", vm)
		return
	}

	if user.Status != "active" {
		h.auditLogger.LoginFailedUserDisabled(r.Context(), r, user.ID, email)
		vm := TrustLoginVM{
			BaseVM: viewdata.New(r),
			Error:  "Account is disabled",
			Email:  email,
		}
		templates.Render(w, r, "login/trust", vm)
		return
	}

	if err := h.createSession(w, r, user.ID, user.Email); err != nil {
		h.errLog.Log(r, "failed to create session", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	h.auditLogger.LoginSuccess(r.Context(), r, user.ID, models.AuthTrust, user.Email)

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// createSession writes the cookie session with a fresh token and a role
// snapshot from the role collection. The snapshot is for display; access
// checks re-resolve on every request.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request, userID primitive.ObjectID, email string) error {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return err
	}

	role := models.RoleMember
	if row, err := h.roleStore.GetByUserID(r.Context(), userID); err == nil && models.IsValidRole(row.Role) {
		role = row.Role
	}

	return h.sessionMgr.CreateSession(w, r, userID, email, role, token)
}

func lockoutMessage(lockedUntil *time.Time) string {
	msg := "Too many failed sign-in attempts. Please try again later."
	if lockedUntil != nil {
		remaining := time.Until(*lockedUntil)
		if remaining > time.Minute {
			msg = fmt.Sprintf("Too many failed sign-in attempts. Please try again in %d minute(s).", int(remaining.Minutes())+1)
		} else {
			msg = fmt.Sprintf("Too many failed sign-in attempts. Please try again in %d second(s).", int(remaining.Seconds())+1)
		}
	}
	return msg
}
