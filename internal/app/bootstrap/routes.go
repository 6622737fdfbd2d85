// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	adminapifeature "github.com/promptdeck/promptdeck/internal/app/features/adminapi"
	adminpanelfeature "github.com/promptdeck/promptdeck/internal/app/features/adminpanel"
	authgooglefeature "github.com/promptdeck/promptdeck/internal/app/features/authgoogle"
	dashboardfeature "github.com/promptdeck/promptdeck/internal/app/features/dashboard"
	errorsfeature "github.com/promptdeck/promptdeck/internal/app/features/errors"
	healthfeature "github.com/promptdeck/promptdeck/internal/app/features/health"
	homefeature "github.com/promptdeck/promptdeck/internal/app/features/home"
	loginfeature "github.com/promptdeck/promptdeck/internal/app/features/login"
	logoutfeature "github.com/promptdeck/promptdeck/internal/app/features/logout"
	projectsfeature "github.com/promptdeck/promptdeck/internal/app/features/projects"
	promptsfeature "github.com/promptdeck/promptdeck/internal/app/features/prompts"
	runsfeature "github.com/promptdeck/promptdeck/internal/app/features/runs"
	templatesapifeature "github.com/promptdeck/promptdeck/internal/app/features/templatesapi"
	appresources "github.com/promptdeck/promptdeck/internal/app/resources"
	"github.com/promptdeck/promptdeck/internal/app/store/audit"
	"github.com/promptdeck/promptdeck/internal/app/store/oauthstate"
	"github.com/promptdeck/promptdeck/internal/app/store/ratelimit"
	rolestore "github.com/promptdeck/promptdeck/internal/app/store/roles"
	userstore "github.com/promptdeck/promptdeck/internal/app/store/users"
	"github.com/promptdeck/promptdeck/internal/app/system/auditlog"
	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/app/system/authz"
	"github.com/promptdeck/promptdeck/internal/app/system/guard"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed.
//
// Request flow for page routes:
//  1. LoadSessionUser puts the fresh SessionUser in context (or clears a
//     stale session)
//  2. the route guard applies the public/protected decision table and
//     re-resolves the role for the /admin subtree
//  3. feature handlers render
//
// API routes under /api/* skip the guard and CSRF; each API router carries
// its own session and role checks and answers with JSON status codes.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Create the session manager using app config.
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// LoadSessionUser fetches fresh user data on each request so role
	// changes and disabled accounts take effect immediately.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(deps.MongoDatabase, logger))

	// Initialize and boot the template engine once at startup.
	// Dev mode enables template reloading for faster iteration.
	eng := templates.New(coreCfg.Env == "dev")
	if err := eng.Boot(logger); err != nil {
		logger.Error("template engine boot failed", zap.Error(err))
		return nil, err
	}
	templates.UseEngine(eng, logger)

	// Error logger for handlers.
	errLog := errorsfeature.NewErrorLogger(logger)

	// Audit store and logger for security event tracking.
	auditStore := audit.New(deps.MongoDatabase)
	auditLogger := auditlog.New(auditStore, logger, auditlog.Config{
		Auth:  appCfg.AuditLogAuth,
		Admin: appCfg.AuditLogAdmin,
	})

	// Role resolver shared by the route guard and the admin API.
	resolver := authz.NewResolver(rolestore.New(deps.MongoDatabase), appCfg.BreakGlassAdmins, logger)
	routeGuard := guard.New(resolver, logger)

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────

	// Request timeout middleware: prevents requests from hanging indefinitely.
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Session middleware: loads SessionUser into context if logged in.
	// API routes without a session simply have no user in context.
	r.Use(sessionMgr.LoadSessionUser)

	// Route guard: public/protected redirects plus the /admin role check.
	// Static, API, and health paths are skipped inside the guard.
	r.Use(routeGuard.Middleware)

	// CSRF protection middleware with path-based exemption for API routes.
	// Cookie name is "promptdeck_csrf" to avoid collisions with other
	// services on the same domain.
	csrfOpts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.CookieName("promptdeck_csrf"),
		csrf.FieldName("csrf_token"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Warn("CSRF validation failed",
				zap.String("path", req.URL.Path),
				zap.String("method", req.Method),
				zap.String("reason", csrf.FailureReason(req).Error()),
			)
			http.Error(w, "CSRF token invalid or missing", http.StatusForbidden)
		})),
	}
	// In dev mode, trust localhost origins for CSRF validation.
	if !secure {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins([]string{
			"localhost:8080",
			"localhost:3000",
			"127.0.0.1:8080",
			"127.0.0.1:3000",
		}))
	}
	if appCfg.SessionDomain != "" {
		csrfOpts = append(csrfOpts, csrf.Domain(appCfg.SessionDomain))
	}
	csrfProtect := csrf.Protect([]byte(appCfg.CSRFKey), csrfOpts...)

	// JSON API routes authenticate via the session cookie with SameSite=Lax
	// and are driven by JS/CLI clients, not HTML forms; CSRF applies to the
	// page surface only.
	csrfMiddleware := func(next http.Handler) http.Handler {
		csrfHandler := csrfProtect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.HasPrefix(req.URL.Path, "/api/") {
				next.ServeHTTP(w, req)
				return
			}
			csrfHandler.ServeHTTP(w, req)
		})
	}
	r.Use(csrfMiddleware)

	// ─────────────────────────────────────────────────────────────────────────
	// Routes
	// ─────────────────────────────────────────────────────────────────────────

	// Health check endpoints for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	// Static assets with pre-compressed file support (gzip/brotli)
	// /static/* serves files from disk (static directory)
	r.Handle("/static/*", fileserver.Handler("/static", "static"))

	// /assets/* serves embedded assets (bundled into the binary)
	r.Handle("/assets/*", appresources.AssetsHandler("/assets"))

	// Public landing page
	homeHandler := homefeature.NewHandler(logger)
	r.Mount("/", homefeature.Routes(homeHandler))

	// Authentication
	googleEnabled := appCfg.GoogleClientID != "" && appCfg.GoogleClientSecret != ""
	loginfeature.SetGoogleEnabled(googleEnabled)
	// Trust login is dev-only; it allows passwordless sign-in.
	trustLoginEnabled := coreCfg.Env == "dev"

	// Rate limiting for login attempts (nil if disabled)
	var rateLimitStore *ratelimit.Store
	if appCfg.RateLimitEnabled {
		rateLimitStore = ratelimit.New(
			deps.MongoDatabase,
			appCfg.RateLimitLoginAttempts,
			appCfg.RateLimitLoginWindow,
			appCfg.RateLimitLoginLockout,
		)
	}

	loginHandler := loginfeature.NewHandler(
		deps.MongoDatabase,
		sessionMgr,
		errLog,
		auditLogger,
		rateLimitStore,
		trustLoginEnabled,
		logger,
	)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, auditLogger, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

	// Google OAuth (only mount if configured)
	if googleEnabled {
		oauthStateStore := oauthstate.New(deps.MongoDatabase)
		googleHandler := authgooglefeature.NewHandler(
			deps.MongoDatabase,
			sessionMgr,
			errLog,
			auditLogger,
			oauthStateStore,
			appCfg.GoogleClientID,
			appCfg.GoogleClientSecret,
			appCfg.BaseURL,
			logger,
		)
		r.Mount("/auth/google", authgooglefeature.Routes(googleHandler))
		logger.Info("Google OAuth enabled", zap.String("redirect_url", appCfg.BaseURL+"/auth/google/callback"))
	}

	// Error pages
	errorsHandler := errorsfeature.NewHandler()
	r.Get("/forbidden", errorsHandler.Forbidden)
	r.Get("/unauthorized", errorsHandler.Unauthorized)

	// Dashboard (authenticated users)
	dashboardHandler := dashboardfeature.NewHandler(deps.MongoDatabase, logger)
	r.Mount("/dashboard", dashboardfeature.Routes(dashboardHandler, sessionMgr))

	// Admin panel (HTML user management; guard re-resolves on /admin)
	adminHandler := adminpanelfeature.NewHandler(deps.MongoDatabase, errLog, auditLogger, logger)
	r.Mount("/admin", adminpanelfeature.Routes(adminHandler, sessionMgr))

	// Admin API (JSON user management with DB-backed role checks)
	adminAPIHandler := adminapifeature.NewHandler(deps.MongoDatabase, resolver, errLog, auditLogger, logger)
	r.Mount("/api/admin", adminapifeature.Routes(adminAPIHandler))

	// Project CRUD API and its nested prompt/template APIs
	projectsHandler := projectsfeature.NewHandler(deps.MongoDatabase, errLog, logger)
	promptsHandler := promptsfeature.NewHandler(deps.MongoDatabase, errLog, logger)
	templatesHandler := templatesapifeature.NewHandler(deps.MongoDatabase, errLog, logger)
	r.Route("/api/projects", func(sr chi.Router) {
		sr.Mount("/", projectsfeature.Routes(projectsHandler, sessionMgr))
		sr.Mount("/{projectID}/prompts", promptsfeature.Routes(promptsHandler, sessionMgr))
		sr.Mount("/{projectID}/templates", templatesapifeature.Routes(templatesHandler, sessionMgr))
	})

	// Test run API (executes chat completions)
	runsHandler := runsfeature.NewHandler(deps.MongoDatabase, deps.LLMClient, errLog, logger)
	r.Mount("/api/runs", runsfeature.Routes(runsHandler, sessionMgr))

	// 404 catch-all for unmatched routes
	r.NotFound(errorsHandler.NotFound)

	return r, nil
}
