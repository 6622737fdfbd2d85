// Package guard enforces the page-level route protection policy.
//
// It runs after session loading and decides, per navigation, whether the
// request proceeds or is redirected. API routes are exempt here; they carry
// their own guards with JSON error semantics.
package guard

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/app/system/authz"
)

// Paths the guard never inspects. Static assets and the health probe must
// stay reachable without a session, and API routes enforce authorization
// through their own wrappers.
var skipPrefixes = []string{
	"/static/",
	"/assets/",
	"/images/",
	"/api/",
}

var skipExact = map[string]struct{}{
	"/health":      {},
	"/favicon.ico": {},
	"/robots.txt":  {},
}

// Public pages reachable without a session. A signed-in user visiting one of
// these is sent to the dashboard instead.
var publicPaths = map[string]struct{}{
	"/":                     {},
	"/login":                {},
	"/auth/google":          {},
	"/auth/google/callback": {},
}

// Guard is the page navigation guard.
type Guard struct {
	resolver *authz.Resolver
	logger   *zap.Logger
}

// New creates a Guard backed by the given role resolver.
func New(resolver *authz.Resolver, logger *zap.Logger) *Guard {
	return &Guard{resolver: resolver, logger: logger}
}

// Middleware applies the navigation policy:
//
//   - skip-listed paths pass through untouched
//   - /signup is a retired route and redirects to /login
//   - no session on a public page: allow
//   - active session on a public page: redirect to /dashboard
//   - /admin subtree: no session redirects to /login, a non-admin session
//     redirects to /dashboard, an admin session passes
//   - any other page without a session redirects to /login
//
// Admin access is re-resolved on every navigation; a stale session role
// snapshot never grants the admin surface, and a resolution failure denies it.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if g.skip(path) {
			next.ServeHTTP(w, r)
			return
		}

		if path == "/signup" || strings.HasPrefix(path, "/signup/") {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		user, signedIn := auth.CurrentUser(r)
		_, public := publicPaths[path]

		if !signedIn {
			if public {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		if public {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}

		if path == "/admin" || strings.HasPrefix(path, "/admin/") {
			decision := g.resolver.Resolve(r.Context(), user.ID, user.Email)
			if !decision.IsAdmin() {
				g.logger.Info("admin page denied",
					zap.String("user_id", user.ID),
					zap.String("path", path),
					zap.String("reason", string(decision.Reason)))
				http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Guard) skip(path string) bool {
	if _, ok := skipExact[path]; ok {
		return true
	}
	for _, p := range skipPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
