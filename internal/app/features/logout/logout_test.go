package logout

import (
	"net/http"
	"testing"
	"time"

	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/testutil"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := zap.NewNop()

	sessionMgr, err := auth.NewSessionManager("test-session-key-0123456789abcdef0123456789abcdef", "", "", time.Hour, false, logger)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	return Routes(NewHandler(sessionMgr, nil, logger), sessionMgr)
}

func TestLogout(t *testing.T) {
	router := newTestRouter(t)

	t.Run("signed in user is redirected home", func(t *testing.T) {
		req := testutil.NewAuthenticatedRequest(http.MethodPost, "/", testutil.MemberUser())
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec.ResponseRecorder, req)

		rec.AssertRedirect(t, "/")
	})

	t.Run("session cookie is expired", func(t *testing.T) {
		req := testutil.NewAuthenticatedRequest(http.MethodPost, "/", testutil.MemberUser())
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec.ResponseRecorder, req)

		expired := false
		for _, c := range rec.Result().Cookies() {
			if c.MaxAge < 0 {
				expired = true
			}
		}
		if !expired {
			t.Error("logout should expire the session cookie")
		}
	})

	t.Run("get works for plain links", func(t *testing.T) {
		req := testutil.NewAuthenticatedRequest(http.MethodGet, "/", testutil.MemberUser())
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec.ResponseRecorder, req)

		rec.AssertRedirect(t, "/")
	})

	t.Run("anonymous is rejected", func(t *testing.T) {
		req := testutil.NewRequest(http.MethodPost, "/")
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec.ResponseRecorder, req)

		rec.AssertStatus(t, http.StatusUnauthorized)
	})
}
