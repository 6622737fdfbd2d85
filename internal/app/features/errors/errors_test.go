package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/promptdeck/promptdeck/internal/testutil"
	"go.uber.org/zap"
)

func TestErrorPages(t *testing.T) {
	testutil.MustBootTemplates(t)
	h := NewHandler()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
	}{
		{"forbidden", h.Forbidden, http.StatusForbidden},
		{"unauthorized", h.Unauthorized, http.StatusUnauthorized},
		{"not found", h.NotFound, http.StatusNotFound},
		{"internal", h.InternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.WithCSRFToken(testutil.NewRequest(http.MethodGet, "/"))
			rec := testutil.NewRecorder()
			tt.handler(rec.ResponseRecorder, req)

			rec.AssertStatus(t, tt.status)
			if rec.Body.Len() == 0 {
				t.Error("error page should render a body")
			}
		})
	}
}

func TestErrorLogger(t *testing.T) {
	// The logger must tolerate any request shape without panicking.
	l := NewErrorLogger(zap.NewNop())
	req := testutil.NewRequest(http.MethodPost, "/api/projects")

	l.Log(req, "something failed", fmt.Errorf("boom"))
	l.LogWithFields(req, "something failed", fmt.Errorf("boom"), zap.String("extra", "field"))
}
