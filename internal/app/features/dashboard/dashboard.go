// internal/app/features/dashboard/dashboard.go
package dashboard

import (
	"html/template"
	"net/http"

	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	projectstore "github.com/promptdeck/promptdeck/internal/app/store/projects"
	runstore "github.com/promptdeck/promptdeck/internal/app/store/runs"
	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/app/system/htmlsanitize"
	"github.com/promptdeck/promptdeck/internal/app/system/viewdata"
	"github.com/promptdeck/promptdeck/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler provides dashboard handlers.
type Handler struct {
	projectStore *projectstore.Store
	runStore     *runstore.Store
	logger       *zap.Logger
}

// NewHandler creates a new dashboard Handler.
func NewHandler(db *mongo.Database, logger *zap.Logger) *Handler {
	return &Handler{
		projectStore: projectstore.New(db),
		runStore:     runstore.New(db),
		logger:       logger,
	}
}

// projectView is a project row with its description prepared for display.
type projectView struct {
	Name        string
	Description template.HTML
}

// DashboardVM is the view model for the dashboard.
type DashboardVM struct {
	viewdata.BaseVM
	Projects   []projectView
	RunCount   int64
	RecentRuns []models.TestRun
}

// Routes returns a chi.Router with dashboard routes mounted.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireAuth)
	r.Get("/", h.showDashboard)
	return r
}

// showDashboard displays the signed-in user's projects and recent runs.
func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	sessionUser, ok := auth.CurrentUser(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	userID := sessionUser.UserID()
	if userID.IsZero() {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	vm := DashboardVM{
		BaseVM: viewdata.New(r),
	}
	vm.Title = "Dashboard"

	projects, err := h.projectStore.ListForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list projects for dashboard", zap.Error(err))
	}
	vm.Projects = make([]projectView, 0, len(projects))
	for _, p := range projects {
		vm.Projects = append(vm.Projects, projectView{
			Name:        p.Name,
			Description: htmlsanitize.PrepareForDisplay(p.Description),
		})
	}

	vm.RunCount, err = h.runStore.CountForUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to count runs for dashboard", zap.Error(err))
	}

	vm.RecentRuns, err = h.runStore.ListForUser(r.Context(), userID, 10)
	if err != nil {
		h.logger.Error("failed to list recent runs for dashboard", zap.Error(err))
	}

	templates.Render(w, r, "dashboard/index", vm)
}
