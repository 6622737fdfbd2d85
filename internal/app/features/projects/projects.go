// internal/app/features/projects/projects.go

// Package projects provides the JSON project CRUD API under /api/projects.
// Every operation is scoped to the signed-in owner; a project belonging to
// someone else behaves exactly like a missing one.
package projects

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	errorsfeature "github.com/promptdeck/promptdeck/internal/app/features/errors"
	projectstore "github.com/promptdeck/promptdeck/internal/app/store/projects"
	promptstore "github.com/promptdeck/promptdeck/internal/app/store/prompts"
	runstore "github.com/promptdeck/promptdeck/internal/app/store/runs"
	templatestore "github.com/promptdeck/promptdeck/internal/app/store/templates"
	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/app/system/jsonutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const maxNameLen = 200

// Handler provides the project API.
type Handler struct {
	projectStore  *projectstore.Store
	promptStore   *promptstore.Store
	templateStore *templatestore.Store
	runStore      *runstore.Store
	errLog        *errorsfeature.ErrorLogger
	logger        *zap.Logger
}

// NewHandler creates a new project API Handler.
func NewHandler(db *mongo.Database, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		projectStore:  projectstore.New(db),
		promptStore:   promptstore.New(db),
		templateStore: templatestore.New(db),
		runStore:      runstore.New(db),
		errLog:        errLog,
		logger:        logger,
	}
}

// Routes returns a chi.Router with project routes mounted.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireJSONUser)

	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.delete)

	return r
}

type projectIn struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func currentUserID(r *http.Request) (primitive.ObjectID, bool) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		return primitive.NilObjectID, false
	}
	id := u.UserID()
	return id, !id.IsZero()
}

// list returns the signed-in user's projects.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		jsonutil.Unauthorized(w, "Authentication required")
		return
	}

	projects, err := h.projectStore.ListForUser(r.Context(), userID)
	if err != nil {
		h.errLog.Log(r, "failed to list projects", err)
		jsonutil.InternalError(w, "Failed to list projects")
		return
	}

	jsonutil.OK(w, map[string]any{"projects": projects})
}

// create adds a new project for the signed-in user.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		jsonutil.Unauthorized(w, "Authentication required")
		return
	}

	var in projectIn
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	name := ""
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}
	if name == "" {
		jsonutil.BadRequest(w, "name is required")
		return
	}
	if len(name) > maxNameLen {
		jsonutil.BadRequest(w, "name is too long")
		return
	}

	description := ""
	if in.Description != nil {
		description = strings.TrimSpace(*in.Description)
	}

	project, err := h.projectStore.Create(r.Context(), projectstore.CreateInput{
		UserID:      userID,
		Name:        name,
		Description: description,
	})
	if err != nil {
		h.errLog.Log(r, "failed to create project", err)
		jsonutil.InternalError(w, "Failed to create project")
		return
	}

	jsonutil.Created(w, project)
}

// get returns a single owned project.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		jsonutil.Unauthorized(w, "Authentication required")
		return
	}

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "Invalid project id")
		return
	}

	project, err := h.projectStore.GetOwned(r.Context(), objID, userID)
	if err != nil {
		if err == projectstore.ErrNotFound {
			jsonutil.NotFound(w, "Project not found")
			return
		}
		h.errLog.Log(r, "failed to get project", err)
		jsonutil.InternalError(w, "Failed to get project")
		return
	}

	jsonutil.OK(w, project)
}

// update modifies an owned project. Absent fields are left unchanged.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		jsonutil.Unauthorized(w, "Authentication required")
		return
	}

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "Invalid project id")
		return
	}

	var in projectIn
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	input := projectstore.UpdateInput{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			jsonutil.BadRequest(w, "name cannot be empty")
			return
		}
		if len(name) > maxNameLen {
			jsonutil.BadRequest(w, "name is too long")
			return
		}
		input.Name = &name
	}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		input.Description = &description
	}

	if err := h.projectStore.Update(r.Context(), objID, userID, input); err != nil {
		if err == projectstore.ErrNotFound {
			jsonutil.NotFound(w, "Project not found")
			return
		}
		h.errLog.Log(r, "failed to update project", err)
		jsonutil.InternalError(w, "Failed to update project")
		return
	}

	project, err := h.projectStore.GetOwned(r.Context(), objID, userID)
	if err != nil {
		h.errLog.Log(r, "failed to reload project", err)
		jsonutil.InternalError(w, "Failed to update project")
		return
	}

	jsonutil.OK(w, project)
}

// delete removes an owned project and everything under it: system prompts,
// prompt templates, and recorded test runs.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		jsonutil.Unauthorized(w, "Authentication required")
		return
	}

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "Invalid project id")
		return
	}

	if err := h.projectStore.Delete(r.Context(), objID, userID); err != nil {
		if err == projectstore.ErrNotFound {
			jsonutil.NotFound(w, "Project not found")
			return
		}
		h.errLog.Log(r, "failed to delete project", err)
		jsonutil.InternalError(w, "Failed to delete project")
		return
	}

	// The project row is gone; child cleanup failures only leave orphans
	// that are unreachable through the API.
	if _, err := h.promptStore.DeleteForProject(r.Context(), objID); err != nil {
		h.logger.Warn("failed to delete prompts for project", zap.String("project_id", objID.Hex()), zap.Error(err))
	}
	if _, err := h.templateStore.DeleteForProject(r.Context(), objID); err != nil {
		h.logger.Warn("failed to delete templates for project", zap.String("project_id", objID.Hex()), zap.Error(err))
	}
	if _, err := h.runStore.DeleteForProject(r.Context(), objID); err != nil {
		h.logger.Warn("failed to delete runs for project", zap.String("project_id", objID.Hex()), zap.Error(err))
	}

	jsonutil.NoContent(w)
}
