// internal/app/features/prompts/prompts.go

// Package prompts provides the system prompt API, mounted under
// /api/projects/{projectID}/prompts. The parent project must belong to the
// caller before any prompt operation runs.
package prompts

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	errorsfeature "github.com/promptdeck/promptdeck/internal/app/features/errors"
	projectstore "github.com/promptdeck/promptdeck/internal/app/store/projects"
	promptstore "github.com/promptdeck/promptdeck/internal/app/store/prompts"
	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/app/system/jsonutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	maxNameLen    = 200
	maxContentLen = 100_000
)

// Handler provides the system prompt API.
type Handler struct {
	projectStore *projectstore.Store
	promptStore  *promptstore.Store
	errLog       *errorsfeature.ErrorLogger
	logger       *zap.Logger
}

// NewHandler creates a new system prompt API Handler.
func NewHandler(db *mongo.Database, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		projectStore: projectstore.New(db),
		promptStore:  promptstore.New(db),
		errLog:       errLog,
		logger:       logger,
	}
}

// Routes returns a chi.Router with system prompt routes mounted.
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

type promptIn struct {
	Name    *string `json:"name"`
	Content *string `json:"content"`
}

// ownedProject resolves the {projectID} URL param to a project the caller
// owns, writing the error response itself when it cannot.
func (h *Handler) ownedProject(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, primitive.ObjectID, bool) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		jsonutil.Unauthorized(w, "Authentication required")
		return primitive.NilObjectID, primitive.NilObjectID, false
	}
	userID := u.UserID()

	projectID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "projectID"))
	if err != nil {
		jsonutil.BadRequest(w, "Invalid project id")
		return primitive.NilObjectID, primitive.NilObjectID, false
	}

	if _, err := h.projectStore.GetOwned(r.Context(), projectID, userID); err != nil {
		if err == projectstore.ErrNotFound {
			jsonutil.NotFound(w, "Project not found")
			return primitive.NilObjectID, primitive.NilObjectID, false
		}
		h.errLog.Log(r, "failed to check project ownership", err)
		jsonutil.InternalError(w, "Failed to load project")
		return primitive.NilObjectID, primitive.NilObjectID, false
	}

	return userID, projectID, true
}

// list returns the project's system prompts.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	_, projectID, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	prompts, err := h.promptStore.ListForProject(r.Context(), projectID)
	if err != nil {
		h.errLog.Log(r, "failed to list prompts", err)
		jsonutil.InternalError(w, "Failed to list prompts")
		return
	}

	jsonutil.OK(w, map[string]any{"prompts": prompts})
}

// create adds a system prompt to the project.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	var in promptIn
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	name, content, errMsg := validatePromptIn(in, true)
	if errMsg != "" {
		jsonutil.BadRequest(w, errMsg)
		return
	}

	prompt, err := h.promptStore.Create(r.Context(), promptstore.CreateInput{
		UserID:    userID,
		ProjectID: projectID,
		Name:      name,
		Content:   content,
	})
	if err != nil {
		h.errLog.Log(r, "failed to create prompt", err)
		jsonutil.InternalError(w, "Failed to create prompt")
		return
	}

	jsonutil.Created(w, prompt)
}

// get returns a single system prompt.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "Invalid prompt id")
		return
	}

	prompt, err := h.promptStore.GetOwned(r.Context(), objID, userID)
	if err != nil {
		if err == promptstore.ErrNotFound {
			jsonutil.NotFound(w, "Prompt not found")
			return
		}
		h.errLog.Log(r, "failed to get prompt", err)
		jsonutil.InternalError(w, "Failed to get prompt")
		return
	}

	jsonutil.OK(w, prompt)
}

// update modifies a system prompt. Absent fields are left unchanged.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "Invalid prompt id")
		return
	}

	var in promptIn
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	input := promptstore.UpdateInput{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" || len(name) > maxNameLen {
			jsonutil.BadRequest(w, "name must be between 1 and 200 characters")
			return
		}
		input.Name = &name
	}
	if in.Content != nil {
		if len(*in.Content) > maxContentLen {
			jsonutil.BadRequest(w, "content is too long")
			return
		}
		input.Content = in.Content
	}

	if err := h.promptStore.Update(r.Context(), objID, userID, input); err != nil {
		if err == promptstore.ErrNotFound {
			jsonutil.NotFound(w, "Prompt not found")
			return
		}
		h.errLog.Log(r, "failed to update prompt", err)
		jsonutil.InternalError(w, "Failed to update prompt")
		return
	}

	prompt, err := h.promptStore.GetOwned(r.Context(), objID, userID)
	if err != nil {
		h.errLog.Log(r, "failed to reload prompt", err)
		jsonutil.InternalError(w, "Failed to update prompt")
		return
	}

	jsonutil.OK(w, prompt)
}

// delete removes a system prompt.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "Invalid prompt id")
		return
	}

	if err := h.promptStore.Delete(r.Context(), objID, userID); err != nil {
		if err == promptstore.ErrNotFound {
			jsonutil.NotFound(w, "Prompt not found")
			return
		}
		h.errLog.Log(r, "failed to delete prompt", err)
		jsonutil.InternalError(w, "Failed to delete prompt")
		return
	}

	jsonutil.NoContent(w)
}

func validatePromptIn(in promptIn, require bool) (name, content, errMsg string) {
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}
	if in.Content != nil {
		content = *in.Content
	}

	if require && name == "" {
		return "", "", "name is required"
	}
	if len(name) > maxNameLen {
		return "", "", "name is too long"
	}
	if require && content == "" {
		return "", "", "content is required"
	}
	if len(content) > maxContentLen {
		return "", "", "content is too long"
	}
	return name, content, ""
}
