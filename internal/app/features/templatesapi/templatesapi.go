// internal/app/features/templatesapi/templatesapi.go

// Package templatesapi provides the prompt template API, mounted under
// /api/projects/{projectID}/templates. Templates carry {{variable}}
// placeholders; the variable list is extracted at write time and a render
// endpoint substitutes supplied values.
package templatesapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	errorsfeature "github.com/promptdeck/promptdeck/internal/app/features/errors"
	projectstore "github.com/promptdeck/promptdeck/internal/app/store/projects"
	templatestore "github.com/promptdeck/promptdeck/internal/app/store/templates"
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

// Handler provides the prompt template API.
type Handler struct {
	projectStore  *projectstore.Store
	templateStore *templatestore.Store
	errLog        *errorsfeature.ErrorLogger
	logger        *zap.Logger
}

// NewHandler creates a new prompt template API Handler.
func NewHandler(db *mongo.Database, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		projectStore:  projectstore.New(db),
		templateStore: templatestore.New(db),
		errLog:        errLog,
		logger:        logger,
	}
}

// Routes returns a chi.Router with prompt template routes mounted.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireJSONUser)

	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Post("/{id}/render", h.render)

	return r
}

type templateIn struct {
	Name    *string `json:"name"`
	Content *string `json:"content"`
}

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

// list returns the project's templates.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	_, projectID, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	tmpls, err := h.templateStore.ListForProject(r.Context(), projectID)
	if err != nil {
		h.errLog.Log(r, "failed to list templates", err)
		jsonutil.InternalError(w, "Failed to list templates")
		return
	}

	jsonutil.OK(w, map[string]any{"templates": tmpls})
}

// create adds a template to the project.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	userID, projectID, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	var in templateIn
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	name := ""
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
	}
	content := ""
	if in.Content != nil {
		content = *in.Content
	}
	if name == "" {
		jsonutil.BadRequest(w, "name is required")
		return
	}
	if len(name) > maxNameLen {
		jsonutil.BadRequest(w, "name is too long")
		return
	}
	if content == "" {
		jsonutil.BadRequest(w, "content is required")
		return
	}
	if len(content) > maxContentLen {
		jsonutil.BadRequest(w, "content is too long")
		return
	}

	tmpl, err := h.templateStore.Create(r.Context(), templatestore.CreateInput{
		UserID:    userID,
		ProjectID: projectID,
		Name:      name,
		Content:   content,
	})
	if err != nil {
		h.errLog.Log(r, "failed to create template", err)
		jsonutil.InternalError(w, "Failed to create template")
		return
	}

	jsonutil.Created(w, tmpl)
}

// get returns a single template, including its extracted variable list.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "Invalid template id")
		return
	}

	tmpl, err := h.templateStore.GetOwned(r.Context(), objID, userID)
	if err != nil {
		if err == templatestore.ErrNotFound {
			jsonutil.NotFound(w, "Template not found")
			return
		}
		h.errLog.Log(r, "failed to get template", err)
		jsonutil.InternalError(w, "Failed to get template")
		return
	}

	jsonutil.OK(w, tmpl)
}

// update modifies a template. Changing the content re-extracts variables.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "Invalid template id")
		return
	}

	var in templateIn
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	input := templatestore.UpdateInput{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" || len(name) > maxNameLen {
			jsonutil.BadRequest(w, "name must be between 1 and 200 characters")
			return
		}
		input.Name = &name
	}
	if in.Content != nil {
		if *in.Content == "" {
			jsonutil.BadRequest(w, "content cannot be empty")
			return
		}
		if len(*in.Content) > maxContentLen {
			jsonutil.BadRequest(w, "content is too long")
			return
		}
		input.Content = in.Content
	}

	if err := h.templateStore.Update(r.Context(), objID, userID, input); err != nil {
		if err == templatestore.ErrNotFound {
			jsonutil.NotFound(w, "Template not found")
			return
		}
		h.errLog.Log(r, "failed to update template", err)
		jsonutil.InternalError(w, "Failed to update template")
		return
	}

	tmpl, err := h.templateStore.GetOwned(r.Context(), objID, userID)
	if err != nil {
		h.errLog.Log(r, "failed to reload template", err)
		jsonutil.InternalError(w, "Failed to update template")
		return
	}

	jsonutil.OK(w, tmpl)
}

// delete removes a template.
func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "Invalid template id")
		return
	}

	if err := h.templateStore.Delete(r.Context(), objID, userID); err != nil {
		if err == templatestore.ErrNotFound {
			jsonutil.NotFound(w, "Template not found")
			return
		}
		h.errLog.Log(r, "failed to delete template", err)
		jsonutil.InternalError(w, "Failed to delete template")
		return
	}

	jsonutil.NoContent(w)
}

type renderIn struct {
	Values map[string]string `json:"values"`
}

type renderOut struct {
	Rendered string   `json:"rendered"`
	Missing  []string `json:"missing,omitempty"`
}

// render substitutes values into the template's placeholders. Placeholders
// without a supplied value are reported in "missing" and left in the output
// verbatim.
func (h *Handler) render(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := h.ownedProject(w, r)
	if !ok {
		return
	}

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "Invalid template id")
		return
	}

	var in renderIn
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	tmpl, err := h.templateStore.GetOwned(r.Context(), objID, userID)
	if err != nil {
		if err == templatestore.ErrNotFound {
			jsonutil.NotFound(w, "Template not found")
			return
		}
		h.errLog.Log(r, "failed to get template", err)
		jsonutil.InternalError(w, "Failed to render template")
		return
	}

	jsonutil.OK(w, renderOut{
		Rendered: templatestore.Render(tmpl.Content, in.Values),
		Missing:  templatestore.MissingVariables(tmpl.Variables, in.Values),
	})
}
