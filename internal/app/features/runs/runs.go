// internal/app/features/runs/runs.go

// Package runs provides the test run API under /api/runs. A run sends a
// prompt to the configured chat completions endpoint once and records the
// outcome, success or failure. Failed runs are stored with their error and
// never retried; resubmitting is a new run.
package runs

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	errorsfeature "github.com/promptdeck/promptdeck/internal/app/features/errors"
	projectstore "github.com/promptdeck/promptdeck/internal/app/store/projects"
	promptstore "github.com/promptdeck/promptdeck/internal/app/store/prompts"
	runstore "github.com/promptdeck/promptdeck/internal/app/store/runs"
	templatestore "github.com/promptdeck/promptdeck/internal/app/store/templates"
	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/app/system/jsonutil"
	"github.com/promptdeck/promptdeck/internal/app/system/llm"
	"github.com/promptdeck/promptdeck/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const maxInputLen = 100_000

// Handler provides the test run API.
type Handler struct {
	projectStore  *projectstore.Store
	promptStore   *promptstore.Store
	templateStore *templatestore.Store
	runStore      *runstore.Store
	llmClient     *llm.Client
	errLog        *errorsfeature.ErrorLogger
	logger        *zap.Logger
}

// NewHandler creates a new test run API Handler.
func NewHandler(db *mongo.Database, llmClient *llm.Client, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		projectStore:  projectstore.New(db),
		promptStore:   promptstore.New(db),
		templateStore: templatestore.New(db),
		runStore:      runstore.New(db),
		llmClient:     llmClient,
		errLog:        errLog,
		logger:        logger,
	}
}

// Routes returns a chi.Router with test run routes mounted.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireJSONUser)

	r.Get("/", h.list)
	r.Post("/", h.submit)
	r.Get("/{id}", h.get)

	return r
}

// submitIn is the request body for submitting a test run. Exactly one of
// input or template_id (with values) supplies the user message.
type submitIn struct {
	ProjectID      string            `json:"project_id"`
	SystemPromptID string            `json:"system_prompt_id,omitempty"`
	TemplateID     string            `json:"template_id,omitempty"`
	Values         map[string]string `json:"values,omitempty"`
	Input          string            `json:"input,omitempty"`
	Model          string            `json:"model,omitempty"`
}

// submit executes one chat completion and records the run.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		jsonutil.Unauthorized(w, "Authentication required")
		return
	}
	userID := u.UserID()

	var in submitIn
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	projectID, err := primitive.ObjectIDFromHex(in.ProjectID)
	if err != nil {
		jsonutil.BadRequest(w, "Invalid project id")
		return
	}
	if _, err := h.projectStore.GetOwned(r.Context(), projectID, userID); err != nil {
		if err == projectstore.ErrNotFound {
			jsonutil.NotFound(w, "Project not found")
			return
		}
		h.errLog.Log(r, "failed to check project ownership", err)
		jsonutil.InternalError(w, "Failed to load project")
		return
	}

	if in.Input == "" && in.TemplateID == "" {
		jsonutil.BadRequest(w, "Either input or template_id is required")
		return
	}
	if in.Input != "" && in.TemplateID != "" {
		jsonutil.BadRequest(w, "input and template_id are mutually exclusive")
		return
	}
	if len(in.Input) > maxInputLen {
		jsonutil.BadRequest(w, "input is too long")
		return
	}

	run := models.TestRun{
		RunID:     uuid.NewString(),
		UserID:    userID,
		ProjectID: projectID,
		Model:     in.Model,
		Input:     in.Input,
	}

	// Build the message list. System prompt first when one is chosen.
	var messages []llm.Message

	if in.SystemPromptID != "" {
		spID, err := primitive.ObjectIDFromHex(in.SystemPromptID)
		if err != nil {
			jsonutil.BadRequest(w, "Invalid system prompt id")
			return
		}
		sp, err := h.promptStore.GetOwned(r.Context(), spID, userID)
		if err != nil {
			if err == promptstore.ErrNotFound {
				jsonutil.NotFound(w, "System prompt not found")
				return
			}
			h.errLog.Log(r, "failed to load system prompt", err)
			jsonutil.InternalError(w, "Failed to load system prompt")
			return
		}
		if sp.ProjectID != projectID {
			jsonutil.BadRequest(w, "System prompt belongs to a different project")
			return
		}
		run.SystemPromptID = &spID
		messages = append(messages, llm.Message{Role: "system", Content: sp.Content})
	}

	if in.TemplateID != "" {
		tmplID, err := primitive.ObjectIDFromHex(in.TemplateID)
		if err != nil {
			jsonutil.BadRequest(w, "Invalid template id")
			return
		}
		tmpl, err := h.templateStore.GetOwned(r.Context(), tmplID, userID)
		if err != nil {
			if err == templatestore.ErrNotFound {
				jsonutil.NotFound(w, "Template not found")
				return
			}
			h.errLog.Log(r, "failed to load template", err)
			jsonutil.InternalError(w, "Failed to load template")
			return
		}
		if tmpl.ProjectID != projectID {
			jsonutil.BadRequest(w, "Template belongs to a different project")
			return
		}
		if missing := templatestore.MissingVariables(tmpl.Variables, in.Values); len(missing) > 0 {
			jsonutil.BadRequest(w, "Missing template values: "+strings.Join(missing, ", "))
			return
		}
		run.TemplateID = &tmplID
		run.Input = templatestore.Render(tmpl.Content, in.Values)
	}

	messages = append(messages, llm.Message{Role: "user", Content: run.Input})

	// One shot against the upstream. The result or the error is recorded
	// either way; the run row is the log.
	result, llmErr := h.llmClient.Complete(r.Context(), in.Model, messages)
	if llmErr != nil {
		run.Error = llmErr.Error()
		if run.Model == "" {
			run.Model = h.llmClient.Model()
		}
	} else {
		run.Output = result.Output
		run.Model = result.Model
		run.PromptTokens = result.PromptTokens
		run.CompletionTokens = result.CompletionTokens
		run.LatencyMS = result.Latency.Milliseconds()
	}
	run.CreatedAt = time.Now()

	stored, err := h.runStore.Insert(r.Context(), run)
	if err != nil {
		h.errLog.Log(r, "failed to record run", err)
		jsonutil.InternalError(w, "Failed to record run")
		return
	}

	if llmErr != nil {
		h.logger.Warn("llm call failed",
			zap.String("run_id", stored.RunID),
			zap.Error(llmErr))
		jsonutil.JSON(w, http.StatusBadGateway, map[string]any{
			"error": "Upstream model call failed",
			"run":   stored,
		})
		return
	}

	jsonutil.Created(w, stored)
}

// list returns the caller's recent runs, optionally filtered by project.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		jsonutil.Unauthorized(w, "Authentication required")
		return
	}
	userID := u.UserID()

	if projectHex := r.URL.Query().Get("project_id"); projectHex != "" {
		projectID, err := primitive.ObjectIDFromHex(projectHex)
		if err != nil {
			jsonutil.BadRequest(w, "Invalid project id")
			return
		}
		if _, err := h.projectStore.GetOwned(r.Context(), projectID, userID); err != nil {
			if err == projectstore.ErrNotFound {
				jsonutil.NotFound(w, "Project not found")
				return
			}
			h.errLog.Log(r, "failed to check project ownership", err)
			jsonutil.InternalError(w, "Failed to list runs")
			return
		}
		runs, err := h.runStore.ListForProject(r.Context(), projectID, 0)
		if err != nil {
			h.errLog.Log(r, "failed to list runs", err)
			jsonutil.InternalError(w, "Failed to list runs")
			return
		}
		jsonutil.OK(w, map[string]any{"runs": runs})
		return
	}

	runs, err := h.runStore.ListForUser(r.Context(), userID, 0)
	if err != nil {
		h.errLog.Log(r, "failed to list runs", err)
		jsonutil.InternalError(w, "Failed to list runs")
		return
	}
	jsonutil.OK(w, map[string]any{"runs": runs})
}

// get returns a single owned run.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.CurrentUser(r)
	if !ok {
		jsonutil.Unauthorized(w, "Authentication required")
		return
	}

	objID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		jsonutil.BadRequest(w, "Invalid run id")
		return
	}

	run, err := h.runStore.GetOwned(r.Context(), objID, u.UserID())
	if err != nil {
		if err == runstore.ErrNotFound {
			jsonutil.NotFound(w, "Run not found")
			return
		}
		h.errLog.Log(r, "failed to get run", err)
		jsonutil.InternalError(w, "Failed to get run")
		return
	}

	jsonutil.OK(w, run)
}
