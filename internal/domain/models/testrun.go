// internal/domain/models/testrun.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TestRun records a single chat completion attempt against the LLM endpoint.
// Failed calls are recorded too, with Error set and Output empty; runs are
// never retried (a failed run is resubmitted by the user, as a new run).
type TestRun struct {
	ID    primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RunID string             `bson:"run_id" json:"run_id"` // uuid, for log correlation

	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	ProjectID primitive.ObjectID `bson:"project_id" json:"project_id"`

	SystemPromptID *primitive.ObjectID `bson:"system_prompt_id,omitempty" json:"system_prompt_id,omitempty"`
	TemplateID     *primitive.ObjectID `bson:"template_id,omitempty" json:"template_id,omitempty"`

	Input  string `bson:"input" json:"input"`   // raw user input (or rendered template)
	Output string `bson:"output" json:"output"` // first choice message content

	Model            string `bson:"model" json:"model"`
	PromptTokens     int    `bson:"prompt_tokens,omitempty" json:"prompt_tokens,omitempty"`
	CompletionTokens int    `bson:"completion_tokens,omitempty" json:"completion_tokens,omitempty"`
	LatencyMS        int64  `bson:"latency_ms" json:"latency_ms"`

	Error string `bson:"error,omitempty" json:"error,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
