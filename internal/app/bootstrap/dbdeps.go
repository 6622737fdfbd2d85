// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/promptdeck/promptdeck/internal/app/system/llm"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// This struct is created in ConnectDB and passed to subsequent lifecycle
// hooks: EnsureSchema, Startup, BuildHandler, and Shutdown. It is the
// central place for clients the application needs at request time.
//
// The Shutdown hook is responsible for closing these connections gracefully
// when the application terminates.
type DBDeps struct {
	// MongoDB client and database
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// LLMClient talks to the configured chat completions endpoint.
	LLMClient *llm.Client
}
