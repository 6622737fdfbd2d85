// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/promptdeck/promptdeck/internal/app/system/indexes"
	"github.com/promptdeck/promptdeck/internal/app/system/llm"
	"go.uber.org/zap"
)

// ConnectDB connects to MongoDB and builds the LLM client.
//
// WAFFLE calls this after configuration is loaded but before EnsureSchema
// and Startup. Clients created here are stored in DBDeps for use in
// handlers and later lifecycle hooks.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	poolCfg := wafflemongo.DefaultPoolConfig()
	if appCfg.MongoMaxPoolSize > 0 {
		poolCfg.MaxPoolSize = appCfg.MongoMaxPoolSize
	}
	if appCfg.MongoMinPoolSize > 0 {
		poolCfg.MinPoolSize = appCfg.MongoMinPoolSize
	}

	client, err := wafflemongo.ConnectWithPool(ctx, appCfg.MongoURI, appCfg.MongoDatabase, poolCfg)
	if err != nil {
		return DBDeps{}, err
	}

	db := client.Database(appCfg.MongoDatabase)

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", poolCfg.MaxPoolSize),
		zap.Uint64("min_pool_size", poolCfg.MinPoolSize),
	)

	llmClient := llm.New(llm.Config{
		BaseURL: appCfg.LLMBaseURL,
		APIKey:  appCfg.LLMAPIKey,
		Model:   appCfg.LLMModel,
		Timeout: appCfg.LLMTimeout,
	}, logger)
	logger.Info("initialized LLM client",
		zap.String("base_url", appCfg.LLMBaseURL),
		zap.String("default_model", appCfg.LLMModel),
		zap.Duration("timeout", appCfg.LLMTimeout),
	)

	return DBDeps{
		MongoClient:   client,
		MongoDatabase: db,
		LLMClient:     llmClient,
	}, nil
}

// EnsureSchema sets up indexes as needed.
//
// This runs after ConnectDB succeeds but before Startup and before the HTTP
// handler is built. The context has a timeout based on
// coreCfg.IndexBootTimeout.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	logger.Info("ensuring database indexes")
	if err := indexes.EnsureAll(ctx, deps.MongoDatabase); err != nil {
		logger.Error("failed to ensure indexes", zap.Error(err))
		return err
	}

	logger.Info("database schema ensured successfully")
	return nil
}
