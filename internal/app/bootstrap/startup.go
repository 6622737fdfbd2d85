// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"github.com/promptdeck/promptdeck/internal/app/resources"
	rolestore "github.com/promptdeck/promptdeck/internal/app/store/roles"
	userstore "github.com/promptdeck/promptdeck/internal/app/store/users"
	"github.com/promptdeck/promptdeck/internal/app/system/tasks"
	"github.com/promptdeck/promptdeck/internal/app/system/timeouts"
	"github.com/promptdeck/promptdeck/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// Returning a non-nil error aborts startup and prevents the server from
// starting. The context is cancelled if the process is asked to shut down
// while Startup is running.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	resources.LoadSharedTemplates()

	// Operation timeouts can be tuned via TIMEOUT_* env vars.
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("configured operation timeouts from environment", zap.Int("overrides", n))
	}

	// Seed admin user if configured
	if appCfg.SeedAdminEmail != "" {
		if err := ensureAdminUser(ctx, deps, appCfg.SeedAdminEmail, appCfg.SeedAdminName, logger); err != nil {
			logger.Error("failed to seed admin user", zap.Error(err))
			return err
		}
	}

	startTaskRunner(deps.MongoDatabase, appCfg, logger)

	return nil
}

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// startTaskRunner initializes and starts the background task runner.
func startTaskRunner(db *mongo.Database, appCfg AppConfig, logger *zap.Logger) {
	taskRunner = tasks.New(logger)

	taskRunner.Register(tasks.OAuthStateCleanupJob(db, logger))
	taskRunner.Register(tasks.RateLimitCleanupJob(db, logger))
	taskRunner.Register(tasks.AuditRetentionJob(db, logger, appCfg.AuditLogRetention))

	taskRunner.Start()
}

// ensureAdminUser ensures a user exists with the given email and holds an
// admin role row. An existing user is promoted; a missing one is created
// with trust auth so the first sign-in works without a password in dev.
func ensureAdminUser(ctx context.Context, deps DBDeps, email, name string, logger *zap.Logger) error {
	users := userstore.New(deps.MongoDatabase)
	roles := rolestore.New(deps.MongoDatabase)

	if name == "" {
		name = "Admin"
	}

	user, err := users.GetByEmail(ctx, email)
	if err == mongo.ErrNoDocuments {
		created, cerr := users.Create(ctx, userstore.CreateInput{
			FullName:   name,
			Email:      email,
			AuthMethod: models.AuthTrust,
		})
		if cerr != nil {
			return cerr
		}
		user = &created
		logger.Info("created admin user",
			zap.String("email", email),
			zap.String("user_id", user.ID.Hex()))
	} else if err != nil {
		return err
	}

	if err := roles.Assign(ctx, user.ID, models.RoleAdmin); err != nil {
		return err
	}
	logger.Info("ensured admin role assignment",
		zap.String("email", email),
		zap.String("user_id", user.ID.Hex()))

	return nil
}
