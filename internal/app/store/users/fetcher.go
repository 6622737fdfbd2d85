// internal/app/store/users/fetcher.go
package userstore

import (
	"context"
	"errors"

	"github.com/promptdeck/promptdeck/internal/app/system/auth"
	"github.com/promptdeck/promptdeck/internal/app/system/normalize"
	"github.com/promptdeck/promptdeck/internal/app/system/timeouts"
	"github.com/promptdeck/promptdeck/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Fetcher implements auth.UserFetcher to load fresh user data on each request.
// The role on the returned SessionUser is a display snapshot taken from the
// role collection; elevated operations resolve access independently.
type Fetcher struct {
	users  *mongo.Collection
	roles  *mongo.Collection
	logger *zap.Logger
}

// NewFetcher creates a UserFetcher that queries the given database.
func NewFetcher(db *mongo.Database, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		users:  db.Collection("users"),
		roles:  db.Collection("user_roles"),
		logger: logger,
	}
}

// FetchUser retrieves a user by ID and returns nil if the user is not found,
// disabled, or if any error occurs. This implements auth.UserFetcher.
func (f *Fetcher) FetchUser(ctx context.Context, userID string) *auth.SessionUser {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	var u models.User
	proj := options.FindOne().SetProjection(bson.M{
		"_id":         1,
		"full_name":   1,
		"email":       1,
		"auth_method": 1,
		"status":      1,
	})

	if err := f.users.FindOne(ctx, bson.M{"_id": oid}, proj).Decode(&u); err != nil {
		return nil
	}

	if normalize.Status(u.Status) == "disabled" {
		return nil
	}

	role := models.RoleMember
	var row models.RoleAssignment
	err = f.roles.FindOne(ctx, bson.M{"user_id": oid}).Decode(&row)
	switch {
	case err == nil:
		if models.IsValidRole(row.Role) {
			role = row.Role
		}
	case errors.Is(err, mongo.ErrNoDocuments):
		// No row means plain member.
	default:
		f.logger.Warn("role snapshot lookup failed, defaulting to member",
			zap.String("user_id", userID),
			zap.Error(err))
	}

	return &auth.SessionUser{
		ID:    u.ID.Hex(),
		Name:  u.FullName,
		Email: u.Email,
		Role:  role,
	}
}
