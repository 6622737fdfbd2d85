// internal/app/store/roles/rolestore.go
package rolestore

import (
	"context"
	"errors"
	"time"

	"github.com/promptdeck/promptdeck/internal/app/system/normalize"
	"github.com/promptdeck/promptdeck/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrInvalidRole is returned when assigning a role value that is not recognized.
var ErrInvalidRole = errors.New("invalid role")

// Store provides access to the user_roles collection.
//
// One document per user id, enforced by a unique index. All writes are
// upserts: an assignment is never deleted and re-inserted, so a concurrent
// reader always observes either the old or the new role, never an absent row.
type Store struct {
	c *mongo.Collection
}

// New creates a new role assignment Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("user_roles")}
}

// GetByUserID loads the role assignment for a user.
// Returns mongo.ErrNoDocuments if the user has no assignment (member).
func (s *Store) GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.RoleAssignment, error) {
	var ra models.RoleAssignment
	if err := s.c.FindOne(ctx, bson.M{"user_id": userID}).Decode(&ra); err != nil {
		return nil, err
	}
	return &ra, nil
}

// Assign upserts the role assignment for a user.
func (s *Store) Assign(ctx context.Context, userID primitive.ObjectID, role string) error {
	role = normalize.Role(role)
	if !models.IsValidRole(role) {
		return ErrInvalidRole
	}

	now := time.Now().UTC()
	_, err := s.c.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set": bson.M{
				"role":       role,
				"updated_at": now,
			},
			"$setOnInsert": bson.M{
				"user_id":    userID,
				"created_at": now,
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// Remove deletes the assignment for a user, demoting them to member.
// Used when the user account itself is deleted.
func (s *Store) Remove(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"user_id": userID})
	return err
}

// ListByRole returns the user ids holding the given role.
func (s *Store) ListByRole(ctx context.Context, role string) ([]primitive.ObjectID, error) {
	cur, err := s.c.Find(ctx, bson.M{"role": normalize.Role(role)})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var assignments []models.RoleAssignment
	if err := cur.All(ctx, &assignments); err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(assignments))
	for _, ra := range assignments {
		ids = append(ids, ra.UserID)
	}
	return ids, nil
}

// RolesForUsers returns a map of user id to role for the given users.
// Users without an assignment are absent from the map (member).
func (s *Store) RolesForUsers(ctx context.Context, userIDs []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	if len(userIDs) == 0 {
		return map[primitive.ObjectID]string{}, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"user_id": bson.M{"$in": userIDs}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var assignments []models.RoleAssignment
	if err := cur.All(ctx, &assignments); err != nil {
		return nil, err
	}
	roles := make(map[primitive.ObjectID]string, len(assignments))
	for _, ra := range assignments {
		roles[ra.UserID] = ra.Role
	}
	return roles, nil
}
