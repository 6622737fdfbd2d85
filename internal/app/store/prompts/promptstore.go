// internal/app/store/prompts/promptstore.go
package promptstore

import (
	"context"
	"errors"
	"time"

	"github.com/promptdeck/promptdeck/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a system prompt is not found or is owned by
// someone else; the two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("system prompt not found")

// Store provides system prompt persistence.
type Store struct {
	c *mongo.Collection
}

// New creates a new system prompt store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("system_prompts")}
}

// EnsureIndexes creates lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_sysprompts_user"),
		},
		{
			Keys:    bson.D{{Key: "project_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_sysprompts_project"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// CreateInput holds the fields for creating a system prompt.
type CreateInput struct {
	UserID    primitive.ObjectID
	ProjectID primitive.ObjectID
	Name      string
	Content   string
}

// Create inserts a new system prompt.
func (s *Store) Create(ctx context.Context, input CreateInput) (models.SystemPrompt, error) {
	now := time.Now()
	p := models.SystemPrompt{
		ID:        primitive.NewObjectID(),
		UserID:    input.UserID,
		ProjectID: input.ProjectID,
		Name:      input.Name,
		Content:   input.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.c.InsertOne(ctx, p); err != nil {
		return models.SystemPrompt{}, err
	}
	return p, nil
}

// GetOwned retrieves a system prompt by ID, restricted to the owner.
func (s *Store) GetOwned(ctx context.Context, id, userID primitive.ObjectID) (*models.SystemPrompt, error) {
	var p models.SystemPrompt
	if err := s.c.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListForProject returns the system prompts in a project, newest first.
func (s *Store) ListForProject(ctx context.Context, projectID primitive.ObjectID) ([]models.SystemPrompt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"project_id": projectID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var prompts []models.SystemPrompt
	if err := cur.All(ctx, &prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

// UpdateInput holds fields that can be updated on a system prompt.
// Nil pointers leave the field unchanged.
type UpdateInput struct {
	Name    *string
	Content *string
}

// Update modifies a system prompt the user owns.
func (s *Store) Update(ctx context.Context, id, userID primitive.ObjectID, input UpdateInput) error {
	set := bson.M{"updated_at": time.Now()}
	if input.Name != nil {
		set["name"] = *input.Name
	}
	if input.Content != nil {
		set["content"] = *input.Content
	}

	result, err := s.c.UpdateOne(ctx, bson.M{"_id": id, "user_id": userID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a system prompt the user owns.
func (s *Store) Delete(ctx context.Context, id, userID primitive.ObjectID) error {
	result, err := s.c.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteForProject removes every system prompt in a project.
func (s *Store) DeleteForProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	result, err := s.c.DeleteMany(ctx, bson.M{"project_id": projectID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
