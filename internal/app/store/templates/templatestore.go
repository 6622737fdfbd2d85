// internal/app/store/templates/templatestore.go
package templatestore

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/promptdeck/promptdeck/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a prompt template is not found or is owned
// by someone else; the two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("prompt template not found")

// placeholderRe matches {{name}} with optional inner whitespace.
var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// ExtractVariables returns the placeholder names in content, deduplicated, in
// order of first appearance.
func ExtractVariables(content string) []string {
	matches := placeholderRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var vars []string
	for _, m := range matches {
		name := m[1]
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		vars = append(vars, name)
	}
	return vars
}

// Render substitutes values into the template's placeholders. Placeholders
// with no value provided are left in place so the caller can see what was
// missing.
func Render(content string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(content, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := values[name]; ok {
			return v
		}
		return m
	})
}

// MissingVariables returns variables that have no value in values, after
// trimming. Empty values count as missing.
func MissingVariables(vars []string, values map[string]string) []string {
	var missing []string
	for _, name := range vars {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Store provides prompt template persistence.
type Store struct {
	c *mongo.Collection
}

// New creates a new prompt template store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("prompt_templates")}
}

// EnsureIndexes creates lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_templates_user"),
		},
		{
			Keys:    bson.D{{Key: "project_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_templates_project"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// CreateInput holds the fields for creating a prompt template.
type CreateInput struct {
	UserID    primitive.ObjectID
	ProjectID primitive.ObjectID
	Name      string
	Content   string
}

// Create inserts a new prompt template. Variables are extracted from the
// content at write time so lists never need to re-parse.
func (s *Store) Create(ctx context.Context, input CreateInput) (models.PromptTemplate, error) {
	now := time.Now()
	t := models.PromptTemplate{
		ID:        primitive.NewObjectID(),
		UserID:    input.UserID,
		ProjectID: input.ProjectID,
		Name:      input.Name,
		Content:   input.Content,
		Variables: ExtractVariables(input.Content),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.c.InsertOne(ctx, t); err != nil {
		return models.PromptTemplate{}, err
	}
	return t, nil
}

// GetOwned retrieves a prompt template by ID, restricted to the owner.
func (s *Store) GetOwned(ctx context.Context, id, userID primitive.ObjectID) (*models.PromptTemplate, error) {
	var t models.PromptTemplate
	if err := s.c.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListForProject returns the prompt templates in a project, newest first.
func (s *Store) ListForProject(ctx context.Context, projectID primitive.ObjectID) ([]models.PromptTemplate, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"project_id": projectID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var templates []models.PromptTemplate
	if err := cur.All(ctx, &templates); err != nil {
		return nil, err
	}
	return templates, nil
}

// UpdateInput holds fields that can be updated on a prompt template.
// Nil pointers leave the field unchanged.
type UpdateInput struct {
	Name    *string
	Content *string
}

// Update modifies a prompt template the user owns. Changing the content
// re-extracts the variable list.
func (s *Store) Update(ctx context.Context, id, userID primitive.ObjectID, input UpdateInput) error {
	set := bson.M{"updated_at": time.Now()}
	if input.Name != nil {
		set["name"] = *input.Name
	}
	if input.Content != nil {
		set["content"] = *input.Content
		set["variables"] = ExtractVariables(*input.Content)
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

// Delete removes a prompt template the user owns.
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

// DeleteForProject removes every prompt template in a project.
func (s *Store) DeleteForProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	result, err := s.c.DeleteMany(ctx, bson.M{"project_id": projectID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
