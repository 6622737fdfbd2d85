// internal/app/store/runs/runstore.go
package runstore

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

// ErrNotFound is returned when a test run is not found.
var ErrNotFound = errors.New("test run not found")

// Store provides test run persistence. Runs are append-only; there is no
// update path, a failed run is replaced by submitting a new one.
type Store struct {
	c *mongo.Collection
}

// New creates a new test run store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("test_runs")}
}

// EnsureIndexes creates lookup indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "run_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_runs_run_id"),
		},
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_runs_user"),
		},
		{
			Keys:    bson.D{{Key: "project_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_runs_project"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Insert records a completed or failed run.
func (s *Store) Insert(ctx context.Context, run models.TestRun) (models.TestRun, error) {
	if run.ID.IsZero() {
		run.ID = primitive.NewObjectID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	if _, err := s.c.InsertOne(ctx, run); err != nil {
		return models.TestRun{}, err
	}
	return run, nil
}

// GetOwned retrieves a run by ID, restricted to the owner.
func (s *Store) GetOwned(ctx context.Context, id, userID primitive.ObjectID) (*models.TestRun, error) {
	var run models.TestRun
	err := s.c.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListForProject returns a project's runs, newest first, capped at limit.
func (s *Store) ListForProject(ctx context.Context, projectID primitive.ObjectID, limit int64) ([]models.TestRun, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, bson.M{"project_id": projectID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var runs []models.TestRun
	if err := cur.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// ListForUser returns the user's recent runs across all projects.
func (s *Store) ListForUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]models.TestRun, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cur, err := s.c.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var runs []models.TestRun
	if err := cur.All(ctx, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// DeleteForProject removes every run recorded against a project.
func (s *Store) DeleteForProject(ctx context.Context, projectID primitive.ObjectID) (int64, error) {
	result, err := s.c.DeleteMany(ctx, bson.M{"project_id": projectID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// CountForUser returns the number of runs the user has recorded.
func (s *Store) CountForUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"user_id": userID})
}
