// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/promptdeck/promptdeck/internal/app/system/normalize"
	"github.com/promptdeck/promptdeck/internal/app/system/status"
	"github.com/promptdeck/promptdeck/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	// ErrDuplicateEmail is returned when attempting to create a user with an email that already exists.
	ErrDuplicateEmail = errors.New("a user with this email already exists")
	errBadAuthMethod  = errors.New("invalid auth method")
	errBadStatus      = errors.New(`status must be "active"|"disabled"`)
)

// Store provides access to the users collection.
type Store struct {
	c *mongo.Collection
}

// New creates a new user Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByEmail looks up a user by case/diacritic-insensitive email.
// Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"email_ci": text.Fold(email)}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateInput holds the fields for creating a user.
type CreateInput struct {
	FullName     string
	Email        string
	AuthMethod   string
	PasswordHash *string
	Status       string // defaults to active
}

// Create inserts a new user after normalizing and validating fields.
// Returns ErrDuplicateEmail when the email is already taken.
func (s *Store) Create(ctx context.Context, in CreateInput) (models.User, error) {
	email := normalize.Email(in.Email)

	u := models.User{
		ID:           primitive.NewObjectID(),
		FullName:     normalize.Name(in.FullName),
		Email:        email,
		EmailCI:      text.Fold(email),
		AuthMethod:   normalize.AuthMethod(in.AuthMethod),
		PasswordHash: in.PasswordHash,
		Status:       in.Status,
	}

	if u.Status == "" {
		u.Status = status.Default()
	}
	if !models.IsValidAuthMethod(u.AuthMethod) {
		return models.User{}, errBadAuthMethod
	}
	if !status.IsValid(u.Status) {
		return models.User{}, errBadStatus
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

// UpdateInput holds the optional fields that can be updated for a user.
// Nil fields are left unchanged.
type UpdateInput struct {
	FullName     *string
	Status       *string
	PasswordHash *string
}

// Update applies the non-nil fields of upd to a user.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, upd UpdateInput) error {
	set := bson.M{"updated_at": time.Now().UTC()}

	if upd.FullName != nil {
		set["full_name"] = normalize.Name(*upd.FullName)
	}
	if upd.Status != nil {
		st := normalize.Status(*upd.Status)
		if !status.IsValid(st) {
			return errBadStatus
		}
		set["status"] = st
	}
	if upd.PasswordHash != nil {
		set["password_hash"] = *upd.PasswordHash
	}

	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return err
}

// Delete deletes a user by ID.
// Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ExistsByEmail checks if a user with the given email exists.
func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	count, err := s.c.CountDocuments(ctx, bson.M{"email_ci": text.Fold(email)})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListAll returns all users sorted by email.
func (s *Store) ListAll(ctx context.Context) ([]models.User, error) {
	opts := options.Find().SetSort(bson.M{"email_ci": 1})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Count returns the number of users matching the given filter.
func (s *Store) Count(ctx context.Context, filter bson.M) (int64, error) {
	return s.c.CountDocuments(ctx, filter)
}

// Find returns users matching the given filter with the given options.
func (s *Store) Find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]models.User, error) {
	cur, err := s.c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var users []models.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}
