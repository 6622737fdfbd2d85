// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents an account on the platform.
//
// Auth fields:
//   - Email: What the user signs in with (stored lowercase)
//   - EmailCI: Case/diacritic-insensitive version for matching (folded)
//   - AuthMethod: password, google, trust
//
// A user's role is NOT stored here. Role assignments live in the user_roles
// collection (see RoleAssignment) and are resolved through authz.Resolver so
// that every authorization decision reads the same source of truth.
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName string             `bson:"full_name" json:"full_name"`

	Email      string `bson:"email" json:"email"`
	EmailCI    string `bson:"email_ci" json:"-"` // folded for case-insensitive matching
	AuthMethod string `bson:"auth_method" json:"auth_method"`

	PasswordHash *string `bson:"password_hash,omitempty" json:"-"` // bcrypt hash (never in JSON)

	Status string `bson:"status,omitempty" json:"status,omitempty"` // active, disabled

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Auth method values stored in auth_method.
const (
	AuthPassword = "password"
	AuthGoogle   = "google"
	AuthTrust    = "trust"
)

// IsValidAuthMethod checks if a value is a supported auth method.
func IsValidAuthMethod(value string) bool {
	switch value {
	case AuthPassword, AuthGoogle, AuthTrust:
		return true
	}
	return false
}
