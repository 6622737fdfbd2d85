// internal/domain/models/role.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role values. A user with no assignment row is a member.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// AllRoles returns the roles that may be written to a role assignment.
func AllRoles() []string {
	return []string{RoleAdmin, RoleMember}
}

// IsValidRole checks if a role is valid.
func IsValidRole(role string) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// RoleAssignment is one document per user in the user_roles collection.
//
// Invariant: at most one assignment per user id. The store enforces this with
// a unique index on user_id and upsert-only writes; assignments are never
// removed and re-inserted.
type RoleAssignment struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID primitive.ObjectID `bson:"user_id" json:"user_id"`
	Role   string             `bson:"role" json:"role"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
