// Package authz is the single authority for role resolution.
//
// Every admin decision in the application flows through Resolver.Resolve so
// that the break-glass list, the role collection, and the fail-closed
// treatment of lookup errors behave identically everywhere. Session role
// snapshots are display hints only; they never gate an elevated operation.
package authz

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/promptdeck/promptdeck/internal/domain/models"
)

// Level is the resolved access level for a user.
type Level string

const (
	// LevelAdmin grants access to the admin surface.
	LevelAdmin Level = "admin"
	// LevelMember means a role row exists with a non-admin role.
	LevelMember Level = "member"
	// LevelUnknown means no row was found or the lookup failed; callers
	// must treat it as no elevated access.
	LevelUnknown Level = "unknown"
)

// Reason records how a Decision was reached, for audit logs and debugging.
type Reason string

const (
	// ReasonBreakGlass means the user's email is on the configured
	// break-glass admin list.
	ReasonBreakGlass Reason = "break_glass"
	// ReasonRoleRow means a role assignment row determined the level.
	ReasonRoleRow Reason = "role_row"
	// ReasonRowAbsent means no role row exists; the user is not an admin.
	ReasonRowAbsent Reason = "row_absent"
	// ReasonLookupError means the role lookup failed; access is denied.
	ReasonLookupError Reason = "lookup_error"
)

// Decision is the outcome of a role resolution.
type Decision struct {
	Level  Level
	Reason Reason
}

// IsAdmin reports whether the decision grants admin access.
func (d Decision) IsAdmin() bool { return d.Level == LevelAdmin }

// RoleLookup is the subset of the role store the resolver needs.
type RoleLookup interface {
	GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.RoleAssignment, error)
}

// Resolver resolves a user's access level from the break-glass list and the
// role assignment collection, in that order.
type Resolver struct {
	roles      RoleLookup
	breakGlass map[string]struct{}
	logger     *zap.Logger
}

// NewResolver creates a Resolver. breakGlassEmails is the configured list of
// emails that are admins regardless of role rows; entries are matched
// case-insensitively after trimming.
func NewResolver(roleStore RoleLookup, breakGlassEmails []string, logger *zap.Logger) *Resolver {
	bg := make(map[string]struct{}, len(breakGlassEmails))
	for _, e := range breakGlassEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			bg[e] = struct{}{}
		}
	}
	if len(bg) > 0 {
		logger.Info("break-glass admin list configured", zap.Int("count", len(bg)))
	}
	return &Resolver{
		roles:      roleStore,
		breakGlass: bg,
		logger:     logger,
	}
}

// Resolve determines the access level for the given user.
//
// Precedence:
//  1. break-glass email match → admin
//  2. role row with role "admin" → admin
//  3. role row with any other role → member
//  4. no row → unknown (row_absent)
//  5. lookup error → unknown (lookup_error)
//
// Both unknown reasons deny elevated access; the reason lets call sites
// distinguish "not an admin" from "resolution itself failed".
func (r *Resolver) Resolve(ctx context.Context, userID, email string) Decision {
	if email != "" {
		if _, ok := r.breakGlass[strings.ToLower(strings.TrimSpace(email))]; ok {
			r.logger.Info("break-glass admin access used",
				zap.String("user_id", userID),
				zap.String("email", strings.ToLower(strings.TrimSpace(email))))
			return Decision{Level: LevelAdmin, Reason: ReasonBreakGlass}
		}
	}

	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		// A malformed ID cannot have a role row.
		return Decision{Level: LevelUnknown, Reason: ReasonRowAbsent}
	}

	row, err := r.roles.GetByUserID(ctx, oid)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Decision{Level: LevelUnknown, Reason: ReasonRowAbsent}
		}
		r.logger.Error("role lookup failed, denying elevated access",
			zap.String("user_id", userID),
			zap.Error(err))
		return Decision{Level: LevelUnknown, Reason: ReasonLookupError}
	}

	if row.Role == models.RoleAdmin {
		return Decision{Level: LevelAdmin, Reason: ReasonRoleRow}
	}
	return Decision{Level: LevelMember, Reason: ReasonRoleRow}
}

// IsAdmin is a convenience wrapper around Resolve for call sites that only
// need the boolean outcome. Lookup errors report false.
func (r *Resolver) IsAdmin(ctx context.Context, userID, email string) bool {
	return r.Resolve(ctx, userID, email).IsAdmin()
}
