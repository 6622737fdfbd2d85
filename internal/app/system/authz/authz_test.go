package authz

import (
	"context"
	"errors"
	"testing"

	rolestore "github.com/promptdeck/promptdeck/internal/app/store/roles"
	"github.com/promptdeck/promptdeck/internal/domain/models"
	"github.com/promptdeck/promptdeck/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// failingRoleLookup simulates a role store whose backing database is down.
type failingRoleLookup struct{}

func (failingRoleLookup) GetByUserID(ctx context.Context, userID primitive.ObjectID) (*models.RoleAssignment, error) {
	return nil, errors.New("connection reset by peer")
}

func TestResolver_BreakGlassEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	resolver := NewResolver(rolestore.New(db), []string{"Root@Example.com", "  ops@example.com  "}, zap.NewNop())

	tests := []struct {
		name  string
		email string
		admin bool
	}{
		{"exact match", "root@example.com", true},
		{"case insensitive", "ROOT@EXAMPLE.COM", true},
		{"trimmed entry", "ops@example.com", true},
		{"not on list", "user@example.com", false},
		{"empty email", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := resolver.Resolve(ctx, primitive.NewObjectID().Hex(), tt.email)
			if d.IsAdmin() != tt.admin {
				t.Errorf("Resolve(%q).IsAdmin() = %v, want %v", tt.email, d.IsAdmin(), tt.admin)
			}
			if tt.admin && d.Reason != ReasonBreakGlass {
				t.Errorf("reason = %q, want %q", d.Reason, ReasonBreakGlass)
			}
		})
	}
}

func TestResolver_RoleRow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	roleStore := rolestore.New(db)
	resolver := NewResolver(roleStore, nil, zap.NewNop())

	adminID := primitive.NewObjectID()
	memberID := primitive.NewObjectID()

	if err := roleStore.Assign(ctx, adminID, models.RoleAdmin); err != nil {
		t.Fatalf("failed to assign admin role: %v", err)
	}
	if err := roleStore.Assign(ctx, memberID, models.RoleMember); err != nil {
		t.Fatalf("failed to assign member role: %v", err)
	}

	d := resolver.Resolve(ctx, adminID.Hex(), "admin@example.com")
	if d.Level != LevelAdmin || d.Reason != ReasonRoleRow {
		t.Errorf("admin row: got level=%q reason=%q, want %q/%q", d.Level, d.Reason, LevelAdmin, ReasonRoleRow)
	}

	d = resolver.Resolve(ctx, memberID.Hex(), "member@example.com")
	if d.Level != LevelMember || d.Reason != ReasonRoleRow {
		t.Errorf("member row: got level=%q reason=%q, want %q/%q", d.Level, d.Reason, LevelMember, ReasonRoleRow)
	}
}

func TestResolver_RowAbsentIsUnknown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	resolver := NewResolver(rolestore.New(db), nil, zap.NewNop())

	// A missing row is distinct from a member row: LevelMember only comes
	// from an actual role assignment.
	d := resolver.Resolve(ctx, primitive.NewObjectID().Hex(), "nobody@example.com")
	if d.Level != LevelUnknown {
		t.Errorf("level = %q, want %q", d.Level, LevelUnknown)
	}
	if d.Reason != ReasonRowAbsent {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonRowAbsent)
	}
	if d.IsAdmin() {
		t.Error("a user without a role row must not be admin")
	}
}

func TestResolver_MalformedUserID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	resolver := NewResolver(rolestore.New(db), nil, zap.NewNop())

	d := resolver.Resolve(ctx, "not-a-hex-id", "user@example.com")
	if d.Level != LevelUnknown || d.Reason != ReasonRowAbsent {
		t.Errorf("got level=%q reason=%q, want %q/%q", d.Level, d.Reason, LevelUnknown, ReasonRowAbsent)
	}
}

func TestResolver_LookupErrorFailsClosed(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	resolver := NewResolver(failingRoleLookup{}, nil, zap.NewNop())

	d := resolver.Resolve(ctx, primitive.NewObjectID().Hex(), "user@example.com")
	if d.Level != LevelUnknown {
		t.Errorf("level = %q, want %q", d.Level, LevelUnknown)
	}
	if d.Reason != ReasonLookupError {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonLookupError)
	}
	if d.IsAdmin() {
		t.Error("a lookup failure must never grant admin")
	}
	if resolver.IsAdmin(ctx, primitive.NewObjectID().Hex(), "user@example.com") {
		t.Error("IsAdmin must report false on lookup failure")
	}
}

func TestResolver_BreakGlassUseIsLogged(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	core, logs := observer.New(zapcore.InfoLevel)
	resolver := NewResolver(failingRoleLookup{}, []string{"root@example.com"}, zap.New(core))

	resolver.Resolve(ctx, primitive.NewObjectID().Hex(), "ROOT@example.com")

	entries := logs.FilterMessage("break-glass admin access used").All()
	if len(entries) != 1 {
		t.Fatalf("got %d break-glass log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["email"] != "root@example.com" {
		t.Errorf("logged email = %v, want %q", fields["email"], "root@example.com")
	}
}

func TestResolver_BreakGlassSkipsLookup(t *testing.T) {
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// The failing lookup would yield LevelUnknown; the break-glass match
	// must short-circuit before it is consulted.
	resolver := NewResolver(failingRoleLookup{}, []string{"root@example.com"}, zap.NewNop())

	d := resolver.Resolve(ctx, primitive.NewObjectID().Hex(), "root@example.com")
	if d.Level != LevelAdmin || d.Reason != ReasonBreakGlass {
		t.Errorf("got level=%q reason=%q, want %q/%q", d.Level, d.Reason, LevelAdmin, ReasonBreakGlass)
	}
}
