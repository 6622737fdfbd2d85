package oauthstate

import (
	"testing"

	"github.com/promptdeck/promptdeck/internal/testutil"
)

func TestStore_ConsumeIsSingleUse(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db)

	if err := store.Create(ctx, "state-token-1", "/dashboard"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	returnTo, ok := store.Consume(ctx, "state-token-1")
	if !ok {
		t.Fatal("first Consume() should succeed")
	}
	if returnTo != "/dashboard" {
		t.Errorf("returnTo = %q, want /dashboard", returnTo)
	}

	// A replayed state token must be rejected.
	if _, ok := store.Consume(ctx, "state-token-1"); ok {
		t.Error("second Consume() of the same state should fail")
	}
}

func TestStore_ConsumeUnknownState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db)

	if _, ok := store.Consume(ctx, "never-created"); ok {
		t.Error("Consume() of an unknown state should fail")
	}
}

func TestStore_EmptyReturnTo(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db)

	if err := store.Create(ctx, "state-token-2", ""); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	returnTo, ok := store.Consume(ctx, "state-token-2")
	if !ok {
		t.Fatal("Consume() should succeed")
	}
	if returnTo != "" {
		t.Errorf("returnTo = %q, want empty", returnTo)
	}
}

func TestStore_DuplicateStateRejected(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db)

	if err := store.Create(ctx, "collide", "/a"); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := store.Create(ctx, "collide", "/b"); err == nil {
		t.Error("Create() with a duplicate state should fail on the unique index")
	}
}
