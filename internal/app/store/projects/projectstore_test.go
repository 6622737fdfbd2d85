package projectstore

import (
	"testing"
	"time"

	"github.com/promptdeck/promptdeck/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_CreateAndListNewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db)
	userID := primitive.NewObjectID()

	first, err := store.Create(ctx, CreateInput{UserID: userID, Name: "first"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	// BSON datetimes carry millisecond precision; keep the timestamps apart.
	time.Sleep(5 * time.Millisecond)
	second, err := store.Create(ctx, CreateInput{UserID: userID, Name: "second"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	projects, err := store.ListForUser(ctx, userID)
	if err != nil {
		t.Fatalf("ListForUser() error: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(projects))
	}
	if projects[0].ID != second.ID || projects[1].ID != first.ID {
		t.Error("projects should be listed newest first")
	}
}

func TestStore_ListScopedToUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db)
	alice := primitive.NewObjectID()
	bob := primitive.NewObjectID()

	if _, err := store.Create(ctx, CreateInput{UserID: alice, Name: "alice's"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := store.Create(ctx, CreateInput{UserID: bob, Name: "bob's"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	projects, err := store.ListForUser(ctx, alice)
	if err != nil {
		t.Fatalf("ListForUser() error: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "alice's" {
		t.Errorf("ListForUser(alice) = %v, want only alice's project", projects)
	}

	count, err := store.CountForUser(ctx, alice)
	if err != nil {
		t.Fatalf("CountForUser() error: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestStore_GetOwned(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db)
	owner := primitive.NewObjectID()
	stranger := primitive.NewObjectID()

	created, err := store.Create(ctx, CreateInput{UserID: owner, Name: "mine"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := store.GetOwned(ctx, created.ID, owner)
	if err != nil {
		t.Fatalf("GetOwned(owner) error: %v", err)
	}
	if got.Name != "mine" {
		t.Errorf("name = %q", got.Name)
	}

	// A stranger sees the same error as for a project that does not exist.
	if _, err := store.GetOwned(ctx, created.ID, stranger); err != ErrNotFound {
		t.Errorf("GetOwned(stranger) error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetOwned(ctx, primitive.NewObjectID(), owner); err != ErrNotFound {
		t.Errorf("GetOwned(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_UpdatePartial(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db)
	owner := primitive.NewObjectID()

	created, err := store.Create(ctx, CreateInput{UserID: owner, Name: "before", Description: "keep me"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	name := "after"
	if err := store.Update(ctx, created.ID, owner, UpdateInput{Name: &name}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, err := store.GetOwned(ctx, created.ID, owner)
	if err != nil {
		t.Fatalf("GetOwned() error: %v", err)
	}
	if got.Name != "after" {
		t.Errorf("name = %q, want after", got.Name)
	}
	if got.Description != "keep me" {
		t.Errorf("description = %q, want unchanged", got.Description)
	}
	if !got.UpdatedAt.After(created.UpdatedAt) {
		t.Error("updated_at should advance on update")
	}
}

func TestStore_DeleteScoped(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db)
	owner := primitive.NewObjectID()
	stranger := primitive.NewObjectID()

	created, err := store.Create(ctx, CreateInput{UserID: owner, Name: "target"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := store.Delete(ctx, created.ID, stranger); err != ErrNotFound {
		t.Errorf("Delete(stranger) error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, created.ID, owner); err != nil {
		t.Errorf("Delete(owner) error: %v", err)
	}
	if err := store.Delete(ctx, created.ID, owner); err != ErrNotFound {
		t.Errorf("Delete(gone) error = %v, want ErrNotFound", err)
	}
}
