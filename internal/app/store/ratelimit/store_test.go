package ratelimit

import (
	"testing"
	"time"

	"github.com/promptdeck/promptdeck/internal/testutil"
)

func TestStore_LockoutAfterMaxAttempts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db, 3, time.Minute, time.Minute)
	email := "victim@example.com"

	for i := 0; i < 2; i++ {
		if lockedOut, _ := store.RecordFailure(ctx, email); lockedOut {
			t.Fatalf("failure %d should not lock out yet", i+1)
		}
	}

	lockedOut, lockedUntil := store.RecordFailure(ctx, email)
	if !lockedOut {
		t.Fatal("third failure should trigger the lockout")
	}
	if lockedUntil == nil || !lockedUntil.After(time.Now()) {
		t.Error("lockedUntil should be in the future")
	}

	allowed, remaining, until := store.CheckAllowed(ctx, email)
	if allowed {
		t.Error("locked email should not be allowed")
	}
	if remaining != -1 {
		t.Errorf("remaining = %d, want -1 while locked", remaining)
	}
	if until == nil {
		t.Error("CheckAllowed should report the lockout deadline")
	}
}

func TestStore_RemainingCountsDown(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db, 5, time.Minute, time.Minute)
	email := "counter@example.com"

	allowed, remaining, _ := store.CheckAllowed(ctx, email)
	if !allowed || remaining != 5 {
		t.Errorf("fresh email: allowed=%v remaining=%d, want true/5", allowed, remaining)
	}

	store.RecordFailure(ctx, email)
	store.RecordFailure(ctx, email)

	allowed, remaining, _ = store.CheckAllowed(ctx, email)
	if !allowed || remaining != 3 {
		t.Errorf("after 2 failures: allowed=%v remaining=%d, want true/3", allowed, remaining)
	}
}

func TestStore_ClearOnSuccess(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db, 3, time.Minute, time.Minute)
	email := "redeemed@example.com"

	store.RecordFailure(ctx, email)
	store.RecordFailure(ctx, email)

	if err := store.ClearOnSuccess(ctx, email); err != nil {
		t.Fatalf("ClearOnSuccess() error: %v", err)
	}

	allowed, remaining, _ := store.CheckAllowed(ctx, email)
	if !allowed || remaining != 3 {
		t.Errorf("after clear: allowed=%v remaining=%d, want true/3", allowed, remaining)
	}

	attempt, err := store.GetAttempt(ctx, email)
	if err != nil {
		t.Fatalf("GetAttempt() error: %v", err)
	}
	if attempt != nil {
		t.Error("attempt record should be gone after a successful sign-in")
	}
}

func TestStore_WindowExpiryResets(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// A window this short has expired by the time we check again.
	store := New(db, 3, time.Nanosecond, time.Minute)
	email := "slow@example.com"

	store.RecordFailure(ctx, email)
	store.RecordFailure(ctx, email)
	time.Sleep(10 * time.Millisecond)

	allowed, remaining, _ := store.CheckAllowed(ctx, email)
	if !allowed || remaining != 3 {
		t.Errorf("expired window: allowed=%v remaining=%d, want true/3", allowed, remaining)
	}
}

func TestStore_EmailNormalized(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db, 2, time.Minute, time.Minute)

	store.RecordFailure(ctx, "Mixed@Example.COM")
	lockedOut, _ := store.RecordFailure(ctx, "mixed@example.com")
	if !lockedOut {
		t.Error("differently-cased failures should count against the same record")
	}
}
