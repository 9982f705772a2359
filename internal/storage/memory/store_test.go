package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/swapdotz/dotvault/internal/core/domain"
)

const testUID = "04a1b2c3d4e5f607"

func newSession(t *testing.T, tokenID, userID string, ttl time.Duration) *domain.TransferSession {
	t.Helper()
	session, err := domain.NewTransferSession(tokenID, userID, 1, ttl)
	if err != nil {
		t.Fatal(err)
	}
	return session
}

func TestSessionStore_CreateGet(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session := newSession(t, testUID, "alice", time.Minute)
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TokenID != testUID || got.UserID != "alice" {
		t.Errorf("got %q/%q, want %q/alice", got.TokenID, got.UserID, testUID)
	}

	// Returned session is a clone; mutating it must not affect the store.
	got.UserID = "mallory"
	again, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.UserID != "alice" {
		t.Error("store returned a shared instance")
	}

	if _, err := store.Get(ctx, "dvts-0000000000000000000000000000"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get(missing) err = %v, want SESSION_NOT_FOUND", err)
	}
}

func TestSessionStore_ScratchSurvivesRoundTrip(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session := newSession(t, testUID, "alice", time.Minute)
	session.Scratch.SessionKey = []byte{1, 2, 3, 4}
	if err := store.Create(ctx, session); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Scratch.SessionKey) != 4 || got.Scratch.SessionKey[0] != 1 {
		t.Error("scratch material lost in store round trip")
	}
}

func TestSessionStore_GetByToken(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session := newSession(t, testUID, "alice", time.Minute)
	if err := store.Create(ctx, session); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetByToken(ctx, testUID)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if got.ID != session.ID {
		t.Errorf("ID = %q, want %q", got.ID, session.ID)
	}

	t.Run("terminal sessions are skipped", func(t *testing.T) {
		got.Fail("AUTH_FAILED")
		if err := store.Update(ctx, got, got.Version); err != nil {
			t.Fatal(err)
		}

		if _, err := store.GetByToken(ctx, testUID); !errors.Is(err, domain.ErrSessionNotFound) {
			t.Errorf("GetByToken after fail err = %v, want SESSION_NOT_FOUND", err)
		}
	})
}

func TestSessionStore_GetByTokenExpired(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session := newSession(t, testUID, "alice", -time.Second)
	if err := store.Create(ctx, session); err != nil {
		t.Fatal(err)
	}

	if _, err := store.GetByToken(ctx, testUID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("GetByToken(expired) err = %v, want SESSION_NOT_FOUND", err)
	}

	// Direct Get still returns it so the caller can fail it cleanly.
	if _, err := store.Get(ctx, session.ID); err != nil {
		t.Errorf("Get(expired) err = %v", err)
	}
}

func TestSessionStore_UpdateOptimisticLocking(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session := newSession(t, testUID, "alice", time.Minute)
	if err := store.Create(ctx, session); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}

	got.Phase = domain.PhaseAuthOK
	prev := got.Version
	if err := store.Update(ctx, got, prev); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Version != prev+1 {
		t.Errorf("Version = %d, want %d", got.Version, prev+1)
	}

	// A second writer holding the old version must lose.
	stale := got.Clone()
	if err := store.Update(ctx, stale, prev); !errors.Is(err, domain.ErrVersionConflict) {
		t.Errorf("Update(stale) err = %v, want VERSION_CONFLICT", err)
	}
}

func TestSessionStore_Quota(t *testing.T) {
	store := NewSessionStore(WithMaxSessionsPerUser(1))
	ctx := context.Background()

	first := newSession(t, testUID, "alice", time.Minute)
	if err := store.Create(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := newSession(t, "04ffeeddccbbaa99", "alice", time.Minute)
	if err := store.Create(ctx, second); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("Create over quota err = %v, want RATE_LIMITED", err)
	}
}

func TestSessionStore_Delete(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	session := newSession(t, testUID, "alice", time.Minute)
	if err := store.Create(ctx, session); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(ctx, session.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get(deleted) err = %v, want SESSION_NOT_FOUND", err)
	}
	if store.CountByToken(testUID) != 0 {
		t.Error("token index not cleaned up")
	}
	if store.CountByUser("alice") != 0 {
		t.Error("user index not cleaned up")
	}
}

func TestSessionStore_Expired(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	live := newSession(t, testUID, "alice", time.Minute)
	dead := newSession(t, "04ffeeddccbbaa99", "bob", -time.Second)
	done := newSession(t, "04aabbccdd001122", "carol", -time.Second)
	done.Complete()

	for _, s := range []*domain.TransferSession{live, dead, done} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	expired, err := store.Expired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 {
		t.Fatalf("Expired len = %d, want 1", len(expired))
	}
	if expired[0].ID != dead.ID {
		t.Errorf("expired ID = %q, want %q", expired[0].ID, dead.ID)
	}
}

func TestSessionStore_DeleteTerminal(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	stale := newSession(t, testUID, "alice", -time.Hour)
	stale.Complete()
	fresh := newSession(t, "04ffeeddccbbaa99", "bob", time.Minute)

	for _, s := range []*domain.TransferSession{stale, fresh} {
		if err := store.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := store.DeleteTerminal(ctx, time.Now().UnixMilli())
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if store.Count() != 1 {
		t.Errorf("Count = %d, want 1", store.Count())
	}
}

func TestSessionStore_ListByUser(t *testing.T) {
	store := NewSessionStore()
	ctx := context.Background()

	for _, uid := range []string{testUID, "04ffeeddccbbaa99"} {
		session := newSession(t, uid, "alice", time.Minute)
		if err := store.Create(ctx, session); err != nil {
			t.Fatal(err)
		}
	}

	sessions, err := store.ListByUser(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Errorf("ListByUser len = %d, want 2", len(sessions))
	}

	none, err := store.ListByUser(ctx, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("ListByUser(bob) len = %d, want 0", len(none))
	}
}
