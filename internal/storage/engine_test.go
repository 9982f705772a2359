package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/swapdotz/dotvault/internal/core/domain"
)

func openTestStorage(t *testing.T, dataDir string) *Engine {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DataDir = dataDir
	cfg.KV.Badger.GCInterval = "1h"
	cfg.KV.Badger.SyncWrites = false
	cfg.Logger = slog.Default()

	engine, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return engine
}

func TestEngine_OpenClose(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "engine-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	engine := openTestStorage(t, tmpDir)

	if engine.Tokens == nil || engine.Records == nil || engine.Audit == nil || engine.APIKeys == nil {
		t.Fatal("expected all entity stores to be initialized")
	}
	if engine.KV() == nil {
		t.Fatal("expected KV engine")
	}

	if err := engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestEngine_UnsupportedKV(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KV.Engine = "bbolt"

	if _, err := Open(cfg); err == nil {
		t.Fatal("expected error for unsupported kv engine")
	}
}

func TestEngine_PersistenceAcrossRestart(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "engine-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()

	engine := openTestStorage(t, tmpDir)

	token := mustToken(t, testUID, "alice")
	if err := engine.Tokens.Create(ctx, token); err != nil {
		t.Fatal(err)
	}

	entry, err := domain.NewAuditLogEntry(domain.AuditTokenProvisioned, token.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Audit.Append(ctx, entry); err != nil {
		t.Fatal(err)
	}

	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopen the same directory and verify the data survived.
	engine = openTestStorage(t, tmpDir)
	defer engine.Close()

	got, err := engine.Tokens.Get(ctx, token.ID)
	if err != nil {
		t.Fatalf("Get after restart: %v", err)
	}
	if got.OwnerID != "alice" {
		t.Errorf("OwnerID = %q, want alice", got.OwnerID)
	}

	entries, err := engine.Audit.List(ctx, AuditFilter{TokenID: token.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("audit entries = %d, want 1", len(entries))
	}

	if _, err := engine.Tokens.Get(ctx, "ffffffffffffff"); !errors.Is(err, domain.ErrTokenNotFound) {
		t.Errorf("Get(missing) err = %v, want TOKEN_NOT_FOUND", err)
	}
}
