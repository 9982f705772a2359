package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/internal/storage/memory"
)

func newAuthFixture(t *testing.T, cfg *AuthServiceConfig) (*AuthService, *memory.APIKeyStore) {
	t.Helper()
	repo := memory.NewAPIKeyStore()
	return NewAuthService(repo, cfg, nil), repo
}

func createKey(t *testing.T, svc *AuthService, role string) (*domain.APIKey, string) {
	t.Helper()
	resp, err := svc.CreateAPIKey(context.Background(), &CreateAPIKeyRequest{
		Name:   "test key",
		UserID: userBob,
		Role:   role,
	})
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}
	return resp.Key, resp.Secret
}

func TestValidateAPIKey(t *testing.T) {
	svc, _ := newAuthFixture(t, nil)
	key, secret := createKey(t, svc, string(domain.RoleOperator))
	ctx := context.Background()

	t.Run("valid key", func(t *testing.T) {
		got, err := svc.ValidateAPIKey(ctx, key.KeyID, secret)
		if err != nil {
			t.Fatalf("ValidateAPIKey() error = %v", err)
		}
		if got.UserID != userBob || got.Role != domain.RoleOperator {
			t.Errorf("key = user %q role %q", got.UserID, got.Role)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := svc.ValidateAPIKey(ctx, key.KeyID, "dvak_wrong")
		if !errors.Is(err, domain.ErrAPIKeyInvalid) {
			t.Fatalf("error = %v, want UNAUTHORIZED", err)
		}
	})

	t.Run("unknown key id", func(t *testing.T) {
		_, err := svc.ValidateAPIKey(ctx, "dvak-00000000000000000000000000", secret)
		if !errors.Is(err, domain.ErrAPIKeyInvalid) {
			t.Fatalf("error = %v, want UNAUTHORIZED", err)
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		_, err := svc.ValidateAPIKey(ctx, "", "")
		if !errors.Is(err, domain.ErrAPIKeyMissing) {
			t.Fatalf("error = %v, want UNAUTHORIZED", err)
		}
	})
}

func TestValidateAPIKeyDisabled(t *testing.T) {
	svc, _ := newAuthFixture(t, nil)
	key, secret := createKey(t, svc, string(domain.RoleReader))
	ctx := context.Background()

	if _, err := svc.ValidateAPIKey(ctx, key.KeyID, secret); err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if _, err := svc.UpdateAPIKeyStatus(ctx, key.KeyID, domain.KeyStatusDisabled); err != nil {
		t.Fatalf("UpdateAPIKeyStatus() error = %v", err)
	}

	// Disabling drops the cache entry, so the change applies at once.
	_, err := svc.ValidateAPIKey(ctx, key.KeyID, secret)
	if !errors.Is(err, domain.ErrAPIKeyDisabled) {
		t.Fatalf("error = %v, want disabled", err)
	}
}

func TestValidateAPIKeyExpired(t *testing.T) {
	svc, repo := newAuthFixture(t, nil)
	ctx := context.Background()

	resp, err := svc.CreateAPIKey(ctx, &CreateAPIKeyRequest{
		Name:      "expiring",
		UserID:    userBob,
		Role:      string(domain.RoleReader),
		ExpiresAt: time.Now().Add(-time.Minute).UnixMilli(),
	})
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}
	if _, err := repo.Get(ctx, resp.Key.KeyID); err != nil {
		t.Fatalf("repo.Get() error = %v", err)
	}

	_, err = svc.ValidateAPIKey(ctx, resp.Key.KeyID, resp.Secret)
	if !errors.Is(err, domain.ErrAPIKeyInvalid) {
		t.Fatalf("error = %v, want UNAUTHORIZED", err)
	}
}

func TestCheckPermission(t *testing.T) {
	svc, _ := newAuthFixture(t, nil)

	tests := []struct {
		role  domain.Role
		perm  domain.Permission
		allow bool
	}{
		{domain.RoleMetrics, domain.PermMetricsRead, true},
		{domain.RoleMetrics, domain.PermTokenRead, false},
		{domain.RoleReader, domain.PermTokenRead, true},
		{domain.RoleReader, domain.PermTransferExecute, false},
		{domain.RoleOperator, domain.PermTransferExecute, true},
		{domain.RoleOperator, domain.PermTokenProvision, false},
		{domain.RoleAdmin, domain.PermTokenProvision, true},
		{domain.RoleAdmin, domain.PermAPIKeyCreate, true},
	}
	for _, tt := range tests {
		key := &domain.APIKey{Role: tt.role}
		err := svc.CheckPermission(key, tt.perm)
		if tt.allow && err != nil {
			t.Errorf("%s/%s: error = %v, want allowed", tt.role, tt.perm, err)
		}
		if !tt.allow && !errors.Is(err, domain.ErrPermissionDenied) {
			t.Errorf("%s/%s: error = %v, want UNAUTHORIZED", tt.role, tt.perm, err)
		}
	}
}

func TestCheckRateLimit(t *testing.T) {
	svc, _ := newAuthFixture(t, nil)
	ctx := context.Background()

	resp, err := svc.CreateAPIKey(ctx, &CreateAPIKeyRequest{
		Name:      "slow key",
		UserID:    userBob,
		Role:      string(domain.RoleOperator),
		RateLimit: 1,
	})
	if err != nil {
		t.Fatalf("CreateAPIKey() error = %v", err)
	}

	if err := svc.CheckRateLimit(resp.Key); err != nil {
		t.Fatalf("first request error = %v", err)
	}
	// Burst of 1 at 1 QPS: the second immediate request must wait.
	if err := svc.CheckRateLimit(resp.Key); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("second request error = %v, want RATE_LIMITED", err)
	}
}

func TestRotateAPIKey(t *testing.T) {
	svc, _ := newAuthFixture(t, nil)
	key, oldSecret := createKey(t, svc, string(domain.RoleOperator))
	ctx := context.Background()

	rotated, err := svc.RotateAPIKey(ctx, key.KeyID)
	if err != nil {
		t.Fatalf("RotateAPIKey() error = %v", err)
	}
	if rotated.Secret == oldSecret {
		t.Fatal("rotation reissued the same secret")
	}

	if _, err := svc.ValidateAPIKey(ctx, key.KeyID, oldSecret); !errors.Is(err, domain.ErrAPIKeyInvalid) {
		t.Errorf("old secret error = %v, want UNAUTHORIZED", err)
	}
	if _, err := svc.ValidateAPIKey(ctx, key.KeyID, rotated.Secret); err != nil {
		t.Errorf("new secret error = %v", err)
	}
}

func TestCreateAPIKeyValidation(t *testing.T) {
	svc, _ := newAuthFixture(t, nil)
	ctx := context.Background()

	_, err := svc.CreateAPIKey(ctx, &CreateAPIKeyRequest{Name: "k", UserID: userBob, Role: "superuser"})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("invalid role error = %v, want INVALID_REQUEST", err)
	}

	_, err = svc.CreateAPIKey(ctx, &CreateAPIKeyRequest{Name: "k", Role: string(domain.RoleReader)})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("missing user error = %v, want INVALID_REQUEST", err)
	}
}

func TestAPIKeyCache(t *testing.T) {
	cache := NewAPIKeyCache(2, time.Minute)
	k1 := &domain.APIKey{KeyID: "dvak-1"}
	k2 := &domain.APIKey{KeyID: "dvak-2"}
	k3 := &domain.APIKey{KeyID: "dvak-3"}

	cache.Put(k1.KeyID, k1)
	cache.Put(k2.KeyID, k2)
	if cache.Get(k1.KeyID) == nil {
		t.Fatal("k1 missing after insert")
	}

	// k2 is now least recently used and must be evicted.
	cache.Put(k3.KeyID, k3)
	if cache.Get(k2.KeyID) != nil {
		t.Error("k2 survived eviction")
	}
	if cache.Get(k1.KeyID) == nil || cache.Get(k3.KeyID) == nil {
		t.Error("recently used entries evicted")
	}
	if cache.Size() != 2 {
		t.Errorf("Size() = %d, want 2", cache.Size())
	}

	cache.Delete(k1.KeyID)
	if cache.Get(k1.KeyID) != nil {
		t.Error("k1 survived delete")
	}
}

func TestAPIKeyCacheTTL(t *testing.T) {
	cache := NewAPIKeyCache(4, 5*time.Millisecond)
	cache.Put("dvak-1", &domain.APIKey{KeyID: "dvak-1"})
	if cache.Get("dvak-1") == nil {
		t.Fatal("entry missing before TTL")
	}
	time.Sleep(10 * time.Millisecond)
	if cache.Get("dvak-1") != nil {
		t.Error("entry survived TTL")
	}
}
