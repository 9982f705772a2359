// Package handler provides HTTP request handlers for DotVault.
package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/swapdotz/dotvault/internal/cardsim"
	"github.com/swapdotz/dotvault/internal/core/domain"
	"github.com/swapdotz/dotvault/internal/core/service"
	"github.com/swapdotz/dotvault/internal/storage/memory"
	"github.com/swapdotz/dotvault/pkg/apdu"
	"github.com/swapdotz/dotvault/pkg/crypto/suite"
)

const (
	testUID   = "04a1b2c3d4e5f607"
	userAlice = "user-alice"
	userBob   = "user-bob"
)

// fakeKeys derives deterministic card keys so the card simulator and
// the server agree without a real key store.
type fakeKeys struct {
	stored map[string][]byte
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{stored: make(map[string][]byte)}
}

func (f *fakeKeys) keyName(tokenID string, gen uint32) string {
	return fmt.Sprintf("%s/%d", tokenID, gen)
}

func (f *fakeKeys) Derive(tokenID string, gen uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], gen)
	sum := sha256.Sum256([]byte(tokenID + "/" + string(buf[:])))
	return sum[:16]
}

func (f *fakeKeys) CardKey(ctx context.Context, tokenID string, gen uint32) ([]byte, error) {
	if key, ok := f.stored[f.keyName(tokenID, gen)]; ok {
		return key, nil
	}
	return f.Derive(tokenID, gen), nil
}

func (f *fakeKeys) Put(ctx context.Context, tokenID string, gen uint32, key []byte) error {
	f.stored[f.keyName(tokenID, gen)] = append([]byte(nil), key...)
	return nil
}

type fixture struct {
	h        *Handler
	authSvc  *service.AuthService
	suites   *suite.Registry
	keys     *fakeKeys
	adminKey *domain.APIKey
	aliceKey *domain.APIKey
	bobKey   *domain.APIKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	discard := slog.New(slog.DiscardHandler)
	keys := newFakeKeys()
	suites := suite.NewRegistry(suite.DefaultCMACCutover)

	tokens := memory.NewTokenStore()
	sessions := memory.NewSessionStore()
	records := memory.NewRecordStore()
	audit := memory.NewAuditStore()
	apiKeys := memory.NewAPIKeyStore()

	transferSvc := service.NewTransferService(
		tokens, sessions, records, audit, keys, suites,
		service.DefaultTransferConfig(), discard,
	)
	tokenSvc := service.NewTokenService(tokens, records, audit, keys, discard)
	authSvc := service.NewAuthService(apiKeys, nil, discard)

	f := &fixture{
		h: New(&Config{
			Transfer: transferSvc,
			Tokens:   tokenSvc,
			Auth:     authSvc,
			Logger:   discard,
		}),
		authSvc: authSvc,
		suites:  suites,
		keys:    keys,
	}
	f.adminKey = f.createKey(t, "admin", "user-admin", domain.RoleAdmin)
	f.aliceKey = f.createKey(t, "alice", userAlice, domain.RoleOperator)
	f.bobKey = f.createKey(t, "bob", userBob, domain.RoleOperator)
	return f
}

func (f *fixture) createKey(t *testing.T, name, userID string, role domain.Role) *domain.APIKey {
	t.Helper()
	resp, err := f.authSvc.CreateAPIKey(context.Background(), &service.CreateAPIKeyRequest{
		Name: name, UserID: userID, Role: string(role),
	})
	if err != nil {
		t.Fatalf("CreateAPIKey(%s): %v", name, err)
	}
	return resp.Key
}

// envelope mirrors Response with raw payload fields for decoding.
type envelope struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Details   json.RawMessage `json:"details"`
}

// do sends a request through the handler with the caller's key
// pre-authenticated, the way the auth middleware would.
func (f *fixture) do(t *testing.T, key *domain.APIKey, method, path string, body any) (int, *envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if key != nil {
		req = req.WithContext(WithAPIKey(req.Context(), key))
	}

	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	var env envelope
	if strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode envelope: %v (body %s)", method, path, err, rec.Body.String())
		}
	}
	return rec.Code, &env
}

func (f *fixture) provision(t *testing.T, owner string) {
	t.Helper()
	status, env := f.do(t, f.adminKey, http.MethodPost, "/v1/tokens", ProvisionTokenRequest{
		UID:     testUID,
		OwnerID: owner,
	})
	if status != http.StatusCreated {
		t.Fatalf("provision: status = %d, body %s", status, env.Data)
	}
}

func decodeData(t *testing.T, env *envelope, dst any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, dst); err != nil {
		t.Fatalf("decode data: %v (data %s)", err, env.Data)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/health", "/ready"} {
		status, env := f.do(t, nil, http.MethodGet, path, nil)
		if status != http.StatusOK {
			t.Errorf("GET %s: status = %d", path, status)
		}
		if env.Code != "OK" {
			t.Errorf("GET %s: code = %q", path, env.Code)
		}
	}
}

func TestAuthenticationRequired(t *testing.T) {
	f := newFixture(t)

	status, env := f.do(t, nil, http.MethodGet, "/v1/tokens", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", status)
	}
	if env.Code != "UNAUTHORIZED" {
		t.Errorf("code = %q, want UNAUTHORIZED", env.Code)
	}
}

func TestPermissionDenied(t *testing.T) {
	f := newFixture(t)

	// Operators cannot provision tokens.
	status, env := f.do(t, f.aliceKey, http.MethodPost, "/v1/tokens", ProvisionTokenRequest{
		UID: testUID, OwnerID: userAlice,
	})
	if status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", status)
	}
	if env.Code != "UNAUTHORIZED" {
		t.Errorf("code = %q", env.Code)
	}
}

func TestProvisionAndReadToken(t *testing.T) {
	f := newFixture(t)
	f.provision(t, userAlice)

	t.Run("get", func(t *testing.T) {
		status, env := f.do(t, f.aliceKey, http.MethodGet, "/v1/tokens/"+testUID, nil)
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		var tok domain.Token
		decodeData(t, env, &tok)
		if tok.ID != testUID || tok.OwnerID != userAlice || tok.KeyVersion != 0 {
			t.Errorf("unexpected token: %+v", tok)
		}
	})

	t.Run("list", func(t *testing.T) {
		status, env := f.do(t, f.aliceKey, http.MethodGet, "/v1/tokens", nil)
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		var data struct {
			Total int `json:"total"`
		}
		decodeData(t, env, &data)
		if data.Total != 1 {
			t.Errorf("total = %d, want 1", data.Total)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		status, env := f.do(t, f.aliceKey, http.MethodGet, "/v1/tokens/ffffffffffffffff", nil)
		if status != http.StatusNotFound {
			t.Errorf("status = %d, want 404", status)
		}
		if env.Code != "TOKEN_NOT_FOUND" {
			t.Errorf("code = %q", env.Code)
		}
	})

	t.Run("duplicate provision", func(t *testing.T) {
		status, _ := f.do(t, f.adminKey, http.MethodPost, "/v1/tokens", ProvisionTokenRequest{
			UID: testUID, OwnerID: userBob,
		})
		if status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	})
}

func TestBeginTransferValidation(t *testing.T) {
	f := newFixture(t)

	t.Run("missing token_id", func(t *testing.T) {
		status, _ := f.do(t, f.bobKey, http.MethodPost, "/v1/transfers", BeginTransferRequest{})
		if status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		status, env := f.do(t, f.bobKey, http.MethodPost, "/v1/transfers", BeginTransferRequest{
			TokenID: testUID,
		})
		if status != http.StatusNotFound {
			t.Errorf("status = %d, want 404", status)
		}
		if env.Code != "TOKEN_NOT_FOUND" {
			t.Errorf("code = %q", env.Code)
		}
	})
}

// runTransfer drives a complete transfer to bob through the HTTP API,
// relaying card traffic through the simulator.
func (f *fixture) runTransfer(t *testing.T, card *cardsim.Card) {
	t.Helper()

	var begin struct {
		SessionID string   `json:"session_id"`
		Commands  []string `json:"commands"`
	}
	status, env := f.do(t, f.bobKey, http.MethodPost, "/v1/transfers", BeginTransferRequest{TokenID: testUID})
	if status != http.StatusCreated {
		t.Fatalf("begin: status = %d (%s)", status, env.Message)
	}
	decodeData(t, env, &begin)
	if len(begin.Commands) == 0 {
		t.Fatal("begin: no auth command issued")
	}

	base := "/v1/transfers/" + begin.SessionID

	// Authentication relay.
	cmd := begin.Commands[0]
	for i := 0; i < 4; i++ {
		frame, err := apdu.Decode(cmd)
		if err != nil {
			t.Fatalf("decode command: %v", err)
		}
		reply := card.Handle(frame)

		var cont struct {
			Done     bool     `json:"done"`
			Phase    string   `json:"phase"`
			Commands []string `json:"commands"`
		}
		status, env = f.do(t, f.bobKey, http.MethodPost, base+"/continue-auth", ContinueAuthRequest{
			CardResponse: apdu.Encode(reply),
		})
		if status != http.StatusOK {
			t.Fatalf("continue-auth: status = %d (%s)", status, env.Message)
		}
		decodeData(t, env, &cont)
		if cont.Done {
			break
		}
		if len(cont.Commands) == 0 {
			t.Fatal("continue-auth: no follow-up command issued")
		}
		cmd = cont.Commands[0]
	}
	if !card.Authenticated() {
		t.Fatal("card not authenticated after relay")
	}

	// Rotation.
	var rot struct {
		Commands    []string `json:"commands"`
		VerifyToken string   `json:"verify_token"`
		FramesHash  string   `json:"frames_hash"`
	}
	status, env = f.do(t, f.bobKey, http.MethodPost, base+"/rotate", RotateKeyRequest{Target: "mid"})
	if status != http.StatusOK {
		t.Fatalf("rotate: status = %d (%s)", status, env.Message)
	}
	decodeData(t, env, &rot)

	replies := make([]string, 0, len(rot.Commands))
	for _, enc := range rot.Commands {
		frame, err := apdu.Decode(enc)
		if err != nil {
			t.Fatalf("decode rotation frame: %v", err)
		}
		replies = append(replies, apdu.Encode(card.Handle(frame)))
	}

	status, env = f.do(t, f.bobKey, http.MethodPost, base+"/confirm", ConfirmRotationRequest{
		VerifyToken:   rot.VerifyToken,
		FramesHash:    rot.FramesHash,
		CardResponses: replies,
	})
	if status != http.StatusOK {
		t.Fatalf("confirm: status = %d (%s)", status, env.Message)
	}

	// Finalize.
	var fin struct {
		NewOwnerID    string `json:"new_owner_id"`
		KeyVersion    uint32 `json:"key_version"`
		TransferCount uint64 `json:"transfer_count"`
	}
	status, env = f.do(t, f.bobKey, http.MethodPost, base+"/finalize", FinalizeTransferRequest{
		NewOwnerID: userBob,
	})
	if status != http.StatusOK {
		t.Fatalf("finalize: status = %d (%s)", status, env.Message)
	}
	decodeData(t, env, &fin)
	if fin.NewOwnerID != userBob || fin.KeyVersion != 1 || fin.TransferCount != 1 {
		t.Errorf("unexpected finalize result: %+v", fin)
	}
}

func TestFullTransferOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.provision(t, userAlice)

	card := cardsim.New(f.suites.ForKeyVersion(0), f.keys.Derive(testUID, 0))

	f.runTransfer(t, card)

	// Ownership and history are visible through the registry.
	status, env := f.do(t, f.bobKey, http.MethodGet, "/v1/tokens/"+testUID, nil)
	if status != http.StatusOK {
		t.Fatalf("get token: status = %d", status)
	}
	var tok domain.Token
	decodeData(t, env, &tok)
	if tok.OwnerID != userBob || tok.KeyVersion != 1 {
		t.Errorf("token after transfer: owner = %q, key_version = %d", tok.OwnerID, tok.KeyVersion)
	}

	status, env = f.do(t, f.bobKey, http.MethodGet, "/v1/tokens/"+testUID+"/history", nil)
	if status != http.StatusOK {
		t.Fatalf("history: status = %d", status)
	}
	var hist struct {
		Total int `json:"total"`
	}
	decodeData(t, env, &hist)
	if hist.Total != 1 {
		t.Errorf("history total = %d, want 1", hist.Total)
	}
}

func TestBeginConflictMapsToLocked(t *testing.T) {
	f := newFixture(t)
	f.provision(t, userAlice)

	status, _ := f.do(t, f.bobKey, http.MethodPost, "/v1/transfers", BeginTransferRequest{TokenID: testUID})
	if status != http.StatusCreated {
		t.Fatalf("first begin: status = %d", status)
	}

	// A different user hits the lease.
	carol := f.createKey(t, "carol", "user-carol", domain.RoleOperator)
	status, env := f.do(t, carol, http.MethodPost, "/v1/transfers", BeginTransferRequest{TokenID: testUID})
	if status != http.StatusConflict {
		t.Errorf("status = %d, want 409", status)
	}
	if env.Code != "TOKEN_LOCKED" {
		t.Errorf("code = %q", env.Code)
	}
}

func TestAPIKeyAdminEndpoints(t *testing.T) {
	f := newFixture(t)

	var created struct {
		Key    *domain.APIKey `json:"key"`
		Secret string         `json:"secret"`
	}
	status, env := f.do(t, f.adminKey, http.MethodPost, "/admin/v1/keys", CreateAPIKeyRequest{
		Name: "relay-1", UserID: "user-relay", Role: "operator",
	})
	if status != http.StatusCreated {
		t.Fatalf("create: status = %d (%s)", status, env.Message)
	}
	decodeData(t, env, &created)
	if created.Key == nil || created.Secret == "" {
		t.Fatal("create returned no key or secret")
	}

	t.Run("list", func(t *testing.T) {
		status, env := f.do(t, f.adminKey, http.MethodGet, "/admin/v1/keys", nil)
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		var data struct {
			Total int `json:"total"`
		}
		decodeData(t, env, &data)
		if data.Total < 4 {
			t.Errorf("total = %d, want at least 4", data.Total)
		}
	})

	t.Run("disable", func(t *testing.T) {
		status, env := f.do(t, f.adminKey, http.MethodPost,
			"/admin/v1/keys/"+created.Key.KeyID+"/status",
			UpdateAPIKeyStatusRequest{Status: "disabled"})
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		var key domain.APIKey
		decodeData(t, env, &key)
		if key.Status != domain.KeyStatusDisabled {
			t.Errorf("status = %q, want disabled", key.Status)
		}
	})

	t.Run("invalid status", func(t *testing.T) {
		status, _ := f.do(t, f.adminKey, http.MethodPost,
			"/admin/v1/keys/"+created.Key.KeyID+"/status",
			UpdateAPIKeyStatusRequest{Status: "frozen"})
		if status != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", status)
		}
	})

	t.Run("rotate", func(t *testing.T) {
		status, env := f.do(t, f.adminKey, http.MethodPost,
			"/admin/v1/keys/"+created.Key.KeyID+"/rotate", nil)
		if status != http.StatusOK {
			t.Fatalf("status = %d", status)
		}
		var rotated struct {
			Secret string `json:"secret"`
		}
		decodeData(t, env, &rotated)
		if rotated.Secret == "" || rotated.Secret == created.Secret {
			t.Error("rotate did not issue a fresh secret")
		}
	})

	t.Run("delete", func(t *testing.T) {
		status, _ := f.do(t, f.adminKey, http.MethodDelete,
			"/admin/v1/keys/"+created.Key.KeyID, nil)
		if status != http.StatusOK {
			t.Errorf("status = %d", status)
		}
	})

	t.Run("operator denied", func(t *testing.T) {
		status, _ := f.do(t, f.aliceKey, http.MethodGet, "/admin/v1/keys", nil)
		if status != http.StatusForbidden {
			t.Errorf("status = %d, want 403", status)
		}
	})
}

func TestAuditLogsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.provision(t, userAlice)

	status, env := f.do(t, f.adminKey, http.MethodGet, "/admin/v1/audit/logs?token_id="+testUID, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var data struct {
		Entries []domain.AuditLogEntry `json:"entries"`
	}
	decodeData(t, env, &data)
	if len(data.Entries) != 1 || data.Entries[0].Event != domain.AuditTokenProvisioned {
		t.Errorf("unexpected audit entries: %+v", data.Entries)
	}
}

func TestSweepTrigger(t *testing.T) {
	f := newFixture(t)

	status, env := f.do(t, f.adminKey, http.MethodPost, "/admin/v1/sweep/trigger", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var data SweepResponse
	decodeData(t, env, &data)
	if data.SweptCount != 0 {
		t.Errorf("swept = %d, want 0", data.SweptCount)
	}
}

func TestBackupWithoutEngine(t *testing.T) {
	f := newFixture(t)

	status, env := f.do(t, f.adminKey, http.MethodGet, "/admin/v1/backup", nil)
	if status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
	if env.Code != "STORAGE_ERROR" {
		t.Errorf("code = %q", env.Code)
	}
}
