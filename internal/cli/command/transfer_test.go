package command

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/swapdotz/dotvault/internal/cardsim"
	"github.com/swapdotz/dotvault/internal/cli/connection"
	"github.com/swapdotz/dotvault/pkg/crypto/suite"
)

func testCard() *cardsim.Card {
	key := make([]byte, 16)
	suites := suite.NewRegistry(suite.DefaultCMACCutover)
	return cardsim.New(suites.ForKeyVersion(0), key)
}

func TestTransferBegin(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		envelopeResponse(w, http.StatusCreated, map[string]any{
			"session_id": "dvts-01",
			"lease_id":   "dvls-01",
			"record_id":  "dvtr-01",
			"expires_at": 1756700000000,
			"commands":   []string{"GgA="},
		})
	})

	c := makeTestContext(server, map[string]any{"token-id": "dvtk-01"}, nil)
	if err := transferBegin(c); err != nil {
		t.Fatalf("transferBegin: %v", err)
	}
}

func TestTransferBeginLocked(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		envelopeError(w, http.StatusConflict, "TOKEN_LOCKED", "token is locked by another session")
	})

	c := makeTestContext(server, map[string]any{"token-id": "dvtk-01"}, nil)
	err := transferBegin(c)
	if err == nil || !strings.Contains(err.Error(), "TOKEN_LOCKED") {
		t.Errorf("err = %v", err)
	}
}

func TestTransferFinalizeRequiresSession(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	c := makeTestContext(server, map[string]any{"new-owner": "bob"}, nil)
	err := transferFinalize(c)
	if err == nil || !strings.Contains(err.Error(), "session ID required") {
		t.Errorf("err = %v", err)
	}
}

func TestRelayToCardRejectsBadFrame(t *testing.T) {
	_, err := relayToCard(testCard(), "not-base64!!")
	if err == nil {
		t.Error("expected decode error")
	}
}

func TestRunDemoRequiresAuthentication(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/v1/transfers", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/continue-auth") {
			// Claim auth is done without running the handshake.
			envelopeResponse(w, http.StatusOK, map[string]any{
				"done":  true,
				"phase": "authenticated",
			})
			return
		}
		envelopeResponse(w, http.StatusCreated, map[string]any{
			"session_id": "dvts-01",
			"commands":   []string{"GgA="},
		})
	})

	client := connection.NewHTTPClient(server.URL, "", "")
	_, err := runDemo(context.Background(), client, testCard(), "dvtk-01", "bob", nil)
	if err == nil || !strings.Contains(err.Error(), "did not authenticate") {
		t.Errorf("err = %v", err)
	}
}
