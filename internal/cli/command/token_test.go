package command

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestTokenList(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/v1/tokens", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		envelopeResponse(w, http.StatusOK, map[string]any{
			"tokens": []tokenView{
				{ID: "dvtk-01kct9ns8he7a9m022x0tgbhds", OwnerID: "alice", KeyVersion: 3, Status: "active", TransferCount: 2},
			},
			"total": 1,
		})
	})

	c := makeTestContext(server, nil, nil)
	if err := tokenList(c); err != nil {
		t.Fatalf("tokenList: %v", err)
	}
}

func TestTokenGetRequiresID(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	c := makeTestContext(server, nil, nil)
	err := tokenGet(c)
	if err == nil || !strings.Contains(err.Error(), "token ID required") {
		t.Errorf("err = %v", err)
	}
}

func TestTokenGetNotFound(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/v1/tokens/", func(w http.ResponseWriter, r *http.Request) {
		envelopeError(w, http.StatusNotFound, "TOKEN_NOT_FOUND", "token not found")
	})

	c := makeTestContext(server, nil, []string{"dvtk-missing"})
	err := tokenGet(c)
	if err == nil || !strings.Contains(err.Error(), "TOKEN_NOT_FOUND") {
		t.Errorf("err = %v", err)
	}
}

func TestTokenProvision(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	var gotBody map[string]any
	server.handle("/v1/tokens", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		envelopeResponse(w, http.StatusCreated, map[string]any{
			"id":          "dvtk-new",
			"owner_id":    "alice",
			"key_version": 0,
		})
	})

	c := makeTestContext(server, map[string]any{
		"uid":   "04a1b2c3d4e5f607",
		"owner": "alice",
		"name":  "founders badge",
	}, nil)
	if err := tokenProvision(c); err != nil {
		t.Fatalf("tokenProvision: %v", err)
	}

	if gotBody["uid"] != "04a1b2c3d4e5f607" || gotBody["owner_id"] != "alice" {
		t.Errorf("body = %v", gotBody)
	}
	meta, ok := gotBody["metadata"].(map[string]any)
	if !ok || meta["name"] != "founders badge" {
		t.Errorf("metadata = %v", gotBody["metadata"])
	}
}

func TestTokenHistory(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/v1/tokens/dvtk-01/history", func(w http.ResponseWriter, r *http.Request) {
		envelopeResponse(w, http.StatusOK, map[string]any{
			"records": []map[string]any{
				{"id": "dvtr-01", "from_owner": "alice", "to_user": "bob", "status": "committed", "settled_at": 1756700000000},
			},
			"total": 1,
		})
	})

	c := makeTestContext(server, nil, []string{"dvtk-01"})
	if err := tokenHistory(c); err != nil {
		t.Fatalf("tokenHistory: %v", err)
	}
}

func TestTokenRetireForced(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	var called bool
	server.handle("/v1/tokens/dvtk-01/retire", func(w http.ResponseWriter, r *http.Request) {
		called = true
		envelopeResponse(w, http.StatusOK, map[string]any{"status": "retired"})
	})

	c := makeTestContext(server, map[string]any{"force": true}, []string{"dvtk-01"})
	if err := tokenRetire(c); err != nil {
		t.Fatalf("tokenRetire: %v", err)
	}
	if !called {
		t.Error("retire endpoint not called")
	}
}
