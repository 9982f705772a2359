package command

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSystemHealth(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/health", func(w http.ResponseWriter, r *http.Request) {
		envelopeResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	c := makeTestContext(server, nil, nil)
	if err := systemHealth(c); err != nil {
		t.Fatalf("systemHealth: %v", err)
	}
}

func TestSystemStatus(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/admin/v1/status/summary", func(w http.ResponseWriter, r *http.Request) {
		envelopeResponse(w, http.StatusOK, map[string]any{
			"status":  "running",
			"version": map[string]string{"version": "1.2.3"},
		})
	})

	c := makeTestContext(server, nil, nil)
	if err := systemStatus(c); err != nil {
		t.Fatalf("systemStatus: %v", err)
	}
}

func TestSystemSweep(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/admin/v1/sweep/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		envelopeResponse(w, http.StatusOK, map[string]any{
			"swept_count":  3,
			"triggered_at": "2026-09-01T10:00:00Z",
		})
	})

	c := makeTestContext(server, nil, nil)
	if err := systemSweep(c); err != nil {
		t.Fatalf("systemSweep: %v", err)
	}
}

func TestSystemAuditFilters(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	var gotQuery string
	server.handle("/admin/v1/audit/logs", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		envelopeResponse(w, http.StatusOK, map[string]any{
			"entries": []map[string]any{
				{"id": "dvau-01", "event": "transfer_committed", "token_id": "dvtk-01", "user_id": "bob", "at": 1756700000000},
			},
			"total": 1,
		})
	})

	c := makeTestContext(server, map[string]any{
		"token-id": "dvtk-01",
		"event":    "transfer_committed",
		"limit":    10,
	}, nil)
	if err := systemAudit(c); err != nil {
		t.Fatalf("systemAudit: %v", err)
	}

	for _, want := range []string{"limit=10", "token_id=dvtk-01", "event=transfer_committed"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestSystemBackup(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	payload := []byte("badger backup bytes")
	server.handle("/admin/v1/backup", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})

	path := filepath.Join(t.TempDir(), "dotvault.backup")
	c := makeTestContext(server, map[string]any{"file": path}, nil)
	if err := systemBackup(c); err != nil {
		t.Fatalf("systemBackup: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Errorf("backup content = %q", got)
	}
}

func TestSystemBackupErrorRemovesFile(t *testing.T) {
	server := newMockServer()
	defer server.Close()

	server.handle("/admin/v1/backup", func(w http.ResponseWriter, r *http.Request) {
		envelopeError(w, http.StatusServiceUnavailable, "STORAGE_ERROR", "persistent storage not configured")
	})

	path := filepath.Join(t.TempDir(), "dotvault.backup")
	c := makeTestContext(server, map[string]any{"file": path}, nil)
	err := systemBackup(c)
	if err == nil || !strings.Contains(err.Error(), "STORAGE_ERROR") {
		t.Fatalf("err = %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("partial backup file left behind")
	}
}
