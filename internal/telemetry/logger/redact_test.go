package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestSecretPrefixesMasked(t *testing.T) {
	secret := "dvvt_AbCdEfGhIjKlMnOpQrStUvWxYz012345"
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	// The attribute key gives no hint; the value prefix must trigger.
	log.Info("rotation issued", "ticket", secret)

	out := buf.String()
	if strings.Contains(out, secret) {
		t.Fatalf("plaintext secret in log output: %s", out)
	}
	if !strings.Contains(out, "dvvt_AbC...345") {
		t.Errorf("masked form missing: %s", out)
	}
}

func TestSensitiveKeysRedacted(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info("config loaded", "keystore_password", "hunter2", "token_id", "04a1b2c3d4e5f607")

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("password value in log output: %s", out)
	}
	if !strings.Contains(out, redactedValue) {
		t.Errorf("redaction placeholder missing: %s", out)
	}
	// Identifiers are not secrets and must survive.
	if !strings.Contains(out, "04a1b2c3d4e5f607") {
		t.Errorf("token id redacted: %s", out)
	}
}

func TestRedactString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"verify token", "dvvt_AbCdEfGhIjKlMnOpQrStUvWxYz012345", "dvvt_AbC...345"},
		{"api key secret", "dvak_ZyXwVuTsRqPoNmLkJiHgFeDcBa987654", "dvak_ZyX...654"},
		{"short secret", "dvak_abc", "dvak_***"},
		{"plain value", "bob", "bob"},
		{"token id untouched", "04a1b2c3d4e5f607", "04a1b2c3d4e5f607"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactString(tt.in); got != tt.want {
				t.Errorf("RedactString(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsSensitive(t *testing.T) {
	if !IsSensitiveKey("master_key") || !IsSensitiveKey("Password") {
		t.Error("sensitive key not detected")
	}
	if IsSensitiveKey("token_id") || IsSensitiveKey("key_version") {
		t.Error("identifier key flagged as sensitive")
	}
	if !IsSensitiveValue("dvvt_abc") || IsSensitiveValue("dvts-abc") {
		t.Error("value prefix detection wrong")
	}
}
