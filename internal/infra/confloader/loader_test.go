package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Server struct {
		HTTP struct {
			Address string `koanf:"address"`
			TLS     bool   `koanf:"tls"`
		} `koanf:"http"`
	} `koanf:"server"`
	Transfer struct {
		SessionTTL string `koanf:"session_ttl"`
	} `koanf:"transfer"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dotvault.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  http:
    address: "0.0.0.0:5080"
    tls: true
transfer:
  session_ttl: "90s"
`)

	var cfg testConfig
	cfg.Log.Level = "info"

	if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTP.Address != "0.0.0.0:5080" {
		t.Errorf("address = %q, want 0.0.0.0:5080", cfg.Server.HTTP.Address)
	}
	if !cfg.Server.HTTP.TLS {
		t.Error("tls = false, want true")
	}
	if cfg.Transfer.SessionTTL != "90s" {
		t.Errorf("session_ttl = %q, want 90s", cfg.Transfer.SessionTTL)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("unset key clobbered default: level = %q", cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg testConfig
	err := NewLoader(WithConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))).Load(&cfg)
	if err == nil {
		t.Fatal("Load() with missing file succeeded, want error")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: "info"
server:
  http:
    address: "127.0.0.1:5080"
`)
	t.Setenv("DOTVAULT_LOG_LEVEL", "debug")

	var cfg testConfig
	if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q, want env override debug", cfg.Log.Level)
	}
	if cfg.Server.HTTP.Address != "127.0.0.1:5080" {
		t.Errorf("address = %q, file value should survive", cfg.Server.HTTP.Address)
	}
}

func TestEnvPrefix(t *testing.T) {
	t.Setenv("DOTVAULT_LOG_LEVEL", "warn")
	t.Setenv("OTHER_LOG_LEVEL", "error")

	var cfg testConfig
	if err := NewLoader().Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("level = %q, want warn from prefixed variable only", cfg.Log.Level)
	}
}

func TestLoadMap(t *testing.T) {
	l := NewLoader()
	if err := l.LoadMap(map[string]any{"log.level": "debug"}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("level = %q, want debug from map", cfg.Log.Level)
	}
	if _, ok := l.All()["log.level"]; !ok {
		t.Error("All() missing log.level")
	}
}

func TestMapSourceReadBytes(t *testing.T) {
	if _, err := (mapSource{}).ReadBytes(); err == nil {
		t.Error("ReadBytes() succeeded, want error")
	}
}

// Duration strings survive the round trip into time.ParseDuration at
// the config layer; the loader itself keeps them as strings.
func TestDurationStringsPassThrough(t *testing.T) {
	path := writeConfig(t, "transfer:\n  session_ttl: \"1m30s\"\n")

	var cfg testConfig
	if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	d, err := time.ParseDuration(cfg.Transfer.SessionTTL)
	if err != nil {
		t.Fatalf("ParseDuration(%q) error = %v", cfg.Transfer.SessionTTL, err)
	}
	if d != 90*time.Second {
		t.Errorf("ttl = %v, want 90s", d)
	}
}
