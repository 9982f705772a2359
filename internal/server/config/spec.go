// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for dotvault-server.
type ServerConfig struct {
	Server   ServerSection   `koanf:"server"`
	Storage  StorageSection  `koanf:"storage"`
	Keystore KeystoreSection `koanf:"keystore"`
	Transfer TransferSection `koanf:"transfer"`
	Auth     AuthSection     `koanf:"auth"`
	Log      LogSection      `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`

	// AdminAllowList restricts the admin API to these IPs and CIDR
	// ranges. Empty means no network restriction.
	AdminAllowList []string `koanf:"admin_allow_list"`

	// MetricsAuthRequired gates /metrics behind API key authentication.
	MetricsAuthRequired bool `koanf:"metrics_auth_required"`

	// CORSAllowedOrigins enables CORS for the listed origins.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	TLSCertFile     string        `koanf:"tls_cert_file"`
	TLSKeyFile      string        `koanf:"tls_key_file"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StorageSection configures the storage engine.
type StorageSection struct {
	// DataDir is the directory holding the Badger database files.
	DataDir string `koanf:"data_dir"`

	// InMemory runs the engine without touching disk. Intended for
	// development and tests only.
	InMemory bool `koanf:"in_memory"`

	// GCInterval is how often value log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// KeystoreSection configures card key derivation.
type KeystoreSection struct {
	// MasterKey is the hex-encoded derivation master key. Prefer
	// MasterKeyFile in production so the key stays out of the
	// environment and process listings.
	MasterKey string `koanf:"master_key"`

	// MasterKeyFile points at a file whose contents are the
	// hex-encoded master key.
	MasterKeyFile string `koanf:"master_key_file"`
}

// TransferSection configures transfer session behavior.
type TransferSection struct {
	// SessionTTL is the fixed lifetime of a transfer session and its
	// token lease.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// SweepInterval is how often the background sweeper settles
	// expired sessions.
	SweepInterval time.Duration `koanf:"sweep_interval"`

	// TerminalRetention is how long completed and failed sessions are
	// kept before deletion.
	TerminalRetention time.Duration `koanf:"terminal_retention"`

	// MaxFrameData caps the data bytes carried per card command frame.
	MaxFrameData int `koanf:"max_frame_data"`

	// KeySlot is the card key slot targeted by authentication and
	// rotation commands.
	KeySlot int `koanf:"key_slot"`
}

// AuthSection configures API key authentication.
type AuthSection struct {
	// CacheTTL bounds how long a validated API key is served from the
	// in-process cache before the store is consulted again.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// CacheSize is the maximum number of cached API keys.
	CacheSize int `koanf:"cache_size"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
