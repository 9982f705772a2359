// Package config defines the server configuration structure.
package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr        = "127.0.0.1:5080"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultDataDir    = "/var/lib/dotvault-server/data"
	DefaultGCInterval = 10 * time.Minute

	DefaultSessionTTL        = 90 * time.Second
	DefaultSweepInterval     = 30 * time.Second
	DefaultTerminalRetention = 10 * time.Minute
	DefaultMaxFrameData      = 32
	DefaultKeySlot           = 0

	DefaultAuthCacheTTL  = 60 * time.Second
	DefaultAuthCacheSize = 1024

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:            DefaultHTTPAddr,
				ReadTimeout:     DefaultReadTimeout,
				WriteTimeout:    DefaultWriteTimeout,
				IdleTimeout:     DefaultIdleTimeout,
				ShutdownTimeout: DefaultShutdownTimeout,
			},
		},
		Storage: StorageSection{
			DataDir:    DefaultDataDir,
			GCInterval: DefaultGCInterval,
		},
		Transfer: TransferSection{
			SessionTTL:        DefaultSessionTTL,
			SweepInterval:     DefaultSweepInterval,
			TerminalRetention: DefaultTerminalRetention,
			MaxFrameData:      DefaultMaxFrameData,
			KeySlot:           DefaultKeySlot,
		},
		Auth: AuthSection{
			CacheTTL:  DefaultAuthCacheTTL,
			CacheSize: DefaultAuthCacheSize,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
