package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// Default configuration values.
const (
	DefaultDataDir = "data"
	DefaultKVDir   = "kv"
)

// Config configures the storage engine.
type Config struct {
	// DataDir is the base directory for all storage files.
	DataDir string

	// KV is the embedded KV engine configuration. If KV.Dir is empty it
	// defaults to DataDir/kv.
	KV KVConfig

	// Logger is the structured logger.
	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig() Config {
	return Config{
		DataDir: DefaultDataDir,
		KV:      DefaultKVConfig(""),
	}
}

// Engine bundles the embedded KV store and the entity stores built on
// top of it. Transfer sessions are deliberately absent: they are
// ephemeral and live in the in-memory session store.
type Engine struct {
	kv     *BadgerEngine
	logger *slog.Logger

	// Tokens is the durable token store.
	Tokens *TokenStore

	// Records is the durable transfer record store.
	Records *RecordStore

	// Audit is the append-only audit log store.
	Audit *AuditStore

	// APIKeys is the durable API key store.
	APIKeys *APIKeyStore
}

// Open opens the storage engine and builds the entity stores.
func Open(cfg Config) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.KV.Engine == "" {
		cfg.KV.Engine = "badger"
	}
	if cfg.KV.Engine != "badger" {
		return nil, fmt.Errorf("storage: unsupported kv engine %q", cfg.KV.Engine)
	}
	if cfg.KV.Dir == "" && !cfg.KV.InMemory {
		cfg.KV.Dir = filepath.Join(cfg.DataDir, DefaultKVDir)
	}

	kv, err := NewBadgerEngine(cfg.KV, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("storage: open kv: %w", err)
	}

	engine := &Engine{
		kv:      kv,
		logger:  cfg.Logger,
		Tokens:  NewTokenStore(kv),
		Records: NewRecordStore(kv),
		Audit:   NewAuditStore(kv),
		APIKeys: NewAPIKeyStore(kv),
	}

	cfg.Logger.Info("storage engine opened", "data_dir", cfg.DataDir, "kv_dir", cfg.KV.Dir)

	return engine, nil
}

// KV exposes the underlying KV engine for components that store raw
// values, such as the card key store.
func (e *Engine) KV() KVEngine {
	return e.kv
}

// RegisterMetrics registers storage metrics with Prometheus.
func (e *Engine) RegisterMetrics(registry *prometheus.Registry) *Engine {
	e.kv.RegisterMetrics(registry)
	return e
}

// Stats returns storage statistics.
func (e *Engine) Stats(ctx context.Context) (*KVStats, error) {
	return e.kv.Stats(ctx)
}

// Close shuts down the storage engine.
func (e *Engine) Close() error {
	return e.kv.Close()
}
