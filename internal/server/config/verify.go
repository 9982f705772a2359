// Package config defines the server configuration structure.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyKeystore(&cfg.Keystore); err != nil {
		return err
	}
	if err := verifyTransfer(&cfg.Transfer); err != nil {
		return err
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		return fmt.Errorf("server.http.addr %q is not host:port: %w", cfg.HTTP.Addr, err)
	}
	if (cfg.HTTP.TLSCertFile == "") != (cfg.HTTP.TLSKeyFile == "") {
		return errors.New("server.http tls_cert_file and tls_key_file must be set together")
	}
	if cfg.HTTP.TLSCertFile != "" {
		for _, f := range []string{cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile} {
			if _, err := os.Stat(f); err != nil {
				return fmt.Errorf("tls file %q: %w", f, err)
			}
		}
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.InMemory {
		return nil
	}
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return errors.New("cannot create data directory: " + err.Error())
	}
	return nil
}

func verifyKeystore(cfg *KeystoreSection) error {
	if cfg.MasterKey != "" && cfg.MasterKeyFile != "" {
		return errors.New("keystore.master_key and keystore.master_key_file are mutually exclusive")
	}
	key := cfg.MasterKey
	if cfg.MasterKeyFile != "" {
		data, err := os.ReadFile(cfg.MasterKeyFile)
		if err != nil {
			return fmt.Errorf("keystore.master_key_file: %w", err)
		}
		key = strings.TrimSpace(string(data))
	}
	if key == "" {
		return errors.New("keystore master key is required (master_key or master_key_file)")
	}
	raw, err := hex.DecodeString(key)
	if err != nil {
		return errors.New("keystore master key must be hex encoded")
	}
	if len(raw) < 16 {
		return errors.New("keystore master key must be at least 16 bytes")
	}
	return nil
}

func verifyTransfer(cfg *TransferSection) error {
	if cfg.SessionTTL < time.Second {
		return errors.New("transfer.session_ttl must be at least 1s")
	}
	if cfg.SweepInterval <= 0 {
		return errors.New("transfer.sweep_interval must be positive")
	}
	if cfg.MaxFrameData < 8 || cfg.MaxFrameData > 55 {
		return errors.New("transfer.max_frame_data must be between 8 and 55")
	}
	if cfg.KeySlot < 0 || cfg.KeySlot > 13 {
		return errors.New("transfer.key_slot must be between 0 and 13")
	}
	return nil
}

// ResolveMasterKey resolves the keystore master key bytes from the
// configured source. Verify must have accepted the config first.
func (s *KeystoreSection) ResolveMasterKey() ([]byte, error) {
	key := s.MasterKey
	if s.MasterKeyFile != "" {
		data, err := os.ReadFile(s.MasterKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read master key file: %w", err)
		}
		key = strings.TrimSpace(string(data))
	}
	return hex.DecodeString(key)
}
