// Package main provides the entry point for dotvault-server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/swapdotz/dotvault/internal/core/service"
	"github.com/swapdotz/dotvault/internal/infra/buildinfo"
	"github.com/swapdotz/dotvault/internal/infra/confloader"
	"github.com/swapdotz/dotvault/internal/infra/shutdown"
	"github.com/swapdotz/dotvault/internal/keystore"
	"github.com/swapdotz/dotvault/internal/server/config"
	"github.com/swapdotz/dotvault/internal/server/httpserver"
	"github.com/swapdotz/dotvault/internal/storage"
	"github.com/swapdotz/dotvault/internal/storage/memory"
	"github.com/swapdotz/dotvault/internal/telemetry/logger"
	"github.com/swapdotz/dotvault/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("dotvault-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	slog.SetDefault(log)

	log.Info("starting dotvault-server",
		"version", buildinfo.Get().Version,
		"config", *configFile)

	if *configFile != "" {
		if err := watchLogLevel(*configFile, log); err != nil {
			log.Warn("config watch disabled", "error", err)
		}
	}

	metrics := metric.Global()

	engine, err := openStorage(cfg, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	engine.RegisterMetrics(metrics.Prometheus())

	master, err := cfg.Keystore.ResolveMasterKey()
	if err != nil {
		return fmt.Errorf("resolve master key: %w", err)
	}
	keys, err := keystore.New(master, engine.KV())
	if err != nil {
		return fmt.Errorf("open keystore: %w", err)
	}

	// Sessions are deliberately memory only. A restart voids open
	// leases and the sweeper marks their records failed on recovery.
	sessions := memory.NewSessionStore()

	transferCfg := service.TransferConfig{
		SessionTTL:        cfg.Transfer.SessionTTL,
		MaxFrameData:      cfg.Transfer.MaxFrameData,
		KeySlot:           byte(cfg.Transfer.KeySlot),
		TerminalRetention: cfg.Transfer.TerminalRetention,
	}
	transferSvc := service.NewTransferService(
		engine.Tokens, sessions, engine.Records, engine.Audit,
		keys, nil, transferCfg, log,
	)
	tokenSvc := service.NewTokenService(engine.Tokens, engine.Records, engine.Audit, keys, log)
	authSvc := service.NewAuthService(engine.APIKeys, &service.AuthServiceConfig{
		CacheTTL:  cfg.Auth.CacheTTL,
		CacheSize: cfg.Auth.CacheSize,
	}, log)

	sweeper := service.NewSweeper(transferSvc, cfg.Transfer.SweepInterval, log)
	sweeper.Start()

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		TransferService:     transferSvc,
		TokenService:        tokenSvc,
		AuthService:         authSvc,
		Engine:              engine,
		Metrics:             metrics,
		Logger:              log,
		AdminAllowList:      cfg.Server.AdminAllowList,
		MetricsAuthRequired: cfg.Server.MetricsAuthRequired,
		CORSAllowedOrigins:  cfg.Server.CORSAllowedOrigins,
	})
	httpServer := httpserver.New(cfg.Server.HTTP, router)

	shutdownHandler := shutdown.NewHandler(cfg.Server.HTTP.ShutdownTimeout, log)

	// Registered in startup order; the handler runs them in reverse.
	shutdownHandler.OnShutdown("storage engine", func(ctx context.Context) error {
		return engine.Close()
	})
	shutdownHandler.OnShutdown("session sweeper", func(ctx context.Context) error {
		sweeper.Stop()
		return nil
	})
	shutdownHandler.OnShutdown("http server", func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Addr)

		var err error
		if cfg.Server.HTTP.TLSCertFile != "" && cfg.Server.HTTP.TLSKeyFile != "" {
			err = httpServer.ListenAndServeTLS(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from defaults, file, and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)

	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// watchLogLevel reloads the log level when the config file changes.
// Other settings require a restart.
func watchLogLevel(configFile string, log *slog.Logger) error {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	if err := watcher.Watch(configFile); err != nil {
		watcher.Stop()
		return err
	}

	watcher.OnChange(func(path string) {
		cfg, err := loadConfig(configFile)
		if err != nil {
			log.Warn("config reload failed", "path", path, "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		log.Info("log level updated", "level", cfg.Log.Level)
	})
	watcher.StartAsync()
	return nil
}

// openStorage opens the durable storage engine.
func openStorage(cfg *config.ServerConfig, log *slog.Logger) (*storage.Engine, error) {
	storageCfg := storage.Config{
		DataDir: cfg.Storage.DataDir,
		Logger:  log,
	}
	storageCfg.KV.InMemory = cfg.Storage.InMemory
	if cfg.Storage.GCInterval > 0 {
		storageCfg.KV.Badger.GCInterval = cfg.Storage.GCInterval.String()
	}
	return storage.Open(storageCfg)
}
