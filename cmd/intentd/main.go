package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alihub/ali-intent/internal/config"
	"github.com/alihub/ali-intent/internal/engine"
	"github.com/alihub/ali-intent/internal/logging"
	"github.com/alihub/ali-intent/internal/persist"
	"github.com/alihub/ali-intent/internal/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logging.SetLevel(cfg.Logging.Level)
	logger := logging.WithComponent("intentd")

	store, err := openPersistence(cfg)
	if err != nil {
		// Degraded but available: the engine runs on in-memory state.
		logger.Error("Persistence unavailable, continuing in memory", "error", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	eng := engine.New(cfg, store, logging.WithComponent("engine"))
	srv := server.New(cfg, eng, logging.WithComponent("server"))

	eng.Start()
	srv.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	eng.Stop()
}

// loadConfig reads the configuration file, falling back to defaults when
// it does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	return config.Load(path)
}

func openPersistence(cfg *config.Config) (persist.Store, error) {
	switch cfg.Persistence.Backend {
	case "file":
		return persist.NewFileStore(cfg.Persistence.Dir)
	case "sqlite":
		path := cfg.Persistence.Path
		if path == "" {
			path = "data/intent.db"
		}
		return persist.NewSQLiteStore(path)
	case "redis":
		return persist.NewRedisStore(cfg.Persistence.Redis)
	case "none":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown persistence backend: %q", cfg.Persistence.Backend)
}
