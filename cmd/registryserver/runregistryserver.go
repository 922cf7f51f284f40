package main

import (
	"context"
	_ "embed"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"gopkg.in/yaml.v3"

	"github.com/magnolialogic/go-apns-server/internal/storage/cache"
	fsStore "github.com/magnolialogic/go-apns-server/internal/storage/firestore"
	"github.com/magnolialogic/go-apns-server/internal/storage/sqlite"
	"github.com/magnolialogic/go-apns-server/internal/storage/yamlstore"
	"github.com/magnolialogic/go-apns-server/pkg/registry"
	"github.com/magnolialogic/go-apns-server/registryservice"
	"github.com/magnolialogic/go-apns-server/registryservice/config"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-apns-server")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Store Backend ---
	var store registry.Store
	switch cfg.Storage.Backend {
	case config.BackendYAML:
		store, err = yamlstore.Open(cfg.Storage.Path, logger)
	case config.BackendSQLite:
		store, err = sqlite.Open(cfg.Storage.Path, logger)
	case config.BackendFirestore:
		var fsClient *firestore.Client
		fsClient, err = firestore.NewClient(ctx, cfg.Storage.ProjectID)
		if err == nil {
			store = fsStore.NewStore(fsClient)
		}
	}
	if err != nil {
		logger.Error("Store initialization failed", "backend", cfg.Storage.Backend, "err", err)
		os.Exit(1)
	}
	logger.Info("Store initialized", "backend", cfg.Storage.Backend)

	// --- Cache Decorator ---
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		store = cache.NewCachedStore(store, redisClient, 24*time.Hour)
		logger.Info("Store upgraded", "type", "redis_cached_"+cfg.Storage.Backend)
	}

	// --- Service ---
	service, err := registryservice.New(cfg, store, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}
