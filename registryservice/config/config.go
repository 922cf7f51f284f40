package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

// Storage backends.
const (
	BackendYAML      = "yaml"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

type StorageConfig struct {
	Backend string
	// Path is the snapshot or database file, for the yaml and sqlite backends.
	Path string
	// ProjectID selects the GCP project, for the firestore backend.
	ProjectID string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ListenAddr string
	Storage    StorageConfig
	Redis      RedisConfig
	CorsConfig middleware.CorsConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("STORAGE_BACKEND"); val != "" {
		logger.Debug("Overriding config value", "key", "STORAGE_BACKEND", "source", "env")
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("STORAGE_PATH"); val != "" {
		logger.Debug("Overriding config value", "key", "STORAGE_PATH", "source", "env")
		cfg.Storage.Path = val
	}
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.Storage.ProjectID = val
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.Enabled = enabled
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		rawOrigins := strings.Split(corsOrigins, ",")
		var cleanOrigins []string
		for _, o := range rawOrigins {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				cleanOrigins = append(cleanOrigins, trimmed)
			}
		}
		cfg.CorsConfig.AllowedOrigins = cleanOrigins
	}

	// 2. Final Validation
	switch cfg.Storage.Backend {
	case BackendYAML, BackendSQLite:
		if cfg.Storage.Path == "" {
			return nil, fmt.Errorf("storage.path is required for the %s backend (set via YAML or STORAGE_PATH env var)", cfg.Storage.Backend)
		}
	case BackendFirestore:
		if cfg.Storage.ProjectID == "" {
			return nil, fmt.Errorf("storage.project_id is required for the firestore backend (set via YAML or PROJECT_ID env var)")
		}
	default:
		return nil, fmt.Errorf("unknown storage backend %q (expected yaml, sqlite, or firestore)", cfg.Storage.Backend)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
