package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/magnolialogic/go-apns-server/registryservice/config"
)

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ListenAddr: ":9000",
			StorageConfig: config.YamlStorageConfig{
				Backend:   "firestore",
				ProjectID: "yaml-project",
			},
			CorsConfig: config.YamlCorsConfig{
				AllowedOrigins: []string{"http://yaml.com"},
				Role:           "editor",
			},
			RedisConfig: config.YamlRedisConfig{
				Addr:    "localhost:6379",
				DB:      2,
				Enabled: true,
			},
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, "firestore", cfg.Storage.Backend)
		assert.Equal(t, "yaml-project", cfg.Storage.ProjectID)

		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)

		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
		assert.Equal(t, 2, cfg.Redis.DB)
	})

	t.Run("Success - Handles missing optional fields gracefully", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			StorageConfig: config.YamlStorageConfig{
				Backend: "yaml",
				Path:    "tokens.yaml",
			},
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		assert.Equal(t, "yaml", cfg.Storage.Backend)
		assert.Empty(t, cfg.ListenAddr)
		assert.False(t, cfg.Redis.Enabled)
	})
}
