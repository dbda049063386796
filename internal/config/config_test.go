package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentjobs/collector-service/internal/config"
	"studentjobs/collector-service/internal/model"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/jobs")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoad_RequiresDatabaseAndRedis(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost:5432/jobs")
	t.Setenv("REDIS_URL", "")
	_, err = config.Load()
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "8082", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "collector:", cfg.RedisKeyPrefix)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
}

func TestLoad_RejectsBadTimeout(t *testing.T) {
	setRequired(t)
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "zero")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestSources_DisabledWithoutCredentials(t *testing.T) {
	setRequired(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	for _, sc := range cfg.Sources() {
		assert.False(t, sc.Enabled, "source %s should be disabled without credentials", sc.ID)
	}
}

func TestSources_EnabledWhenConfigured(t *testing.T) {
	setRequired(t)
	t.Setenv("JOBTECH_CLIENT_ID", "id")
	t.Setenv("JOBTECH_CLIENT_SECRET", "secret")
	t.Setenv("CAMPUS_BOARD_URL", "https://jobb.example.se/lediga-jobb")

	cfg, err := config.Load()
	require.NoError(t, err)

	byID := map[string]model.SourceConfig{}
	for _, sc := range cfg.Sources() {
		byID[sc.ID] = sc
	}

	api := byID["platsbanken"]
	assert.True(t, api.Enabled)
	assert.Equal(t, model.KindAPI, api.Kind)
	require.NotNil(t, api.API)
	assert.Equal(t, "id", api.API.ClientID)

	scraper := byID["campusjobb"]
	assert.True(t, scraper.Enabled)
	assert.Equal(t, model.KindScraper, scraper.Kind)
	require.NotNil(t, scraper.Scraper)
	assert.Equal(t, "https://jobb.example.se/lediga-jobb", scraper.Scraper.ListingURL)
}
