package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "fitgen", cfg.Database.Name)
	assert.Equal(t, time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, 2, cfg.Matcher.DurationToleranceWeeks)
	assert.Equal(t, 5, cfg.Matcher.MaxAlternatives)
	assert.Equal(t, 3, cfg.Versions.KeepPredecessors)
	assert.Equal(t, 180, cfg.Retention.InstanceDays)
	assert.Equal(t, 90*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Generation.BaseURL)
	assert.Equal(t, 4096, cfg.Generation.MaxTokens)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("database:\n  name: coaching\nmatcher:\n  max_alternatives: 8\njwt:\n  expiration: 30m\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("RETENTION_INSTANCE_DAYS", "90")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "coaching", cfg.Database.Name)
	assert.Equal(t, 8, cfg.Matcher.MaxAlternatives)
	assert.Equal(t, 30*time.Minute, cfg.JWT.Expiration)
	assert.Equal(t, 90, cfg.Retention.InstanceDays)
}
