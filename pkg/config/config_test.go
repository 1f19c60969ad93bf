package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SOURCE_DATABASE_URL", "postgres://v:v@localhost:5432/src")
	t.Setenv("TARGET_DATABASE_URL", "postgres://v:v@localhost:5432/tgt")

	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, "postgres", cfg.Source.Dialect)
	assert.Equal(t, int32(10), cfg.Source.MaxConnections)
	assert.Equal(t, "postgres://v:v@localhost:5432/src", cfg.Source.URL)
	assert.Equal(t, "postgres://v:v@localhost:5432/tgt", cfg.Target.URL)
	assert.Equal(t, 8, cfg.Validation.Workers)
	assert.Equal(t, 300, cfg.Validation.QueryTimeoutSeconds)
	assert.Equal(t, 50, cfg.Validation.RowSampleCap)
	assert.Equal(t, 50, cfg.Validation.MaxTestCases)
	assert.Equal(t, 0, cfg.Validation.RunTimeoutSeconds)
	assert.Equal(t, "openai", cfg.LLM.Provider)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VALIDATION_WORKERS", "3")
	t.Setenv("QUERY_TIMEOUT_SECONDS", "15")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Validation.Workers)
	assert.Equal(t, 15, cfg.Validation.QueryTimeoutSeconds)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoadRejectsBadWorkers(t *testing.T) {
	t.Setenv("VALIDATION_WORKERS", "-1")

	_, err := Load("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}

func TestQueryTimeoutDuration(t *testing.T) {
	c := ValidationConfig{QueryTimeoutSeconds: 2}
	assert.Equal(t, "2s", c.QueryTimeout().String())

	c = ValidationConfig{RunTimeoutSeconds: 0}
	assert.Zero(t, c.RunTimeout())
}
