package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 9180, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "fastembed", cfg.Embeddings.Provider)
	assert.Equal(t, "disabled", cfg.LLM.Provider)
	assert.Equal(t, 0.90, cfg.Engine.DedupThreshold)
	assert.Equal(t, 0.85, cfg.Engine.AutoThreshold)
	assert.Equal(t, 0.75, cfg.Engine.SuggestThreshold)
	assert.Equal(t, 0.60, cfg.Engine.MatchFloor)
	assert.Equal(t, 5, cfg.Engine.AutoMinExecutions)
	assert.Equal(t, 4*time.Hour, cfg.Engine.SuggestionTTL)
	assert.Equal(t, time.Hour, cfg.Conversation.GapWindow)
	assert.Equal(t, 10*time.Minute, cfg.Conversation.TakeoverLockout)
	assert.Equal(t, 3, cfg.Safety.AutoBudgetPerHour)
	assert.True(t, cfg.Engine.ShadowMode, "shadow mode defaults on")
	assert.Equal(t, 384, cfg.VectorStore.Chromem.VectorSize)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 8099
log:
  format: console
engine:
  auto_threshold: 0.9
  shadow_mode: true
`)
	require.NoError(t, os.WriteFile(path, content, 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8099, cfg.Server.Port)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 0.9, cfg.Engine.AutoThreshold)
	assert.True(t, cfg.Engine.ShadowMode)
	// Unset fields keep defaults.
	assert.Equal(t, 0.75, cfg.Engine.SuggestThreshold)
}

func TestLoadRejectsWorldReadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestValidateThresholdOrdering(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Engine.SuggestThreshold = 0.95 // above auto threshold

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suggest_threshold")
}

func TestValidateLLMKeyRequired(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.LLM.Provider = "anthropic"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.api_key")
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SERVER_PORT", "server.port"},
		{"ENGINE_AUTO_THRESHOLD", "engine.auto_threshold"},
		{"LOG_LEVEL", "log.level"},
		{"PORT", "port"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envTransform(tt.in))
	}
}
