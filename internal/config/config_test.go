package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("REPORTFORGE_OUTPUT", "")
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Equal(t, "data/runs", cfg.Output.BaseDir)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte("llm:\n  provider: openai\n  model: gpt-4o-mini\ngeneration:\n  max_attempts: 5\n")
	require.NoError(t, os.WriteFile(path, raw, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Generation.MaxAttempts)
	// untouched sections keep defaults
	assert.Equal(t, "data/runs", cfg.Output.BaseDir)
}

func TestEnvOverridesApiKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "g-key")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)
	assert.Equal(t, "gemini", cfg.LLM.Provider)

	t.Setenv("OPENAI_API_KEY", "o-key")
	cfg, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "o-key", cfg.LLM.APIKey)
	assert.Equal(t, "openai", cfg.LLM.Provider)
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Output.BaseDir = "custom/runs"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom/runs", loaded.Output.BaseDir)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate()) // no API key

	cfg.LLM.APIKey = "key"
	require.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "bedrock"
	require.Error(t, cfg.Validate())

	cfg.LLM.Provider = "openai"
	cfg.Generation.MaxAttempts = 0
	require.Error(t, cfg.Validate())
}

func TestTimeoutFallback(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())
	cfg.LLM.Timeout = "5s"
	assert.Equal(t, 5*time.Second, cfg.GetLLMTimeout())
	cfg.LLM.Timeout = "garbage"
	assert.Equal(t, 120*time.Second, cfg.GetLLMTimeout())
}
