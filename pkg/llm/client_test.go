package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("LLM_SERVICE_ENDPOINT", "")
	t.Setenv("LLM_DEFAULT_MODEL", "")
	t.Setenv("LLM_TEMPERATURE", "")
	t.Setenv("LLM_MAX_TOKENS", "")
	t.Setenv("LLM_REQUEST_TIMEOUT", "")

	cfg := ConfigFromEnv()

	assert.Equal(t, "localhost:50051", cfg.Endpoint)
	assert.Equal(t, "claude-sonnet", cfg.DefaultModel)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, 4096, cfg.MaxTokens)
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("LLM_SERVICE_ENDPOINT", "llm.internal:443")
	t.Setenv("LLM_DEFAULT_MODEL", "claude-opus")
	t.Setenv("LLM_TEMPERATURE", "0.7")
	t.Setenv("LLM_MAX_TOKENS", "8192")
	t.Setenv("LLM_REQUEST_TIMEOUT", "45s")

	cfg := ConfigFromEnv()

	assert.Equal(t, "llm.internal:443", cfg.Endpoint)
	assert.Equal(t, "claude-opus", cfg.DefaultModel)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 8192, cfg.MaxTokens)
	assert.Equal(t, "45s", cfg.RequestTimeout.String())
}
