package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomheart-Father/agentflow/runtime/agent/config"
)

func TestLoadAppliesDefaultsWhenEnvUnset(t *testing.T) {
	c := config.Load()

	assert.Equal(t, config.ProviderAnthropic, c.ModelProvider)
	assert.Equal(t, 3, c.MaxToolCallsPerAct)
	assert.Equal(t, 6, c.MaxTotalToolCalls)
	assert.Equal(t, 2, c.MaxPlanIters)
	assert.Equal(t, config.SessionStoreMemory, c.SessionStore)
	assert.Equal(t, config.TelemetrySinkStdout, c.TelemetrySink)
	assert.True(t, c.StrictJSONMode)
}

func TestLoadReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("MAX_PLAN_ITERS", "5")
	t.Setenv("STRICT_JSON_MODE", "false")

	c := config.Load()
	assert.Equal(t, config.ProviderOpenAI, c.ModelProvider)
	assert.Equal(t, 5, c.MaxPlanIters)
	assert.False(t, c.StrictJSONMode)
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	c := config.Load()
	c.ModelProvider = "not-a-provider"

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MODEL_PROVIDER")
}

func TestValidateRequiresAPIKeyForSelectedProvider(t *testing.T) {
	c := config.Load()
	c.ModelProvider = config.ProviderAnthropic
	c.AnthropicAPIKey = ""

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")
}

func TestValidatePassesWithSaneDefaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	c := config.Load()
	assert.NoError(t, c.Validate())
}
