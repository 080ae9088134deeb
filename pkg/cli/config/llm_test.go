package config_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anemone/pkg/cli/config"
)

func TestLLM_Provider(t *testing.T) {
	t.Run("defaults to openai", func(t *testing.T) {
		cfg := config.NewLLMForTest("", "", "", "", "")
		gt.Value(t, cfg.Provider(config.AgentSettings{})).Equal(config.ProviderOpenAI)
	})

	t.Run("settings file picks the provider", func(t *testing.T) {
		cfg := config.NewLLMForTest("", "", "", "", "")
		gt.Value(t, cfg.Provider(config.AgentSettings{Provider: "claude"})).Equal(config.ProviderClaude)
	})

	t.Run("flag wins over settings file", func(t *testing.T) {
		cfg := config.NewLLMForTest("gemini", "", "", "", "")
		gt.Value(t, cfg.Provider(config.AgentSettings{Provider: "claude"})).Equal(config.ProviderGemini)
	})
}

func TestLLM_NewClient(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		cfg := config.NewLLMForTest("parrot", "", "", "", "")
		_, err := cfg.NewClient(t.Context(), config.AgentSettings{})
		gt.Error(t, err).Is(config.ErrUnknownProvider)
	})

	t.Run("openai requires an API key", func(t *testing.T) {
		cfg := config.NewLLMForTest("openai", "", "", "", "")
		_, err := cfg.NewClient(t.Context(), config.AgentSettings{})
		gt.Error(t, err).Is(config.ErrMissingAPIKey)
	})

	t.Run("claude requires an API key", func(t *testing.T) {
		cfg := config.NewLLMForTest("", "", "sk-openai", "", "")
		_, err := cfg.NewClient(t.Context(), config.AgentSettings{Provider: "claude"})
		gt.Error(t, err).Is(config.ErrMissingAPIKey)
	})

	t.Run("gemini requires a project", func(t *testing.T) {
		cfg := config.NewLLMForTest("gemini", "", "", "", "")
		_, err := cfg.NewClient(t.Context(), config.AgentSettings{})
		gt.Error(t, err).Is(config.ErrMissingAPIKey)
	})

	t.Run("openai client", func(t *testing.T) {
		cfg := config.NewLLMForTest("", "gpt-4.1-mini", "sk-test", "", "")
		client, err := cfg.NewClient(t.Context(), config.AgentSettings{BaseURL: "http://127.0.0.1:1/v1"})
		gt.NoError(t, err)
		gt.Value(t, client).NotNil()
	})

	t.Run("claude client", func(t *testing.T) {
		cfg := config.NewLLMForTest("claude", "", "", "sk-ant-test", "")
		client, err := cfg.NewClient(t.Context(), config.AgentSettings{})
		gt.NoError(t, err)
		gt.Value(t, client).NotNil()
	})
}

func TestLLM_Configure(t *testing.T) {
	cfg := config.NewLLMForTest("openai", "", "sk-test", "", "")
	client, err := cfg.Configure(t.Context(), config.AgentSettings{EmbeddingDimension: 256})
	gt.NoError(t, err)
	gt.Value(t, client).NotNil()

	_, err = config.NewLLMForTest("openai", "", "", "", "").Configure(t.Context(), config.AgentSettings{})
	gt.Error(t, err).Is(config.ErrMissingAPIKey)
}
