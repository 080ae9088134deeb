package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/claude"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/llm/openai"
	"github.com/secmon-lab/anemone/pkg/service/llm"
	"github.com/urfave/cli/v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"

	DefaultProvider = ProviderOpenAI
)

// LLM holds the language-model flags shared by every agent. A flag left
// empty falls back to the agent's settings file.
type LLM struct {
	provider       string
	model          string
	openaiAPIKey   string
	openaiBaseURL  string
	claudeAPIKey   string
	geminiProject  string
	geminiLocation string
	embeddingDim   int
}

func (x *LLM) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "LLM provider [openai|claude|gemini]",
			Category:    "LLM",
			Sources:     cli.EnvVars("ANEMONE_PROVIDER"),
			Destination: &x.provider,
		},
		&cli.StringFlag{
			Name:        "llm-model",
			Usage:       "LLM model name",
			Category:    "LLM",
			Sources:     cli.EnvVars("ANEMONE_MODEL"),
			Destination: &x.model,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Category:    "LLM",
			Sources:     cli.EnvVars("OPENAI_API_KEY"),
			Destination: &x.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "Base URL of an OpenAI compatible API",
			Category:    "LLM",
			Sources:     cli.EnvVars("ANEMONE_BASE_URL"),
			Destination: &x.openaiBaseURL,
		},
		&cli.StringFlag{
			Name:        "claude-api-key",
			Usage:       "Anthropic API key",
			Category:    "LLM",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &x.claudeAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Category:    "LLM",
			Sources:     cli.EnvVars("ANEMONE_GEMINI_PROJECT"),
			Destination: &x.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Category:    "LLM",
			Value:       "us-central1",
			Sources:     cli.EnvVars("ANEMONE_GEMINI_LOCATION"),
			Destination: &x.geminiLocation,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Dimension of memory embeddings",
			Category:    "LLM",
			Value:       llm.DefaultEmbeddingDimension,
			Sources:     cli.EnvVars("ANEMONE_EMBEDDING_DIMENSION"),
			Destination: &x.embeddingDim,
		},
	}
}

func (x LLM) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", x.provider),
		slog.String("model", x.model),
		slog.Int("openai-api-key.len", len(x.openaiAPIKey)),
		slog.String("openai-base-url", x.openaiBaseURL),
		slog.Int("claude-api-key.len", len(x.claudeAPIKey)),
		slog.String("gemini-project", x.geminiProject),
		slog.String("gemini-location", x.geminiLocation),
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Provider returns the provider an agent with settings s would use.
func (x *LLM) Provider(s AgentSettings) string {
	return firstNonEmpty(x.provider, s.Provider, DefaultProvider)
}

// NewClient creates the raw gollem client for an agent.
func (x *LLM) NewClient(ctx context.Context, s AgentSettings) (gollem.LLMClient, error) {
	provider := x.Provider(s)
	model := firstNonEmpty(x.model, s.Model)

	switch provider {
	case ProviderOpenAI:
		if x.openaiAPIKey == "" {
			return nil, goerr.Wrap(ErrMissingAPIKey, "OPENAI_API_KEY is not set", goerr.V(ProviderKey, provider))
		}
		var opts []openai.Option
		if model != "" {
			opts = append(opts, openai.WithModel(model))
		}
		if baseURL := firstNonEmpty(x.openaiBaseURL, s.BaseURL); baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		client, err := openai.New(ctx, x.openaiAPIKey, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI client")
		}
		return client, nil

	case ProviderClaude:
		if x.claudeAPIKey == "" {
			return nil, goerr.Wrap(ErrMissingAPIKey, "ANTHROPIC_API_KEY is not set", goerr.V(ProviderKey, provider))
		}
		var opts []claude.Option
		if model != "" {
			opts = append(opts, claude.WithModel(model))
		}
		client, err := claude.New(ctx, x.claudeAPIKey, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Claude client")
		}
		return client, nil

	case ProviderGemini:
		if x.geminiProject == "" {
			return nil, goerr.Wrap(ErrMissingAPIKey, "Gemini project is not set", goerr.V(ProviderKey, provider))
		}
		var opts []gemini.Option
		if model != "" {
			opts = append(opts, gemini.WithModel(model))
		}
		client, err := gemini.New(ctx, x.geminiProject, x.geminiLocation, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini client")
		}
		return client, nil

	default:
		return nil, goerr.Wrap(ErrUnknownProvider, "unsupported provider", goerr.V(ProviderKey, provider))
	}
}

// Configure creates the retrying LLM client an agent's brain uses.
func (x *LLM) Configure(ctx context.Context, s AgentSettings) (*llm.Client, error) {
	raw, err := x.NewClient(ctx, s)
	if err != nil {
		return nil, err
	}

	dim := x.embeddingDim
	if s.EmbeddingDimension > 0 {
		dim = s.EmbeddingDimension
	}

	var opts []llm.Option
	if dim > 0 {
		opts = append(opts, llm.WithEmbeddingDimension(dim))
	}
	return llm.New(raw, opts...)
}
