package config

import (
	"log/slog"

	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/service/websearch"
	"github.com/urfave/cli/v3"
)

// Search holds the web search flags.
type Search struct {
	apiKey   string
	endpoint string
}

func (x *Search) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "ollama-api-key",
			Usage:       "Ollama API key for the web_search tool",
			Category:    "Search",
			Sources:     cli.EnvVars("OLLAMA_API_KEY"),
			Destination: &x.apiKey,
		},
		&cli.StringFlag{
			Name:        "search-endpoint",
			Usage:       "Web search API endpoint",
			Category:    "Search",
			Value:       websearch.DefaultEndpoint,
			Sources:     cli.EnvVars("ANEMONE_SEARCH_ENDPOINT"),
			Destination: &x.endpoint,
		},
	}
}

func (x Search) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("api-key.len", len(x.apiKey)),
		slog.String("endpoint", x.endpoint),
	)
}

// Configure returns the web search client, or nil when no API key is set.
// Agents without search get a failing web_search tool instead.
func (x *Search) Configure() interfaces.WebSearch {
	if x.apiKey == "" {
		return nil
	}

	var opts []websearch.Option
	if x.endpoint != "" {
		opts = append(opts, websearch.WithEndpoint(x.endpoint))
	}
	return websearch.New(x.apiKey, opts...)
}
