package llm

import (
	"context"
	_ "embed"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
)

//go:embed prompt/importance.md
var importancePrompt string

// DefaultEmbeddingDimension matches the default embedding model of every
// supported backend.
const DefaultEmbeddingDimension = 768

// Client wraps a gollem LLMClient with retries and the helper calls the
// thinking loop needs besides chat.
type Client struct {
	llm          gollem.LLMClient
	policy       Policy
	embeddingDim int
}

// Option is a functional option for Client configuration
type Option func(*Client)

func WithPolicy(p Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

func WithEmbeddingDimension(dim int) Option {
	return func(c *Client) {
		if dim > 0 {
			c.embeddingDim = dim
		}
	}
}

// New creates a Client for llmClient.
func New(llmClient gollem.LLMClient, opts ...Option) (*Client, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	c := &Client{
		llm:          llmClient,
		policy:       DefaultPolicy,
		embeddingDim: DefaultEmbeddingDimension,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewSession opens a chat session, retrying transient failures.
func (c *Client) NewSession(ctx context.Context, opts ...gollem.SessionOption) (gollem.Session, error) {
	var session gollem.Session
	err := Retry(ctx, c.policy, "new_session", func(ctx context.Context) error {
		s, err := c.llm.NewSession(ctx, opts...)
		if err != nil {
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Generate sends inputs to session with retries.
func (c *Client) Generate(ctx context.Context, session gollem.Session, inputs ...gollem.Input) (*gollem.Response, error) {
	var resp *gollem.Response
	err := Retry(ctx, c.policy, "generate", func(ctx context.Context) error {
		r, err := session.GenerateContent(ctx, inputs...)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Complete runs a single-turn session with systemPrompt and returns the
// joined text of the reply.
func (c *Client) Complete(ctx context.Context, systemPrompt, input string) (string, error) {
	session, err := c.NewSession(ctx, gollem.WithSessionSystemPrompt(systemPrompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := c.Generate(ctx, session, gollem.Text(input))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content from LLM")
	}
	return strings.TrimSpace(strings.Join(resp.Texts, "\n")), nil
}

// Embed returns the embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var vec []float64
	err := Retry(ctx, c.policy, "embed", func(ctx context.Context) error {
		embeddings, err := c.llm.GenerateEmbedding(ctx, c.embeddingDim, []string{text})
		if err != nil {
			return err
		}
		if len(embeddings) == 0 || len(embeddings[0]) == 0 {
			return goerr.New("no embedding returned")
		}
		vec = embeddings[0]
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}
	return vec, nil
}

// EmbedOrNil is Embed for the memory write path, where a failed embedding is
// stored as null instead of failing the entry.
func (c *Client) EmbedOrNil(ctx context.Context, text string) []float64 {
	vec, err := c.Embed(ctx, text)
	if err != nil {
		logging.From(ctx).Warn("embedding unavailable, storing memory without it", "error", err)
		return nil
	}
	return vec
}

func importanceSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "ImportanceRating",
		Description: "Importance of a memory on a 1-10 scale",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"importance": {
				Type:        gollem.TypeInteger,
				Description: "1 is mundane, 10 is pivotal",
				Required:    true,
			},
		},
	}
}

// ScoreImportance rates content on the 1-10 scale. It never fails: any
// provider or parse problem yields model.DefaultImportance.
func (c *Client) ScoreImportance(ctx context.Context, content string) int {
	logger := logging.From(ctx)

	session, err := c.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(importanceSchema()),
		gollem.WithSessionSystemPrompt(importancePrompt),
	)
	if err != nil {
		logger.Warn("importance scoring unavailable", "error", err)
		return model.DefaultImportance
	}

	resp, err := c.Generate(ctx, session, gollem.Text(content))
	if err != nil {
		logger.Warn("importance scoring failed", "error", err)
		return model.DefaultImportance
	}

	return ParseImportance(strings.Join(resp.Texts, ""))
}

var digitsPattern = regexp.MustCompile(`\d+`)

// ParseImportance reads a rating from a model reply. JSON replies of the form
// {"importance": N} are preferred; otherwise the first run of digits is
// used. The result is clamped to 1-10 and defaults to 5.
func ParseImportance(reply string) int {
	reply = strings.TrimSpace(reply)

	var rated struct {
		Importance *float64 `json:"importance"`
	}
	if err := json.Unmarshal([]byte(reply), &rated); err == nil && rated.Importance != nil {
		// clamp before converting; out of range floats have no defined int value
		v := max(model.MinImportance, min(model.MaxImportance, *rated.Importance))
		return model.ClampImportance(int(v))
	}

	digits := digitsPattern.FindString(reply)
	if digits == "" {
		return model.DefaultImportance
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		// overflow: far above the scale
		return model.MaxImportance
	}
	return model.ClampImportance(n)
}
