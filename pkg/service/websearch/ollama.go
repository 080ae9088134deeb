package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/utils/safe"
	"github.com/secmon-lab/anemone/pkg/utils/strutil"
	"jaytaylor.com/html2text"
)

const (
	// DefaultEndpoint is the Ollama cloud web search API.
	DefaultEndpoint = "https://ollama.com/api/web_search"

	DefaultMaxResults = 5
	MaxResultsLimit   = 10
	SnippetLimit      = 500
)

var ErrNoAPIKey = goerr.New("web search API key is not configured")

// Client searches the web through the Ollama web search API.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var _ interfaces.WebSearch = &Client{}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:   DefaultEndpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// ClampMaxResults applies the default and the upper bound.
func ClampMaxResults(n int) int {
	if n <= 0 {
		return DefaultMaxResults
	}
	return min(n, MaxResultsLimit)
}

func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]model.SearchResult, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	maxResults = ClampMaxResults(maxResults)

	body, err := json.Marshal(searchRequest{Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create search request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "web search request failed", goerr.V("query", query))
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, goerr.New("web search returned an error",
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(msg)),
		)
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, goerr.Wrap(err, "failed to decode search response")
	}

	results := make([]model.SearchResult, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		if len(results) >= maxResults {
			break
		}
		results = append(results, model.SearchResult{
			Title:   strings.TrimSpace(r.Title),
			URL:     r.URL,
			Snippet: Snippet(r.Content),
		})
	}
	return results, nil
}

// Snippet strips markup from content and bounds it to SnippetLimit characters.
func Snippet(content string) string {
	text, err := html2text.FromString(content, html2text.Options{OmitLinks: true})
	if err != nil {
		text = content
	}
	text = strings.Join(strings.Fields(text), " ")
	return strutil.Truncate(text, SnippetLimit)
}
