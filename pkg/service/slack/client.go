package slack

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

// DefaultCacheTTL is how long a resolved channel ID is reused.
const DefaultCacheTTL = 10 * time.Minute

// ErrChannelNotFound is returned when the bot has not joined the channel.
var ErrChannelNotFound = goerr.New("slack channel not found")

type cacheEntry struct {
	id        string
	expiresAt time.Time
}

// client implements Service interface
type client struct {
	api      *slack.Client
	cacheTTL time.Duration
	apiURL   string
	clock    func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// Option is a functional option for client configuration
type Option func(*client)

// WithCacheTTL sets the TTL for resolved channel IDs
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *client) {
		c.cacheTTL = ttl
	}
}

// WithAPIURL points the client at another Slack API endpoint. The URL must
// end with "/".
func WithAPIURL(url string) Option {
	return func(c *client) {
		c.apiURL = url
	}
}

func WithClock(clock func() time.Time) Option {
	return func(c *client) {
		c.clock = clock
	}
}

// New creates a new Slack service with the provided bot token
func New(token string, opts ...Option) (Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	c := &client{
		cacheTTL: DefaultCacheTTL,
		clock:    time.Now,
		cache:    make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}

	var apiOpts []slack.Option
	if c.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(c.apiURL))
	}
	c.api = slack.New(token, apiOpts...)

	return c, nil
}

// ListJoinedChannels retrieves the list of channels the bot has joined
func (c *client) ListJoinedChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	var cursor string

	for {
		params := &slack.GetConversationsParameters{
			Types:           []string{"public_channel"},
			ExcludeArchived: true,
			Limit:           200,
			Cursor:          cursor,
		}

		convs, nextCursor, err := c.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get conversations")
		}

		for _, conv := range convs {
			if conv.IsMember {
				channels = append(channels, Channel{
					ID:   conv.ID,
					Name: conv.Name,
				})
			}
		}

		if nextCursor == "" {
			break
		}
		cursor = nextCursor
	}

	return channels, nil
}

func (c *client) ResolveChannel(ctx context.Context, nameOrID string) (string, error) {
	key := strings.TrimPrefix(strings.TrimSpace(nameOrID), "#")
	if key == "" {
		return "", goerr.Wrap(ErrChannelNotFound, "channel is empty")
	}
	now := c.clock()

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && entry.expiresAt.After(now) {
		return entry.id, nil
	}

	channels, err := c.ListJoinedChannels(ctx)
	if err != nil {
		return "", err
	}

	exp := now.Add(c.cacheTTL)
	found := ""
	c.mu.Lock()
	for _, ch := range channels {
		c.cache[ch.ID] = cacheEntry{id: ch.ID, expiresAt: exp}
		c.cache[ch.Name] = cacheEntry{id: ch.ID, expiresAt: exp}
		if ch.ID == key || ch.Name == key {
			found = ch.ID
		}
	}
	c.mu.Unlock()

	if found == "" {
		return "", goerr.Wrap(ErrChannelNotFound, "bot has not joined the channel", goerr.V("channel", nameOrID))
	}
	return found, nil
}

func (c *client) PostMessage(ctx context.Context, channelID string, blocks []slack.Block, text string) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to post Slack message", goerr.V("channel", channelID))
	}
	return ts, nil
}
