package slack

import (
	"context"

	"github.com/slack-go/slack"
)

// Service is the part of the Slack API the relay needs.
type Service interface {
	// ListJoinedChannels retrieves the public channels the bot is a member of.
	ListJoinedChannels(ctx context.Context) ([]Channel, error)

	// ResolveChannel returns the ID of a joined channel given its ID or name
	// (with or without a leading "#"). Results are cached.
	ResolveChannel(ctx context.Context, nameOrID string) (string, error)

	// PostMessage posts a Block Kit message to a channel and returns the message timestamp.
	// The text parameter is used as a fallback for notifications.
	PostMessage(ctx context.Context, channelID string, blocks []slack.Block, text string) (string, error)
}

// Channel represents a Slack channel
type Channel struct {
	ID   string
	Name string
}
