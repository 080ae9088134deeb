package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/service/slack"
	"github.com/secmon-lab/anemone/pkg/service/worker"
	"github.com/urfave/cli/v3"
)

const relayBuffer = 64

// Slack holds the flags of the optional Slack relay.
type Slack struct {
	botToken      string
	channel       string
	channelPrefix string
	apiURL        string
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token. Enables the Slack relay",
			Category:    "Slack",
			Destination: &x.botToken,
			Sources:     cli.EnvVars("ANEMONE_SLACK_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-channel",
			Usage:       "Channel name or ID every agent relays to",
			Category:    "Slack",
			Destination: &x.channel,
			Sources:     cli.EnvVars("ANEMONE_SLACK_CHANNEL"),
		},
		&cli.StringFlag{
			Name:        "slack-channel-prefix",
			Usage:       "Relay each agent to its own <prefix>-<agent id> channel instead",
			Category:    "Slack",
			Destination: &x.channelPrefix,
			Sources:     cli.EnvVars("ANEMONE_SLACK_CHANNEL_PREFIX"),
		},
		&cli.StringFlag{
			Name:        "slack-api-url",
			Usage:       "Slack API base URL",
			Category:    "Slack",
			Hidden:      true,
			Destination: &x.apiURL,
			Sources:     cli.EnvVars("ANEMONE_SLACK_API_URL"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.String("channel", x.channel),
		slog.String("channel-prefix", x.channelPrefix),
	)
}

// ChannelFor returns the relay channel of agentID.
func (x *Slack) ChannelFor(agentID string) string {
	if x.channel != "" {
		return x.channel
	}
	return slack.AgentChannelName(x.channelPrefix, agentID)
}

// Configure returns the relay sidecar, or nil when no bot token is set.
func (x *Slack) Configure() (worker.Sidecar, error) {
	if x.botToken == "" {
		return nil, nil
	}
	if x.channel == "" && x.channelPrefix == "" {
		return nil, goerr.Wrap(ErrInvalidConfig, "slack-channel or slack-channel-prefix is required with slack-bot-token")
	}

	var opts []slack.Option
	if x.apiURL != "" {
		opts = append(opts, slack.WithAPIURL(x.apiURL))
	}
	svc, err := slack.New(x.botToken, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Slack service")
	}

	return func(ctx context.Context, a *worker.Agent) error {
		events, unsubscribe := a.Bus.Subscribe(relayBuffer)
		defer unsubscribe()

		relay := slack.NewRelay(svc, x.ChannelFor(a.ID))
		return relay.Run(ctx, a.ID, a.Brain.Identity().Name, events)
	}, nil
}
