package slack

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
	"github.com/slack-go/slack"
)

// Relay mirrors what an agent says and realizes into a Slack channel. It is
// an ordinary event subscriber: a slow or failing Slack never affects the
// agent loop.
type Relay struct {
	svc     Service
	channel string
}

func NewRelay(svc Service, channel string) *Relay {
	return &Relay{svc: svc, channel: channel}
}

// Run posts relayed events until ctx is done or events is closed.
func (x *Relay) Run(ctx context.Context, agentID, agentName string, events <-chan model.Event) error {
	logger := logging.From(ctx).With("agent_id", agentID, "channel", x.channel)

	channelID, err := x.svc.ResolveChannel(ctx, x.channel)
	if err != nil {
		return goerr.Wrap(err, "failed to resolve relay channel", goerr.V("agent_id", agentID))
	}
	logger.Info("slack relay started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			blocks, text, relay := BuildMessageBlocks(ev, agentName)
			if !relay {
				continue
			}
			if _, err := x.svc.PostMessage(ctx, channelID, blocks, text); err != nil {
				logger.Warn("failed to relay event", "type", ev.Type, "error", err)
			}
		}
	}
}

// BuildMessageBlocks renders a relayed event. The last result is false for
// event types the relay ignores.
func BuildMessageBlocks(ev model.Event, agentName string) ([]slack.Block, string, bool) {
	var header, body string
	switch ev.Type {
	case model.EventAwaitingReply:
		msg, _ := ev.Data["message"].(string)
		if strings.TrimSpace(msg) == "" {
			return nil, "", false
		}
		header = fmt.Sprintf("*%s* says:", agentName)
		body = quote(msg)
	case model.EventReflectionOccurred:
		text, _ := ev.Data["text"].(string)
		if strings.TrimSpace(text) == "" {
			return nil, "", false
		}
		header = fmt.Sprintf(":thought_balloon: *%s* realized (depth %v):", agentName, ev.Data["depth"])
		body = "_" + text + "_"
	default:
		return nil, "", false
	}

	section := truncateToMaxBytes(header+"\n"+body, maxSectionTextBytes)
	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, section, false, false),
			nil, nil,
		),
		slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("agent `%s` | %s", ev.AgentID, ev.Time.Format("2006-01-02 15:04:05")),
				false, false),
		),
	}

	fallback := strings.TrimSuffix(header, ":") + ": " + body
	return blocks, truncateToMaxBytes(fallback, maxSectionTextBytes), true
}

func quote(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = ">" + line
	}
	return strings.Join(lines, "\n")
}
