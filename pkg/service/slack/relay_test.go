package slack_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/service/slack"
	goslack "github.com/slack-go/slack"
)

type mockService struct {
	listJoinedChannelsFn func(ctx context.Context) ([]slack.Channel, error)
	resolveChannelFn     func(ctx context.Context, nameOrID string) (string, error)
	postMessageFn        func(ctx context.Context, channelID string, blocks []goslack.Block, text string) (string, error)
}

func (m *mockService) ListJoinedChannels(ctx context.Context) ([]slack.Channel, error) {
	return m.listJoinedChannelsFn(ctx)
}

func (m *mockService) ResolveChannel(ctx context.Context, nameOrID string) (string, error) {
	return m.resolveChannelFn(ctx, nameOrID)
}

func (m *mockService) PostMessage(ctx context.Context, channelID string, blocks []goslack.Block, text string) (string, error) {
	return m.postMessageFn(ctx, channelID, blocks, text)
}

var eventTime = time.Date(2026, 10, 19, 15, 4, 5, 0, time.UTC)

func TestBuildMessageBlocks(t *testing.T) {
	t.Run("spoken message", func(t *testing.T) {
		ev := model.NewEvent("coral", model.EventAwaitingReply, eventTime, map[string]any{"message": "Hello!\nAnyone there?"})
		blocks, text, ok := slack.BuildMessageBlocks(ev, "Coral")
		gt.Bool(t, ok).True()
		gt.Array(t, blocks).Length(2)
		gt.Value(t, text).Equal("*Coral* says: >Hello!\n>Anyone there?")

		section := blocks[0].(*goslack.SectionBlock)
		gt.Value(t, section.Text.Text).Equal("*Coral* says:\n>Hello!\n>Anyone there?")
		footer := blocks[1].(*goslack.ContextBlock)
		gt.Array(t, footer.ContextElements.Elements).Length(1)
	})

	t.Run("reflection", func(t *testing.T) {
		ev := model.NewEvent("coral", model.EventReflectionOccurred, eventTime, map[string]any{"text": "Networks hide everywhere.", "depth": 1})
		blocks, _, ok := slack.BuildMessageBlocks(ev, "Coral")
		gt.Bool(t, ok).True()
		section := blocks[0].(*goslack.SectionBlock)
		gt.String(t, section.Text.Text).Contains("realized (depth 1)")
		gt.String(t, section.Text.Text).Contains("_Networks hide everywhere._")
	})

	t.Run("ignored events", func(t *testing.T) {
		for _, ev := range []model.Event{
			model.NewEvent("coral", model.EventThoughtProduced, eventTime, map[string]any{"text": "hmm"}),
			model.NewEvent("coral", model.EventAwaitingReply, eventTime, map[string]any{"message": "  "}),
			model.NewEvent("coral", model.EventReflectionOccurred, eventTime, nil),
		} {
			_, _, ok := slack.BuildMessageBlocks(ev, "Coral")
			gt.Bool(t, ok).False()
		}
	})
}

func TestRelay_Run(t *testing.T) {
	t.Run("posts relayed events until the stream closes", func(t *testing.T) {
		var mu sync.Mutex
		var posted []string
		svc := &mockService{
			resolveChannelFn: func(ctx context.Context, nameOrID string) (string, error) {
				gt.Value(t, nameOrID).Equal("#anemone")
				return "C100", nil
			},
			postMessageFn: func(ctx context.Context, channelID string, blocks []goslack.Block, text string) (string, error) {
				gt.Value(t, channelID).Equal("C100")
				mu.Lock()
				posted = append(posted, text)
				mu.Unlock()
				if len(posted) == 1 {
					return "", errors.New("rate limited")
				}
				return "1.0", nil
			},
		}

		events := make(chan model.Event, 4)
		events <- model.NewEvent("coral", model.EventAwaitingReply, eventTime, map[string]any{"message": "first"})
		events <- model.NewEvent("coral", model.EventThoughtProduced, eventTime, map[string]any{"text": "skipped"})
		events <- model.NewEvent("coral", model.EventAwaitingReply, eventTime, map[string]any{"message": "second"})
		close(events)

		err := slack.NewRelay(svc, "#anemone").Run(context.Background(), "coral", "Coral", events)
		gt.NoError(t, err)
		gt.Value(t, posted).Equal([]string{"*Coral* says: >first", "*Coral* says: >second"})
	})

	t.Run("unknown channel", func(t *testing.T) {
		svc := &mockService{
			resolveChannelFn: func(ctx context.Context, nameOrID string) (string, error) {
				return "", slack.ErrChannelNotFound
			},
		}
		err := slack.NewRelay(svc, "missing").Run(context.Background(), "coral", "Coral", nil)
		gt.Error(t, err).Is(slack.ErrChannelNotFound)
	})

	t.Run("stops on cancel", func(t *testing.T) {
		svc := &mockService{
			resolveChannelFn: func(ctx context.Context, nameOrID string) (string, error) {
				return "C1", nil
			},
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		gt.NoError(t, slack.NewRelay(svc, "C1").Run(ctx, "coral", "Coral", make(chan model.Event)))
	})
}
