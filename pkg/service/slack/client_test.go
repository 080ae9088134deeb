package slack_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anemone/pkg/service/slack"
	goslack "github.com/slack-go/slack"
)

type fakeSlackAPI struct {
	mu        sync.Mutex
	listCalls int
	posted    []map[string]string
}

func (f *fakeSlackAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.listCalls++
		f.mu.Unlock()

		resp := map[string]any{"ok": true}
		if r.Form.Get("cursor") == "" {
			resp["channels"] = []map[string]any{
				{"id": "C001", "name": "general", "is_member": false},
				{"id": "C002", "name": "anemone-coral", "is_member": true},
			}
			resp["response_metadata"] = map[string]any{"next_cursor": "page2"}
		} else {
			resp["channels"] = []map[string]any{
				{"id": "C003", "name": "anemone-kelp", "is_member": true},
			}
			resp["response_metadata"] = map[string]any{"next_cursor": ""}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/chat.postMessage", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.posted = append(f.posted, map[string]string{
			"channel": r.Form.Get("channel"),
			"text":    r.Form.Get("text"),
			"blocks":  r.Form.Get("blocks"),
		})
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": r.Form.Get("channel"), "ts": "1700000000.000100"})
	})
	return mux
}

func (f *fakeSlackAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeSlackAPI) messages() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]string(nil), f.posted...)
}

func newFakeService(t *testing.T) (slack.Service, *fakeSlackAPI) {
	t.Helper()
	api := &fakeSlackAPI{}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	svc, err := slack.New("xoxb-test", slack.WithAPIURL(srv.URL+"/"))
	gt.NoError(t, err).Required()
	return svc, api
}

func TestNew(t *testing.T) {
	t.Run("returns error when token is empty", func(t *testing.T) {
		_, err := slack.New("")
		gt.Value(t, err).NotNil()
	})

	t.Run("creates service when token is provided", func(t *testing.T) {
		svc, err := slack.New("test-token")
		gt.NoError(t, err).Required()
		gt.Value(t, svc).NotNil()
	})
}

func TestClient_ListJoinedChannels(t *testing.T) {
	svc, _ := newFakeService(t)

	channels, err := svc.ListJoinedChannels(context.Background())
	gt.NoError(t, err).Required()
	gt.Value(t, channels).Equal([]slack.Channel{
		{ID: "C002", Name: "anemone-coral"},
		{ID: "C003", Name: "anemone-kelp"},
	})
}

func TestClient_ResolveChannel(t *testing.T) {
	ctx := context.Background()
	svc, api := newFakeService(t)

	id, err := svc.ResolveChannel(ctx, "#anemone-kelp")
	gt.NoError(t, err).Required()
	gt.Value(t, id).Equal("C003")

	// cached, by name and by id
	id, err = svc.ResolveChannel(ctx, "anemone-coral")
	gt.NoError(t, err).Required()
	gt.Value(t, id).Equal("C002")
	id, err = svc.ResolveChannel(ctx, "C002")
	gt.NoError(t, err).Required()
	gt.Value(t, id).Equal("C002")
	gt.Value(t, api.calls()).Equal(2)

	_, err = svc.ResolveChannel(ctx, "general")
	gt.Error(t, err).Is(slack.ErrChannelNotFound)
}

func TestClient_PostMessage(t *testing.T) {
	svc, api := newFakeService(t)

	blocks := []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, "*Coral* says:\n>hi", false, false), nil, nil),
	}
	ts, err := svc.PostMessage(context.Background(), "C002", blocks, "Coral says: hi")
	gt.NoError(t, err).Required()
	gt.Value(t, ts).Equal("1700000000.000100")

	posted := api.messages()
	gt.Array(t, posted).Length(1).Required()
	gt.Value(t, posted[0]["channel"]).Equal("C002")
	gt.Value(t, posted[0]["text"]).Equal("Coral says: hi")
	gt.String(t, posted[0]["blocks"]).Contains("Coral")
}

func TestIntegration(t *testing.T) {
	token := os.Getenv("TEST_SLACK_BOT_TOKEN")
	channel := os.Getenv("TEST_SLACK_CHANNEL")
	if token == "" || channel == "" {
		t.Skip("TEST_SLACK_BOT_TOKEN or TEST_SLACK_CHANNEL is not set")
	}

	ctx := context.Background()
	svc, err := slack.New(token)
	gt.NoError(t, err).Required()

	channelID, err := svc.ResolveChannel(ctx, channel)
	gt.NoError(t, err).Required()

	blocks := []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, "integration test", false, false), nil, nil),
	}
	ts, err := svc.PostMessage(ctx, channelID, blocks, "integration test")
	gt.NoError(t, err).Required()
	gt.String(t, ts).NotEqual("")
}
