package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/utils/errutil"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
)

const eventBuffer = 64

// streamEvents relays an agent's events as Server-Sent Events. The first
// event is a "status" snapshot. A client that falls behind misses events
// rather than slowing the agent.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	a := agentFrom(r.Context())
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		errutil.HandleHTTP(ctx, w, goerr.New("streaming is not supported"), http.StatusInternalServerError)
		return
	}

	events, unsubscribe := a.Bus.Subscribe(eventBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	snapshot := model.NewEvent(a.ID, "status", time.Now(), map[string]any{"status": a.Brain.Status()})
	if err := writeEvent(w, snapshot); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				logging.From(ctx).Debug("event stream closed", "agent_id", a.ID, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return goerr.Wrap(err, "failed to encode event", goerr.V("type", ev.Type))
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
	return err
}
