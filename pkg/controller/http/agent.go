package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/service/inbox"
	"github.com/secmon-lab/anemone/pkg/service/worker"
	"github.com/secmon-lab/anemone/pkg/usecase"
	"github.com/secmon-lab/anemone/pkg/utils/errutil"
)

const (
	defaultMemoryLimit = 20
	maxMemoryLimit     = 200
	maxMessageBytes    = 4096
)

type agentSummary struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Running bool           `json:"running"`
	Error   string         `json:"error,omitempty"`
	Status  usecase.Status `json:"status"`
}

type agentDetail struct {
	agentSummary
	Identity *model.Identity `json:"identity"`
}

func summarize(a *worker.Agent) agentSummary {
	s := agentSummary{
		ID:      a.ID,
		Name:    a.Brain.Identity().Name,
		Running: a.Running(),
		Status:  a.Brain.Status(),
	}
	if err := a.Err(); err != nil {
		s.Error = err.Error()
	}
	return s
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents := s.registry.Agents()
	resp := struct {
		Agents []agentSummary `json:"agents"`
	}{Agents: make([]agentSummary, 0, len(agents))}
	for _, a := range agents {
		resp.Agents = append(resp.Agents, summarize(a))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	a := agentFrom(r.Context())
	writeJSON(w, r, http.StatusOK, agentDetail{
		agentSummary: summarize(a),
		Identity:     a.Brain.Identity(),
	})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	a := agentFrom(r.Context())

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, http.StatusBadRequest, "message is required")
		return
	}
	if a.Err() != nil {
		writeError(w, r, http.StatusConflict, "agent has stopped")
		return
	}
	if !a.Brain.Send(req.Message) {
		writeError(w, r, http.StatusServiceUnavailable, "message queue is full")
		return
	}

	writeJSON(w, r, http.StatusAccepted, map[string]bool{"queued": true})
}

func (s *Server) postFocusMode(w http.ResponseWriter, r *http.Request) {
	a := agentFrom(r.Context())

	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, r, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}

	a.Brain.SetFocusMode(*req.Enabled)
	writeJSON(w, r, http.StatusOK, map[string]bool{"focus_mode": *req.Enabled})
}

type memoryResponse struct {
	ID         string           `json:"id"`
	Timestamp  time.Time        `json:"timestamp"`
	Kind       model.MemoryKind `json:"kind"`
	Content    string           `json:"content"`
	Importance int              `json:"importance"`
	Depth      int              `json:"depth"`
	References []string         `json:"references"`
}

func (s *Server) listMemories(w http.ResponseWriter, r *http.Request) {
	a := agentFrom(r.Context())

	limit := defaultMemoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxMemoryLimit)
	}

	entries, err := a.Brain.Store().Recent(r.Context(), limit)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to read memories", goerr.V("agent_id", a.ID)), http.StatusInternalServerError)
		return
	}

	resp := struct {
		Memories []memoryResponse `json:"memories"`
	}{Memories: make([]memoryResponse, 0, len(entries))}
	for _, e := range entries {
		refs := make([]string, 0, len(e.References))
		for _, id := range e.References {
			refs = append(refs, id.String())
		}
		resp.Memories = append(resp.Memories, memoryResponse{
			ID:         e.ID.String(),
			Timestamp:  e.Timestamp,
			Kind:       e.Kind,
			Content:    e.Content,
			Importance: e.Importance,
			Depth:      e.Depth,
			References: refs,
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	a := agentFrom(r.Context())

	files, err := inbox.NewScanner(a.BoxDir).List()
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to list box", goerr.V("agent_id", a.ID)), http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string][]string{"files": files})
}
