package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/secmon-lab/anemone/pkg/service/identity"
	"github.com/secmon-lab/anemone/pkg/utils/async"
	"github.com/secmon-lab/anemone/pkg/utils/errutil"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
)

type hatchRequest struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type hatchResponse struct {
	ID       string `json:"id"`
	Box      string `json:"box"`
	Identity any    `json:"identity"`
}

// hatchAgent creates a box with a random genome. The new agent starts once
// the background rediscovery picks it up.
func (s *Server) hatchAgent(w http.ResponseWriter, r *http.Request) {
	var req hatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, r, http.StatusBadRequest, "name is required")
		return
	}
	if req.ID == "" {
		req.ID = identity.AgentIDFromName(req.Name)
	}
	if err := identity.ValidateAgentID(req.ID); err != nil {
		writeError(w, r, http.StatusBadRequest, "id must be lowercase letters, digits, '-' or '_'")
		return
	}

	ident, err := identity.GenerateRandom(req.Name, time.Now())
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
		return
	}

	dir, err := identity.Hatch(s.root, req.ID, ident)
	if errors.Is(err, identity.ErrBoxExists) {
		writeError(w, r, http.StatusConflict, "agent already exists")
		return
	}
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, err, http.StatusInternalServerError)
		return
	}
	logging.From(r.Context()).Info("agent hatched", "agent_id", req.ID, "box", dir)

	if s.rediscover != nil {
		async.Dispatch(r.Context(), func(ctx context.Context) error {
			_, err := s.rediscover(ctx)
			return err
		})
	}

	writeJSON(w, r, http.StatusCreated, hatchResponse{ID: req.ID, Box: dir, Identity: ident})
}
