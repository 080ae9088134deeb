package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/service/worker"
	"github.com/secmon-lab/anemone/pkg/utils/errutil"
)

// DefaultHeartbeat is the SSE keep-alive interval.
const DefaultHeartbeat = 15 * time.Second

// AgentRegistry gives read-only routing to supervised agents.
type AgentRegistry interface {
	Agent(id string) (*worker.Agent, bool)
	Agents() []*worker.Agent
}

// RediscoverFunc starts boxes that appeared under the root since the last
// discovery.
type RediscoverFunc func(ctx context.Context) ([]string, error)

type Server struct {
	router     *chi.Mux
	registry   AgentRegistry
	apiToken   string
	heartbeat  time.Duration
	root       string
	rediscover RediscoverFunc
}

type Options func(*Server)

// WithAPIToken requires "Authorization: Bearer <token>" on /api routes.
func WithAPIToken(token string) Options {
	return func(s *Server) {
		s.apiToken = token
	}
}

// WithHatching enables POST /api/agents, which hatches a box under root and
// then runs rediscover in the background.
func WithHatching(root string, rediscover RediscoverFunc) Options {
	return func(s *Server) {
		s.root = root
		s.rediscover = rediscover
	}
}

func WithHeartbeat(d time.Duration) Options {
	return func(s *Server) {
		s.heartbeat = d
	}
}

func New(registry AgentRegistry, opts ...Options) (*Server, error) {
	if registry == nil {
		return nil, goerr.New("agent registry is required")
	}

	r := chi.NewRouter()
	s := &Server{
		router:    r,
		registry:  registry,
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/agents", func(r chi.Router) {
		if s.apiToken != "" {
			r.Use(tokenAuth(s.apiToken))
		}
		r.Get("/", s.listAgents)
		if s.root != "" {
			r.Post("/", s.hatchAgent)
		}

		r.Route("/{id}", func(r chi.Router) {
			r.Use(agentCtx(s.registry))
			r.Get("/", s.getAgent)
			r.Post("/message", s.postMessage)
			r.Post("/focus-mode", s.postFocusMode)
			r.Get("/memories", s.listMemories)
			r.Get("/files", s.listFiles)
			r.Get("/events", s.streamEvents)
		})
	})

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}
