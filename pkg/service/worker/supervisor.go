package worker

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/robfig/cron/v3"
	"github.com/secmon-lab/anemone/pkg/service/identity"
	"github.com/secmon-lab/anemone/pkg/utils/errutil"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// Factory builds a ready-to-run agent for a box. An error skips that box
// only.
type Factory func(ctx context.Context, boxDir string) (*Agent, error)

// Sidecar runs next to an agent loop, e.g. a relay subscribed to its bus.
// It must return when ctx is done.
type Sidecar func(ctx context.Context, a *Agent) error

// Supervisor discovers boxes under a root directory and runs one isolated
// loop per agent.
//
// Architecture assumptions:
// - A box has a single writer, so one supervisor per root
// - A fatal error stops only the agent it happened in
type Supervisor struct {
	root     string
	factory  Factory
	sidecars []Sidecar
	schedule string

	mu      sync.RWMutex
	agents  map[string]*Agent
	skipped map[string]error
	pending map[string]struct{}

	eg      errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	cron    *cron.Cron
	started bool
	stopped bool
}

type Option func(*Supervisor)

// WithSidecar adds a function started alongside every agent loop.
func WithSidecar(s Sidecar) Option {
	return func(x *Supervisor) {
		x.sidecars = append(x.sidecars, s)
	}
}

// WithRediscovery re-runs discovery on a cron schedule such as "@every 1m"
// and starts boxes hatched since.
func WithRediscovery(schedule string) Option {
	return func(x *Supervisor) {
		x.schedule = schedule
	}
}

func New(root string, factory Factory, opts ...Option) *Supervisor {
	s := &Supervisor{
		root:    root,
		factory: factory,
		agents:  map[string]*Agent{},
		skipped: map[string]error{},
		pending: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Discover returns the box directories under root that hold an identity,
// sorted by path.
func Discover(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read agent root", goerr.V("root", root))
	}

	var boxes []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), identity.BoxSuffix) || e.Name() == identity.BoxSuffix {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, identity.FileName)); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logging.Default().Warn("failed to inspect box", "box", dir, "error", err)
			}
			continue
		}
		boxes = append(boxes, dir)
	}
	sort.Strings(boxes)
	return boxes, nil
}

// Start discovers boxes and starts their loops. It does not block. Agents
// that fail to build are skipped and reported; Start only fails when the
// root itself cannot be read.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return goerr.New("supervisor already started")
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	logging.From(ctx).Info("supervisor starting", "root", s.root, "rediscovery", s.schedule)

	if _, err := s.Rediscover(s.ctx); err != nil {
		return err
	}

	if s.schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(s.schedule, func() {
			if _, err := s.Rediscover(s.ctx); err != nil {
				_ = errutil.Handle(s.ctx, err, "rediscovery failed")
			}
		}); err != nil {
			return goerr.Wrap(err, "invalid rediscovery schedule", goerr.V("schedule", s.schedule))
		}
		s.mu.Lock()
		s.cron = c
		s.mu.Unlock()
		c.Start()
	}

	return nil
}

// Rediscover starts every discovered box that is not already supervised and
// returns the ids started.
func (s *Supervisor) Rediscover(ctx context.Context) ([]string, error) {
	boxes, err := Discover(s.root)
	if err != nil {
		return nil, err
	}

	var started []string
	for _, dir := range boxes {
		id := identity.AgentIDFromBox(dir)
		if !s.reserve(id) {
			continue
		}

		agent, err := s.factory(ctx, dir)
		if err != nil {
			s.mu.Lock()
			delete(s.pending, id)
			s.skipped[id] = err
			s.mu.Unlock()
			_ = errutil.Handle(ctx, goerr.Wrap(err, "agent skipped", goerr.V("agent_id", id), goerr.V("box", dir)), "failed to prepare agent")
			continue
		}
		agent.ID = id

		if !s.launch(agent) {
			closeAll(ctx, agent)
			break
		}
		started = append(started, agent.ID)
	}

	if len(started) > 0 {
		logging.From(ctx).Info("agents started", "agents", started)
	}
	return started, nil
}

// reserve claims id for one caller until launch or a build failure releases
// it. Concurrent discoveries never build the same box twice.
func (s *Supervisor) reserve(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, running := s.agents[id]
	_, skipped := s.skipped[id]
	_, building := s.pending[id]
	if running || skipped || building || s.stopped {
		return false
	}
	s.pending[id] = struct{}{}
	return true
}

// launch registers agent and runs it. It returns false once Stop was called.
func (s *Supervisor) launch(agent *Agent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, agent.ID)
	if s.stopped {
		return false
	}
	s.agents[agent.ID] = agent
	agent.setRunning()

	ctx := logging.With(s.ctx, logging.From(s.ctx).With("agent_id", agent.ID))
	sidecarCtx, stopSidecars := context.WithCancel(ctx)

	s.eg.Go(func() error {
		err := agent.Brain.Run(ctx)
		if err != nil {
			err = goerr.Wrap(err, "agent loop stopped", goerr.V("agent_id", agent.ID))
			_ = errutil.Handle(ctx, err, "agent stopped by a fatal error")
		}
		agent.finish(err)
		stopSidecars()
		if agent.Bus != nil {
			agent.Bus.Close()
		}
		return err
	})

	for _, sidecar := range s.sidecars {
		s.eg.Go(func() error {
			if err := sidecar(sidecarCtx, agent); err != nil {
				_ = errutil.Handle(ctx, err, "agent sidecar failed")
			}
			return nil
		})
	}
	return true
}

// Stop cancels every loop, waits for them to return and closes their
// resources. A started cycle always finishes, so no append is lost. It
// returns the first fatal loop error, if any.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	c := s.cron
	s.mu.Unlock()

	logger := logging.From(s.ctx)
	logger.Info("supervisor stopping")

	if c != nil {
		<-c.Stop().Done()
	}
	s.cancel()
	err := s.eg.Wait()

	for _, a := range s.Agents() {
		closeAll(s.ctx, a)
	}

	logger.Info("supervisor stopped")
	return err
}

func closeAll(ctx context.Context, a *Agent) {
	if a.Bus != nil {
		a.Bus.Close()
	}
	for _, c := range a.Closers {
		if err := c.Close(); err != nil {
			logging.From(ctx).Warn("failed to close agent resource", "agent_id", a.ID, "error", err)
		}
	}
}

// Agent returns the supervised agent with id.
func (s *Supervisor) Agent(id string) (*Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	return a, ok
}

// Agents returns every supervised agent sorted by id.
func (s *Supervisor) Agents() []*Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agents := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	slices.SortFunc(agents, func(a, b *Agent) int {
		return strings.Compare(a.ID, b.ID)
	})
	return agents
}

// Skipped returns the boxes that could not be started and why.
func (s *Supervisor) Skipped() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]error, len(s.skipped))
	for k, v := range s.skipped {
		out[k] = v
	}
	return out
}
