package worker

import (
	"io"
	"sync"

	"github.com/secmon-lab/anemone/pkg/service/event"
	"github.com/secmon-lab/anemone/pkg/usecase"
)

// Agent is one supervised agent: its loop, its event bus and whatever the
// factory opened for it.
type Agent struct {
	ID     string
	BoxDir string
	Brain  *usecase.Brain
	Bus    *event.Bus

	// Closers are closed after the loop has stopped, in order.
	Closers []io.Closer

	mu      sync.RWMutex
	running bool
	err     error
	done    chan struct{}
}

// NewAgent wires brain to publish on bus.
func NewAgent(id, boxDir string, brain *usecase.Brain, bus *event.Bus, closers ...io.Closer) *Agent {
	return &Agent{
		ID:      id,
		BoxDir:  boxDir,
		Brain:   brain,
		Bus:     bus,
		Closers: closers,
		done:    make(chan struct{}),
	}
}

// Running reports whether the loop is currently active.
func (a *Agent) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Err returns the fatal error that stopped the loop, if any.
func (a *Agent) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.err
}

// Done is closed when the loop has returned.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

func (a *Agent) setRunning() {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
}

func (a *Agent) finish(err error) {
	a.mu.Lock()
	a.running = false
	a.err = err
	a.mu.Unlock()
	close(a.done)
}
