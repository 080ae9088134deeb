package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/cli/config"
	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/repository/jsonl"
	"github.com/secmon-lab/anemone/pkg/service/event"
	"github.com/secmon-lab/anemone/pkg/service/identity"
	"github.com/secmon-lab/anemone/pkg/service/worker"
	"github.com/secmon-lab/anemone/pkg/usecase"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
	"github.com/secmon-lab/anemone/pkg/utils/safe"
)

// agentBuilder assembles one agent from its box. Every agent gets its own
// LLM client, memory stream and event bus.
type agentBuilder struct {
	llm      *config.LLM
	search   interfaces.WebSearch
	settings *config.AgentFile
}

func (x *agentBuilder) build(ctx context.Context, boxDir string) (*worker.Agent, error) {
	id := identity.AgentIDFromBox(boxDir)
	if id == "" {
		return nil, goerr.New("not an agent box", goerr.V("box", boxDir))
	}

	ident, err := identity.Load(boxDir)
	if err != nil {
		return nil, err
	}

	settings, err := x.settings.ForBox(id, boxDir)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid box settings", goerr.V("agent_id", id))
	}
	cfg := settings.BrainConfig(id, boxDir)

	client, err := x.llm.Configure(ctx, settings)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure LLM", goerr.V("agent_id", id))
	}

	store, err := jsonl.OpenBox(ctx, boxDir)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open memory stream", goerr.V("agent_id", id))
	}

	bus := event.NewBus()
	brain, err := usecase.NewBrain(cfg, ident, client, store,
		usecase.WithWebSearch(x.search),
		usecase.WithPublisher(bus),
	)
	if err != nil {
		safe.Close(ctx, store)
		bus.Close()
		return nil, goerr.Wrap(err, "failed to create brain", goerr.V("agent_id", id))
	}

	logging.From(ctx).Info("agent ready",
		"agent_id", id,
		"name", ident.Name,
		"provider", x.llm.Provider(settings),
		"pace", cfg.Pace,
	)
	return worker.NewAgent(id, boxDir, brain, bus, store), nil
}
