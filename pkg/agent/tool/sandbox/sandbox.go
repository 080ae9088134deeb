package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/anemone/pkg/agent/tool"
	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
)

var (
	ErrToolRejected    = goerr.New("tool call rejected")
	ErrUnknownTool     = goerr.New("unknown tool")
	ErrInvalidArgument = goerr.New("invalid tool argument")
)

const (
	DefaultShellTimeout = 30 * time.Second
	DefaultOutputLimit  = 3000
	DefaultReplyTimeout = 15 * time.Second
)

// Room is the agent's position, changed by move.
type Room interface {
	Position() model.Position
	MoveTo(p model.Position)
}

// Listener lets respond speak and wait for an answer. AwaitReply returns
// false when nobody replied in time.
type Listener interface {
	AwaitReply(ctx context.Context, message string) (string, bool)
}

// Config is the per-agent sandbox configuration.
type Config struct {
	BoxDir       string
	Blocklist    []string
	ShellTimeout time.Duration
	OutputLimit  int
}

func (c Config) withDefaults() Config {
	if c.Blocklist == nil {
		c.Blocklist = DefaultBlocklist
	}
	if c.ShellTimeout <= 0 {
		c.ShellTimeout = DefaultShellTimeout
	}
	if c.OutputLimit <= 0 {
		c.OutputLimit = DefaultOutputLimit
	}
	return c
}

// Sandbox validates and dispatches the closed set of agent tools. It is a
// best-effort guard against accidents, not an isolation boundary.
type Sandbox struct {
	cfg   Config
	tools map[model.ToolName]gollem.Tool
	order []gollem.Tool
}

// New builds the dispatch table. search may be nil, in which case
// web_search reports that searching is unavailable.
func New(cfg Config, search interfaces.WebSearch, room Room, listener Listener) *Sandbox {
	cfg = cfg.withDefaults()

	order := []gollem.Tool{
		&shellTool{cfg: cfg},
		&webSearchTool{search: search},
		&moveTool{room: room},
		&respondTool{listener: listener},
	}

	tools := make(map[model.ToolName]gollem.Tool, len(order))
	for _, t := range order {
		tools[model.ToolName(t.Spec().Name)] = t
	}

	return &Sandbox{cfg: cfg, tools: tools, order: order}
}

// Tools returns the tools to declare to the model, in a stable order.
func (s *Sandbox) Tools() []gollem.Tool {
	return s.order
}

// Execute validates and runs one function call. It never returns an error:
// unknown tools, bad arguments and rejected commands become failed results.
func (s *Sandbox) Execute(ctx context.Context, name string, args map[string]any) model.ToolInvocation {
	inv := model.ToolInvocation{Name: model.ToolName(name), Args: args}

	t, ok := s.tools[model.ToolName(name)]
	if !ok {
		inv.Result = model.ToolFailed(goerr.Wrap(ErrUnknownTool, fmt.Sprintf("no tool named %q", name)))
		return inv
	}
	if err := validateArgs(t.Spec(), args); err != nil {
		inv.Result = model.ToolFailed(err)
		return inv
	}

	tool.Update(ctx, describe(inv.Name, args))

	data, err := t.Run(ctx, args)
	if err != nil {
		logging.From(ctx).Info("tool call failed", "tool", name, "error", err)
		inv.Result = model.ToolFailed(err)
		return inv
	}

	inv.Result = model.ToolOK(data)
	inv.SideEffect = sideEffect(inv.Name, data)
	return inv
}

func sideEffect(name model.ToolName, data map[string]any) model.SideEffect {
	switch name {
	case model.ToolMove:
		return model.SideEffectSpatial
	case model.ToolRespond:
		return model.SideEffectMessage
	case model.ToolShell:
		if created, ok := data["created_files"].([]string); ok && len(created) > 0 {
			return model.SideEffectFileWrite
		}
	}
	return model.SideEffectNone
}

// validateArgs checks required parameters and scalar types against spec.
func validateArgs(spec gollem.ToolSpec, args map[string]any) error {
	for name, p := range spec.Parameters {
		v, present := args[name]
		if !present || v == nil {
			if p.Required {
				return goerr.Wrap(ErrInvalidArgument, "missing required argument",
					goerr.V("tool", spec.Name), goerr.V("argument", name))
			}
			continue
		}

		switch p.Type {
		case gollem.TypeString:
			if _, ok := v.(string); !ok {
				return goerr.Wrap(ErrInvalidArgument, "argument must be a string",
					goerr.V("tool", spec.Name), goerr.V("argument", name))
			}
		case gollem.TypeInteger, gollem.TypeNumber:
			if _, ok := asInt(v); !ok {
				return goerr.Wrap(ErrInvalidArgument, "argument must be a number",
					goerr.V("tool", spec.Name), goerr.V("argument", name))
			}
		}
	}
	return nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	}
	return 0, false
}

func describe(name model.ToolName, args map[string]any) string {
	switch name {
	case model.ToolShell:
		return fmt.Sprintf("$ %v", args["command"])
	case model.ToolWebSearch:
		return fmt.Sprintf("searching: %v", args["query"])
	case model.ToolMove:
		return fmt.Sprintf("going to %v", args["location"])
	case model.ToolRespond:
		return "talking to someone"
	}
	return string(name)
}
