package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/anemone/pkg/agent/tool/sandbox"
	"github.com/secmon-lab/anemone/pkg/usecase"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// DefaultFileNames are looked up in the box root when --config is not given.
var DefaultFileNames = []string{"anemone.toml", "config.toml", "anemone.yaml", "config.yaml", "config.yml"}

// AgentSettings is the per-agent part of the settings file. Zero values
// keep the loop defaults.
type AgentSettings struct {
	Provider           string `toml:"provider" yaml:"provider"`
	Model              string `toml:"model" yaml:"model"`
	BaseURL            string `toml:"base_url" yaml:"base_url"`
	EmbeddingDimension int    `toml:"embedding_dimension" yaml:"embedding_dimension"`

	ThinkingPaceSeconds  int      `toml:"thinking_pace_seconds" yaml:"thinking_pace_seconds"`
	MaxThoughtsInContext int      `toml:"max_thoughts_in_context" yaml:"max_thoughts_in_context"`
	MaxToolRounds        int      `toml:"max_tool_rounds" yaml:"max_tool_rounds"`
	ReflectionThreshold  int      `toml:"reflection_threshold" yaml:"reflection_threshold"`
	PlanInterval         int      `toml:"plan_interval" yaml:"plan_interval"`
	RetrievalCount       int      `toml:"memory_retrieval_count" yaml:"memory_retrieval_count"`
	RecencyDecayRate     float64  `toml:"recency_decay_rate" yaml:"recency_decay_rate"`
	ReplyTimeoutSeconds  int      `toml:"reply_timeout_seconds" yaml:"reply_timeout_seconds"`
	ShellTimeoutSeconds  int      `toml:"shell_timeout_seconds" yaml:"shell_timeout_seconds"`
	Blocklist            []string `toml:"blocklist" yaml:"blocklist"` // added to the built-in blocklist
	WatchFiles           *bool    `toml:"watch_files" yaml:"watch_files"`
}

// AgentFile is the settings file of a box root. Top level settings apply to
// every agent and [agents.<id>] tables override them.
type AgentFile struct {
	AgentSettings `yaml:",inline"`
	Agents        map[string]AgentSettings `toml:"agents" yaml:"agents"`
}

// Validate checks value ranges of s.
func (s *AgentSettings) Validate() error {
	if s.Provider != "" {
		switch s.Provider {
		case ProviderOpenAI, ProviderClaude, ProviderGemini:
		default:
			return goerr.Wrap(ErrUnknownProvider, "unsupported provider", goerr.V(ProviderKey, s.Provider))
		}
	}

	ints := map[string]int{
		"embedding_dimension":     s.EmbeddingDimension,
		"thinking_pace_seconds":   s.ThinkingPaceSeconds,
		"max_thoughts_in_context": s.MaxThoughtsInContext,
		"max_tool_rounds":         s.MaxToolRounds,
		"reflection_threshold":    s.ReflectionThreshold,
		"plan_interval":           s.PlanInterval,
		"memory_retrieval_count":  s.RetrievalCount,
		"reply_timeout_seconds":   s.ReplyTimeoutSeconds,
		"shell_timeout_seconds":   s.ShellTimeoutSeconds,
	}
	for field, v := range ints {
		if v < 0 {
			return goerr.Wrap(ErrInvalidConfig, "value must not be negative", goerr.V(FieldKey, field), goerr.V("value", v))
		}
	}

	if s.RecencyDecayRate < 0 || s.RecencyDecayRate > 1 {
		return goerr.Wrap(ErrInvalidConfig, "recency_decay_rate must be in (0, 1]", goerr.V(FieldKey, "recency_decay_rate"), goerr.V("value", s.RecencyDecayRate))
	}
	return nil
}

// Validate checks the shared settings and every override.
func (f *AgentFile) Validate() error {
	if err := f.AgentSettings.Validate(); err != nil {
		return err
	}
	for id, s := range f.Agents {
		if err := s.Validate(); err != nil {
			return goerr.Wrap(err, "invalid agent settings", goerr.V(AgentIDKey, id))
		}
	}
	return nil
}

// For returns the settings of agentID, the shared settings overlaid by the
// agent's own table.
func (f *AgentFile) For(agentID string) AgentSettings {
	if f == nil {
		return AgentSettings{}
	}
	merged := f.AgentSettings
	if o, ok := f.Agents[agentID]; ok {
		merged = merged.overlay(o)
	}
	return merged
}

func (s AgentSettings) overlay(o AgentSettings) AgentSettings {
	str := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	num := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}

	str(&s.Provider, o.Provider)
	str(&s.Model, o.Model)
	str(&s.BaseURL, o.BaseURL)
	num(&s.EmbeddingDimension, o.EmbeddingDimension)
	num(&s.ThinkingPaceSeconds, o.ThinkingPaceSeconds)
	num(&s.MaxThoughtsInContext, o.MaxThoughtsInContext)
	num(&s.MaxToolRounds, o.MaxToolRounds)
	num(&s.ReflectionThreshold, o.ReflectionThreshold)
	num(&s.PlanInterval, o.PlanInterval)
	num(&s.RetrievalCount, o.RetrievalCount)
	num(&s.ReplyTimeoutSeconds, o.ReplyTimeoutSeconds)
	num(&s.ShellTimeoutSeconds, o.ShellTimeoutSeconds)
	if o.RecencyDecayRate > 0 {
		s.RecencyDecayRate = o.RecencyDecayRate
	}
	if len(o.Blocklist) > 0 {
		s.Blocklist = o.Blocklist
	}
	if o.WatchFiles != nil {
		s.WatchFiles = o.WatchFiles
	}
	return s
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// BrainConfig maps s onto the loop settings of one agent.
func (s AgentSettings) BrainConfig(agentID, boxDir string) usecase.BrainConfig {
	cfg := usecase.DefaultBrainConfig()
	cfg.AgentID = agentID
	cfg.BoxDir = boxDir

	if s.ThinkingPaceSeconds > 0 {
		cfg.Pace = seconds(s.ThinkingPaceSeconds)
	}
	if s.MaxThoughtsInContext > 0 {
		cfg.HistoryWindow = s.MaxThoughtsInContext
	}
	if s.MaxToolRounds > 0 {
		cfg.MaxToolRounds = s.MaxToolRounds
	}
	if s.ReflectionThreshold > 0 {
		cfg.ReflectionThreshold = s.ReflectionThreshold
	}
	if s.PlanInterval > 0 {
		cfg.PlanInterval = s.PlanInterval
	}
	if s.RetrievalCount > 0 {
		cfg.RetrievalCount = s.RetrievalCount
	}
	if s.RecencyDecayRate > 0 {
		cfg.DecayRate = s.RecencyDecayRate
	}
	if s.ReplyTimeoutSeconds > 0 {
		cfg.ReplyTimeout = seconds(s.ReplyTimeoutSeconds)
	}
	if s.ShellTimeoutSeconds > 0 {
		cfg.ShellTimeout = seconds(s.ShellTimeoutSeconds)
	}
	if len(s.Blocklist) > 0 {
		cfg.Blocklist = append(slices.Clone(sandbox.DefaultBlocklist), s.Blocklist...)
	}
	if s.WatchFiles != nil {
		cfg.WatchFiles = *s.WatchFiles
	}
	return cfg
}

// BoxFileName is the optional settings file inside an agent box.
const BoxFileName = "anemone.toml"

// ForBox returns the settings of the agent living in boxDir. The box's own
// anemone.toml, if present, overrides the root settings file.
func (f *AgentFile) ForBox(agentID, boxDir string) (AgentSettings, error) {
	merged := f.For(agentID)

	path := filepath.Join(boxDir, BoxFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return merged, nil
		}
		return merged, goerr.Wrap(err, "failed to stat box settings", goerr.V(ConfigPathKey, path))
	}

	box, err := LoadAgentFile(path)
	if err != nil {
		return merged, err
	}
	return merged.overlay(box.AgentSettings), nil
}

// LoadAgentFile reads a TOML or YAML settings file, chosen by extension.
func LoadAgentFile(path string) (*AgentFile, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "settings file not found", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read settings file", goerr.V(ConfigPathKey, path))
	}

	var file AgentFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, goerr.Wrap(err, "failed to parse TOML settings", goerr.V(ConfigPathKey, path))
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, goerr.Wrap(err, "failed to parse YAML settings", goerr.V(ConfigPathKey, path))
		}
	default:
		return nil, goerr.Wrap(ErrUnsupportedFormat, "settings file must be .toml or .yaml", goerr.V(ConfigPathKey, path))
	}

	if err := file.Validate(); err != nil {
		return nil, goerr.Wrap(err, "settings validation failed", goerr.V(ConfigPathKey, path))
	}
	return &file, nil
}

// Agent holds the flags locating the box root and its settings file.
type Agent struct {
	root       string
	configPath string
}

func (x *Agent) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "root",
			Aliases:     []string{"r"},
			Usage:       "Directory holding the *_box agent directories",
			Category:    "Agent",
			Value:       ".",
			Sources:     cli.EnvVars("ANEMONE_ROOT"),
			Destination: &x.root,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Agent settings file (.toml or .yaml). Defaults to anemone.toml or config.yaml in the root",
			Category:    "Agent",
			Sources:     cli.EnvVars("ANEMONE_CONFIG"),
			Destination: &x.configPath,
		},
	}
}

func (x Agent) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("root", x.root),
		slog.String("config", x.configPath),
	)
}

// Root returns the box root directory.
func (x *Agent) Root() string {
	if x.root == "" {
		return "."
	}
	return x.root
}

// Configure loads the settings file. An explicit --config must exist; the
// default file names are optional.
func (x *Agent) Configure() (*AgentFile, error) {
	if x.configPath != "" {
		return LoadAgentFile(x.configPath)
	}

	for _, name := range DefaultFileNames {
		path := filepath.Join(x.Root(), name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadAgentFile(path)
	}
	return &AgentFile{}, nil
}
