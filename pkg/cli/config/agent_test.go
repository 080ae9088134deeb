package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/anemone/pkg/agent/tool/sandbox"
	"github.com/secmon-lab/anemone/pkg/cli/config"
	"github.com/secmon-lab/anemone/pkg/usecase"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600)).Required()
	return path
}

func TestLoadAgentFile(t *testing.T) {
	t.Run("TOML with per-agent override", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "anemone.toml", `
provider = "openai"
model = "gpt-4.1"
thinking_pace_seconds = 30
reflection_threshold = 40

[agents.coral]
model = "gpt-4.1-mini"
max_tool_rounds = 5
watch_files = false
`)
		file, err := config.LoadAgentFile(path)
		gt.NoError(t, err).Required()

		kelp := file.For("kelp")
		gt.Value(t, kelp.Provider).Equal("openai")
		gt.Value(t, kelp.Model).Equal("gpt-4.1")
		gt.Value(t, kelp.ThinkingPaceSeconds).Equal(30)
		gt.Value(t, kelp.MaxToolRounds).Equal(0)
		gt.Bool(t, kelp.WatchFiles == nil).True()

		coral := file.For("coral")
		gt.Value(t, coral.Provider).Equal("openai")
		gt.Value(t, coral.Model).Equal("gpt-4.1-mini")
		gt.Value(t, coral.ThinkingPaceSeconds).Equal(30)
		gt.Value(t, coral.ReflectionThreshold).Equal(40)
		gt.Value(t, coral.MaxToolRounds).Equal(5)
		if coral.WatchFiles == nil {
			t.Fatal("watch_files override is lost")
		}
		gt.Bool(t, *coral.WatchFiles).False()
	})

	t.Run("YAML", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "config.yaml", `
provider: claude
memory_retrieval_count: 5
recency_decay_rate: 0.99
agents:
  kelp:
    provider: gemini
`)
		file, err := config.LoadAgentFile(path)
		gt.NoError(t, err).Required()

		gt.Value(t, file.For("coral").Provider).Equal("claude")
		gt.Value(t, file.For("coral").RetrievalCount).Equal(5)
		gt.Value(t, file.For("coral").RecencyDecayRate).Equal(0.99)
		gt.Value(t, file.For("kelp").Provider).Equal("gemini")
		gt.Value(t, file.For("kelp").RetrievalCount).Equal(5)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadAgentFile(filepath.Join(t.TempDir(), "nope.toml"))
		gt.Error(t, err).Is(config.ErrConfigNotFound)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "anemone.json", `{}`)
		_, err := config.LoadAgentFile(path)
		gt.Error(t, err).Is(config.ErrUnsupportedFormat)
	})

	t.Run("broken TOML", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "anemone.toml", `provider = `)
		_, err := config.LoadAgentFile(path)
		gt.Error(t, err)
	})

	t.Run("unknown provider in override", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "anemone.toml", `
[agents.coral]
provider = "parrot"
`)
		_, err := config.LoadAgentFile(path)
		gt.Error(t, err).Is(config.ErrUnknownProvider)
	})

	t.Run("negative value", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "anemone.toml", `thinking_pace_seconds = -1`)
		_, err := config.LoadAgentFile(path)
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})

	t.Run("decay rate above one", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "anemone.toml", `recency_decay_rate = 1.5`)
		_, err := config.LoadAgentFile(path)
		gt.Error(t, err).Is(config.ErrInvalidConfig)
	})
}

func TestAgentSettings_BrainConfig(t *testing.T) {
	t.Run("zero settings keep defaults", func(t *testing.T) {
		cfg := config.AgentSettings{}.BrainConfig("coral", "/boxes/coral_box")
		want := usecase.DefaultBrainConfig()
		want.AgentID = "coral"
		want.BoxDir = "/boxes/coral_box"
		gt.Value(t, cfg).Equal(want)
	})

	t.Run("settings override defaults", func(t *testing.T) {
		watch := false
		s := config.AgentSettings{
			ThinkingPaceSeconds:  10,
			MaxThoughtsInContext: 8,
			MaxToolRounds:        4,
			ReflectionThreshold:  30,
			PlanInterval:         5,
			RetrievalCount:       2,
			RecencyDecayRate:     0.9,
			ReplyTimeoutSeconds:  20,
			ShellTimeoutSeconds:  3,
			Blocklist:            []string{"make"},
			WatchFiles:           &watch,
		}
		cfg := s.BrainConfig("coral", "/boxes/coral_box")
		gt.Value(t, cfg.Pace).Equal(10 * time.Second)
		gt.Value(t, cfg.HistoryWindow).Equal(8)
		gt.Value(t, cfg.MaxToolRounds).Equal(4)
		gt.Value(t, cfg.ReflectionThreshold).Equal(30)
		gt.Value(t, cfg.PlanInterval).Equal(5)
		gt.Value(t, cfg.RetrievalCount).Equal(2)
		gt.Value(t, cfg.DecayRate).Equal(0.9)
		gt.Value(t, cfg.ReplyTimeout).Equal(20 * time.Second)
		gt.Value(t, cfg.ShellTimeout).Equal(3 * time.Second)
		gt.Bool(t, cfg.WatchFiles).False()

		// extra entries never replace the built-in blocklist
		gt.Array(t, cfg.Blocklist).Length(len(sandbox.DefaultBlocklist) + 1)
		gt.Array(t, cfg.Blocklist).Has("make")
		gt.Array(t, cfg.Blocklist).Has(sandbox.DefaultBlocklist[0])
	})
}

func TestAgent_Configure(t *testing.T) {
	t.Run("finds the default file in the root", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "config.yaml", "model: gpt-4.1\n")

		file, err := config.NewAgentForTest(root, "").Configure()
		gt.NoError(t, err).Required()
		gt.Value(t, file.For("coral").Model).Equal("gpt-4.1")
	})

	t.Run("TOML wins over YAML", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "config.yaml", "model: from-yaml\n")
		writeFile(t, root, "anemone.toml", `model = "from-toml"`)

		file, err := config.NewAgentForTest(root, "").Configure()
		gt.NoError(t, err).Required()
		gt.Value(t, file.For("coral").Model).Equal("from-toml")
	})

	t.Run("no file is fine", func(t *testing.T) {
		file, err := config.NewAgentForTest(t.TempDir(), "").Configure()
		gt.NoError(t, err).Required()
		gt.Value(t, file.For("coral")).Equal(config.AgentSettings{})
	})

	t.Run("explicit file must exist", func(t *testing.T) {
		_, err := config.NewAgentForTest(t.TempDir(), "/nonexistent/anemone.toml").Configure()
		gt.Error(t, err).Is(config.ErrConfigNotFound)
	})

	t.Run("root defaults to the working directory", func(t *testing.T) {
		gt.Value(t, config.NewAgentForTest("", "").Root()).Equal(".")
	})
}

func TestAgentFile_ForBox(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "config.toml", `
model = "gpt-4.1"
thinking_pace_seconds = 30

[agents.coral]
thinking_pace_seconds = 20
`)
	file, err := config.LoadAgentFile(path)
	gt.NoError(t, err).Required()

	t.Run("box file overrides the root file", func(t *testing.T) {
		box := filepath.Join(root, "coral_box")
		gt.NoError(t, os.MkdirAll(box, 0o750)).Required()
		writeFile(t, box, config.BoxFileName, `
provider = "claude"
thinking_pace_seconds = 10
`)

		s, err := file.ForBox("coral", box)
		gt.NoError(t, err).Required()
		gt.Value(t, s.Provider).Equal("claude")
		gt.Value(t, s.Model).Equal("gpt-4.1")
		gt.Value(t, s.ThinkingPaceSeconds).Equal(10)
	})

	t.Run("no box file", func(t *testing.T) {
		box := filepath.Join(root, "kelp_box")
		gt.NoError(t, os.MkdirAll(box, 0o750)).Required()

		s, err := file.ForBox("kelp", box)
		gt.NoError(t, err).Required()
		gt.Value(t, s.ThinkingPaceSeconds).Equal(30)
	})

	t.Run("broken box file", func(t *testing.T) {
		box := filepath.Join(root, "urchin_box")
		gt.NoError(t, os.MkdirAll(box, 0o750)).Required()
		writeFile(t, box, config.BoxFileName, `provider = "parrot"`)

		_, err := file.ForBox("urchin", box)
		gt.Error(t, err).Is(config.ErrUnknownProvider)
	})
}
