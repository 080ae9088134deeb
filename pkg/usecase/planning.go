package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/service/inbox"
	"github.com/secmon-lab/anemone/pkg/service/llm"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
	"github.com/secmon-lab/anemone/pkg/utils/safe"
	"github.com/secmon-lab/anemone/pkg/utils/strutil"
)

const (
	ProjectsFile = "projects.md"
	LogsDir      = "logs"

	planningProjectsLimit = 2000
	planningFileLimit     = 30
	planningMemoryCount   = 10
	focusLimit            = 300
)

// Plan is the outcome of one planning step.
type Plan struct {
	Projects string
	LogEntry string
	Focus    string
	Entry    *model.MemoryEntry
}

// Planner rewrites projects.md and the daily log from the agent's recent
// memories.
type Planner struct {
	llm    *llm.Client
	store  interfaces.MemoryStore
	memo   *memorizer
	boxDir string
	clock  func() time.Time
}

func NewPlanner(client *llm.Client, store interfaces.MemoryStore, boxDir string, clock func() time.Time) *Planner {
	if clock == nil {
		clock = time.Now
	}
	return &Planner{
		llm:    client,
		store:  store,
		memo:   &memorizer{llm: client, store: store},
		boxDir: boxDir,
		clock:  clock,
	}
}

// Plan returns nil without error when the model is unavailable or said
// nothing. Box write failures are logged; only memory storage failures are
// returned.
func (x *Planner) Plan(ctx context.Context) (*Plan, error) {
	logger := logging.From(ctx)

	recent, err := x.store.Recent(ctx, planningMemoryCount)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load recent memories for planning")
	}

	input := x.input(recent)
	reply, err := x.llm.Complete(ctx, planningPrompt, input)
	if err != nil {
		logger.Warn("planning skipped, model unavailable", "error", err)
		return nil, nil
	}
	if reply == "" {
		return nil, nil
	}

	body, entry := SplitPlan(reply)
	plan := &Plan{
		Projects: body,
		LogEntry: entry,
		Focus:    ParseFocus(body),
	}

	if err := safe.WriteFile(filepath.Join(x.boxDir, ProjectsFile), []byte(body), 0o600); err != nil {
		logger.Error("failed to write projects", "error", err)
	}
	if entry != "" {
		if err := x.appendLog(entry); err != nil {
			logger.Error("failed to write daily log", "error", err)
		}
	}

	refs := make([]model.MemoryID, 0, len(recent))
	for _, e := range recent {
		refs = append(refs, e.ID)
	}
	if len(refs) > 0 {
		content := "Planned: " + firstNonEmpty(entry, plan.Focus, strutil.Truncate(body, focusLimit))
		stored, err := x.memo.remember(ctx, model.MemoryKindPlanning, content, refs)
		if err != nil {
			return plan, err
		}
		plan.Entry = stored
	}

	return plan, nil
}

func (x *Planner) input(recent []*model.MemoryEntry) string {
	projects, ok := readProjects(x.boxDir)
	if !ok {
		projects = "(no projects.md yet)"
	}
	projects = strutil.Truncate(projects, planningProjectsLimit)

	files := "(empty)"
	if names, err := inbox.NewScanner(x.boxDir).List(); err == nil && len(names) > 0 {
		files = strings.Join(names[:min(len(names), planningFileLimit)], "\n")
	}

	memories := "(none yet)"
	if len(recent) > 0 {
		lines := make([]string, 0, len(recent))
		for _, e := range recent {
			lines = append(lines, "- "+e.Content)
		}
		memories = strings.Join(lines, "\n")
	}

	return fmt.Sprintf("Time to plan. Here's your current state:\n\n## Current projects.md:\n%s\n\n## Files in your world:\n%s\n\n## Recent thoughts:\n%s",
		projects, files, memories)
}

func (x *Planner) appendLog(entry string) error {
	now := x.clock().Local()
	dir := filepath.Join(x.boxDir, LogsDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return goerr.Wrap(err, "failed to create log directory", goerr.V("dir", dir))
	}
	path := filepath.Join(dir, now.Format("2006-01-02")+".md")
	line := fmt.Sprintf("\n## %s\n%s\n", now.Format("03:04 PM"), entry)
	return safe.AppendFile(path, []byte(line), 0o600)
}

// SplitPlan separates the projects document from the log entry that follows
// "LOG:". Without a marker the whole reply is the document.
func SplitPlan(reply string) (body, logEntry string) {
	before, after, found := strings.Cut(reply, "LOG:")
	if !found {
		return reply, ""
	}
	return strings.TrimSpace(before), strings.TrimSpace(after)
}

// ParseFocus reads the "# Current focus" section of a projects document and
// returns it as one line of at most 300 characters.
func ParseFocus(projects string) string {
	var parts []string
	inFocus := false
	for _, line := range strings.Split(projects, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "# current focus") {
			inFocus = true
			continue
		}
		if !inFocus {
			continue
		}
		if strings.HasPrefix(trimmed, "# ") {
			break
		}
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strutil.Truncate(strings.Join(parts, " "), focusLimit)
}

// LoadFocus reads the focus from the box's projects.md, or "" when absent.
func LoadFocus(boxDir string) string {
	projects, ok := readProjects(boxDir)
	if !ok {
		return ""
	}
	return ParseFocus(projects)
}

func readProjects(boxDir string) (string, bool) {
	// #nosec G304 - fixed file name inside the agent's box
	data, err := os.ReadFile(filepath.Join(boxDir, ProjectsFile))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.Default().Warn("failed to read projects", "box", boxDir, "error", err)
		}
		return "", false
	}
	return string(data), true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
