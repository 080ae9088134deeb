package usecase

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/service/llm"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
)

// Reflector synthesizes higher-level memories from the entries that pushed
// the importance tracker over its threshold.
type Reflector struct {
	llm   *llm.Client
	store interfaces.MemoryStore
	memo  *memorizer
}

func NewReflector(client *llm.Client, store interfaces.MemoryStore) *Reflector {
	return &Reflector{
		llm:   client,
		store: store,
		memo:  &memorizer{llm: client, store: store},
	}
}

// Reflect writes one reflection entry per insight the model produced, each
// referencing every id in ids. A model failure yields no entries and no
// error; only storage failures are returned.
func (x *Reflector) Reflect(ctx context.Context, ids []model.MemoryID) ([]*model.MemoryEntry, error) {
	logger := logging.From(ctx)
	if len(ids) == 0 {
		return nil, nil
	}

	refs := slices.Clone(ids)
	slices.Sort(refs)
	refs = slices.Compact(refs)

	entries, err := x.store.GetMany(ctx, refs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load memories for reflection", goerr.V("ids", refs))
	}

	reply, err := x.llm.Complete(ctx, reflectionPrompt, ReflectionInput(entries))
	if err != nil {
		logger.Warn("reflection skipped, model unavailable", "error", err)
		return nil, nil
	}

	insights := ParseInsights(reply)
	if len(insights) == 0 {
		logger.Info("reflection produced no insights")
		return nil, nil
	}

	var reflections []*model.MemoryEntry
	for _, insight := range insights {
		stored, err := x.memo.remember(ctx, model.MemoryKindReflection, insight, refs)
		if err != nil {
			return reflections, err
		}
		reflections = append(reflections, stored)
	}

	logger.Info("reflected",
		"sources", len(refs),
		"insights", len(reflections),
		"depth", reflections[0].Depth,
	)
	return reflections, nil
}

// ReflectionInput lists entries as "[kind] (importance N): content".
func ReflectionInput(entries []*model.MemoryEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] (importance %d): %s", e.Kind, e.Importance, e.Content))
	}
	return "Your recent memories:\n\n" + strings.Join(lines, "\n\n")
}

var bulletPattern = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

// ParseInsights splits a reflection reply into one insight per non-empty
// line with list markers removed.
func ParseInsights(reply string) []string {
	var insights []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(bulletPattern.ReplaceAllString(strings.TrimSpace(line), ""))
		if line != "" {
			insights = append(insights, line)
		}
	}
	return insights
}
