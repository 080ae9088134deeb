package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/service/llm"
)

// memorizer scores, embeds and appends one memory entry. Scoring and
// embedding degrade to defaults; only the append can fail.
type memorizer struct {
	llm   *llm.Client
	store interfaces.MemoryStore
}

func (x *memorizer) remember(ctx context.Context, kind model.MemoryKind, content string, refs []model.MemoryID) (*model.MemoryEntry, error) {
	entry := &model.MemoryEntry{
		Kind:       kind,
		Content:    content,
		Importance: x.llm.ScoreImportance(ctx, content),
		References: refs,
		Embedding:  x.llm.EmbedOrNil(ctx, content),
	}

	stored, err := x.store.Append(ctx, entry)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to remember", goerr.V("kind", kind))
	}
	return stored, nil
}
