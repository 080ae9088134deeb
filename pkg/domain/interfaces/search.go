package interfaces

import (
	"context"

	"github.com/secmon-lab/anemone/pkg/domain/model"
)

// WebSearch returns ranked results for a free-text query.
type WebSearch interface {
	Search(ctx context.Context, query string, maxResults int) ([]model.SearchResult, error)
}
