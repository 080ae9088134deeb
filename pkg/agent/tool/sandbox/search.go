package sandbox

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/domain/model"
	"github.com/secmon-lab/anemone/pkg/service/websearch"
)

type webSearchTool struct {
	search interfaces.WebSearch
}

func (t *webSearchTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        string(model.ToolWebSearch),
		Description: "Search the web. Returns ranked results with a title, a short snippet and a URL.",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "What to search for",
				Required:    true,
			},
			"max_results": {
				Type:        gollem.TypeInteger,
				Description: "How many results to return (default 5, at most 10)",
			},
		},
	}
}

func (t *webSearchTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	if t.search == nil {
		return nil, goerr.New("web search is not available")
	}

	query, _ := args["query"].(string)
	if query == "" {
		return nil, goerr.Wrap(ErrInvalidArgument, "query must not be empty")
	}
	n, _ := asInt(args["max_results"])
	n = websearch.ClampMaxResults(n)

	results, err := t.search.Search(ctx, query, n)
	if err != nil {
		return nil, goerr.Wrap(err, "web search failed", goerr.V("query", query))
	}

	items := make([]map[string]any, 0, len(results))
	for _, r := range results {
		items = append(items, map[string]any{
			"title":   r.Title,
			"snippet": r.Snippet,
			"url":     r.URL,
		})
	}
	return map[string]any{"results": items, "count": len(items)}, nil
}
