package sandbox

import (
	"context"
	"strings"

	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/anemone/pkg/domain/model"
)

type moveTool struct {
	room Room
}

func (t *moveTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        string(model.ToolMove),
		Description: "Walk to a place in your room: " + strings.Join(model.Locations(), ", ") + ".",
		Parameters: map[string]*gollem.Parameter{
			"location": {
				Type:        gollem.TypeString,
				Description: "Name of the place to go to",
				Required:    true,
			},
		},
	}
}

func (t *moveTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	location, _ := args["location"].(string)
	pos, err := model.LookupLocation(location)
	if err != nil {
		return nil, err
	}
	if t.room != nil {
		t.room.MoveTo(pos)
	}
	return map[string]any{
		"location": strings.ToLower(strings.TrimSpace(location)),
		"x":        pos.X,
		"y":        pos.Y,
	}, nil
}
