package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/anemone/pkg/domain/model"
)

const noReplyText = "(They didn't say anything else. You can get back to what you were doing.)"

// ReplyText is what respond hands back to the model when someone answered.
func ReplyText(reply string) string {
	return fmt.Sprintf("They say: %q\n(Use respond again to reply, or go back to what you were doing.)", reply)
}

type respondTool struct {
	listener Listener
}

func (t *respondTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        string(model.ToolRespond),
		Description: "Say something out loud to whoever is outside your room, then listen briefly for an answer.",
		Parameters: map[string]*gollem.Parameter{
			"message": {
				Type:        gollem.TypeString,
				Description: "What to say",
				Required:    true,
			},
		},
	}
}

func (t *respondTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	message, _ := args["message"].(string)
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, goerr.Wrap(ErrInvalidArgument, "message must not be empty")
	}
	if t.listener == nil {
		return map[string]any{"message": message, "replied": false, "reply": noReplyText}, nil
	}

	reply, ok := t.listener.AwaitReply(ctx, message)
	if !ok {
		return map[string]any{"message": message, "replied": false, "reply": noReplyText}, nil
	}
	return map[string]any{"message": message, "replied": true, "reply": ReplyText(reply)}, nil
}
