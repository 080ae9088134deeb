package model

// ToolName is the closed set of tools an agent can call.
type ToolName string

const (
	ToolShell     ToolName = "shell"
	ToolWebSearch ToolName = "web_search"
	ToolMove      ToolName = "move"
	ToolRespond   ToolName = "respond"
)

// ToolNames lists every tool in dispatch order.
var ToolNames = []ToolName{ToolShell, ToolWebSearch, ToolMove, ToolRespond}

// SideEffect describes what a tool changed outside the conversation.
type SideEffect string

const (
	SideEffectNone      SideEffect = ""
	SideEffectFileWrite SideEffect = "file_write"
	SideEffectSpatial   SideEffect = "spatial"
	SideEffectMessage   SideEffect = "message"
)

// ToolInvocation records one validated call and its outcome.
type ToolInvocation struct {
	Name       ToolName
	Args       map[string]any
	Result     ToolResult
	SideEffect SideEffect
}

// ToolResult is returned to the model. A failed or rejected invocation is a
// result with OK=false, never a fatal error.
type ToolResult struct {
	OK    bool           `json:"ok"`
	Error string         `json:"error,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Map renders the result as a function response payload.
func (r ToolResult) Map() map[string]any {
	out := map[string]any{"ok": r.OK}
	if r.Error != "" {
		out["error"] = r.Error
	}
	for k, v := range r.Data {
		out[k] = v
	}
	return out
}

func ToolOK(data map[string]any) ToolResult {
	return ToolResult{OK: true, Data: data}
}

func ToolFailed(err error) ToolResult {
	return ToolResult{OK: false, Error: err.Error()}
}

// SearchResult is one ranked web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}
