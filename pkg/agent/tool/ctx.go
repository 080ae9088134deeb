package tool

import "context"

// UpdateFunc receives a short line describing what the agent is doing with a
// tool right now. The brain forwards these as tool_executed events carrying
// a "progress" field.
type UpdateFunc func(ctx context.Context, message string)

type updateKey struct{}

func WithUpdate(ctx context.Context, fn UpdateFunc) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, updateKey{}, fn)
}

// Update reports progress. Without an UpdateFunc in ctx it does nothing.
func Update(ctx context.Context, message string) {
	fn, ok := ctx.Value(updateKey{}).(UpdateFunc)
	if !ok {
		return
	}
	fn(ctx, message)
}
