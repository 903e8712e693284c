package kit

import "context"

type contextKey string

const (
	TransportKey contextKey = "kit_transport" // "http", "mcp", "cli"
	RequestIDKey contextKey = "kit_request_id"
	RunIDKey     contextKey = "kit_run_id"
	SlotIDKey    contextKey = "kit_slot_id"
)

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "cli"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

// WithRunID tags ctx with the pipeline run it belongs to.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}
func GetRunID(ctx context.Context) string {
	v, _ := ctx.Value(RunIDKey).(string)
	return v
}

func WithSlotID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SlotIDKey, id)
}
func GetSlotID(ctx context.Context) string {
	v, _ := ctx.Value(SlotIDKey).(string)
	return v
}
