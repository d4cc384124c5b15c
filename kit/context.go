package kit

import "context"

type contextKey string

// Context keys carried across transports.
const (
	TransportKey   contextKey = "kit_transport" // "http" or "mcp"
	TraceIDKey     contextKey = "kit_trace_id"
	RemoteAddrKey  contextKey = "kit_remote_addr"
	WorkspaceIDKey contextKey = "kit_workspace_id"
)

func value(ctx context.Context, key contextKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}

// GetTransport defaults to "http".
func GetTransport(ctx context.Context) string {
	if v := value(ctx, TransportKey); v != "" {
		return v
	}
	return "http"
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func GetTraceID(ctx context.Context) string { return value(ctx, TraceIDKey) }

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}

func GetRemoteAddr(ctx context.Context) string { return value(ctx, RemoteAddrKey) }

// WithWorkspaceID tags ctx with the workspace a run belongs to.
func WithWorkspaceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, WorkspaceIDKey, id)
}

func GetWorkspaceID(ctx context.Context) string { return value(ctx, WorkspaceIDKey) }
