package http

import "context"

type contextKey string

const (
	requestIDContextKey   contextKey = "blogpress/request-id"
	requestInfoContextKey contextKey = "blogpress/request-info"
)

// requestInfo is filled in while a request is dispatched and read back by the access log.
type requestInfo struct {
	route string
}

// RequestIDFromContext extracts the request identifier from the context when available.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(requestIDContextKey).(string); ok {
		return value
	}
	return ""
}

func setRoute(ctx context.Context, route string) {
	if info, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		info.route = route
	}
}
