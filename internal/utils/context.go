package utils

import (
	"context"
	"net/http"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
)

// WithRequestID stores the request id on the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestID extracts the request id set by the logging middleware
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(RequestIDKey).(string)
	return id
}
