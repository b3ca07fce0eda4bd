package common

import (
	"context"
	"log/slog"
	"time"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyBillID    contextKey = "bill_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithBillID adds the bill being processed to the context
func WithBillID(ctx context.Context, billID string) context.Context {
	return context.WithValue(ctx, ContextKeyBillID, billID)
}

// BillIDFromContext extracts the bill ID from context
func BillIDFromContext(ctx context.Context) string {
	if billID, ok := ctx.Value(ContextKeyBillID).(string); ok {
		return billID
	}
	return ""
}

// LoggerFrom decorates logger with the request and bill IDs carried by ctx.
func LoggerFrom(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if id := RequestIDFromContext(ctx); id != "" {
		logger = logger.With("req_id", id)
	}
	if id := BillIDFromContext(ctx); id != "" {
		logger = logger.With("bill_id", id)
	}
	return logger
}

// WithTimeout creates a context with the specified timeout
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
