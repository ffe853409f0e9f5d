package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds Redis and Mongo calls made while serving a request.
	DefaultTimeout = 10 * time.Second

	// ShortTimeout is for best-effort writes such as transcript archiving.
	ShortTimeout = 3 * time.Second
)

// WithTimeout creates a context with default timeout
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithShortTimeout creates a context with short timeout for quick operations
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

// Detached returns a context that keeps the parent's values but outlives its
// cancellation, bounded by d. Used for work that must finish after the client
// has gone, such as archiving an answer that was already sent.
func Detached(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), d)
}
