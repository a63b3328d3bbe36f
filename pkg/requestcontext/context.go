// Package requestcontext provides transport-independent context accessors for
// request-scoped values.
//
// Values are typically set by the admin HTTP middleware or by the daemon's
// background workers and consumed by services. Keeping this package free of
// net/http lets the coordinator and its subsystems import only what they need.
//
// Usage in services:
//
//	now := requestcontext.Now(ctx)
//	requestID := requestcontext.RequestID(ctx)
//
// Usage in tests:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	peerAddressKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeyPeerAddress = peerAddressKey{}
)

// RequestID retrieves the correlation id from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a correlation id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// PeerAddress retrieves the remote network address associated with the request.
func PeerAddress(ctx context.Context) string {
	if addr, ok := ctx.Value(ContextKeyPeerAddress).(string); ok {
		return addr
	}
	return ""
}

// WithPeerAddress injects the remote network address into the context.
func WithPeerAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, ContextKeyPeerAddress, addr)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, tests without a fixed clock).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that need deterministic expiry checks
//   - Workers that need consistent time within a sweep
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
