package middleware

import (
	"context"
	"slices"
)

type callerKey struct{}

// Caller identifies who made an authenticated request. Prefix is the first
// characters of the raw key (or the client IP with auth disabled) and keys
// the rate limit.
type Caller struct {
	Name   string
	Prefix string
	Scopes []string
}

func (c Caller) can(scope string) bool { return slices.Contains(c.Scopes, scope) }

// WithCaller stores c in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller Authenticate stored in ctx.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
