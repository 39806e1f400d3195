// Package identity resolves the principal acting on a request.
package identity

import "context"

// Principal is the actor behind a request.
type Principal struct {
	ID            string
	Authenticated bool
}

func Anonymous() Principal {
	return Principal{}
}

func User(id string) Principal {
	return Principal{ID: id, Authenticated: true}
}

type principalContextKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalContextKey{}, p)
}

// FromContext returns the principal stored in ctx, or an anonymous one.
func FromContext(ctx context.Context) Principal {
	if ctx == nil {
		return Anonymous()
	}
	p, _ := ctx.Value(principalContextKey{}).(Principal)
	return p
}
