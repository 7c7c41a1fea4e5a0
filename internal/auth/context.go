package auth

import (
	"context"

	"jinn/internal/store"
)

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *store.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (*store.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*store.Principal)
	return p, ok && p != nil
}
