// Package requestctx carries per-request values through context.
package requestctx

import "context"

// identityContextKey is the context key for the authenticated wallet identity.
type identityContextKey struct{}

// WithIdentity stores a wallet identity in context.
func WithIdentity(ctx context.Context, identity string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the wallet identity stored in context.
func IdentityFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(identityContextKey{}).(string)
	return value
}
