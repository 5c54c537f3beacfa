package middleware

import (
	"context"

	pkgAuth "github.com/gikundiro/fanpay-backend/pkg/auth"
)

type contextKey string

const (
	ctxUserID       contextKey = "user_id"
	ctxCapabilities contextKey = "capabilities"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// CapabilitiesFromContext returns the caller's permission set. Requests that
// did not pass Auth get the unauthenticated zero value.
func CapabilitiesFromContext(ctx context.Context) pkgAuth.Capabilities {
	if ctx == nil {
		return pkgAuth.Capabilities{}
	}
	if v, ok := ctx.Value(ctxCapabilities).(pkgAuth.Capabilities); ok {
		return v
	}
	return pkgAuth.Capabilities{}
}

// WithCapabilities injects a verified permission set, and the user id it
// belongs to, into the context.
func WithCapabilities(ctx context.Context, caps pkgAuth.Capabilities) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxCapabilities, caps)
	if caps.Authenticated() {
		ctx = context.WithValue(ctx, ctxUserID, caps.UserID().String())
	}
	return ctx
}
