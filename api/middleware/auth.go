package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gikundiro/fanpay-backend/api/responses"
	"github.com/gikundiro/fanpay-backend/pkg/auth"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
)

// AccessSessionChecker reports whether the console session named by a
// token's jti is still live. Logging out of the console revokes it.
type AccessSessionChecker interface {
	HasAccessSession(ctx context.Context, accessID string) (bool, error)
}

type tokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// Auth admits requests carrying a valid bearer token for a live session and
// stores the caller's capabilities on the context. A nil sessions checker
// skips the revocation lookup.
func Auth(tokens tokenVerifier, sessions AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := authenticate(r, tokens, sessions)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := WithCapabilities(r.Context(), auth.CapabilitiesFromClaims(claims))
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, tokens tokenVerifier, sessions AccessSessionChecker) (*auth.Claims, error) {
	raw, ok := bearer(r.Header.Get("Authorization"))
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	claims, err := tokens.Verify(raw)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		return claims, nil
	}
	live, err := sessions.HasAccessSession(r.Context(), claims.ID)
	switch {
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
	case !live:
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
	}
	return claims, nil
}

// bearer accepts "Bearer <token>" in any case, or a bare token.
func bearer(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if scheme, rest, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, "bearer") {
		header = strings.TrimSpace(rest)
	}
	return header, header != ""
}
