package middleware

import (
	"net/http"

	"github.com/gikundiro/fanpay-backend/api/responses"
	"github.com/gikundiro/fanpay-backend/pkg/enums"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
)

// RequirePermission rejects callers whose token does not grant perm.
func RequirePermission(perm enums.Permission, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caps := CapabilitiesFromContext(r.Context())
			if !caps.Authenticated() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if !caps.Has(perm) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "permission required").
					WithDetails(map[string]any{"permission": perm.String()}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
