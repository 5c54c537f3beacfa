package middleware

import (
	"net/http"
	"strings"

	"github.com/gikundiro/fanpay-backend/api/responses"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
	"github.com/gikundiro/fanpay-backend/pkg/security"
)

const webhookTokenHeader = "X-Sms-Webhook-Token"

// WebhookToken guards the modem webhook with a shared secret. An empty
// secret disables the check.
func WebhookToken(secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	secret = strings.TrimSpace(secret)
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(webhookTokenHeader))
			if !security.SecretsEqual(provided, secret) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
