package controllers

import (
	"net/http"
	"strings"

	"github.com/gikundiro/fanpay-backend/api/responses"
	"github.com/gikundiro/fanpay-backend/api/validators"
	"github.com/gikundiro/fanpay-backend/internal/audit"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
)

// AdminListAudit pages through audit entries, newest first.
func AdminListAudit(svc AuditLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit log unavailable"))
			return
		}
		limit, err := validators.IntParam(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := r.URL.Query()
		result, err := svc.List(r.Context(), audit.Filter{
			EntityType: validators.Clean(q.Get("entityType"), 64),
			EntityID:   validators.Clean(q.Get("entityId"), 64),
			Action:     validators.Clean(q.Get("action"), 64),
			Limit:      limit,
			Cursor:     strings.TrimSpace(q.Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
