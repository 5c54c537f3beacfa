// Package responses writes the JSON bodies handlers return:
// {"data": ...} on success and {"error": {code, message, details}} on failure.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
)

// retryAfterSeconds is sent with 503s that do not already carry Retry-After.
const retryAfterSeconds = "5"

type Envelope struct {
	Data any `json:"data"`
}

type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type Failure struct {
	Error Problem `json:"error"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Envelope{Data: data})
}

// WriteError renders err under its code's status. Uncoded errors are
// reported as CodeInternal and their text stays in the log. Client errors
// log at warn, server errors at error; a nil logger logs nothing.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("error without cause")
	}
	coded := pkgerrors.As(err)
	if coded == nil {
		coded = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	m := pkgerrors.MetadataFor(coded.Code())

	if logg != nil {
		logError(ctx, logg, m.HTTPStatus, coded, err)
	}
	if m.HTTPStatus == http.StatusServiceUnavailable && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeJSON(w, m.HTTPStatus, Failure{Error: problemFor(coded, m)})
}

func problemFor(e *pkgerrors.Error, m pkgerrors.Metadata) Problem {
	p := Problem{Code: string(e.Code()), Message: m.PublicMessage}
	if msg := e.Message(); m.ExposeMessage && msg != "" {
		p.Message = msg
	}
	if m.DetailsAllowed {
		p.Details = e.Details()
	}
	return p
}

func logError(ctx context.Context, logg *logger.Logger, status int, coded *pkgerrors.Error, err error) {
	fields := pkgerrors.Dump(err).Fields()
	fields["status"] = status
	if details, ok := coded.Details().(map[string]any); ok {
		if step, ok := details["step"]; ok {
			fields["step"] = step
		}
	}
	ctx = logg.WithFields(ctx, fields)
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request failed", err)
		return
	}
	logg.Warn(ctx, "request rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the status line is out; an encode failure has no one left to tell
	_ = json.NewEncoder(w).Encode(payload)
}
