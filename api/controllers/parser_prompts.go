package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/gikundiro/fanpay-backend/api/middleware"
	"github.com/gikundiro/fanpay-backend/api/responses"
	"github.com/gikundiro/fanpay-backend/api/validators"
	"github.com/gikundiro/fanpay-backend/internal/parser"
	pkgerrors "github.com/gikundiro/fanpay-backend/pkg/errors"
	"github.com/gikundiro/fanpay-backend/pkg/logger"
)

type createPromptRequest struct {
	Label   string `json:"label" validate:"required,max=120"`
	Body    string `json:"body" validate:"required,max=20000"`
	Version *int   `json:"version,omitempty" validate:"omitempty,min=1"`
}

type testPromptRequest struct {
	Text       string  `json:"text" validate:"required,max=2000"`
	PromptBody string  `json:"promptBody,omitempty" validate:"max=20000"`
	PromptID   *string `json:"promptId,omitempty" validate:"omitempty,uuid"`
}

func AdminListPrompts(svc PromptService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "prompt service unavailable"))
			return
		}
		prompts, err := svc.List(r.Context(), middleware.CapabilitiesFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": prompts})
	}
}

// AdminActivePrompt returns the prompt the classifier currently uses. A null
// payload means the built-in default is in effect.
func AdminActivePrompt(svc PromptService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "prompt service unavailable"))
			return
		}
		prompt, err := svc.Active(r.Context(), middleware.CapabilitiesFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, prompt)
	}
}

func AdminCreatePrompt(svc PromptService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "prompt service unavailable"))
			return
		}
		var req createPromptRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		prompt, err := svc.Create(r.Context(), middleware.CapabilitiesFromContext(r.Context()), parser.CreatePromptInput{
			Label:   validators.Clean(req.Label, 120),
			Body:    req.Body,
			Version: req.Version,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, prompt)
	}
}

func AdminActivatePrompt(svc PromptService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "prompt service unavailable"))
			return
		}
		promptID, err := uuidParam(r, "promptId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		prompt, err := svc.Activate(r.Context(), middleware.CapabilitiesFromContext(r.Context()), promptID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, prompt)
	}
}

// AdminTestPrompt parses a sample text with a stored or draft prompt without
// persisting anything.
func AdminTestPrompt(svc PromptService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "prompt service unavailable"))
			return
		}
		var req testPromptRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		in := parser.TestInput{Text: req.Text, PromptBody: req.PromptBody}
		if req.PromptID != nil {
			id, err := uuid.Parse(*req.PromptID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid promptId"))
				return
			}
			in.PromptID = &id
		}
		result, err := svc.Test(r.Context(), middleware.CapabilitiesFromContext(r.Context()), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
