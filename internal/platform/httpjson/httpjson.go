// Package httpjson renders JSON responses and domain errors over HTTP.
package httpjson

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
)

// errorBody is the serialized error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Write serializes payload as JSON with the given status.
func Write(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// WriteError renders a domain error without leaking internal detail.
//
// The client sees the code and the client-safe message only; causes and
// unknown errors are logged server-side and surfaced as a generic internal
// failure.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		log.Printf("internal error: %v", err)
		Write(w, http.StatusInternalServerError, errorBody{
			Error: errorDetail{Code: string(apperrors.CodeInternal), Message: "internal error"},
		})
		return
	}

	status := domainErr.Code.HTTPStatus()
	message := domainErr.Message
	if status >= http.StatusInternalServerError {
		log.Printf("internal error [%s]: %v", domainErr.Code, errorCause(domainErr))
		message = "internal error"
	} else if domainErr.Cause != nil {
		log.Printf("request rejected [%s]: %v", domainErr.Code, domainErr.Cause)
	}
	Write(w, status, errorBody{
		Error: errorDetail{Code: string(domainErr.Code), Message: message},
	})
}

func errorCause(err *apperrors.Error) error {
	if err.Cause != nil {
		return err.Cause
	}
	return err
}
