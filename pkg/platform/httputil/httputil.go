// Package httputil holds the JSON envelope helpers shared by HTTP handlers.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "trustmesh/pkg/domain-errors"
)

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError translates a domain error into a status and an
// {"error", "error_description", "details"} envelope. Internal errors never
// expose their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	if code == "" {
		code = dErrors.CodeInternal
	}
	status := StatusFor(code)
	body := map[string]any{"error": string(code)}
	if status < http.StatusInternalServerError {
		var de *dErrors.Error
		if errors.As(err, &de) && de.Message != "" {
			body["error_description"] = de.Message
		}
		if details := dErrors.DetailsOf(err); len(details) > 0 {
			body["details"] = details
		}
	}
	WriteJSON(w, status, body)
}

// StatusFor maps an error code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeProtocolViolation:
		return http.StatusConflict
	case dErrors.CodeAuthenticationFailed, dErrors.CodeTokenExpired, dErrors.CodeTokenRevoked,
		dErrors.CodeChallengeExpired, dErrors.CodeSignatureInvalid, dErrors.CodeDeviceNotRecognized:
		return http.StatusUnauthorized
	case dErrors.CodeInsufficientScope:
		return http.StatusForbidden
	case dErrors.CodeIncompatibleProtocols, dErrors.CodeContextMismatch:
		return http.StatusUnprocessableEntity
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
