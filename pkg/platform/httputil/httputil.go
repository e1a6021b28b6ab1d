package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "fedcred/pkg/domain-errors"
)

// Envelope is the uniform response body for every API endpoint.
type Envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the failure half of the envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteSuccess wraps data in a success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}

// WriteError centralizes domain error translation to HTTP responses.
// It translates transport-agnostic domain errors into HTTP status codes and error envelopes.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), Envelope{
			Success: false,
			Error: &ErrorResponse{
				Code:    DomainCodeToHTTPCode(domainErr.Code),
				Message: domainErr.Message,
			},
		})
		return
	}

	// Fallback for unexpected errors; never leak internal messages.
	WriteJSON(w, http.StatusInternalServerError, Envelope{
		Success: false,
		Error:   &ErrorResponse{Code: DomainCodeToHTTPCode(dErrors.CodeInternal)},
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput,
		dErrors.CodeInvariantViolation, dErrors.CodeInvalidSubject, dErrors.CodeBatchTooLarge:
		return http.StatusBadRequest
	case dErrors.CodeConflict, dErrors.CodeIllegalTransition, dErrors.CodeDuplicateFederationID,
		dErrors.CodeIntegrityViolation:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case dErrors.CodeNotImplemented:
		return http.StatusNotImplemented
	case dErrors.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the error code exposed in JSON.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return "validation_error"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeTimeout:
		return "timeout"
	case dErrors.CodeIllegalTransition, dErrors.CodeDuplicateFederationID, dErrors.CodeInvalidSubject,
		dErrors.CodeBatchTooLarge, dErrors.CodeIntegrityViolation, dErrors.CodeStoreUnavailable,
		dErrors.CodeNotImplemented:
		return string(code)
	case dErrors.CodeInternal:
		return "internal_error"
	default:
		return "internal_error"
	}
}
