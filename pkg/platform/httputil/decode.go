package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	dErrors "fedcred/pkg/domain-errors"
)

// DecodeJSON decodes a single JSON object from the request body.
// On failure it writes a bad_request envelope and returns nil, false.
//
// Usage:
//
//	req, ok := httputil.DecodeJSON[handler.RenewRequest](w, r, h.logger, ctx, requestID)
//	if !ok {
//	    return
//	}
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if err := decodeBody(r.Body, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestID,
		)
		WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, bodyErrorMessage(err)))
		return nil, false
	}
	return &req, true
}

var errTrailingData = errors.New("request body must contain a single JSON object")

func decodeBody(body io.Reader, target any) error {
	if body == nil {
		return io.EOF
	}
	dec := json.NewDecoder(body)
	if err := dec.Decode(target); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}

// bodyErrorMessage turns decoder failures into messages safe to return to callers.
func bodyErrorMessage(err error) string {
	var (
		maxBytes  *http.MaxBytesError
		syntax    *json.SyntaxError
		typeError *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return "request body is required"
	case errors.As(err, &maxBytes):
		return fmt.Sprintf("request body exceeds %d bytes", maxBytes.Limit)
	case errors.As(err, &syntax), errors.Is(err, io.ErrUnexpectedEOF):
		return "request body is not valid JSON"
	case errors.As(err, &typeError) && typeError.Field != "":
		return fmt.Sprintf("field %s must be %s", typeError.Field, typeError.Type)
	case errors.Is(err, errTrailingData):
		return errTrailingData.Error()
	default:
		return "invalid request body"
	}
}

// Validatable is implemented by request types that support validation.
type Validatable interface {
	Validate() error
}

// Normalizable is implemented by request types that support normalization.
type Normalizable interface {
	Normalize()
}

// Sanitizable is implemented by request types that support sanitization.
type Sanitizable interface {
	Sanitize()
}

// PrepareRequest runs Sanitize, Normalize and Validate, in that order, when implemented.
func PrepareRequest(req any) error {
	if s, ok := req.(Sanitizable); ok {
		s.Sanitize()
	}
	if n, ok := req.(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := req.(Validatable); ok {
		return v.Validate()
	}
	return nil
}

// DecodeAndPrepare combines JSON decoding with request preparation.
// It decodes the JSON body, then calls Sanitize(), Normalize(), and Validate()
// if the target type implements those interfaces.
//
// Usage:
//
//	req, ok := httputil.DecodeAndPrepare[models.GrantRequest](w, r, h.logger, ctx, requestID)
//	if !ok {
//	    return
//	}
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req, ok := DecodeJSON[T](w, r, logger, ctx, requestID)
	if !ok {
		return nil, false
	}

	if err := PrepareRequest(req); err != nil {
		logger.WarnContext(ctx, "invalid request",
			"error", err,
			"request_id", requestID,
		)
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			WriteError(w, err)
		} else {
			WriteError(w, dErrors.New(dErrors.CodeValidation, err.Error()))
		}
		return nil, false
	}

	return req, true
}
