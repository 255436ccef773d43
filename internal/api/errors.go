package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/ladderline/ladder-server/internal/errors"
	"github.com/ladderline/ladder-server/internal/http/response"
)

// APIError is a custom error type that implements huma.StatusError.
// It renders as the error envelope {success:false, error:{...}}.
type APIError struct { //nolint:revive // API prefix is intentional for clarity
	status  int
	headers http.Header
	Success bool               `json:"success" doc:"Always false for errors"`
	Body    response.ErrorBody `json:"error" doc:"Error details"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Body.Message
}

// GetStatus implements huma.StatusError.
func (e *APIError) GetStatus() int {
	return e.status
}

// GetHeaders implements huma.HeadersError.
func (e *APIError) GetHeaders() http.Header {
	return e.headers
}

// ContentType returns the content type for the error response.
func (e *APIError) ContentType(_ string) string {
	return "application/json"
}

// RegisterErrorHandler configures huma to use domain errors.
// Call this after creating the huma.API but before registering routes.
func RegisterErrorHandler(logger *slog.Logger) {
	huma.NewError = func(status int, message string, errs ...error) huma.StatusError {
		for _, err := range errs {
			domainErr, ok := domainerrors.As(err)
			if !ok {
				continue
			}
			if !domainerrors.IsOperational(err) {
				logger.Error("Unhandled error", "error", err)
			}
			apiErr := &APIError{
				status: domainErr.HTTPStatus(),
				Body:   *response.BodyOf(err),
			}
			if d := domainErr.RetryAfter; d > 0 {
				apiErr.headers = http.Header{"Retry-After": []string{strconv.Itoa(int(d.Round(time.Second) / time.Second))}}
			}
			return apiErr
		}

		code := statusToCode(status)
		if status == http.StatusUnprocessableEntity {
			// Request decoding and schema failures are plain bad input here.
			status = http.StatusBadRequest
		}
		body := response.ErrorBody{Code: string(code), Message: message}
		if len(errs) > 0 && code == domainerrors.CodeInvalidInput {
			details := make([]string, 0, len(errs))
			for _, err := range errs {
				details = append(details, err.Error())
			}
			body.Details = details
		}
		return &APIError{status: status, Body: body}
	}
}

// statusToCode maps HTTP status codes to our domain error codes.
func statusToCode(status int) domainerrors.Code {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domainerrors.CodeInvalidInput
	case http.StatusUnauthorized:
		return domainerrors.CodeUnauthorized
	case http.StatusForbidden:
		return domainerrors.CodeForbidden
	case http.StatusNotFound:
		return domainerrors.CodeNotFound
	case http.StatusConflict:
		return domainerrors.CodeConflict
	case http.StatusTooManyRequests:
		return domainerrors.CodeRateLimited
	case http.StatusPreconditionFailed:
		return domainerrors.CodePreconditionFailed
	default:
		return domainerrors.CodeInternal
	}
}

// EnvelopeTransformer wraps successful bodies in {success:true, data:...}.
// Error bodies are already enveloped.
func EnvelopeTransformer(_ huma.Context, _ string, v any) (any, error) {
	if _, ok := v.(*APIError); ok {
		return v, nil
	}
	return response.Envelope{Success: true, Data: v}, nil
}
