// Package response writes the JSON envelope used by handlers that run outside
// the huma API, such as middleware rejections and the streaming endpoints.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	domainerrors "github.com/ladderline/ladder-server/internal/errors"
)

// ErrorBody is the error member of an envelope.
type ErrorBody struct {
	Code    string `json:"code" doc:"Machine-readable error code"`
	Message string `json:"message" doc:"Human-readable error message"`
	Details any    `json:"details,omitempty" doc:"Additional error details"`
}

// Envelope provides a consistent JSON response structure.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// JSON writes data in a success envelope with the given status code.
func JSON(w http.ResponseWriter, status int, data any, logger *slog.Logger) {
	write(w, status, Envelope{Success: status < 400, Data: data}, logger)
}

// Success writes a successful JSON response (200 OK).
func Success(w http.ResponseWriter, data any, logger *slog.Logger) {
	JSON(w, http.StatusOK, data, logger)
}

// Error writes err as an error envelope. Domain errors keep their code and
// status; anything else is logged and reported as INTERNAL without detail.
// RATE_LIMITED errors also set Retry-After.
func Error(w http.ResponseWriter, err error, logger *slog.Logger) {
	body := BodyOf(err)
	if !domainerrors.IsOperational(err) && logger != nil {
		logger.Error("Unhandled error", "error", err)
	}
	if d := domainerrors.RetryAfterOf(err); d > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(d.Round(time.Second)/time.Second)))
	}
	write(w, domainerrors.CodeOf(err).HTTPStatus(), Envelope{Error: body}, logger)
}

// BodyOf converts err into an error body. Non-operational errors are masked.
func BodyOf(err error) *ErrorBody {
	if !domainerrors.IsOperational(err) {
		return &ErrorBody{Code: string(domainerrors.CodeInternal), Message: "internal server error"}
	}
	e, _ := domainerrors.As(err)
	return &ErrorBody{Code: string(e.Code), Message: e.Message, Details: e.Details}
}

func write(w http.ResponseWriter, status int, envelope Envelope, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		if logger != nil {
			logger.Error("Failed to encode JSON response", "error", err)
		}
	}
}
