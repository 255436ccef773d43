package response

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/ladderline/ladder-server/internal/errors"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()

	Success(w, map[string]string{"message": "test"}, discard())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, map[string]any{"message": "test"}, body["data"])
	assert.NotContains(t, body, "error")
}

func TestError_DomainError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, domainerrors.NotFound("leaderboard missing").WithDetails(map[string]string{"id": "x"}), discard())

	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, map[string]any{
		"code":    "NOT_FOUND",
		"message": "leaderboard missing",
		"details": map[string]any{"id": "x"},
	}, body["error"])
}

func TestError_RateLimitedSetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, domainerrors.RateLimited("slow down", 42*time.Second), discard())

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "42", w.Header().Get("Retry-After"))
}

func TestError_MasksForeignAndFatalErrors(t *testing.T) {
	for _, err := range []error{
		assert.AnError,
		domainerrors.Infrastructure(assert.AnError, "badger write"),
	} {
		w := httptest.NewRecorder()
		Error(w, err, discard())

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decode(t, w)
		errBody := body["error"].(map[string]any)
		assert.Equal(t, "INTERNAL", errBody["code"])
		assert.Equal(t, "internal server error", errBody["message"])
	}
}
