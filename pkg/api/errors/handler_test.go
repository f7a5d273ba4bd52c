package errors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	t.Run("passes through successful response", func(t *testing.T) {
		t.Parallel()

		handler := ErrorHandler(func(w http.ResponseWriter, _ *http.Request) error {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("success"))
			return nil
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "success", rec.Body.String())
	})

	t.Run("converts bad_request.v1 error to 400 with message", func(t *testing.T) {
		t.Parallel()

		handler := ErrorHandler(func(_ http.ResponseWriter, _ *http.Request) error {
			return oagwerrors.NewBadRequestError("invalid input", nil)
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, rec.Body.String(), "invalid input")
	})

	t.Run("converts not_found.v1 error to 404 with message", func(t *testing.T) {
		t.Parallel()

		handler := ErrorHandler(func(_ http.ResponseWriter, _ *http.Request) error {
			return oagwerrors.NewNotFoundError("resource not found", nil)
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Contains(t, rec.Body.String(), "resource not found")
	})

	t.Run("converts conflict.v1 error to 409 with message", func(t *testing.T) {
		t.Parallel()

		handler := ErrorHandler(func(_ http.ResponseWriter, _ *http.Request) error {
			return oagwerrors.NewConflictError("resource already exists", nil)
		})

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusConflict, rec.Code)
		require.Contains(t, rec.Body.String(), "resource already exists")
	})

	t.Run("converts internal.v1 error to generic 500 response", func(t *testing.T) {
		t.Parallel()

		handler := ErrorHandler(func(_ http.ResponseWriter, _ *http.Request) error {
			return oagwerrors.NewInternalError("sensitive database error details", nil)
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.False(t, strings.Contains(rec.Body.String(), "sensitive"))
		require.Contains(t, rec.Body.String(), "Internal Server Error")
	})

	t.Run("error without envelope defaults to 500 with generic message", func(t *testing.T) {
		t.Parallel()

		handler := ErrorHandler(func(_ http.ResponseWriter, _ *http.Request) error {
			return errors.New("plain error without envelope")
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.False(t, strings.Contains(rec.Body.String(), "plain error"))
		require.Contains(t, rec.Body.String(), "Internal Server Error")
	})

	t.Run("handles wrapped envelope error", func(t *testing.T) {
		t.Parallel()

		sentinelErr := oagwerrors.NewNotFoundError("not found", nil)

		handler := ErrorHandler(func(_ http.ResponseWriter, _ *http.Request) error {
			return fmt.Errorf("route lookup failed: %w", sentinelErr)
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Contains(t, rec.Body.String(), "not found")
	})

	t.Run("converts gateway.throttled.v1 error to 429 with Retry-After and metadata", func(t *testing.T) {
		t.Parallel()

		handler := ErrorHandler(func(_ http.ResponseWriter, _ *http.Request) error {
			return oagwerrors.NewThrottledError("rate limit exceeded", 1500)
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "1", rec.Header().Get("Retry-After"))
		require.Contains(t, rec.Body.String(), `"gateway.throttled.v1"`)
		require.Contains(t, rec.Body.String(), "retry_after_ms")
	})

	t.Run("converts gateway.upstream_unreachable.v1 error to 502", func(t *testing.T) {
		t.Parallel()

		handler := ErrorHandler(func(_ http.ResponseWriter, _ *http.Request) error {
			return oagwerrors.NewUpstreamUnreachableError("upstream down", nil)
		})

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestHandlerWithError_Type(t *testing.T) {
	t.Parallel()

	var handler HandlerWithError = func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusOK)
		return nil
	}

	wrapped := ErrorHandler(handler)
	require.NotNil(t, wrapped)
}
