package networking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testResponse struct {
	Message string `json:"message"`
	Value   int    `json:"value"`
}

func TestFetchJSON_SuccessfulGET(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("X-Custom-Header", "test-value")
		_ = json.NewEncoder(w).Encode(testResponse{Message: "hello", Value: 42})
	}))
	defer server.Close()

	result, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Data.Message)
	assert.Equal(t, 42, result.Data.Value)
	assert.Equal(t, "test-value", result.Headers.Get("X-Custom-Header"))
}

func TestFetchJSON_POSTWithBearer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(testResponse{Message: "ok"})
	}))
	defer server.Close()

	result, err := FetchJSON[testResponse](
		context.Background(), server.Client(), server.URL,
		WithMethod(http.MethodPost), WithBearerToken("secret"),
	)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Data.Message)
}

func TestFetchJSON_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("sensitive details"))
	}))
	defer server.Close()

	_, err := FetchJSON[testResponse](context.Background(), server.Client(), server.URL)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "sensitive details")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}
