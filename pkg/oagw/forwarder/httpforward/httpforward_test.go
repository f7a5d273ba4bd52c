package httpforward

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/oagw/pkg/oagw"
)

func endpointFor(t *testing.T, srv *httptest.Server) oagw.Endpoint {
	t.Helper()
	hostport := strings.TrimPrefix(srv.URL, "http://")
	host, portStr, err := net.SplitHostPort(hostport)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return oagw.Endpoint{Scheme: oagw.SchemeHTTP, Host: host, Port: port}
}

func TestForward_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := Forward(context.Background(), srv.Client(), []oagw.Endpoint{endpointFor(t, srv)}, Request{
		Method: http.MethodGet,
		Path:   "/v1/orders",
		Header: http.Header{},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestForward_FallsBackOnConnectFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dead := oagw.Endpoint{Scheme: oagw.SchemeHTTP, Host: "127.0.0.1", Port: 1}
	endpoints := []oagw.Endpoint{dead, endpointFor(t, srv)}

	resp, err := Forward(context.Background(), srv.Client(), endpoints, Request{
		Method: http.MethodGet,
		Path:   "/",
		Header: http.Header{},
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForward_StripsHopByHopHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Connection"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := http.Header{}
	h.Set("Connection", "keep-alive")

	resp, err := Forward(context.Background(), srv.Client(), []oagw.Endpoint{endpointFor(t, srv)}, Request{
		Method: http.MethodGet,
		Path:   "/",
		Header: h,
	})
	require.NoError(t, err)
	defer resp.Body.Close()
}
