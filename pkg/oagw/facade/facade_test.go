package facade

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/oagw/pkg/oagw"
	"github.com/stacklok/oagw/pkg/oagw/authplugin"
	"github.com/stacklok/oagw/pkg/oagw/authz"
	"github.com/stacklok/oagw/pkg/oagw/credentials"
	"github.com/stacklok/oagw/pkg/oagw/pipeline"
	"github.com/stacklok/oagw/pkg/oagw/ratelimit"
	"github.com/stacklok/oagw/pkg/oagw/registry"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	routeReg := registry.NewRouteRegistry()
	upReg := registry.NewUpstreamRegistry(routeReg)
	pl := &pipeline.Pipeline{
		Upstreams:   upReg,
		Routes:      routeReg,
		Gate:        authz.NewGate(nil),
		Plugins:     authplugin.NewRegistry(credentials.NewStore()),
		RateLimiter: ratelimit.New(),
		HTTPClient:  http.DefaultClient,
	}
	return New(upReg, routeReg, pl)
}

func endpointFor(t *testing.T, srv *httptest.Server) oagw.Endpoint {
	t.Helper()
	hostport := strings.TrimPrefix(srv.URL, "http://")
	_, portStr, err := net.SplitHostPort(hostport)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return oagw.Endpoint{Scheme: oagw.SchemeHTTP, Host: "127.0.0.1", Port: port}
}

func TestFacade_UpstreamCRUD(t *testing.T) {
	t.Parallel()

	f := newTestFacade(t)

	created, err := f.CreateUpstream(oagw.Upstream{
		Alias:       "billing",
		Servers:     []oagw.Endpoint{{Scheme: oagw.SchemeHTTPS, Host: "api.example.com", Port: 443}},
		ProtocolTag: oagw.ProtocolHTTPv1,
	})
	require.NoError(t, err)

	got, err := f.GetUpstream(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "billing", got.Alias)

	newAlias := "billing-v2"
	updated, err := f.UpdateUpstream(created.ID, registry.UpstreamPatch{Alias: &newAlias})
	require.NoError(t, err)
	assert.Equal(t, "billing-v2", updated.Alias)

	all := f.ListUpstreams(registry.UpstreamFilter{})
	assert.Len(t, all, 1)

	require.NoError(t, f.DeleteUpstream(created.ID))
	_, err = f.GetUpstream(created.ID)
	require.Error(t, err)
}

func TestFacade_RouteCRUD(t *testing.T) {
	t.Parallel()

	f := newTestFacade(t)
	up, err := f.CreateUpstream(oagw.Upstream{
		Alias:       "billing",
		Servers:     []oagw.Endpoint{{Scheme: oagw.SchemeHTTPS, Host: "api.example.com", Port: 443}},
		ProtocolTag: oagw.ProtocolHTTPv1,
	})
	require.NoError(t, err)

	created, err := f.CreateRoute(oagw.Route{
		UpstreamID: up.ID,
		Match:      []oagw.MatchRule{{Kind: oagw.MatchHTTP, PathPattern: "/v1/invoices"}},
	})
	require.NoError(t, err)

	got, err := f.GetRoute(created.ID)
	require.NoError(t, err)
	assert.Equal(t, up.ID, got.UpstreamID)

	routes := f.ListRoutesForUpstream(up.ID)
	assert.Len(t, routes, 1)

	require.NoError(t, f.DeleteRoute(created.ID))
	assert.Empty(t, f.ListRoutesForUpstream(up.ID))
}

func TestFacade_ProxyRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/invoices", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newTestFacade(t)
	up, err := f.CreateUpstream(oagw.Upstream{
		Alias:       "billing",
		Servers:     []oagw.Endpoint{endpointFor(t, srv)},
		ProtocolTag: oagw.ProtocolHTTPv1,
	})
	require.NoError(t, err)
	_, err = f.CreateRoute(oagw.Route{
		UpstreamID: up.ID,
		Match:      []oagw.MatchRule{{Kind: oagw.MatchHTTP, PathPattern: "/v1/invoices"}},
	})
	require.NoError(t, err)

	resp, outcome, err := f.ProxyRequest(context.Background(), pipeline.InboundRequest{
		Alias:  "billing",
		Method: http.MethodGet,
		Path:   "/v1/invoices",
		Header: http.Header{},
	})
	require.NoError(t, err)
	assert.Equal(t, pipeline.OutcomeOK, outcome)
	defer resp.Body.Close()
}
