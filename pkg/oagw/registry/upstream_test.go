package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/oagw"
)

func validUpstream(alias string) oagw.Upstream {
	return oagw.Upstream{
		Alias:       alias,
		Servers:     []oagw.Endpoint{{Scheme: oagw.SchemeHTTPS, Host: "api.example.com", Port: 443}},
		ProtocolTag: oagw.ProtocolHTTPv1,
	}
}

func TestUpstreamRegistry_CreateAndGet(t *testing.T) {
	t.Parallel()

	reg := NewUpstreamRegistry(nil)
	created, err := reg.Create(validUpstream("billing"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	byID, err := reg.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "billing", byID.Alias)

	byAlias, err := reg.GetByAlias("billing")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byAlias.ID)
}

func TestUpstreamRegistry_Create_DuplicateAlias(t *testing.T) {
	t.Parallel()

	reg := NewUpstreamRegistry(nil)
	_, err := reg.Create(validUpstream("billing"))
	require.NoError(t, err)

	_, err = reg.Create(validUpstream("billing"))
	require.Error(t, err)
	assert.True(t, oagwerrors.Is(err, oagwerrors.ErrConflict))
}

func TestUpstreamRegistry_Create_ValidationFailures(t *testing.T) {
	t.Parallel()

	reg := NewUpstreamRegistry(nil)

	tests := []struct {
		name string
		mut  func(u *oagw.Upstream)
	}{
		{"bad alias", func(u *oagw.Upstream) { u.Alias = "!!bad!!" }},
		{"no endpoints", func(u *oagw.Upstream) { u.Servers = nil }},
		{"bad port", func(u *oagw.Upstream) { u.Servers[0].Port = 70000 }},
		{"empty host", func(u *oagw.Upstream) { u.Servers[0].Host = "" }},
		{"unknown protocol", func(u *oagw.Upstream) { u.ProtocolTag = "carrier-pigeon/v1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := validUpstream("svc")
			tt.mut(&u)
			_, err := reg.Create(u)
			require.Error(t, err)
			assert.True(t, oagwerrors.Is(err, oagwerrors.ErrValidationFailed))
		})
	}
}

func TestUpstreamRegistry_GetByID_NotFound(t *testing.T) {
	t.Parallel()

	reg := NewUpstreamRegistry(nil)
	_, err := reg.GetByID("missing")
	require.Error(t, err)
	assert.True(t, oagwerrors.Is(err, oagwerrors.ErrNotFound))
}

func TestUpstreamRegistry_List_FiltersByProtocol(t *testing.T) {
	t.Parallel()

	reg := NewUpstreamRegistry(nil)
	httpU := validUpstream("http-svc")
	grpcU := validUpstream("grpc-svc")
	grpcU.ProtocolTag = oagw.ProtocolGRPC
	_, err := reg.Create(httpU)
	require.NoError(t, err)
	_, err = reg.Create(grpcU)
	require.NoError(t, err)

	all := reg.List(UpstreamFilter{})
	assert.Len(t, all, 2)

	httpOnly := reg.List(UpstreamFilter{ProtocolTag: oagw.ProtocolHTTPv1})
	require.Len(t, httpOnly, 1)
	assert.Equal(t, "http-svc", httpOnly[0].Alias)
}

func TestUpstreamRegistry_Update(t *testing.T) {
	t.Parallel()

	reg := NewUpstreamRegistry(nil)
	created, err := reg.Create(validUpstream("billing"))
	require.NoError(t, err)

	newAlias := "billing-v2"
	updated, err := reg.Update(created.ID, UpstreamPatch{Alias: &newAlias})
	require.NoError(t, err)
	assert.Equal(t, "billing-v2", updated.Alias)

	_, err = reg.GetByAlias("billing")
	require.Error(t, err)
	byAlias, err := reg.GetByAlias("billing-v2")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byAlias.ID)
}

func TestUpstreamRegistry_Update_AliasConflict(t *testing.T) {
	t.Parallel()

	reg := NewUpstreamRegistry(nil)
	_, err := reg.Create(validUpstream("billing"))
	require.NoError(t, err)
	other, err := reg.Create(validUpstream("invoicing"))
	require.NoError(t, err)

	taken := "billing"
	_, err = reg.Update(other.ID, UpstreamPatch{Alias: &taken})
	require.Error(t, err)
	assert.True(t, oagwerrors.Is(err, oagwerrors.ErrConflict))
}

func TestUpstreamRegistry_Update_NotFound(t *testing.T) {
	t.Parallel()

	reg := NewUpstreamRegistry(nil)
	_, err := reg.Update("missing", UpstreamPatch{})
	require.Error(t, err)
	assert.True(t, oagwerrors.Is(err, oagwerrors.ErrNotFound))
}

func TestUpstreamRegistry_Delete_CascadesRoutes(t *testing.T) {
	t.Parallel()

	routeReg := NewRouteRegistry()
	upReg := NewUpstreamRegistry(routeReg)

	up, err := upReg.Create(validUpstream("billing"))
	require.NoError(t, err)

	_, err = routeReg.Create(oagw.Route{
		UpstreamID: up.ID,
		Match:      []oagw.MatchRule{{Kind: oagw.MatchHTTP, PathPattern: "/v1/invoices"}},
	})
	require.NoError(t, err)
	require.Len(t, routeReg.ListByUpstream(up.ID), 1)

	require.NoError(t, upReg.Delete(up.ID))
	assert.Empty(t, routeReg.ListByUpstream(up.ID))

	_, err = upReg.GetByID(up.ID)
	require.Error(t, err)
	assert.True(t, oagwerrors.Is(err, oagwerrors.ErrNotFound))
}

func TestUpstreamRegistry_Delete_NotFound(t *testing.T) {
	t.Parallel()

	reg := NewUpstreamRegistry(nil)
	err := reg.Delete("missing")
	require.Error(t, err)
	assert.True(t, oagwerrors.Is(err, oagwerrors.ErrNotFound))
}

func TestUpstreamRegistry_GetByID_ReturnsSnapshotNotAlias(t *testing.T) {
	t.Parallel()

	reg := NewUpstreamRegistry(nil)
	created, err := reg.Create(validUpstream("billing"))
	require.NoError(t, err)

	snap, err := reg.GetByID(created.ID)
	require.NoError(t, err)
	snap.Servers[0].Host = "mutated.example.com"

	fresh, err := reg.GetByID(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "api.example.com", fresh.Servers[0].Host, "mutating a returned snapshot must not affect registry state")
}
