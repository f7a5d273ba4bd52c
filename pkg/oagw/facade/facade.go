// Package facade exposes the gateway's CRUD operations and the
// proxy_request entry point as a single collaborator-bearing type,
// wired to HTTP by pkg/api (spec.md §4: "Service Facade").
package facade

import (
	"context"
	"net/http"

	"github.com/stacklok/oagw/pkg/oagw"
	"github.com/stacklok/oagw/pkg/oagw/pipeline"
	"github.com/stacklok/oagw/pkg/oagw/registry"
)

// Facade is the single point every transport-facing layer calls through.
type Facade struct {
	Upstreams *registry.UpstreamRegistry
	Routes    *registry.RouteRegistry
	Pipeline  *pipeline.Pipeline
}

// New constructs a Facade over the given collaborators.
func New(upstreams *registry.UpstreamRegistry, routes *registry.RouteRegistry, pl *pipeline.Pipeline) *Facade {
	return &Facade{Upstreams: upstreams, Routes: routes, Pipeline: pl}
}

// CreateUpstream validates and inserts a new upstream.
func (f *Facade) CreateUpstream(u oagw.Upstream) (*oagw.Upstream, error) {
	return f.Upstreams.Create(u)
}

// GetUpstream fetches an upstream by id.
func (f *Facade) GetUpstream(id string) (*oagw.Upstream, error) {
	return f.Upstreams.GetByID(id)
}

// ListUpstreams lists upstreams matching filter.
func (f *Facade) ListUpstreams(filter registry.UpstreamFilter) []*oagw.Upstream {
	return f.Upstreams.List(filter)
}

// UpdateUpstream applies patch to the upstream identified by id.
func (f *Facade) UpdateUpstream(id string, patch registry.UpstreamPatch) (*oagw.Upstream, error) {
	return f.Upstreams.Update(id, patch)
}

// DeleteUpstream removes an upstream and cascades to its routes.
func (f *Facade) DeleteUpstream(id string) error {
	return f.Upstreams.Delete(id)
}

// CreateRoute validates and inserts a new route.
func (f *Facade) CreateRoute(rt oagw.Route) (*oagw.Route, error) {
	return f.Routes.Create(rt)
}

// GetRoute fetches a route by id.
func (f *Facade) GetRoute(id string) (*oagw.Route, error) {
	return f.Routes.GetByID(id)
}

// ListRoutesForUpstream lists a single upstream's routes in evaluation order.
func (f *Facade) ListRoutesForUpstream(upstreamID string) []*oagw.Route {
	return f.Routes.ListByUpstream(upstreamID)
}

// UpdateRoute applies patch to the route identified by id.
func (f *Facade) UpdateRoute(id string, patch registry.RoutePatch) (*oagw.Route, error) {
	return f.Routes.Update(id, patch)
}

// DeleteRoute removes a single route.
func (f *Facade) DeleteRoute(id string) error {
	return f.Routes.Delete(id)
}

// ProxyRequest is the gateway's core operation: authorize, rate-limit,
// and forward req to its resolved upstream.
func (f *Facade) ProxyRequest(ctx context.Context, req pipeline.InboundRequest) (*http.Response, pipeline.Outcome, error) {
	return f.Pipeline.ProxyRequest(ctx, req)
}
