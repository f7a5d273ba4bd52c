// Package provisioner drains an external oagw.TypeProvider at startup,
// loading its upstream and route records into the registries through
// the same validating write path the CRUD API uses (spec.md §4.7).
package provisioner

import (
	"context"
	"fmt"

	"github.com/stacklok/oagw/pkg/logger"
	"github.com/stacklok/oagw/pkg/oagw"
	"github.com/stacklok/oagw/pkg/oagw/registry"
)

// Provisioner performs the one-shot startup load.
type Provisioner struct {
	Provider  oagw.TypeProvider
	Upstreams *registry.UpstreamRegistry
	Routes    *registry.RouteRegistry
}

// New constructs a Provisioner.
func New(provider oagw.TypeProvider, upstreams *registry.UpstreamRegistry, routes *registry.RouteRegistry) *Provisioner {
	return &Provisioner{Provider: provider, Upstreams: upstreams, Routes: routes}
}

// Result summarizes one Run call.
type Result struct {
	UpstreamsLoaded int
	RoutesLoaded    int
	Failures        []error
}

// Run drains the provider and writes every record through the registry
// validation path, logging (not aborting) on individual failures so one
// malformed record never blocks the rest of the startup set (spec.md
// §4.7 "partial provisioning failures are reported, not fatal").
// Re-running Run is idempotent: records are upserted keyed by id.
func (p *Provisioner) Run(ctx context.Context) (Result, error) {
	var result Result

	upstreams, err := p.Provider.ListUpstreams(ctx)
	if err != nil {
		return result, fmt.Errorf("listing upstreams from type provider: %w", err)
	}
	for _, pu := range upstreams {
		if err := p.upsertUpstream(pu.Upstream); err != nil {
			logger.FromContext(ctx).Error("provisioning upstream failed", "alias", pu.Upstream.Alias, "error", err)
			result.Failures = append(result.Failures, err)
			continue
		}
		result.UpstreamsLoaded++
	}

	routes, err := p.Provider.ListRoutes(ctx)
	if err != nil {
		return result, fmt.Errorf("listing routes from type provider: %w", err)
	}
	for _, pr := range routes {
		if err := p.upsertRoute(pr.Route); err != nil {
			logger.FromContext(ctx).Error("provisioning route failed", "route_id", pr.Route.ID, "upstream_id", pr.Route.UpstreamID, "error", err)
			result.Failures = append(result.Failures, err)
			continue
		}
		result.RoutesLoaded++
	}

	return result, nil
}

func (p *Provisioner) upsertUpstream(u oagw.Upstream) error {
	if u.ID != "" {
		if _, err := p.Upstreams.GetByID(u.ID); err == nil {
			_, err := p.Upstreams.Update(u.ID, registry.UpstreamPatch{
				Alias:               &u.Alias,
				Servers:             u.Servers,
				ProtocolTag:         &u.ProtocolTag,
				AuthPlugin:          u.AuthPlugin,
				CredentialRefs:      u.CredentialRefs,
				DefaultRateLimit:    u.DefaultRateLimit,
				RequireAuthzDefault: &u.RequireAuthzDefault,
			})
			return err
		}
	}
	_, err := p.Upstreams.Create(u)
	return err
}

func (p *Provisioner) upsertRoute(rt oagw.Route) error {
	if rt.ID != "" {
		if _, err := p.Routes.GetByID(rt.ID); err == nil {
			_, err := p.Routes.Update(rt.ID, registry.RoutePatch{
				Match:        rt.Match,
				Plugins:      rt.Plugins,
				RateLimit:    rt.RateLimit,
				RequireAuthz: &rt.RequireAuthz,
			})
			return err
		}
	}
	_, err := p.Routes.Create(rt)
	return err
}
