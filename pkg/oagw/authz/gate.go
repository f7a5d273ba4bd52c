// Package authz provides the Authorization Gate: a thin, pipeline-facing
// adapter over the external oagw.AuthzResolver collaborator (spec.md §4.4).
// OAGW never implements authorization policy itself; it only calls out to
// whatever resolver the deployment wires in, and fails closed if none is set.
package authz

import (
	"context"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/oagw"
)

// Gate decides whether a caller may use a route, delegating to an
// oagw.AuthzResolver. A nil Resolver means authorization is not
// configured; Check then allows only routes/upstreams that don't
// require it (RequireAuthz == false), matching spec.md §4.4's default
// posture of fail-closed only where authorization was actually asked for.
type Gate struct {
	Resolver oagw.AuthzResolver
}

// NewGate constructs a Gate around resolver, which may be nil.
func NewGate(resolver oagw.AuthzResolver) *Gate {
	return &Gate{Resolver: resolver}
}

// Check authorizes caller to invoke action on (upstreamID, routeID).
// requireAuthz is the effective requirement computed by the pipeline
// from the matched route (falling back to the upstream's
// RequireAuthzDefault, spec.md §3).
func (g *Gate) Check(ctx context.Context, caller oagw.CallerIdentity, upstreamID, routeID string, action oagw.AuthAction, requireAuthz bool) error {
	if !requireAuthz {
		return nil
	}
	if g.Resolver == nil {
		return oagwerrors.NewForbiddenError("authorization is required but no resolver is configured", nil)
	}

	decision, err := g.Resolver.Authorize(ctx, caller, upstreamID, routeID, action)
	if err != nil {
		return oagwerrors.NewInternalError("authorization resolver failed", err)
	}
	if !decision.Allowed {
		msg := "request denied by authorization policy"
		if decision.Reason != "" {
			msg = decision.Reason
		}
		return oagwerrors.NewForbiddenError(msg, nil)
	}
	return nil
}
