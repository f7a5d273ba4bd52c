// Package cedarresolver is a reference oagw.AuthzResolver implementation
// backed by github.com/cedar-policy/cedar-go, grounded on the teacher's
// own cedar authorizer (pkg/authz/authorizers/cedar). It evaluates a
// static Cedar policy set against each proxy_request authorization
// check, with the caller, route, and action mapped onto Cedar
// principal/resource/action entities and the upstream id passed in the
// request context.
package cedarresolver

import (
	"context"
	"fmt"

	"github.com/cedar-policy/cedar-go"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/logger"
	"github.com/stacklok/oagw/pkg/oagw"
)

// Config configures a Resolver.
type Config struct {
	// Policies are Cedar policy statements, evaluated as one policy set.
	Policies []string
	// EntitiesJSON is the Cedar entities document (principals, resources,
	// and their attributes/parents) evaluated alongside the policy set.
	EntitiesJSON string
}

// Resolver is a cedar-go-backed oagw.AuthzResolver.
type Resolver struct {
	policySet *cedar.PolicySet
	entities  cedar.EntityMap
}

// New parses cfg's policies and entities into a ready Resolver.
func New(cfg Config) (*Resolver, error) {
	if len(cfg.Policies) == 0 {
		return nil, oagwerrors.NewValidationFailedError("cedar resolver requires at least one policy", nil)
	}

	ps := cedar.NewPolicySet()
	for i, p := range cfg.Policies {
		policy, err := cedar.NewPolicyFromText(fmt.Sprintf("policy%d.cedar", i), []byte(p))
		if err != nil {
			return nil, oagwerrors.NewValidationFailedError(fmt.Sprintf("parsing cedar policy %d", i), err)
		}
		ps.Add(cedar.PolicyID(fmt.Sprintf("policy%d", i)), policy)
	}

	entities := cedar.EntityMap{}
	if cfg.EntitiesJSON != "" {
		parsed, err := cedar.EntitiesFromJSON(nil, []byte(cfg.EntitiesJSON))
		if err != nil {
			return nil, oagwerrors.NewValidationFailedError("parsing cedar entities JSON", err)
		}
		entities = parsed
	}

	return &Resolver{policySet: ps, entities: entities}, nil
}

// Authorize implements oagw.AuthzResolver by evaluating one Cedar
// IsAuthorized call per (caller, upstreamID, routeID, action) tuple.
func (r *Resolver) Authorize(ctx context.Context, caller oagw.CallerIdentity, upstreamID, routeID string, action oagw.AuthAction) (oagw.AuthzDecision, error) {
	logger.FromContext(ctx).Debug("evaluating cedar authorization", "caller", caller.ID, "upstream_id", upstreamID, "route_id", routeID, "action", string(action))

	req := cedar.Request{
		Principal: cedar.NewEntityUID("OAGW::User", cedar.String(caller.ID)),
		Action:    cedar.NewEntityUID("OAGW::Action", cedar.String(action)),
		Resource:  cedar.NewEntityUID("OAGW::Route", cedar.String(routeID)),
		Context:   cedar.NewRecord(cedar.RecordMap{"upstream_id": cedar.String(upstreamID)}),
	}

	decision, diagnostic := r.policySet.IsAuthorized(r.entities, req)
	reason := ""
	if len(diagnostic.Reasons) > 0 {
		reason = diagnostic.Reasons[0].Policy.String()
	}
	return oagw.AuthzDecision{Allowed: decision == cedar.Allow, Reason: reason}, nil
}
