package registry

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/oagw"
)

// RouteRegistry holds the ordered, per-upstream route tables. Evaluation
// order within an upstream is first-match-wins (spec.md §4.1), so routes
// are kept in a slice rather than a map.
type RouteRegistry struct {
	mu    sync.RWMutex
	byID  map[string]*oagw.Route
	order map[string][]string // upstreamID -> ordered route IDs
}

// NewRouteRegistry constructs an empty route registry.
func NewRouteRegistry() *RouteRegistry {
	return &RouteRegistry{
		byID:  make(map[string]*oagw.Route),
		order: make(map[string][]string),
	}
}

// ValidateRoute checks the write-time invariants independent of registry state.
func ValidateRoute(rt *oagw.Route) error {
	if rt.UpstreamID == "" {
		return oagwerrors.NewValidationFailedError("route must reference an upstream_id", nil)
	}
	if len(rt.Match) == 0 {
		return oagwerrors.NewValidationFailedError("route must have at least one match rule", nil)
	}
	for _, m := range rt.Match {
		if m.Kind == oagw.MatchHTTP && m.PathPattern == "" {
			return oagwerrors.NewValidationFailedError("http match rule requires a path_pattern", nil)
		}
		if m.Kind == oagw.MatchGRPC && (m.Service == "" || m.Method == "") {
			return oagwerrors.NewValidationFailedError("grpc match rule requires service and method", nil)
		}
	}
	return nil
}

// Create validates, assigns an id if unset, and appends the route to the
// end of its upstream's evaluation order.
func (r *RouteRegistry) Create(rt oagw.Route) (*oagw.Route, error) {
	if err := ValidateRoute(&rt); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if rt.ID == "" {
		rt.ID = uuid.NewString()
	}
	if _, exists := r.byID[rt.ID]; exists {
		return nil, oagwerrors.NewError(oagwerrors.ErrConflict, fmt.Sprintf("route id %q already exists", rt.ID), nil)
	}
	for _, existingID := range r.order[rt.UpstreamID] {
		if reflect.DeepEqual(r.byID[existingID].Match, rt.Match) {
			return nil, oagwerrors.NewError(oagwerrors.ErrConflict, "duplicate route match rules within upstream", nil)
		}
	}

	rec := rt
	r.byID[rec.ID] = &rec
	r.order[rec.UpstreamID] = append(r.order[rec.UpstreamID], rec.ID)
	return cloneRoute(&rec), nil
}

// GetByID returns an immutable snapshot of the route, or NotFound.
func (r *RouteRegistry) GetByID(id string) (*oagw.Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.byID[id]
	if !ok {
		return nil, oagwerrors.NewNotFoundError(fmt.Sprintf("route %q not found", id), nil)
	}
	return cloneRoute(rt), nil
}

// ListByUpstream returns an immutable, ordered snapshot of every route bound
// to upstreamID — the slice the pipeline walks for first-match-wins
// selection (spec.md §4.6 step 2).
func (r *RouteRegistry) ListByUpstream(upstreamID string) []*oagw.Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.order[upstreamID]
	out := make([]*oagw.Route, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneRoute(r.byID[id]))
	}
	return out
}

// RoutePatch is a partial update for a route; nil fields are unchanged.
type RoutePatch struct {
	Match        []oagw.MatchRule
	Plugins      []oagw.PluginConfig
	RateLimit    *oagw.RateBucket
	RequireAuthz *bool
}

// Update applies patch to the route identified by id. The upstream binding
// and evaluation position are immutable; re-bind by deleting and recreating.
func (r *RouteRegistry) Update(id string, patch RoutePatch) (*oagw.Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[id]
	if !ok {
		return nil, oagwerrors.NewNotFoundError(fmt.Sprintf("route %q not found", id), nil)
	}

	updated := *existing
	if patch.Match != nil {
		updated.Match = patch.Match
	}
	if patch.Plugins != nil {
		updated.Plugins = patch.Plugins
	}
	if patch.RateLimit != nil {
		updated.RateLimit = patch.RateLimit
	}
	if patch.RequireAuthz != nil {
		updated.RequireAuthz = *patch.RequireAuthz
	}
	if err := ValidateRoute(&updated); err != nil {
		return nil, err
	}

	rec := updated
	r.byID[id] = &rec
	return cloneRoute(&rec), nil
}

// Delete removes a single route from its upstream's evaluation order.
func (r *RouteRegistry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, ok := r.byID[id]
	if !ok {
		return oagwerrors.NewNotFoundError(fmt.Sprintf("route %q not found", id), nil)
	}
	delete(r.byID, id)
	r.order[rt.UpstreamID] = removeID(r.order[rt.UpstreamID], id)
	return nil
}

// DeleteByUpstream removes every route bound to upstreamID. Called by
// UpstreamRegistry.Delete to cascade (spec.md §4.1).
func (r *RouteRegistry) DeleteByUpstream(upstreamID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order[upstreamID] {
		delete(r.byID, id)
	}
	delete(r.order, upstreamID)
}

func removeID(ids []string, target string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func cloneRoute(rt *oagw.Route) *oagw.Route {
	cp := *rt
	cp.Match = append([]oagw.MatchRule(nil), rt.Match...)
	cp.Plugins = append([]oagw.PluginConfig(nil), rt.Plugins...)
	return &cp
}
