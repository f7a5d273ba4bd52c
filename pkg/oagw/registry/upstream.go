package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/oagw"
)

// UpstreamFilter narrows List results; a nil or zero-value field matches all.
type UpstreamFilter struct {
	ProtocolTag oagw.ProtocolTag
}

// UpstreamRegistry is the alias-indexed, O(1)-lookup registry of Upstream
// records (spec.md §4.1). Reads copy the record under a read lock and
// release immediately, returning the copy; writes hold the lock for the
// duration of the mutation (single-writer/multi-reader, spec.md §5).
type UpstreamRegistry struct {
	mu       sync.RWMutex
	byID     map[string]*oagw.Upstream
	byAlias  map[string]*oagw.Upstream
	routeReg *RouteRegistry // for cascading delete
}

// NewUpstreamRegistry constructs an empty registry. routeReg may be nil if
// cascading route deletion is wired up later via SetRouteRegistry.
func NewUpstreamRegistry(routeReg *RouteRegistry) *UpstreamRegistry {
	return &UpstreamRegistry{
		byID:     make(map[string]*oagw.Upstream),
		byAlias:  make(map[string]*oagw.Upstream),
		routeReg: routeReg,
	}
}

// SetRouteRegistry wires the route registry used for cascading deletes,
// breaking the construction-order cycle between the two registries.
func (r *UpstreamRegistry) SetRouteRegistry(routeReg *RouteRegistry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routeReg = routeReg
}

// ValidateUpstream checks the write-time invariants from spec.md §3/§4.1,
// independent of registry state (alias uniqueness is checked separately).
func ValidateUpstream(u *oagw.Upstream) error {
	if !oagw.AliasPattern.MatchString(u.Alias) {
		return oagwerrors.NewValidationFailedError(fmt.Sprintf("alias %q does not match required pattern", u.Alias), nil)
	}
	if len(u.Servers) == 0 {
		return oagwerrors.NewValidationFailedError("upstream must have at least one endpoint", nil)
	}
	for _, ep := range u.Servers {
		if ep.Port < 1 || ep.Port > 65535 {
			return oagwerrors.NewValidationFailedError(fmt.Sprintf("endpoint port %d out of range", ep.Port), nil)
		}
		if ep.Scheme != oagw.SchemeHTTP && ep.Scheme != oagw.SchemeHTTPS {
			return oagwerrors.NewValidationFailedError(fmt.Sprintf("endpoint scheme %q unsupported", ep.Scheme), nil)
		}
		if ep.Host == "" {
			return oagwerrors.NewValidationFailedError("endpoint host must not be empty", nil)
		}
	}
	if !oagw.KnownProtocolTags[u.ProtocolTag] {
		return oagwerrors.NewValidationFailedError(fmt.Sprintf("unknown protocol_tag %q", u.ProtocolTag), nil)
	}
	return nil
}

// Create validates and inserts a new upstream, assigning an id if unset.
func (r *UpstreamRegistry) Create(u oagw.Upstream) (*oagw.Upstream, error) {
	if err := ValidateUpstream(&u); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if _, exists := r.byID[u.ID]; exists {
		return nil, oagwerrors.NewError(oagwerrors.ErrConflict, fmt.Sprintf("upstream id %q already exists", u.ID), nil)
	}
	if _, exists := r.byAlias[u.Alias]; exists {
		return nil, oagwerrors.NewError(oagwerrors.ErrConflict, fmt.Sprintf("alias %q already exists", u.Alias), nil)
	}

	rec := u
	r.byID[rec.ID] = &rec
	r.byAlias[rec.Alias] = &rec
	return cloneUpstream(&rec), nil
}

// GetByID returns an immutable snapshot of the upstream, or NotFound.
func (r *UpstreamRegistry) GetByID(id string) (*oagw.Upstream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, oagwerrors.NewNotFoundError(fmt.Sprintf("upstream %q not found", id), nil)
	}
	return cloneUpstream(u), nil
}

// GetByAlias returns an immutable snapshot of the upstream, or NotFound.
func (r *UpstreamRegistry) GetByAlias(alias string) (*oagw.Upstream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byAlias[alias]
	if !ok {
		return nil, oagwerrors.NewNotFoundError(fmt.Sprintf("alias %q not found", alias), nil)
	}
	return cloneUpstream(u), nil
}

// List returns snapshots of all upstreams matching filter.
func (r *UpstreamRegistry) List(filter UpstreamFilter) []*oagw.Upstream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*oagw.Upstream, 0, len(r.byID))
	for _, u := range r.byID {
		if filter.ProtocolTag != "" && u.ProtocolTag != filter.ProtocolTag {
			continue
		}
		out = append(out, cloneUpstream(u))
	}
	return out
}

// UpstreamPatch is a partial update; nil fields are left unchanged. Alias,
// if set, is re-validated for uniqueness against every other upstream.
type UpstreamPatch struct {
	Alias               *string
	Servers             []oagw.Endpoint
	ProtocolTag         *oagw.ProtocolTag
	AuthPlugin          *oagw.PluginConfig
	CredentialRefs      []string
	DefaultRateLimit    *oagw.RateBucket
	RequireAuthzDefault *bool
}

// Update applies patch to the upstream identified by id, atomically from the
// perspective of concurrent readers: a pipeline that has already taken a
// snapshot keeps seeing the pre-update record.
func (r *UpstreamRegistry) Update(id string, patch UpstreamPatch) (*oagw.Upstream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[id]
	if !ok {
		return nil, oagwerrors.NewNotFoundError(fmt.Sprintf("upstream %q not found", id), nil)
	}

	updated := *existing
	oldAlias := existing.Alias
	if patch.Alias != nil {
		updated.Alias = *patch.Alias
	}
	if patch.Servers != nil {
		updated.Servers = patch.Servers
	}
	if patch.ProtocolTag != nil {
		updated.ProtocolTag = *patch.ProtocolTag
	}
	if patch.AuthPlugin != nil {
		updated.AuthPlugin = patch.AuthPlugin
	}
	if patch.CredentialRefs != nil {
		updated.CredentialRefs = patch.CredentialRefs
	}
	if patch.DefaultRateLimit != nil {
		updated.DefaultRateLimit = patch.DefaultRateLimit
	}
	if patch.RequireAuthzDefault != nil {
		updated.RequireAuthzDefault = *patch.RequireAuthzDefault
	}

	if err := ValidateUpstream(&updated); err != nil {
		return nil, err
	}
	if updated.Alias != oldAlias {
		if _, exists := r.byAlias[updated.Alias]; exists {
			return nil, oagwerrors.NewError(oagwerrors.ErrConflict, fmt.Sprintf("alias %q already exists", updated.Alias), nil)
		}
	}

	rec := updated
	r.byID[id] = &rec
	if rec.Alias != oldAlias {
		delete(r.byAlias, oldAlias)
	}
	r.byAlias[rec.Alias] = &rec
	return cloneUpstream(&rec), nil
}

// Delete removes the upstream and cascades to its routes (spec.md §4.1).
// In-flight pipeline executions that already captured a snapshot are
// unaffected (open question (i), decided in DESIGN.md / SPEC_FULL.md §5).
func (r *UpstreamRegistry) Delete(id string) error {
	r.mu.Lock()
	existing, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return oagwerrors.NewNotFoundError(fmt.Sprintf("upstream %q not found", id), nil)
	}
	delete(r.byID, id)
	delete(r.byAlias, existing.Alias)
	routeReg := r.routeReg
	r.mu.Unlock()

	if routeReg != nil {
		routeReg.DeleteByUpstream(id)
	}
	return nil
}

func cloneUpstream(u *oagw.Upstream) *oagw.Upstream {
	cp := *u
	cp.Servers = append([]oagw.Endpoint(nil), u.Servers...)
	cp.CredentialRefs = append([]string(nil), u.CredentialRefs...)
	return &cp
}
