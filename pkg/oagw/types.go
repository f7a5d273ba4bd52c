// Package oagw defines the data model and external collaborator interfaces
// for the Outbound API Gateway: the Upstream/Route registries, the
// credential and rate-limit descriptors they carry, and the pluggable
// seams (TypeProvider, AuthzResolver) the core pipeline depends on but
// does not implement.
package oagw

import (
	"context"
	"regexp"
)

// AliasPattern is the syntax every Upstream.Alias must satisfy.
var AliasPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,62}$`)

// Scheme is the transport scheme of an Endpoint.
type Scheme string

// Supported endpoint schemes.
const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
)

// Endpoint is one network location an Upstream can be reached at.
type Endpoint struct {
	Scheme Scheme
	Host   string
	Port   int
}

// ProtocolTag names the wire shape a Forwarder branch handles.
type ProtocolTag string

// Known protocol tags (spec.md §3: "protocol_tag ∈ known set").
const (
	ProtocolHTTPv1 ProtocolTag = "http/v1"
	ProtocolGRPC   ProtocolTag = "grpc/v1"
)

// KnownProtocolTags lists every ProtocolTag the Forwarder can dispatch.
var KnownProtocolTags = map[ProtocolTag]bool{
	ProtocolHTTPv1: true,
	ProtocolGRPC:   true,
}

// PluginConfig is a named, opaque-configured auth plugin instantiation.
type PluginConfig struct {
	Name   string
	Config map[string]any
}

// RateBucket describes a token-bucket rate limit and how to derive its key.
type RateBucket struct {
	Capacity       int64
	RefillPerSec   float64
	KeyTemplate    string
}

// Upstream is a configured external service: a set of endpoints, a protocol
// tag selecting the Forwarder branch, and the auth/credential/rate-limit
// policy that applies to every route bound to it unless overridden.
type Upstream struct {
	ID          string
	Alias       string
	Servers     []Endpoint
	ProtocolTag ProtocolTag
	AuthPlugin  *PluginConfig
	// CredentialRefs are the credential ids this upstream's plugins may read.
	CredentialRefs []string
	DefaultRateLimit *RateBucket
	// RequireAuthzDefault governs the synthesized pass-through route (spec.md §3).
	RequireAuthzDefault bool
}

// Primary returns the first, primary endpoint. Callers must not call this on
// an Upstream with no endpoints; the registry's write path forbids that.
func (u *Upstream) Primary() Endpoint {
	return u.Servers[0]
}

// Fallbacks returns the positional fallback endpoints after the primary.
func (u *Upstream) Fallbacks() []Endpoint {
	if len(u.Servers) <= 1 {
		return nil
	}
	return u.Servers[1:]
}

// MatchKind distinguishes the two MatchRule shapes spec.md §3 describes.
type MatchKind int

// Match rule kinds.
const (
	MatchHTTP MatchKind = iota
	MatchGRPC
)

// HeaderPredicateKind selects how a header predicate is evaluated.
type HeaderPredicateKind int

// Header predicate kinds.
const (
	HeaderExact HeaderPredicateKind = iota
	HeaderPresent
)

// HeaderPredicate constrains one request header.
type HeaderPredicate struct {
	Name  string
	Kind  HeaderPredicateKind
	Value string // only meaningful when Kind == HeaderExact
}

// MatchRule is one disjunct of a Route's match expression.
type MatchRule struct {
	Kind MatchKind

	// HTTP fields.
	Methods         map[string]bool
	PathPattern     string
	HeaderPredicates []HeaderPredicate

	// gRPC fields.
	Service string
	Method  string
}

// Route binds a match expression to an upstream, with its own plugin
// chain layered above the upstream's and an optional rate-limit override.
type Route struct {
	ID         string
	UpstreamID string
	Match      []MatchRule
	Plugins    []PluginConfig
	RateLimit  *RateBucket
	RequireAuthz bool
	// Synthetic marks a pass-through route synthesized at resolution time
	// rather than created via CRUD (spec.md §3, §4.6 step 3).
	Synthetic bool
}

// Credential is opaque secret material plus a classification tag.
type Credential struct {
	ID      string
	Secret  []byte
	Kind    string
}

// AuthAction identifies the operation an Authorization Gate call is checking.
type AuthAction string

// ActionProxy is the single action OAGW's pipeline ever checks: "may this
// caller send this request through this route".
const ActionProxy AuthAction = "proxy"

// AuthzDecision is the external AuthzResolver's verdict.
type AuthzDecision struct {
	Allowed bool
	Reason  string
}

// CallerIdentity identifies the caller making the inbound request, as
// established by whatever authentication layer sits in front of OAGW.
type CallerIdentity struct {
	ID     string
	Claims map[string]any
}

// AuthzResolver is the external collaborator that decides whether a caller
// may use a route (spec.md §1 "out of scope"; §4.4). OAGW only calls it.
type AuthzResolver interface {
	Authorize(ctx context.Context, caller CallerIdentity, upstreamID, routeID string, action AuthAction) (AuthzDecision, error)
}

// ProvisionedUpstream and ProvisionedRoute are the records a TypeProvider
// hands the Provisioner at startup (spec.md §4.7).
type ProvisionedUpstream struct {
	Upstream Upstream
}

// ProvisionedRoute is a Route record from the TypeProvider.
type ProvisionedRoute struct {
	Route Route
}

// TypeProvider is the external types-registry collaborator (spec.md §1):
// a read-only source of pre-configured upstream/route records.
type TypeProvider interface {
	ListUpstreams(ctx context.Context) ([]ProvisionedUpstream, error)
	ListRoutes(ctx context.Context) ([]ProvisionedRoute, error)
}
