// Package pipeline composes the proxy_request operation (spec.md §4.6):
// resolve upstream/route, authorize, acquire rate-limit capacity,
// build the outbound request, apply auth plugins, and dispatch via the
// Forwarder — instrumented with Prometheus counters/histograms and an
// OpenTelemetry span per stage.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/logger"
	"github.com/stacklok/oagw/pkg/oagw"
	"github.com/stacklok/oagw/pkg/oagw/authplugin"
	"github.com/stacklok/oagw/pkg/oagw/authz"
	"github.com/stacklok/oagw/pkg/oagw/forwarder"
	"github.com/stacklok/oagw/pkg/oagw/forwarder/httpforward"
	"github.com/stacklok/oagw/pkg/oagw/ratelimit"
	"github.com/stacklok/oagw/pkg/oagw/registry"
)

// InboundRequest is the normalized shape of a caller's request, already
// stripped of whatever transport framing delivered it to the facade.
type InboundRequest struct {
	Caller oagw.CallerIdentity
	Alias  string // upstream alias, the routing key (spec.md §4.1)
	Method string
	Path   string
	Header http.Header
	Query  string
	Body   []byte
	// RemoteAddr and Host are the inbound connection's address and the
	// request's original Host header, used only to populate
	// X-Forwarded-For/X-Forwarded-Host when configured (spec.md §4.6
	// step 6, §6 "oagw.forward.xff").
	RemoteAddr string
	Host       string
}

// Outcome labels the terminal state of one proxy_request call, used as
// the Prometheus "outcome" label.
type Outcome string

// Outcomes a proxy_request can end in.
const (
	OutcomeOK         Outcome = "ok"
	OutcomeNotFound   Outcome = "not_found"
	OutcomeForbidden  Outcome = "forbidden"
	OutcomeThrottled  Outcome = "throttled"
	OutcomeBadGateway Outcome = "bad_gateway"
	OutcomeError      Outcome = "error"
)

// Pipeline owns the collaborators proxy_request composes.
type Pipeline struct {
	Upstreams   *registry.UpstreamRegistry
	Routes      *registry.RouteRegistry
	Gate        *authz.Gate
	Plugins     *authplugin.Registry
	RateLimiter *ratelimit.Limiter
	HTTPClient  *http.Client
	Metrics     *Metrics
	// ForwardXFF enables X-Forwarded-For/X-Forwarded-Host injection
	// (spec.md §6 "oagw.forward.xff", default true).
	ForwardXFF bool
}

// resolved is the immutable (upstream, route) snapshot a single request
// executes against (spec.md §5): captured once, never re-read from the
// registries for the lifetime of this call.
type resolved struct {
	upstream *oagw.Upstream
	route    *oagw.Route
	params   map[string]string
}

// ProxyRequest runs the full pipeline for one inbound request and
// returns the upstream's response.
func (p *Pipeline) ProxyRequest(ctx context.Context, req InboundRequest) (*http.Response, Outcome, error) {
	ctx, span := startStageSpan(ctx, "proxy_request")
	defer span.End()
	span.SetAttributes(attribute.String("oagw.alias", req.Alias))

	start := time.Now()

	res, err := p.resolve(ctx, req)
	if err != nil {
		return p.fail(span, res, err, OutcomeNotFound)
	}

	// A matched route carries its own effective requirement; the
	// synthesized pass-through route (resolve, above) is seeded with
	// the upstream's default, so no further fallback is needed here.
	if err := p.authorize(ctx, req, res, res.route.RequireAuthz); err != nil {
		return p.fail(span, res, err, OutcomeForbidden)
	}

	if err := p.rateLimit(ctx, res); err != nil {
		return p.fail(span, res, err, OutcomeThrottled)
	}

	rb, err := p.buildOutbound(ctx, req, res)
	if err != nil {
		return p.fail(span, res, err, OutcomeError)
	}

	resp, err := p.forward(ctx, req, res, rb)
	if err != nil {
		return p.fail(span, res, err, OutcomeBadGateway)
	}

	p.Metrics.observeHeaderLatencySeconds(res.upstream.Alias, res.route.ID, time.Since(start).Seconds())
	p.Metrics.observeOutcome(res.upstream.Alias, res.route.ID, string(OutcomeOK))
	span.SetStatus(codes.Ok, "")
	return resp, OutcomeOK, nil
}

func (p *Pipeline) fail(span interface {
	SetStatus(codes.Code, string)
}, res *resolved, err error, outcome Outcome) (*http.Response, Outcome, error) {
	upstreamLabel, routeLabel := "unknown", "unknown"
	if res != nil {
		if res.upstream != nil {
			upstreamLabel = res.upstream.Alias
		}
		if res.route != nil {
			routeLabel = res.route.ID
		}
	}
	p.Metrics.observeOutcome(upstreamLabel, routeLabel, string(outcome))
	span.SetStatus(codes.Error, err.Error())
	return nil, outcome, err
}

func (p *Pipeline) resolve(ctx context.Context, req InboundRequest) (*resolved, error) {
	_, span := startStageSpan(ctx, "resolve")
	defer span.End()

	upstream, err := p.Upstreams.GetByAlias(req.Alias)
	if err != nil {
		return nil, err
	}

	routes := p.Routes.ListByUpstream(upstream.ID)
	for _, rt := range routes {
		for _, rule := range rt.Match {
			if params, ok := registry.MatchRequest(rule, req.Method, req.Path, req.Header); ok {
				return &resolved{upstream: upstream, route: rt, params: params}, nil
			}
		}
	}

	// No explicit route matched: synthesize the pass-through route
	// spec.md §3/§4.6 step 3 describes, honoring the upstream's default
	// authorization requirement.
	return &resolved{
		upstream: upstream,
		route: &oagw.Route{
			ID:           fmt.Sprintf("synthetic:%s", upstream.ID),
			UpstreamID:   upstream.ID,
			RequireAuthz: upstream.RequireAuthzDefault,
			Synthetic:    true,
		},
		params: map[string]string{},
	}, nil
}

func (p *Pipeline) authorize(ctx context.Context, req InboundRequest, res *resolved, requireAuthz bool) error {
	ctx, span := startStageSpan(ctx, "authorize")
	defer span.End()
	return p.Gate.Check(ctx, req.Caller, res.upstream.ID, res.route.ID, oagw.ActionProxy, requireAuthz)
}

func (p *Pipeline) rateLimit(ctx context.Context, res *resolved) error {
	_, span := startStageSpan(ctx, "rate_limit")
	defer span.End()

	// Route's bucket wins outright when present; only fall back to the
	// upstream default when the matched route has none (Open Question 2).
	bucket := res.route.RateLimit
	if bucket == nil {
		bucket = res.upstream.DefaultRateLimit
	}
	if bucket == nil {
		return nil
	}

	key := rateLimitKey(*bucket, res)
	return p.RateLimiter.Acquire(ctx, key, *bucket, 1)
}

func rateLimitKey(bucket oagw.RateBucket, res *resolved) string {
	if bucket.KeyTemplate != "" {
		return bucket.KeyTemplate + ":" + res.route.ID
	}
	return res.upstream.ID + ":" + res.route.ID
}

func (p *Pipeline) buildOutbound(ctx context.Context, req InboundRequest, res *resolved) (*authplugin.RequestBuilder, error) {
	_, span := startStageSpan(ctx, "build_outbound")
	defer span.End()

	rb := authplugin.NewRequestBuilder()
	for k, vs := range req.Header {
		for _, v := range vs {
			rb.Header.Add(k, v)
		}
	}
	forwarder.StripHopByHop(rb.Header)
	if p.ForwardXFF {
		forwarder.AppendForwardedHeaders(rb.Header, req.RemoteAddr, req.Host)
	}

	ctx = authplugin.WithCaller(ctx, req.Caller.ID)
	if err := p.Plugins.ApplyChain(ctx, rb, res.upstream.AuthPlugin, res.route.Plugins); err != nil {
		return nil, err
	}
	return rb, nil
}

func (p *Pipeline) forward(ctx context.Context, req InboundRequest, res *resolved, rb *authplugin.RequestBuilder) (*http.Response, error) {
	ctx, span := startStageSpan(ctx, "forward")
	defer span.End()

	query := req.Query
	if len(rb.Query) > 0 {
		if query != "" {
			query += "&"
		}
		query += rb.Query.Encode()
	}

	resp, err := httpforward.Forward(ctx, p.HTTPClient, res.upstream.Servers, httpforward.Request{
		Method: req.Method,
		Path:   req.Path,
		Header: rb.Header,
		Query:  query,
		Body:   bodyReader(req.Body),
	})
	if err != nil {
		logger.FromContext(ctx).Warn("forwarding failed", "upstream", res.upstream.Alias, "route", res.route.ID, "error", err)
		return nil, oagwerrors.NewUpstreamUnreachableError("upstream unreachable", err)
	}
	return resp, nil
}

func bodyReader(body []byte) io.Reader {
	if len(body) == 0 {
		return nil
	}
	return bytes.NewReader(body)
}
