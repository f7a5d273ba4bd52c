// Package authplugin provides the named auth plugin registry and the
// outbound-request builder contract every plugin mutates: each plugin
// injects credentials into the outbound request before it reaches the
// Forwarder (spec.md §4.3, §4.6 step 4).
package authplugin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/oagw"
	"github.com/stacklok/oagw/pkg/oagw/credentials"
)

// RequestBuilder is the mutable outbound-request-in-progress that auth
// plugins apply credentials to. It wraps the header and query values
// that will form the request the Forwarder eventually sends.
type RequestBuilder struct {
	Header http.Header
	Query  url.Values
}

// NewRequestBuilder returns an empty builder.
func NewRequestBuilder() *RequestBuilder {
	return &RequestBuilder{Header: http.Header{}, Query: url.Values{}}
}

// Plugin is one named auth mechanism. Apply mutates rb in place and
// returns an `internal.v1` error if the credential it needs is missing
// or malformed.
type Plugin interface {
	Apply(ctx context.Context, rb *RequestBuilder, cfg oagw.PluginConfig) error
}

// Constructor builds a Plugin instance. Plugins are stateless with
// respect to a single Apply call; cfg is supplied per call so one
// registered Plugin can serve many differently-configured PluginConfigs.
type Constructor func(store *credentials.Store) Plugin

// Registry is the named constructor table auth plugins are looked up in.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
	store *credentials.Store
}

// NewRegistry constructs a registry pre-seeded with the built-in "noop",
// "api-key" and "jwt" plugins, backed by store for credential lookups.
func NewRegistry(store *credentials.Store) *Registry {
	r := &Registry{ctors: make(map[string]Constructor), store: store}
	r.Register("noop", func(*credentials.Store) Plugin { return noopPlugin{} })
	r.Register("api-key", func(s *credentials.Store) Plugin { return apiKeyPlugin{store: s} })
	r.Register("jwt", func(s *credentials.Store) Plugin { return jwtPlugin{store: s} })
	return r
}

// Register adds or replaces a named plugin constructor.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

// Build instantiates the named plugin, or NotFound if unregistered.
func (r *Registry) Build(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctors[name]
	if !ok {
		return nil, oagwerrors.NewNotFoundError(fmt.Sprintf("auth plugin %q not registered", name), nil)
	}
	return ctor(r.store), nil
}

// ApplyChain runs upstreamPlugin (if any) followed by routePlugins in
// order, per spec.md §4.3's composition rule: upstream plugin first,
// then route plugins in declaration order, each free to layer
// additional credentials (e.g. upstream API key + route-level signing
// header) onto the same RequestBuilder.
func (r *Registry) ApplyChain(ctx context.Context, rb *RequestBuilder, upstreamPlugin *oagw.PluginConfig, routePlugins []oagw.PluginConfig) error {
	if upstreamPlugin != nil {
		if err := r.applyOne(ctx, rb, *upstreamPlugin); err != nil {
			return err
		}
	}
	for _, cfg := range routePlugins {
		if err := r.applyOne(ctx, rb, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) applyOne(ctx context.Context, rb *RequestBuilder, cfg oagw.PluginConfig) error {
	p, err := r.Build(cfg.Name)
	if err != nil {
		return err
	}
	return p.Apply(ctx, rb, cfg)
}

// noopPlugin injects nothing; it exists so an upstream/route can opt out
// of credential injection explicitly rather than by omission.
type noopPlugin struct{}

func (noopPlugin) Apply(context.Context, *RequestBuilder, oagw.PluginConfig) error { return nil }
