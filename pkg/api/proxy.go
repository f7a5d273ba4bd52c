package api

import (
	"context"
	"io"
	"net/http"
	"strings"

	apierrors "github.com/stacklok/oagw/pkg/api/errors"
	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/oagw"
	"github.com/stacklok/oagw/pkg/oagw/facade"
	"github.com/stacklok/oagw/pkg/oagw/forwarder"
	"github.com/stacklok/oagw/pkg/oagw/forwarder/sseforward"
	"github.com/stacklok/oagw/pkg/oagw/forwarder/wsforward"
	"github.com/stacklok/oagw/pkg/oagw/pipeline"
)

// callerFromRequest builds the CallerIdentity from whatever upstream
// authentication layer populated the request context or headers. OAGW
// does not implement authentication itself (spec.md §1, out of scope);
// it trusts an "X-Caller-Id" header set by that layer.
func callerFromRequest(r *http.Request) oagw.CallerIdentity {
	return oagw.CallerIdentity{ID: r.Header.Get("X-Caller-Id")}
}

type proxyRoutes struct {
	facade *facade.Facade
}

// ProxyRouter mounts the gateway's single catch-all entry point: every
// inbound call is addressed as /{alias}/{rest of path}, resolved by the
// Service Facade's proxy_request operation (spec.md §4.6).
func ProxyRouter(f *facade.Facade) http.Handler {
	routes := &proxyRoutes{facade: f}
	r := http.NewServeMux()
	r.HandleFunc("/", routes.handle)
	return r
}

// handle classifies the inbound request and either proxies it through the
// pipeline's buffered HTTP round trip (unary, SSE) or, for WebSocket
// upgrades, hands the raw connection to wsforward directly: an upgraded
// connection can't be expressed as an *http.Response, so it bypasses the
// pipeline's forward() stage and is wired straight to the resolved
// upstream's primary endpoint.
//
//	@Summary		Proxy a request to a configured upstream
//	@Description	Resolves {alias}, authorizes, rate-limits, and forwards
//	@Tags			proxy
//	@Param			alias	path	string	true	"Upstream alias"
//	@Router			/v1/proxy/{alias} [get]
//	@Router			/v1/proxy/{alias} [post]
func (p *proxyRoutes) handle(w http.ResponseWriter, r *http.Request) {
	alias, rest := splitAliasPath(r.URL.Path)
	if alias == "" {
		apierrors.ErrorHandler(func(http.ResponseWriter, *http.Request) error {
			return oagwerrors.NewBadRequestError("missing upstream alias in path", nil)
		})(w, r)
		return
	}

	if forwarder.Classify(r) == forwarder.KindWebSocket {
		p.handleWebSocket(w, r, alias, rest)
		return
	}

	apierrors.ErrorHandler(p.handleUnaryOrSSE(alias, rest))(w, r)
}

func (p *proxyRoutes) handleUnaryOrSSE(alias, path string) apierrors.HandlerWithError {
	return func(w http.ResponseWriter, r *http.Request) error {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return oagwerrors.NewBadRequestError("failed to read request body", err)
		}

		resp, _, err := p.facade.ProxyRequest(r.Context(), pipeline.InboundRequest{
			Caller:     callerFromRequest(r),
			Alias:      alias,
			Method:     r.Method,
			Path:       path,
			Header:     r.Header.Clone(),
			Query:      r.URL.RawQuery,
			Body:       body,
			RemoteAddr: r.RemoteAddr,
			Host:       r.Host,
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		forwarder.StripHopByHop(resp.Header)
		for k, vs := range resp.Header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)

		if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
			return streamSSE(r.Context(), w, resp.Body)
		}
		return copyBody(w, resp.Body)
	}
}

// streamSSE re-parses the upstream's event-stream body on event
// boundaries and re-encodes each event downstream, rather than copying
// raw bytes, so a caller never sees a frame split mid-event.
func streamSSE(ctx context.Context, w http.ResponseWriter, body io.Reader) error {
	flusher, canFlush := w.(http.Flusher)
	err := sseforward.Forward(ctx, body, func(ev sseforward.Event) error {
		if _, err := w.Write(sseforward.Encode(ev)); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return nil // best-effort: upstream closed mid-stream, nothing left to report to a client already receiving bytes
	}
	return nil
}

func copyBody(w http.ResponseWriter, body io.Reader) error {
	flusher, canFlush := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return nil
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return nil
		}
	}
}

func (p *proxyRoutes) handleWebSocket(w http.ResponseWriter, r *http.Request, alias, path string) {
	upstream, err := p.facade.Upstreams.GetByAlias(alias)
	if err != nil {
		apierrors.ErrorHandler(func(http.ResponseWriter, *http.Request) error { return err })(w, r)
		return
	}
	if err := wsforward.Forward(r.Context(), w, r, upstream.Primary(), path, r.Header.Clone()); err != nil {
		apierrors.ErrorHandler(func(http.ResponseWriter, *http.Request) error {
			return oagwerrors.NewUpstreamUnreachableError("websocket upgrade failed", err)
		})(w, r)
	}
}

// splitAliasPath splits "/alias/rest/of/path" into ("alias", "/rest/of/path").
func splitAliasPath(urlPath string) (alias, rest string) {
	trimmed := strings.TrimPrefix(urlPath, "/")
	idx := strings.Index(trimmed, "/")
	if idx < 0 {
		return trimmed, "/"
	}
	return trimmed[:idx], trimmed[idx:]
}
