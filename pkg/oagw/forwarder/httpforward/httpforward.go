// Package httpforward implements the unary HTTP forwarding branch: one
// outbound request built from the pipeline's resolved endpoint, with
// endpoint fallback retry restricted to connect-phase errors (spec.md
// §4.2 "fallback endpoints are only tried when the primary never
// accepted the connection").
package httpforward

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/stacklok/oagw/pkg/logger"
	"github.com/stacklok/oagw/pkg/oagw"
	"github.com/stacklok/oagw/pkg/oagw/forwarder"
)

// Request is the fully-prepared outbound request the pipeline hands to
// Forward: method, path, headers and body already built and
// credential-injected, missing only the endpoint's scheme/host/port.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Query  string
	Body   io.Reader
}

// Forward issues req against endpoints in order, retrying the next
// endpoint only when the error occurred before a request was accepted
// by a server (DNS failure, connection refused, TLS handshake failure).
// Any error returned once a response has been read is returned as-is;
// it is not a fallback trigger.
func Forward(ctx context.Context, client *http.Client, endpoints []oagw.Endpoint, req Request) (*http.Response, error) {
	var lastErr error
	for i, ep := range endpoints {
		resp, err := attempt(ctx, client, ep, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isConnectPhaseError(err) {
			return nil, err
		}
		logger.FromContext(ctx).Warn("endpoint unreachable, trying fallback", "endpoint_index", i, "host", ep.Host, "error", err)
	}
	return nil, fmt.Errorf("all endpoints unreachable: %w", lastErr)
}

func attempt(ctx context.Context, client *http.Client, ep oagw.Endpoint, req Request) (*http.Response, error) {
	url := fmt.Sprintf("%s://%s:%d%s", ep.Scheme, ep.Host, ep.Port, req.Path)
	if req.Query != "" {
		url += "?" + req.Query
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, req.Body)
	if err != nil {
		return nil, err
	}
	httpReq.Header = req.Header.Clone()
	forwarder.StripHopByHop(httpReq.Header)

	return client.Do(httpReq)
}

// isConnectPhaseError reports whether err occurred before any bytes of
// a response were read: DNS resolution, TCP connect, or TLS handshake
// failures. Once headers start arriving the attempt has committed.
func isConnectPhaseError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}
	var recordErr tls.RecordHeaderError
	return errors.As(err, &recordErr)
}
