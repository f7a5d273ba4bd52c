// Package networking builds outbound HTTP clients and provides small
// helpers for calling JSON APIs, shared by the Forwarder and the
// Authorization Gate's external-resolver calls.
package networking

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
)

// HttpTimeout is the default overall client timeout.
const HttpTimeout = 30 * time.Second

// HttpClientBuilder constructs an *http.Client with gateway-appropriate
// defaults: bounded timeouts, optional CA bundle, optional bearer token
// loaded from a file, and optional SSRF protection against private IPs.
type HttpClientBuilder struct {
	clientTimeout         time.Duration
	tlsHandshakeTimeout   time.Duration
	responseHeaderTimeout time.Duration
	caCertPath            string
	authTokenFile         string
	allowPrivate          bool
}

// NewHttpClientBuilder returns a builder seeded with gateway defaults.
func NewHttpClientBuilder() *HttpClientBuilder {
	return &HttpClientBuilder{
		clientTimeout:         HttpTimeout,
		tlsHandshakeTimeout:   10 * time.Second,
		responseHeaderTimeout: 10 * time.Second,
	}
}

// WithCABundle sets a PEM CA bundle path to trust in addition to the system pool.
func (b *HttpClientBuilder) WithCABundle(path string) *HttpClientBuilder {
	b.caCertPath = path
	return b
}

// WithTokenFromFile sets a path to a file whose contents are sent as a bearer
// token on every request issued by the built client.
func (b *HttpClientBuilder) WithTokenFromFile(path string) *HttpClientBuilder {
	b.authTokenFile = path
	return b
}

// WithPrivateIPs toggles whether the client may dial RFC1918/loopback/link-local
// addresses. Disallowed by default to avoid SSRF via attacker-controlled hosts.
func (b *HttpClientBuilder) WithPrivateIPs(allow bool) *HttpClientBuilder {
	b.allowPrivate = allow
	return b
}

// WithTimeout overrides the overall client timeout. A zero duration
// disables it entirely, leaving ResponseHeaderTimeout to bound only the
// wait for response headers; nothing then bounds a body once it has
// started streaming.
func (b *HttpClientBuilder) WithTimeout(d time.Duration) *HttpClientBuilder {
	b.clientTimeout = d
	return b
}

// WithResponseHeaderTimeout overrides the time the client waits for
// response headers after writing the request. This is the right knob
// for a proxy deadline that must not also bound a streaming body: set
// it alongside WithTimeout(0) to bound only "request sent" through
// "first byte of response headers".
func (b *HttpClientBuilder) WithResponseHeaderTimeout(d time.Duration) *HttpClientBuilder {
	b.responseHeaderTimeout = d
	return b
}

// Build constructs the *http.Client.
func (b *HttpClientBuilder) Build() (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if b.caCertPath != "" {
		pem, err := os.ReadFile(b.caCertPath)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no valid certificates found in %s", b.caCertPath)
		}
		tlsConfig.RootCAs = pool
	}

	baseTransport := &http.Transport{
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   b.tlsHandshakeTimeout,
		ResponseHeaderTimeout: b.responseHeaderTimeout,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second}).DialContext,
	}

	var transport http.RoundTripper = baseTransport
	if !b.allowPrivate {
		transport = &ValidatingTransport{base: baseTransport}
	}

	var token string
	if b.authTokenFile != "" {
		raw, err := os.ReadFile(b.authTokenFile)
		if err != nil {
			return nil, fmt.Errorf("reading auth token file: %w", err)
		}
		token = strings.TrimSpace(string(raw))
	}
	if token != "" {
		transport = &bearerTokenTransport{base: transport, token: token}
	}

	return &http.Client{
		Timeout:   b.clientTimeout,
		Transport: transport,
	}, nil
}

// ValidatingTransport rejects requests whose host is an IP literal in a
// private, loopback, link-local unicast or link-local multicast range,
// guarding against SSRF to internal services when a gateway caller
// controls part of the outbound URL. Hostnames are not resolved and are
// passed through unchecked.
type ValidatingTransport struct {
	base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *ValidatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()
	if ip := net.ParseIP(host); ip != nil {
		if isDisallowedIP(ip) {
			return nil, fmt.Errorf("networking: refusing to dial private address %s", host)
		}
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func isDisallowedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

type bearerTokenTransport struct {
	base  http.RoundTripper
	token string
}

func (t *bearerTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
