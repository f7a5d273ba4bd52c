// Package forwarder dispatches an authorized, credential-injected
// outbound request to its resolved endpoint, branching by protocol
// shape (spec.md §4.2, §4.6 step 6): a plain HTTP unary round trip, a
// Server-Sent Events stream, or a WebSocket upgrade.
package forwarder

import (
	"net"
	"net/http"
	"strings"
)

// Kind is the wire shape a single request/response exchange takes.
type Kind int

// Forwarding kinds, in the order spec.md §4.2 lists them.
const (
	KindUnary Kind = iota
	KindSSE
	KindWebSocket
)

// hopByHopHeaders are stripped from both directions per RFC 7230 §6.1,
// the same list the teacher's own reverse-proxy path strips.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// StripHopByHop removes hop-by-hop headers from h in place.
func StripHopByHop(h http.Header) {
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// Classify picks the forwarding Kind for an inbound request, per
// spec.md §4.2: WebSocket on an Upgrade: websocket header, SSE when the
// caller declares Accept: text/event-stream, unary HTTP otherwise.
func Classify(r *http.Request) Kind {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return KindWebSocket
	}
	if acceptsEventStream(r.Header.Get("Accept")) {
		return KindSSE
	}
	return KindUnary
}

// AppendForwardedHeaders adds X-Forwarded-For (appending to any
// existing chain) and X-Forwarded-Host (the inbound request's Host, set
// only if not already present) to h, per spec.md §4.6 step 6.
// remoteAddr is the inbound connection's address (host:port or bare
// host); malformed values are skipped rather than forwarded verbatim.
func AppendForwardedHeaders(h http.Header, remoteAddr, host string) {
	if ip := clientIP(remoteAddr); ip != "" {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			h.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			h.Set("X-Forwarded-For", ip)
		}
	}
	if host != "" && h.Get("X-Forwarded-Host") == "" {
		h.Set("X-Forwarded-Host", host)
	}
}

func clientIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

func acceptsEventStream(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		if strings.HasPrefix(strings.TrimSpace(part), "text/event-stream") {
			return true
		}
	}
	return false
}
