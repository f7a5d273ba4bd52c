// Package api implements the Outbound API Gateway's control-plane and
// data-plane HTTP surface: CRUD over upstreams and routes, and the
// proxy endpoint that drives proxy_request.
package api
