// Package api contains the REST API for the outbound gateway's Service
// Facade: upstream/route CRUD, proxy_request, and a health endpoint.
package api

// The OpenAPI spec is generated using "github.com/swaggo/swag/v2/cmd/swag@v2.0.0-rc4"
// To update the OpenAPI spec, run:
// install swag:
//	go install github.com/swaggo/swag/v2/cmd/swag@v2.0.0-rc4
// generate the spec:
//	swag init -g pkg/api/server.go --v3.1

// @title           OAGW API
// @version         1.0
// @description     Outbound API Gateway Service Facade.

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stacklok/oagw/pkg/logger"
	"github.com/stacklok/oagw/pkg/oagw/facade"
)

// Not sure if these values need to be configurable.
const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// NewRouter builds the facade's HTTP surface. metricsGatherer is optional;
// when non-nil it is served at /metrics via promhttp.
func NewRouter(f *facade.Facade, metricsGatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
	)

	routers := map[string]http.Handler{
		"/healthz":      HealthcheckRouter(),
		"/v1/upstreams": UpstreamsRouter(f),
		"/v1/routes":    RoutesRouter(f),
		"/v1/proxy":     http.StripPrefix("/v1/proxy", ProxyRouter(f)),
	}
	if metricsGatherer != nil {
		routers["/metrics"] = promhttp.HandlerFor(metricsGatherer, promhttp.HandlerOpts{})
	}
	for prefix, router := range routers {
		r.Mount(prefix, router)
	}
	return r
}

// Serve starts the HTTP server on the given address and serves the API.
// It is assumed that the caller sets up appropriate signal handling.
func Serve(ctx context.Context, address string, f *facade.Facade, metricsGatherer prometheus.Gatherer) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           NewRouter(f, metricsGatherer),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Infof("starting http server on %s", srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server stopped with error: %v", err)
		}
	}()

	<-ctx.Done()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed:%+v", err)
	}

	logger.Infof("http server stopped")
	return nil
}
