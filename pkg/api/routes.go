package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/stacklok/oagw/pkg/api/errors"
	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/oagw"
	"github.com/stacklok/oagw/pkg/oagw/facade"
	"github.com/stacklok/oagw/pkg/oagw/registry"
)

type routeRoutes struct {
	facade *facade.Facade
}

// RoutesRouter wires CRUD handlers for route records onto the facade.
// Routes are always listed and created scoped to an upstream: the registry
// orders them per-upstream for first-match-wins evaluation (spec.md §3).
func RoutesRouter(f *facade.Facade) http.Handler {
	routes := &routeRoutes{facade: f}
	r := chi.NewRouter()
	r.Get("/", apierrors.ErrorHandler(routes.listForUpstream))
	r.Post("/", apierrors.ErrorHandler(routes.create))
	r.Get("/{id}", apierrors.ErrorHandler(routes.get))
	r.Patch("/{id}", apierrors.ErrorHandler(routes.update))
	r.Delete("/{id}", apierrors.ErrorHandler(routes.delete))
	return r
}

type routeListResponse struct {
	Routes []*oagw.Route `json:"routes"`
}

//	 listForUpstream
//		@Summary		List routes for an upstream
//		@Tags			routes
//		@Produce		json
//		@Param			upstream_id	query		string	true	"Upstream id"
//		@Success		200	{object}	routeListResponse
//		@Router			/v1/routes [get]
func (rr *routeRoutes) listForUpstream(w http.ResponseWriter, r *http.Request) error {
	upstreamID := r.URL.Query().Get("upstream_id")
	if upstreamID == "" {
		return oagwerrors.NewBadRequestError("upstream_id query parameter is required", nil)
	}
	return writeJSON(w, http.StatusOK, routeListResponse{Routes: rr.facade.ListRoutesForUpstream(upstreamID)})
}

//	 create
//		@Summary		Create a route
//		@Tags			routes
//		@Accept			json
//		@Produce		json
//		@Param			route	body		oagw.Route	true	"Route definition"
//		@Success		201	{object}	oagw.Route
//		@Router			/v1/routes [post]
func (rr *routeRoutes) create(w http.ResponseWriter, r *http.Request) error {
	var body oagw.Route
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return oagwerrors.NewBadRequestError(fmt.Sprintf("invalid request body: %v", err), err)
	}
	created, err := rr.facade.CreateRoute(body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, created)
}

//	 get
//		@Summary		Get a route
//		@Tags			routes
//		@Produce		json
//		@Param			id	path		string	true	"Route id"
//		@Success		200	{object}	oagw.Route
//		@Failure		404	{string}	string	"Not Found"
//		@Router			/v1/routes/{id} [get]
func (rr *routeRoutes) get(w http.ResponseWriter, r *http.Request) error {
	got, err := rr.facade.GetRoute(chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, got)
}

type routePatchRequest struct {
	Match        []oagw.MatchRule    `json:"match,omitempty"`
	Plugins      []oagw.PluginConfig `json:"plugins,omitempty"`
	RateLimit    *oagw.RateBucket    `json:"rate_limit,omitempty"`
	RequireAuthz *bool               `json:"require_authz,omitempty"`
}

//	 update
//		@Summary		Patch a route
//		@Tags			routes
//		@Accept			json
//		@Produce		json
//		@Param			id	path		string	true	"Route id"
//		@Param			patch	body		routePatchRequest	true	"Fields to update"
//		@Success		200	{object}	oagw.Route
//		@Router			/v1/routes/{id} [patch]
func (rr *routeRoutes) update(w http.ResponseWriter, r *http.Request) error {
	var body routePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return oagwerrors.NewBadRequestError(fmt.Sprintf("invalid request body: %v", err), err)
	}
	patch := registry.RoutePatch{
		Match:        body.Match,
		Plugins:      body.Plugins,
		RateLimit:    body.RateLimit,
		RequireAuthz: body.RequireAuthz,
	}
	updated, err := rr.facade.UpdateRoute(chi.URLParam(r, "id"), patch)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, updated)
}

//	 delete
//		@Summary		Delete a route
//		@Tags			routes
//		@Param			id	path		string	true	"Route id"
//		@Success		204	{string}	string	"No Content"
//		@Router			/v1/routes/{id} [delete]
func (rr *routeRoutes) delete(w http.ResponseWriter, r *http.Request) error {
	if err := rr.facade.DeleteRoute(chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
