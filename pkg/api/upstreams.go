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

type upstreamRoutes struct {
	facade *facade.Facade
}

// UpstreamsRouter wires CRUD handlers for upstream records onto the facade.
func UpstreamsRouter(f *facade.Facade) http.Handler {
	routes := &upstreamRoutes{facade: f}
	r := chi.NewRouter()
	r.Get("/", apierrors.ErrorHandler(routes.list))
	r.Post("/", apierrors.ErrorHandler(routes.create))
	r.Get("/{id}", apierrors.ErrorHandler(routes.get))
	r.Patch("/{id}", apierrors.ErrorHandler(routes.update))
	r.Delete("/{id}", apierrors.ErrorHandler(routes.delete))
	return r
}

type upstreamListResponse struct {
	Upstreams []*oagw.Upstream `json:"upstreams"`
}

//	 list
//		@Summary		List upstreams
//		@Tags			upstreams
//		@Produce		json
//		@Param			protocol_tag	query		string	false	"Filter by protocol tag"
//		@Success		200	{object}	upstreamListResponse
//		@Router			/v1/upstreams [get]
func (u *upstreamRoutes) list(w http.ResponseWriter, r *http.Request) error {
	filter := registry.UpstreamFilter{ProtocolTag: oagw.ProtocolTag(r.URL.Query().Get("protocol_tag"))}
	return writeJSON(w, http.StatusOK, upstreamListResponse{Upstreams: u.facade.ListUpstreams(filter)})
}

//	 create
//		@Summary		Create an upstream
//		@Tags			upstreams
//		@Accept			json
//		@Produce		json
//		@Param			upstream	body		oagw.Upstream	true	"Upstream definition"
//		@Success		201	{object}	oagw.Upstream
//		@Router			/v1/upstreams [post]
func (u *upstreamRoutes) create(w http.ResponseWriter, r *http.Request) error {
	var body oagw.Upstream
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return oagwerrors.NewBadRequestError(fmt.Sprintf("invalid request body: %v", err), err)
	}
	created, err := u.facade.CreateUpstream(body)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, created)
}

//	 get
//		@Summary		Get an upstream
//		@Tags			upstreams
//		@Produce		json
//		@Param			id	path		string	true	"Upstream id"
//		@Success		200	{object}	oagw.Upstream
//		@Failure		404	{string}	string	"Not Found"
//		@Router			/v1/upstreams/{id} [get]
func (u *upstreamRoutes) get(w http.ResponseWriter, r *http.Request) error {
	got, err := u.facade.GetUpstream(chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, got)
}

type upstreamPatchRequest struct {
	Alias               *string           `json:"alias,omitempty"`
	Servers             []oagw.Endpoint   `json:"servers,omitempty"`
	ProtocolTag         *oagw.ProtocolTag `json:"protocol_tag,omitempty"`
	AuthPlugin          *oagw.PluginConfig `json:"auth_plugin,omitempty"`
	CredentialRefs      []string          `json:"credential_refs,omitempty"`
	DefaultRateLimit    *oagw.RateBucket  `json:"default_rate_limit,omitempty"`
	RequireAuthzDefault *bool             `json:"require_authz_default,omitempty"`
}

//	 update
//		@Summary		Patch an upstream
//		@Tags			upstreams
//		@Accept			json
//		@Produce		json
//		@Param			id	path		string	true	"Upstream id"
//		@Param			patch	body		upstreamPatchRequest	true	"Fields to update"
//		@Success		200	{object}	oagw.Upstream
//		@Router			/v1/upstreams/{id} [patch]
func (u *upstreamRoutes) update(w http.ResponseWriter, r *http.Request) error {
	var body upstreamPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return oagwerrors.NewBadRequestError(fmt.Sprintf("invalid request body: %v", err), err)
	}
	patch := registry.UpstreamPatch{
		Alias:               body.Alias,
		Servers:             body.Servers,
		ProtocolTag:         body.ProtocolTag,
		AuthPlugin:          body.AuthPlugin,
		CredentialRefs:      body.CredentialRefs,
		DefaultRateLimit:    body.DefaultRateLimit,
		RequireAuthzDefault: body.RequireAuthzDefault,
	}
	updated, err := u.facade.UpdateUpstream(chi.URLParam(r, "id"), patch)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, updated)
}

//	 delete
//		@Summary		Delete an upstream
//		@Tags			upstreams
//		@Param			id	path		string	true	"Upstream id"
//		@Success		204	{string}	string	"No Content"
//		@Router			/v1/upstreams/{id} [delete]
func (u *upstreamRoutes) delete(w http.ResponseWriter, r *http.Request) error {
	if err := u.facade.DeleteUpstream(chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}
