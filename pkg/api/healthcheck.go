package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthcheckRouter sets up the healthcheck route. OAGW has no container
// runtime dependency, so health is simply "the process is serving".
func HealthcheckRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/", getHealthcheck)
	return r
}

//	 getHealthcheck
//		@Summary		Health check
//		@Description	Check if the gateway is healthy
//		@Tags			system
//		@Success		204	{string}	string	"No Content"
//		@Router			/healthz [get]
func getHealthcheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
