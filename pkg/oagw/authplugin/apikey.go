package authplugin

import (
	"context"
	"fmt"
	"strings"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/oagw"
	"github.com/stacklok/oagw/pkg/oagw/credentials"
)

// apiKeyScheme selects how the credential value is placed on the request.
type apiKeyScheme string

const (
	schemeBearer apiKeyScheme = "bearer"
	schemeRaw    apiKeyScheme = "raw"
)

// apiKeyPlugin injects a credential store secret as a header (Bearer-
// prefixed or raw) or as a query parameter, per config (spec.md §4.3):
//
//	credential_id: the Store key to read
//	header:        header name to set (default "Authorization")
//	scheme:        "Bearer" (default) or "Raw", matched case-insensitively
//	query_param:   if set, the raw credential is placed in this query
//	               parameter instead of a header (header and scheme are ignored)
type apiKeyPlugin struct {
	store *credentials.Store
}

func (p apiKeyPlugin) Apply(_ context.Context, rb *RequestBuilder, cfg oagw.PluginConfig) error {
	credID, _ := cfg.Config["credential_id"].(string)
	if credID == "" {
		return oagwerrors.NewInternalError("api-key plugin config missing credential_id", nil)
	}

	cred, err := p.store.Get(credID)
	if err != nil {
		// PluginError (spec.md §7): a missing credential is a gateway
		// configuration fault, not a caller-attributable denial.
		return oagwerrors.NewInternalError(fmt.Sprintf("credential %q unavailable", credID), err)
	}
	secret := string(cred.Secret)

	scheme := schemeBearer
	if s, ok := cfg.Config["scheme"].(string); ok && s != "" {
		scheme = apiKeyScheme(strings.ToLower(s))
	}

	if queryParam, ok := cfg.Config["query_param"].(string); ok && queryParam != "" {
		rb.Query.Set(queryParam, secret)
		return nil
	}

	header := "Authorization"
	if h, ok := cfg.Config["header"].(string); ok && h != "" {
		header = h
	}

	value := secret
	if scheme == schemeBearer {
		value = "Bearer " + secret
	}
	rb.Header.Set(header, value)
	return nil
}
