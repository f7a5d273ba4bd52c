package authplugin

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/oagw"
	"github.com/stacklok/oagw/pkg/oagw/credentials"
)

// jwtPlugin mints a short-lived, HMAC-signed JWT asserting the caller's
// identity and attaches it as a Bearer credential (spec.md §4.3: outbound
// credential injection). This is distinct from inbound caller
// authentication, which OAGW does not implement: the plugin only signs
// an outbound assertion for upstreams that expect one.
//
//	credential_id: Store key holding the HMAC signing secret
//	issuer:        "iss" claim (default "oagw")
//	audience:      "aud" claim, required
//	ttl_seconds:   token lifetime (default 60)
type jwtPlugin struct {
	store *credentials.Store
	now   func() time.Time
}

func (p jwtPlugin) Apply(ctx context.Context, rb *RequestBuilder, cfg oagw.PluginConfig) error {
	credID, _ := cfg.Config["credential_id"].(string)
	if credID == "" {
		return oagwerrors.NewInternalError("jwt plugin config missing credential_id", nil)
	}
	audience, _ := cfg.Config["audience"].(string)
	if audience == "" {
		return oagwerrors.NewInternalError("jwt plugin config missing audience", nil)
	}

	cred, err := p.store.Get(credID)
	if err != nil {
		// PluginError (spec.md §7): a missing credential is a gateway
		// configuration fault, not a caller-attributable denial.
		return oagwerrors.NewInternalError(fmt.Sprintf("credential %q unavailable", credID), err)
	}

	issuer := "oagw"
	if s, ok := cfg.Config["issuer"].(string); ok && s != "" {
		issuer = s
	}
	ttl := 60 * time.Second
	if secs, ok := cfg.Config["ttl_seconds"].(float64); ok && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}

	caller, _ := ctx.Value(callerContextKey{}).(string)

	now := p.now
	if now == nil {
		now = time.Now
	}
	issuedAt := now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   caller,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	})

	signed, err := token.SignedString(cred.Secret)
	if err != nil {
		return oagwerrors.NewInternalError("signing jwt credential", err)
	}

	rb.Header.Set("Authorization", "Bearer "+signed)
	return nil
}

// callerContextKey is how buildOutbound (pkg/oagw/pipeline) passes the
// proxying caller's id down to plugins that need it, without widening
// the Plugin interface for the one plugin that cares.
type callerContextKey struct{}

// WithCaller returns a context carrying caller for jwtPlugin to read.
func WithCaller(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerContextKey{}, callerID)
}
