package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
	"github.com/stacklok/oagw/pkg/oagw"
)

type stubResolver struct {
	decision oagw.AuthzDecision
	err      error
}

func (s stubResolver) Authorize(context.Context, oagw.CallerIdentity, string, string, oagw.AuthAction) (oagw.AuthzDecision, error) {
	return s.decision, s.err
}

func TestGate_Check_NotRequired(t *testing.T) {
	t.Parallel()

	g := NewGate(nil)
	err := g.Check(context.Background(), oagw.CallerIdentity{}, "up-1", "rt-1", oagw.ActionProxy, false)
	require.NoError(t, err)
}

func TestGate_Check_RequiredButNoResolver(t *testing.T) {
	t.Parallel()

	g := NewGate(nil)
	err := g.Check(context.Background(), oagw.CallerIdentity{}, "up-1", "rt-1", oagw.ActionProxy, true)
	require.Error(t, err)
	assert.True(t, oagwerrors.Is(err, oagwerrors.ErrForbidden))
}

func TestGate_Check_Allowed(t *testing.T) {
	t.Parallel()

	g := NewGate(stubResolver{decision: oagw.AuthzDecision{Allowed: true}})
	err := g.Check(context.Background(), oagw.CallerIdentity{ID: "alice"}, "up-1", "rt-1", oagw.ActionProxy, true)
	require.NoError(t, err)
}

func TestGate_Check_Denied(t *testing.T) {
	t.Parallel()

	g := NewGate(stubResolver{decision: oagw.AuthzDecision{Allowed: false, Reason: "no policy permits this"}})
	err := g.Check(context.Background(), oagw.CallerIdentity{ID: "alice"}, "up-1", "rt-1", oagw.ActionProxy, true)
	require.Error(t, err)
	assert.True(t, oagwerrors.Is(err, oagwerrors.ErrForbidden))
	assert.Contains(t, err.Error(), "no policy permits this")
}

func TestGate_Check_ResolverError(t *testing.T) {
	t.Parallel()

	g := NewGate(stubResolver{err: assertError{"boom"}})
	err := g.Check(context.Background(), oagw.CallerIdentity{ID: "alice"}, "up-1", "rt-1", oagw.ActionProxy, true)
	require.Error(t, err)
	assert.True(t, oagwerrors.Is(err, oagwerrors.ErrInternal))
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
