package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	v := New()
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.ProxyTimeoutSecs)
	assert.Equal(t, 0, cfg.IdleTimeoutSecs)
	assert.True(t, cfg.ForwardXFF)
	assert.Equal(t, ":8090", cfg.ListenAddr)
}

func TestLoad_EnvOverride(t *testing.T) {
	v := New()
	t.Setenv("OAGW_PROXY_TIMEOUT_SECS", "5")
	t.Setenv("OAGW_LISTEN_ADDR", ":9999")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.ProxyTimeoutSecs)
	assert.Equal(t, ":9999", cfg.ListenAddr)
}

func TestLoad_InvalidProxyTimeout(t *testing.T) {
	t.Parallel()

	v := New()
	v.Set("proxy_timeout_secs", 0)

	_, err := Load(v)
	require.Error(t, err)
}

func TestLoad_InvalidListenAddr(t *testing.T) {
	t.Parallel()

	v := New()
	v.Set("listen_addr", "")

	_, err := Load(v)
	require.Error(t, err)
}

func TestConfig_DurationHelpers(t *testing.T) {
	t.Parallel()

	cfg := &Config{ProxyTimeoutSecs: 30, IdleTimeoutSecs: 0}
	assert.Equal(t, int64(30), cfg.ProxyTimeout().Nanoseconds()/1e9)
	assert.Equal(t, int64(0), cfg.IdleTimeout().Nanoseconds())
}
