// Package config loads the gateway's stable option set (spec.md §6) via
// Viper, with environment-variable overrides under the OAGW_ prefix.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	oagwerrors "github.com/stacklok/oagw/pkg/errors"
)

// Config is the gateway's runtime configuration.
type Config struct {
	// ProxyTimeoutSecs is the outbound client's response-header timeout: it
	// bounds the time from the request being written to the first byte of
	// response headers. Time spent in the pipeline before forwarding is not
	// counted.
	ProxyTimeoutSecs int `mapstructure:"proxy_timeout_secs"`
	// IdleTimeoutSecs bounds WebSocket peer inactivity; 0 disables it.
	IdleTimeoutSecs int `mapstructure:"idle_timeout_secs"`
	// Credentials maps credential id to secret string, loaded into the
	// credential store at startup.
	Credentials map[string]string `mapstructure:"credentials"`
	// ForwardXFF controls whether X-Forwarded-For/X-Forwarded-Host are injected.
	ForwardXFF bool `mapstructure:"forward_xff"`
	// ListenAddr is the HTTP listen address for the Service Facade.
	ListenAddr string `mapstructure:"listen_addr"`
	// AuthzCedarPolicies are Cedar policy statements forming the
	// gateway's authorization policy set. Empty leaves authorization
	// unconfigured (spec.md §1, §4.4 fail-closed-only-when-required).
	AuthzCedarPolicies []string `mapstructure:"authz_cedar_policies"`
	// AuthzCedarEntitiesURL optionally fetches the Cedar entities
	// document from an HTTP endpoint at startup instead of embedding it.
	AuthzCedarEntitiesURL string `mapstructure:"authz_cedar_entities_url"`
}

// ProxyTimeout returns ProxyTimeoutSecs as a time.Duration.
func (c *Config) ProxyTimeout() time.Duration {
	return time.Duration(c.ProxyTimeoutSecs) * time.Second
}

// IdleTimeout returns IdleTimeoutSecs as a time.Duration, or 0 if disabled.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSecs) * time.Second
}

// defaults applies the stable default values from spec.md §6.
func defaults(v *viper.Viper) {
	v.SetDefault("proxy_timeout_secs", 30)
	v.SetDefault("idle_timeout_secs", 0)
	v.SetDefault("forward_xff", true)
	v.SetDefault("listen_addr", ":8090")
}

// New returns a Viper instance pre-configured for OAGW: OAGW_ env prefix,
// defaults applied, ready for a config file to be merged in by the caller.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("OAGW")
	v.AutomaticEnv()
	defaults(v)
	return v
}

// Load reads v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.ProxyTimeoutSecs <= 0 {
		return oagwerrors.NewValidationFailedError("proxy_timeout_secs must be positive", nil)
	}
	if cfg.IdleTimeoutSecs < 0 {
		return oagwerrors.NewValidationFailedError("idle_timeout_secs must not be negative", nil)
	}
	if cfg.ListenAddr == "" {
		return oagwerrors.NewValidationFailedError("listen_addr must not be empty", nil)
	}
	return nil
}
