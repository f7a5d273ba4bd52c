// Package app provides the entry point for the oagw command-line application.
package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/oagw/pkg/api"
	"github.com/stacklok/oagw/pkg/logger"
	"github.com/stacklok/oagw/pkg/networking"
	"github.com/stacklok/oagw/pkg/oagw"
	"github.com/stacklok/oagw/pkg/oagw/authplugin"
	"github.com/stacklok/oagw/pkg/oagw/authz"
	"github.com/stacklok/oagw/pkg/oagw/authz/cedarresolver"
	oagwconfig "github.com/stacklok/oagw/pkg/oagw/config"
	"github.com/stacklok/oagw/pkg/oagw/credentials"
	"github.com/stacklok/oagw/pkg/oagw/facade"
	"github.com/stacklok/oagw/pkg/oagw/pipeline"
	"github.com/stacklok/oagw/pkg/oagw/ratelimit"
	"github.com/stacklok/oagw/pkg/oagw/registry"
)

var rootCmd = &cobra.Command{
	Use:               "oagw",
	DisableAutoGenTag: true,
	Short:             "Outbound API Gateway - multiplex and authorize outbound calls to external services",
	Long: `Outbound API Gateway (oagw) sits between internal callers and external upstream
services. It resolves each call by alias, authorizes it, injects credentials,
enforces rate limits, and forwards it to the configured upstream over the
protocol that upstream speaks (HTTP, SSE, or WebSocket).`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the oagw CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to oagw configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true

	return rootCmd
}

// newServeCmd creates the serve command for starting the gateway.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Outbound API Gateway",
		Long: `Start the Outbound API Gateway's Service Facade HTTP server: upstream/route
CRUD, the proxy_request entry point, and a health endpoint.`,
		RunE: runServe,
	}
}

// newValidateCmd creates the validate command for checking configuration.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long:  "Validate the oagw configuration file for syntax and semantic errors.",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger.Infof("Configuration is valid")
			logger.Infof("  Listen addr: %s", cfg.ListenAddr)
			logger.Infof("  Proxy timeout: %s", cfg.ProxyTimeout())
			logger.Infof("  Idle timeout: %s", cfg.IdleTimeout())
			logger.Infof("  Forward XFF: %t", cfg.ForwardXFF)
			logger.Infof("  Credentials configured: %d", len(cfg.Credentials))
			logger.Infof("  Cedar policies configured: %d", len(cfg.AuthzCedarPolicies))
			return nil
		},
	}
}

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			logger.Infof("oagw version: %s", getVersion())
		},
	}
}

// version is replaced at build time via ldflags
// (-X github.com/stacklok/oagw/cmd/oagw/app.version=...).
var version = "dev"

// getVersion returns the version string.
func getVersion() string {
	return version
}

// loadConfig reads the file named by --config (if any) into a validated Config.
func loadConfig() (*oagwconfig.Config, error) {
	v := oagwconfig.New()

	configPath := viper.GetString("config")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading configuration file %q: %w", configPath, err)
		}
	}

	cfg, err := oagwconfig.Load(v)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// runServe wires up the gateway's collaborators and blocks serving HTTP
// until the command's context is cancelled.
func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	credStore := credentials.NewStore()
	credStore.LoadFromConfig(cfg.Credentials)

	routeReg := registry.NewRouteRegistry()
	upstreamReg := registry.NewUpstreamRegistry(routeReg)

	metricsReg := prometheus.NewRegistry()

	// ResponseHeaderTimeout, not Client.Timeout, bounds the deadline: it
	// covers the span from the outbound request being written to the first
	// byte of response headers, leaving streaming SSE bodies unaffected.
	// Time spent in the pipeline before forwarding is not counted, and
	// dialing is bounded by the client's own dial and TLS limits.
	httpClient, err := networking.NewHttpClientBuilder().
		WithResponseHeaderTimeout(cfg.ProxyTimeout()).
		WithTimeout(0).
		Build()
	if err != nil {
		return fmt.Errorf("building outbound http client: %w", err)
	}

	resolver, err := buildAuthzResolver(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building authorization resolver: %w", err)
	}

	pl := &pipeline.Pipeline{
		Upstreams:   upstreamReg,
		Routes:      routeReg,
		Gate:        authz.NewGate(resolver),
		Plugins:     authplugin.NewRegistry(credStore),
		RateLimiter: ratelimit.New(),
		HTTPClient:  httpClient,
		Metrics:     pipeline.NewMetrics(metricsReg),
		ForwardXFF:  cfg.ForwardXFF,
	}

	f := facade.New(upstreamReg, routeReg, pl)

	logger.Infof("Starting Outbound API Gateway at %s", cfg.ListenAddr)
	return api.Serve(ctx, cfg.ListenAddr, f, metricsReg)
}

// buildAuthzResolver constructs the cedar-go-backed AuthzResolver from
// configured policies, optionally fetching the entities document from
// AuthzCedarEntitiesURL. Returns a nil resolver (not an error) when no
// policies are configured, leaving authorization unconfigured as before
// (spec.md §1): the Gate then denies any route that requires it.
func buildAuthzResolver(ctx context.Context, cfg *oagwconfig.Config) (oagw.AuthzResolver, error) {
	if len(cfg.AuthzCedarPolicies) == 0 {
		return nil, nil
	}

	var entitiesJSON string
	if cfg.AuthzCedarEntitiesURL != "" {
		fetchClient, err := networking.NewHttpClientBuilder().Build()
		if err != nil {
			return nil, fmt.Errorf("building entities fetch client: %w", err)
		}
		result, err := networking.FetchJSON[json.RawMessage](ctx, fetchClient, cfg.AuthzCedarEntitiesURL)
		if err != nil {
			return nil, fmt.Errorf("fetching cedar entities from %s: %w", cfg.AuthzCedarEntitiesURL, err)
		}
		entitiesJSON = string(result.Data)
	}

	resolver, err := cedarresolver.New(cedarresolver.Config{
		Policies:     cfg.AuthzCedarPolicies,
		EntitiesJSON: entitiesJSON,
	})
	if err != nil {
		return nil, err
	}
	return resolver, nil
}
