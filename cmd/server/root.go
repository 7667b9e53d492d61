package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/phrazzld/scry-gen/internal/config"
	"github.com/phrazzld/scry-gen/internal/platform/logger"
	"github.com/spf13/cobra"
)

const appName = "scry-gen"

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Resilient structured-completion service",
		Long: `scry-gen generates learning content through a rate-limited AI completion
service reached directly or through a forward proxy. It bounds concurrency,
retries and falls back between transports, refines artifacts toward a
quality bar, and reports telemetry for every attempt.

Configuration is read from ./config.yaml (or --config) and SCRY_* environment
variables, e.g. SCRY_LLM_API_KEY and SCRY_TRANSPORT_PROXY_URL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override server.log_level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newProbeCmd(opts),
		newExpandCmd(opts),
		newMigrateCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

// load reads configuration and installs the process logger on stdout.
func (o *globalOptions) load() (*config.Config, *slog.Logger, error) {
	return o.loadWithLogOutput(nil)
}

// loadWithLogOutput is load with logs written to w, keeping stdout free for
// command output. A nil w means stdout.
func (o *globalOptions) loadWithLogOutput(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFrom(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.logLevel != "" {
		cfg.Server.LogLevel = o.logLevel
	}

	var log *slog.Logger
	if w == nil {
		log, err = logger.Setup(cfg.Server)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
		}
	} else {
		log = logger.New(w, cfg.Server.LogLevel)
		slog.SetDefault(log)
	}
	log.Debug("configuration loaded",
		"provider", cfg.LLM.Provider,
		"model", cfg.LLM.ResolvedModel(),
		"proxy_configured", cfg.Transport.ProxyURL != "",
		"database_configured", cfg.Database.URL != "",
		"auth_configured", cfg.Auth.JWTSecret != "")
	return cfg, log, nil
}
