package cmd

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orb-community/orb-acceptance/internal/config"
	"github.com/orb-community/orb-acceptance/internal/logging"
	"github.com/orb-community/orb-acceptance/test/acceptance"
)

func NewRunCommand(cfg *config.Configuration) *cobra.Command {
	var opts acceptance.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the acceptance scenarios against an Orb deployment",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvironment(cmd, cfg.EnvFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateConfiguration(cfg); err != nil {
				return err
			}

			undo, err := logging.Setup(cfg.Log)
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			defer undo()

			zap.S().Infow("starting acceptance run", "configuration", cfg.DebugMap())
			if !acceptance.Run(*cfg, opts) {
				return errors.New("acceptance scenarios failed")
			}
			return nil
		},
	}

	registerOrbFlags(cmd.Flags(), cfg)
	registerLogFlags(cmd.Flags(), cfg)

	fs := cmd.Flags()
	fs.StringVar(&cfg.Agent.Image, "agent-image", cfg.Agent.Image, "Orb agent container image")
	fs.StringVar(&cfg.Agent.Interface, "agent-interface", cfg.Agent.Interface, "Network interface the agent taps")
	fs.StringVar(&cfg.Agent.MinVersion, "agent-min-version", cfg.Agent.MinVersion, "Lowest agent version accepted")
	fs.StringVar(&cfg.Agent.ConfigDir, "agent-config-dir", cfg.Agent.ConfigDir, "Host folder for generated agent config files")
	fs.StringVar(&cfg.Podman.Socket, "podman-socket", cfg.Podman.Socket, "Podman socket URI")
	fs.StringVar(&cfg.FleetDB.DSN, "fleetdb-dsn", cfg.FleetDB.DSN, "Postgres DSN of the fleet database, empty to skip its checks")
	fs.StringVar(&cfg.Sink.RemoteHost, "sink-remote-host", cfg.Sink.RemoteHost, "Prometheus remote write URL used by sinks")
	fs.StringVar(&cfg.Sink.Username, "sink-username", cfg.Sink.Username, "Username of the sink endpoint")
	fs.StringVar(&cfg.Sink.Password, "sink-password", cfg.Sink.Password, "Password of the sink endpoint")
	fs.BoolVar(&cfg.Cleanup.Enabled, "cleanup-enabled", cfg.Cleanup.Enabled, "Remove containers and test resources after every scenario")

	fs.DurationVar(&cfg.Timeouts.Interval, "timeout-interval", cfg.Timeouts.Interval, "Sleep between two checks of a waiter")
	fs.DurationVar(&cfg.Timeouts.Agent, "timeout-agent", cfg.Timeouts.Agent, "Wait for an agent status")
	fs.DurationVar(&cfg.Timeouts.Policy, "timeout-policy", cfg.Timeouts.Policy, "Wait for policies to be applied")
	fs.DurationVar(&cfg.Timeouts.Group, "timeout-group", cfg.Timeouts.Group, "Wait for group membership")
	fs.DurationVar(&cfg.Timeouts.Dataset, "timeout-dataset", cfg.Timeouts.Dataset, "Wait for datasets on applied policies")
	fs.DurationVar(&cfg.Timeouts.Logs, "timeout-logs", cfg.Timeouts.Logs, "Wait for agent log lines")
	fs.DurationVar(&cfg.Timeouts.Container, "timeout-container", cfg.Timeouts.Container, "Wait for a container state")

	fs.StringVar(&opts.LabelFilter, "label-filter", "", "Run only the scenarios matching this ginkgo label filter")
	fs.StringSliceVar(&opts.Focus, "focus", nil, "Run only the scenarios whose description matches")

	return cmd
}

// validateConfiguration runs the struct validation plus the checks spanning
// several fields.
func validateConfiguration(cfg *config.Configuration) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.FleetDB.DSN != "" {
		u, err := url.Parse(cfg.FleetDB.DSN)
		if err != nil {
			return fmt.Errorf("invalid fleetdb-dsn: %w", err)
		}
		if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			return fmt.Errorf("invalid fleetdb-dsn scheme %q: must be postgres", u.Scheme)
		}
	}

	t := cfg.Timeouts
	if t.Interval >= min(t.Agent, t.Policy, t.Group, t.Dataset, t.Logs, t.Container) {
		return fmt.Errorf("timeout-interval %s must be shorter than every waiter timeout", t.Interval)
	}
	return nil
}
