package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orb-community/orb-acceptance/internal/config"
	"github.com/orb-community/orb-acceptance/internal/logging"
	"github.com/orb-community/orb-acceptance/internal/orb"
	"github.com/orb-community/orb-acceptance/internal/steps"
)

// NewCleanCommand deletes every resource left behind by earlier runs.
func NewCleanCommand(cfg *config.Configuration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete every resource created by the acceptance scenarios",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvironment(cmd, cfg.EnvFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}

			undo, err := logging.Setup(cfg.Log)
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			defer undo()

			client := orb.NewClient(cfg.Orb.URL, cfg.Credentials.Email, cfg.Credentials.Password,
				orb.WithTransport(orb.NewTransport(cfg.Orb.VerifyTLS)),
				orb.WithTimeout(cfg.Timeouts.Request),
			)
			deleted, err := steps.NewJanitor(client, cfg.Cleanup.Workers).Clean(cmd.Context())
			zap.S().Infow("clean finished", "deleted", deleted)
			return err
		},
	}

	registerOrbFlags(cmd.Flags(), cfg)
	registerLogFlags(cmd.Flags(), cfg)
	return cmd
}
