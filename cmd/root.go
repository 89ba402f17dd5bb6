package cmd

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/orb-community/orb-acceptance/internal/config"
)

// EnvPrefix prefixes the environment variable of every flag: --orb-url is read
// from ORB_TEST_ORB_URL.
const EnvPrefix = "ORB_TEST"

func NewRootCommand() *cobra.Command {
	cfg := config.NewConfigurationWithOptionsAndDefaults()

	root := &cobra.Command{
		Use:          "orb-acceptance",
		Short:        "Acceptance tests for the Orb control plane and agent",
		SilenceUsage: true,
	}
	root.AddCommand(NewRunCommand(cfg))
	root.AddCommand(NewCleanCommand(cfg))
	return root
}

func Execute() error {
	return NewRootCommand().Execute()
}

// loadEnvironment reads the env file, then fills every flag not set on the
// command line from its environment variable.
func loadEnvironment(cmd *cobra.Command, envFile string) error {
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
			return err
		}
		zap.S().Debugw("no env file found, relying on the environment", "path", envFile)
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cobraflags.PresetRequiredFlags(EnvPrefix, make(map[*pflag.Flag]bool), cmd)
	return nil
}

func registerOrbFlags(flags *pflag.FlagSet, cfg *config.Configuration) {
	flags.StringVar(&cfg.Orb.URL, "orb-url", cfg.Orb.URL, "Orb control plane URL")
	flags.StringVar(&cfg.Orb.MQTTURL, "orb-mqtt-url", cfg.Orb.MQTTURL, "Orb MQTT broker URL handed to agents")
	flags.BoolVar(&cfg.Orb.VerifyTLS, "orb-verify-tls", cfg.Orb.VerifyTLS, "Verify the TLS certificate of the control plane")
	flags.StringVar(&cfg.Credentials.Email, "orb-email", cfg.Credentials.Email, "Email of the Orb user")
	flags.StringVar(&cfg.Credentials.Password, "orb-password", cfg.Credentials.Password, "Password of the Orb user")
	flags.DurationVar(&cfg.Timeouts.Request, "timeout-request", cfg.Timeouts.Request, "Timeout of a single API request")
	flags.IntVar(&cfg.Cleanup.Workers, "cleanup-workers", cfg.Cleanup.Workers, "Concurrent deletions during cleanup")
}

func registerLogFlags(flags *pflag.FlagSet, cfg *config.Configuration) {
	flags.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level: debug, info, warn or error")
	flags.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "Console log format: console or json")
	flags.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "Also write json logs to this rotated file")
	flags.IntVar(&cfg.Log.MaxSizeMB, "log-max-size", cfg.Log.MaxSizeMB, "Size in megabytes of a log file before rotation")
	flags.IntVar(&cfg.Log.MaxBackups, "log-max-backups", cfg.Log.MaxBackups, "Rotated log files to keep")
	flags.StringVar(&cfg.EnvFile, "env-file", ".env", "File of KEY=value pairs loaded into the environment")
}
