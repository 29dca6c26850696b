package cli

import (
	"os"

	"github.com/khabaroff/hwid-license-server/src/config"
	"github.com/khabaroff/hwid-license-server/src/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	appVersion string
)

// Execute creates the root command tree and runs it.
func Execute(version string) error {
	appVersion = version
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license-server",
		Short: "HWID-bound license key server",
		Long: `License server: issues license keys, binds them to a hardware fingerprint on
first use and blacklists keys that look shared.

Configuration comes from an optional YAML file and environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $CONFIG_FILE)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAdminCmd())
	cmd.AddCommand(newKeyCmd())
	cmd.AddCommand(newVersionCmd(version))

	return cmd
}

// loadConfig reads configuration and sets up logging for a command
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, err
	}

	logging.Setup(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})
	return cfg, nil
}
