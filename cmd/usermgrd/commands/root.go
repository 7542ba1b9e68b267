// Package commands implements the CLI commands for the usermgrd
// daemon.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leibniz-psychology/usermgrd/internal/logger"
	"github.com/leibniz-psychology/usermgrd/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "usermgrd",
	Short: "usermgrd - cluster user lifecycle daemon",
	Long: `usermgrd provisions and removes cluster accounts end to end: it
allocates collision-free uid/gid pairs, creates the LDAP person and
group entries, registers the Kerberos principal, and coordinates the
node-local home-directory and NSS-cache daemons. Failed creations are
rolled back so no half-created account is left behind.

The API is served on a unix socket; the fronting proxy handles caller
authentication.

Use "usermgrd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/usermgrd/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
