// Package commands implements the usermgrctl CLI commands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/leibniz-psychology/usermgrd/pkg/apiclient"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	socketPath string
	principal  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "usermgrctl",
	Short: "usermgrctl - usermgrd command line client",
	Long: `usermgrctl talks to a running usermgrd daemon over its unix socket.

It is an operator tool for the same API the web frontend uses: creating
project accounts and deleting them again.

Use "usermgrctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/run/usermgrd/socket", "usermgrd unix socket path")
	rootCmd.PersistentFlags().StringVar(&principal, "principal", "", "caller principal to assert (when bypassing the fronting proxy)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(deleteCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// newClient builds the API client from the global flags.
func newClient() *apiclient.Client {
	c := apiclient.New(socketPath)
	if principal != "" {
		c = c.WithPrincipal(principal)
	}
	return c
}
