package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var createJSON bool

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new project account",
	Long: `Create a new project account.

The daemon generates the username, the uid/gid pair and the initial
password. The password is printed exactly once and cannot be retrieved
again.

Examples:
  # Create an account
  usermgrctl create

  # Machine-readable output
  usermgrctl create --json`,
	Args: cobra.NoArgs,
	RunE: runCreate,
}

func init() {
	createCmd.Flags().BoolVar(&createJSON, "json", false, "Print the raw JSON response")
}

func runCreate(cmd *cobra.Command, args []string) error {
	res, err := newClient().CreateUser(cmd.Context())
	if err != nil {
		return err
	}

	if createJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Printf("User:     %s\n", res.Username)
	fmt.Printf("UID:      %d\n", res.UID)
	fmt.Printf("GID:      %d\n", res.GID)
	fmt.Printf("Password: %s\n", res.Password)
	for _, w := range res.Warnings {
		fmt.Printf("Warning:  %s: %s\n", w.Step, w.Detail)
	}
	return nil
}
