package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leibniz-psychology/usermgrd/pkg/apiclient"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a project account",
	Long: `Delete a project account end to end: the Kerberos principal, the
LDAP person and group entries, and the home directory.

A delete that failed halfway can be run again; steps that already
completed are skipped.

Examples:
  usermgrctl delete pseetbfgv8lbt00w4`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	username := args[0]

	warnings, err := newClient().DeleteUser(cmd.Context(), username)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.IsNotFound() {
			return fmt.Errorf("user %s does not exist", username)
		}
		return err
	}

	for _, w := range warnings {
		fmt.Printf("Warning:  %s: %s\n", w.Step, w.Detail)
	}
	fmt.Printf("User %s deleted\n", username)
	return nil
}
