package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aarushk09/edpear-sdk/auth"
	"github.com/aarushk09/edpear-sdk/client"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	Aliases: []string{"command-line"},
	Short:   "Authenticate with edpear via browser",
	Long: `Start browser-based sign-in.

What happens:
  1. The CLI registers a login request and opens the approval page.
  2. You approve the request in your browser.
  3. The CLI polls until the request completes, then saves the session
     locally for future commands.

If the browser does not open, copy the printed URL manually. The CLI
waits up to about ten minutes before giving up.

Example:
  edpear login`,
	RunE: runLogin,
}

func init() {
	loginCmd.SilenceUsage = true
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	controller := auth.NewController(client.New(resolveAPIURL(), ""))

	user, err := controller.Login()
	if err != nil {
		return err
	}

	if user != nil && user.Email != "" {
		fmt.Fprintf(os.Stderr, "✓ Logged in as %s\n", user.Email)
	} else {
		fmt.Fprintln(os.Stderr, "✓ Logged in")
	}
	return nil
}
