package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aarushk09/edpear-sdk/config"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out of edpear",
	Long: `Sign out from edpear on this machine.

Clears the saved session token along with the cached profile and API key
records. A cleared token invalidates the rest of the credential, so nothing
stale survives the logout.

Example:
  edpear logout`,
	RunE: runLogout,
}

func init() {
	logoutCmd.SilenceUsage = true
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	cred := config.Load()
	if !cred.LoggedIn() {
		fmt.Fprintln(os.Stderr, "Not logged in.")
		return nil
	}

	if err := config.Clear(); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}

	fmt.Fprintln(os.Stderr, "✓ Logged out")
	return nil
}
