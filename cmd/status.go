package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aarushk09/edpear-sdk/client"
	"github.com/aarushk09/edpear-sdk/config"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session and profile",
	Long: `Show who you are logged in as.

Fetches a fresh profile and key list from the server, refreshing the local
cache. When the server is unreachable, the cached profile from the last
successful refresh is shown instead.

Example:
  edpear status`,
	RunE: runStatus,
}

func init() {
	statusCmd.SilenceUsage = true
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the profile as JSON")
	rootCmd.AddCommand(statusCmd)
}

type statusReport struct {
	User    *config.User    `json:"user"`
	APIKeys []config.APIKey `json:"apiKeys,omitempty"`
	Cached  bool            `json:"cached,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	token, err := resolveToken()
	if err != nil {
		return err
	}
	c := client.New(resolveAPIURL(), token)

	user, err := c.Me()
	if errors.Is(err, client.ErrUnauthorized) {
		return errNotLoggedIn
	}

	report := statusReport{}
	if err != nil {
		// Server or network trouble: fall back to the cached snapshot.
		cred := config.Load()
		if cred.User == nil {
			return fmt.Errorf("could not reach edpear and no cached profile is available: %w", err)
		}
		fmt.Fprintf(os.Stderr, "! Could not reach edpear (%v); showing cached profile.\n", err)
		report.User = cred.User
		report.APIKeys = cred.APIKeys
		report.Cached = true
	} else {
		report.User = user

		// Key list refresh is best effort; the profile alone is a valid
		// status answer.
		if keys, keysErr := c.ListKeys(); keysErr == nil {
			report.APIKeys = keys
		} else {
			report.APIKeys = config.Load().APIKeys
		}

		// Refresh the local mirror, but only for a stored session: a
		// flag- or env-supplied key must not fabricate a credential file
		// with no token in it.
		cred := config.Load()
		if cred.LoggedIn() {
			cred.User = report.User
			if len(report.APIKeys) > 0 {
				cred.APIKeys = report.APIKeys
			}
			if saveErr := config.Save(cred); saveErr != nil {
				fmt.Fprintf(os.Stderr, "! Could not update cached profile: %v\n", saveErr)
			}
		}
	}

	if statusJSON {
		return jsonPrint(report)
	}

	u := report.User
	if u.Name != "" {
		fmt.Printf("Logged in as %s <%s>\n", u.Name, u.Email)
	} else {
		fmt.Printf("Logged in as %s\n", u.Email)
	}
	fmt.Printf("Credits: %d\n", u.Credits)
	fmt.Printf("API keys: %d\n", len(report.APIKeys))
	if report.Cached {
		fmt.Println("(cached)")
	}
	return nil
}
