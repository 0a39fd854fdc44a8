package cmd

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aarushk09/edpear-sdk/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	apiKey string
	apiURL string
)

// errNotLoggedIn is the one guidance message every business command shares
// when no usable credential is available.
var errNotLoggedIn = errors.New("not logged in: run 'edpear login' to authenticate")

var rootCmd = &cobra.Command{
	Use:           "edpear",
	Short:         "edpear CLI — manage your edpear account and API keys",
	Version:       Version,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "edpear API key (env: EDPEAR_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "edpear API URL (env: EDPEAR_API_URL)")
}

func resolveAPIURL() string {
	if apiURL != "" {
		return apiURL
	}
	if v := os.Getenv("EDPEAR_API_URL"); v != "" {
		return v
	}
	return "https://edpear.com"
}

// resolveToken finds a bearer token for business commands: flag, then
// environment, then a working-directory .env file, then the stored session.
func resolveToken() (string, error) {
	if apiKey != "" {
		return apiKey, nil
	}
	if v := os.Getenv("EDPEAR_API_KEY"); v != "" {
		return v, nil
	}
	if env, err := godotenv.Read(); err == nil && env["EDPEAR_API_KEY"] != "" {
		return env["EDPEAR_API_KEY"], nil
	}
	cred := config.Load()
	if !cred.LoggedIn() {
		return "", errNotLoggedIn
	}
	return cred.Token, nil
}

func Execute() error {
	return rootCmd.Execute()
}
