package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aarushk09/edpear-sdk/client"
	"github.com/aarushk09/edpear-sdk/config"
)

var (
	keyName  string
	writeEnv bool
)

var generateKeyCmd = &cobra.Command{
	Use:   "generate-key",
	Short: "Generate a new API key",
	Long: `Generate a new edpear API key for programmatic use.

The key is printed once and recorded in the local credential cache. With
--save-env (the default) it is also written to ./.env as EDPEAR_API_KEY,
where other edpear tooling picks it up automatically.

Example:
  edpear generate-key --name ci`,
	RunE: runGenerateKey,
}

func init() {
	generateKeyCmd.SilenceUsage = true
	generateKeyCmd.Flags().StringVar(&keyName, "name", "", "label for the new key")
	generateKeyCmd.Flags().BoolVar(&writeEnv, "save-env", true, "write the key to ./.env as EDPEAR_API_KEY")
	rootCmd.AddCommand(generateKeyCmd)
}

func runGenerateKey(cmd *cobra.Command, args []string) error {
	token, err := resolveToken()
	if err != nil {
		return err
	}
	c := client.New(resolveAPIURL(), token)

	key, err := c.GenerateKey(keyName)
	if errors.Is(err, client.ErrUnauthorized) {
		return errNotLoggedIn
	}
	if err != nil {
		return fmt.Errorf("key generation failed: %w", err)
	}

	// Mirror the new key locally, preserving insertion order. Only a
	// stored session gets the mirror; an env-supplied key must not
	// fabricate a credential file.
	cred := config.Load()
	if cred.LoggedIn() {
		cred.APIKeys = append(cred.APIKeys, *key)
		if saveErr := config.Save(cred); saveErr != nil {
			fmt.Fprintf(os.Stderr, "! Could not update local key cache: %v\n", saveErr)
		}
	}

	if writeEnv {
		if envErr := mergeEnvKey(key.Key); envErr != nil {
			fmt.Fprintf(os.Stderr, "! Could not write .env: %v\n", envErr)
		} else {
			fmt.Fprintln(os.Stderr, "✓ Saved to ./.env as EDPEAR_API_KEY")
		}
	}

	fmt.Println(key.Key)
	return nil
}

// mergeEnvKey writes EDPEAR_API_KEY into ./.env, keeping any unrelated
// entries already there.
func mergeEnvKey(key string) error {
	env, err := godotenv.Read()
	if err != nil {
		env = map[string]string{}
	}
	env["EDPEAR_API_KEY"] = key
	return godotenv.Write(env, ".env")
}
