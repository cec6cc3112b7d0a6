package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tamshai/gateway/internal/domain/identity"
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Generate an Argon2id hash for a bearer token",
	Long: `Generate an Argon2id hash of a bearer token for use in config.

The output can be used directly in the identity.tokens.hash field; the raw
token itself never appears in configuration.

Example:
  tamshai-gateway hash-token "my-secret-token"

Security note: the token will appear in shell history. Consider clearing
history after use or passing an environment variable:
  tamshai-gateway hash-token "$MY_TOKEN"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := identity.HashToken(args[0])
		if err != nil {
			return fmt.Errorf("hash token: %w", err)
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashTokenCmd)
}
