package commands

import (
	"fmt"

	"github.com/dyluth/vigil/internal/printer"
	"github.com/dyluth/vigil/pkg/signing"
	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a validator keypair",
	Long: `Generate a new Ed25519 keypair for a validator.

The secret key is printed as a JSON byte array, the format accepted by
VIGIL_SECRET_KEY (or VALIDATOR_SECRET_KEY). The public key is printed in
base58; it is the validator's identity on every hub it joins.

Examples:
  # Generate a key and start a validator with it
  export VIGIL_SECRET_KEY="$(vigil keygen --secret-only)"
  vigil-validator --hub-url wss://hub.example.com/ws`,
	Args: cobra.NoArgs,
	RunE: runKeygen,
}

var keygenSecretOnly bool

func init() {
	keygenCmd.Flags().BoolVar(&keygenSecretOnly, "secret-only", false, "Print only the secret key")
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	kp, err := signing.GenerateKeyPair()
	if err != nil {
		return printer.Error("key generation failed", err.Error(), nil)
	}

	out := cmd.OutOrStdout()
	if keygenSecretOnly {
		fmt.Fprintln(out, kp.SecretJSON())
		return nil
	}

	fmt.Fprintf(out, "Public key: %s\n", kp.PublicKey())
	fmt.Fprintf(out, "Secret key: %s\n", kp.SecretJSON())
	return nil
}
