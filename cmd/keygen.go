package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"vote-ledger/models"
	"vote-ledger/signer"
)

var (
	keygenPrivateKey string
	keygenCandidate  string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a voter key pair or sign a ballot offline",
	Long: `keygen prints a new secp256k1 key pair. With --private-key and --candidate it
instead prints the signature a voter submits for that candidate.`,
	Args: cobra.NoArgs,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenPrivateKey, "private-key", "", "hex private key to sign with")
	keygenCmd.Flags().StringVar(&keygenCandidate, "candidate", "", "candidate id to sign a ballot for")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if keygenPrivateKey == "" && keygenCandidate == "" {
		priv, pub, err := signer.GenerateKeyPair()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "PUBLIC KEY: ", pub)
		fmt.Fprintln(out, "PRIVATE KEY:", priv)
		return nil
	}

	if keygenPrivateKey == "" || keygenCandidate == "" {
		return errors.New("--private-key and --candidate must be used together")
	}
	pub, err := signer.PublicKeyOf(keygenPrivateKey)
	if err != nil {
		return err
	}
	sig, err := signer.Sign(keygenPrivateKey, models.VoteMessage(pub, keygenCandidate))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "PUBLIC KEY:", pub)
	fmt.Fprintln(out, "SIGNATURE: ", sig)
	return nil
}
