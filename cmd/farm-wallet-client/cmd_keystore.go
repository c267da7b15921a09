package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	clientconfig "github.com/farmgoods-io/farm-wallet-client/cmd/farm-wallet-client/config"
	"github.com/farmgoods-io/farm-wallet-client/internal/keystore"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	newLabel    string
	importLabel string
)

var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "Manage the local encrypted wallets used by the native strategy",
}

var keystoreNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a new random wallet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openKeystore()
		if err != nil {
			return err
		}
		label := newLabel
		if label == "" {
			label = promptLineWithDefault(os.Stdin, "Wallet label", "default")
		}
		pw, err := promptNewPassword()
		if err != nil {
			return err
		}
		defer zeroBytes(pw)

		k, err := store.Create(pw, label)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", k.Address().Hex(), label)
		return nil
	},
}

var keystoreImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a hex private key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openKeystore()
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stderr, "Private key (hex): ")
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return errors.Wrap(err, "read private key")
		}
		defer zeroBytes(secret)

		pw, err := promptNewPassword()
		if err != nil {
			return err
		}
		defer zeroBytes(pw)

		k, err := store.Import(pw, strings.TrimSpace(string(secret)), importLabel)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", k.Address().Hex())
		return nil
	},
}

var keystoreListCmd = &cobra.Command{
	Use:   "list",
	Short: "Unlock the keystore and list its accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openKeystore()
		if err != nil {
			return err
		}
		pw, err := keystorePassword(os.Getenv)(cmd.Context())
		if err != nil {
			return err
		}
		defer zeroBytes(pw)

		keys, err := store.List(cmd.Context(), pw)
		if errors.Is(err, keystore.ErrNoPassword) {
			return errors.Wrapf(err, "set %s or run from a terminal", PasswordEnv)
		}
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no wallets in %s\n", store.Dir)
			return nil
		}
		for i, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", i, k.Address().Hex(), k.Source())
		}
		return nil
	},
}

func init() {
	keystoreNewCmd.Flags().StringVar(&newLabel, "label", "", "wallet label")
	keystoreImportCmd.Flags().StringVar(&importLabel, "label", "imported", "wallet label")
}

func openKeystore() (*keystore.Store, error) {
	cfg, err := clientconfig.Load()
	if err != nil {
		return nil, err
	}
	return keystore.NewStore(cfg.Native.KeystoreDir)
}
