package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	clientconfig "github.com/farmgoods-io/farm-wallet-client/cmd/farm-wallet-client/config"
	"github.com/farmgoods-io/farm-wallet-client/internal/environment"
	"github.com/farmgoods-io/farm-wallet-client/internal/tokens"
	"github.com/farmgoods-io/farm-wallet-client/internal/wallet"
	"github.com/spf13/cobra"
)

var connectFlags struct {
	native   bool
	injected bool
	mobile   bool
	network  bool
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a wallet once and print the active account",
	Args:  cobra.NoArgs,
	RunE:  runConnect,
}

func init() {
	f := connectCmd.Flags()
	f.BoolVar(&connectFlags.native, "native", false, "use the local keystore")
	f.BoolVar(&connectFlags.injected, "injected", false, "use the configured extension provider")
	f.BoolVar(&connectFlags.mobile, "mobile", false, "pair a mobile wallet over the relay")
	f.BoolVar(&connectFlags.network, "ensure-network", true, "switch the wallet to the payment network")
}

// loadApp reads config and wires the app for a one-shot command.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := clientconfig.Load()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, appOptions{
		QROut:    os.Stdout,
		Password: keystorePassword(os.Getenv),
	})
}

func commandFacts(cmd *cobra.Command, base environment.Facts) environment.Facts {
	f := base
	flags := cmd.Flags()
	if flags.Changed("native") {
		f.NativeBridge = connectFlags.native
	}
	if flags.Changed("injected") {
		f.InjectedProvider = connectFlags.injected
	}
	if flags.Changed("mobile") {
		f.MobileHint = connectFlags.mobile
	}
	return f
}

// connectWallet connects with the flag-adjusted facts and, if asked, moves the
// wallet onto the payment network.
func connectWallet(cmd *cobra.Command, a *app, ensure bool) (*wallet.Wallet, error) {
	ctx := environment.WithFacts(cmd.Context(), commandFacts(cmd, a.cfg.Environment.Facts()))

	w, err := a.wallet.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if !ensure {
		return w, nil
	}
	pay := a.wallet.PaymentNetwork()
	ok, err := a.wallet.EnsureNetwork(ctx, pay)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(wallet.ErrWrongNetwork, "wallet did not switch to %s in time", pay.DisplayName())
	}
	return w, nil
}

func runConnect(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(cmd.Context()))

	w, err := connectWallet(cmd, a, connectFlags.network)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	snap := a.wallet.Snapshot()
	fmt.Fprintf(out, "connected via %s: %s (%s)\n", snap.Strategy, wallet.FormatAddress(w.Address), w.Address)
	for _, other := range a.wallet.AvailableWallets() {
		if other.Address != w.Address {
			fmt.Fprintf(out, "  also available: %s\n", other.Address)
		}
	}

	if connectFlags.network {
		pay := a.wallet.PaymentNetwork()
		bal, err := a.wallet.RefreshBalance(cmd.Context())
		if err != nil {
			return err
		}
		native := tokens.Native(pay)
		fmt.Fprintf(out, "network: %s\nbalance: %s %s\n", pay.DisplayName(), tokens.FormatUnits(bal, native.Decimals), native.Symbol)
	}
	return nil
}
