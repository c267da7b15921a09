package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/farmgoods-io/farm-wallet-client/internal/constants"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   constants.AppName,
	Short: "Connect a wallet and pay for Farm Goods orders",
	Long: `farm-wallet-client connects to the user's wallet (local keystore,
an injected browser provider or a mobile wallet over the relay), keeps it on
the payment network and submits order payments.

Run "serve" for the local HTTP facade used by the storefront page.`,
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.SetVersionTemplate("{{.Version}} (commit " + Commit + ", built " + BuildDate + ")\n")

	networksCmd.AddCommand(networksListCmd)
	networksCmd.AddCommand(networksAddCmd)
	networksCmd.AddCommand(networksSelectCmd)

	keystoreCmd.AddCommand(keystoreNewCmd)
	keystoreCmd.AddCommand(keystoreImportCmd)
	keystoreCmd.AddCommand(keystoreListCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(networksCmd)
	rootCmd.AddCommand(keystoreCmd)
	rootCmd.AddCommand(payCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal("command failed", "error", err)
	}
}
