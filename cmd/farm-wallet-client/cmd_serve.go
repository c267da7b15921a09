package main

import (
	"context"
	"os"
	"time"

	clientconfig "github.com/farmgoods-io/farm-wallet-client/cmd/farm-wallet-client/config"
	clienthttp "github.com/farmgoods-io/farm-wallet-client/internal/http"
	"github.com/quantumauth-io/quantum-go-utils/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local wallet HTTP facade",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config server.host:server.port)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	log.Info(rootCmd.Use,
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	cfg, err := clientconfig.Load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, appOptions{
		QROut:    os.Stderr,
		Password: keystorePassword(os.Getenv),
	})
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr()
	}
	srv, err := clienthttp.NewServer(clienthttp.Config{
		Addr:           addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		LoopbackOnly:   cfg.Server.LoopbackOnly,
		Facts:          cfg.Environment.Facts(),
	}, clienthttp.Deps{
		Wallet:   a.wallet,
		Registry: a.registry,
		State:    a.state,
		Hub:      a.hub,
		Modal:    a.modal,
		Checkout: a.checkout,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	} else {
		log.Info("HTTP server gracefully stopped")
	}
	a.Close(shutdownCtx)
	return nil
}
