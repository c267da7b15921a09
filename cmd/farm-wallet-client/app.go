package main

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	clientconfig "github.com/farmgoods-io/farm-wallet-client/cmd/farm-wallet-client/config"
	"github.com/farmgoods-io/farm-wallet-client/internal/appstate"
	"github.com/farmgoods-io/farm-wallet-client/internal/chains"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
	"github.com/farmgoods-io/farm-wallet-client/internal/environment"
	"github.com/farmgoods-io/farm-wallet-client/internal/keystore"
	"github.com/farmgoods-io/farm-wallet-client/internal/native"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/farmgoods-io/farm-wallet-client/internal/payment"
	"github.com/farmgoods-io/farm-wallet-client/internal/presenter"
	"github.com/farmgoods-io/farm-wallet-client/internal/relay"
	"github.com/farmgoods-io/farm-wallet-client/internal/wallet"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

// app holds everything a command needs, wired from config.
type app struct {
	cfg      *clientconfig.Config
	registry *networks.Registry
	state    *appstate.Store
	chains   *chains.Service
	keys     *keystore.Store
	hub      *presenter.Hub
	modal    *presenter.Modal
	wallet   *wallet.Coordinator
	checkout *payment.Checkout

	extMu     sync.Mutex
	extension *eip1193.RPCProvider
}

type appOptions struct {
	// QROut receives a terminal QR code when a relay pairing starts.
	QROut io.Writer
	// Password supplies the keystore password for the native strategy.
	Password func(ctx context.Context) ([]byte, error)
}

func newApp(ctx context.Context, cfg *clientconfig.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg}

	regPath, err := networks.DefaultPath()
	if err != nil {
		return nil, err
	}
	a.registry = networks.NewRegistry(regPath)
	extra, err := cfg.Descriptors()
	if err != nil {
		return nil, err
	}
	if err := a.registry.EnsureDefaults(ctx, append(networks.Builtins(), extra...)); err != nil {
		return nil, errors.Wrap(err, "load networks")
	}

	statePath, err := appstate.DefaultPath()
	if err != nil {
		return nil, err
	}
	if a.state, err = appstate.Open(statePath); err != nil {
		return nil, err
	}

	pay, err := a.paymentNetwork(ctx)
	if err != nil {
		return nil, err
	}

	a.chains, err = chains.NewService(chains.Config{Registry: a.registry, DefaultNetwork: pay})
	if err != nil {
		return nil, err
	}
	if a.keys, err = keystore.NewStore(cfg.Native.KeystoreDir); err != nil {
		return nil, err
	}

	a.hub = presenter.NewHub()
	a.modal = &presenter.Modal{Hub: a.hub, Out: opts.QROut}

	relayClient := relay.NewClient(relay.Config{
		URL:       cfg.Relay.URL,
		ProjectID: cfg.Relay.ProjectID,
		Metadata: relay.Metadata{
			Name:        cfg.Relay.Name,
			Description: cfg.Relay.Description,
			URL:         cfg.Relay.Homepage,
		},
	})

	a.wallet = wallet.NewCoordinator(wallet.Options{
		Probe: environment.StaticProbe{Base: cfg.Environment.Facts()},
		Strategies: []wallet.Strategy{
			&wallet.NativeStrategy{
				Keys:     a.keys,
				Password: opts.Password,
				Chains:   native.FromService(a.chains),
				Registry: a.registry,
			},
			&wallet.ExtensionStrategy{
				Provider: a.extensionProvider,
				Alerts:   presenter.Alerts{Hub: a.hub},
			},
			&wallet.RelayStrategy{
				Pairer:  wallet.NewRelayPairer(relayClient),
				Modal:   a.modal,
				ChainID: func() uint64 { return a.wallet.PaymentNetwork().ChainID },
			},
		},
		PaymentNetwork:   pay,
		SwitchTimeout:    cfg.Wallet.SwitchTimeout,
		PollInterval:     cfg.Wallet.PollInterval,
		FallbackGasLimit: cfg.Wallet.FallbackGasLimit,
		Notify:           a.hub.Notify,
	})

	a.checkout = &payment.Checkout{
		Wallet:      a.wallet,
		Receipts:    paymentChainProvider{chains: a.chains, network: a.wallet.PaymentNetwork},
		WaitTimeout: cfg.Wallet.ReceiptTimeout,
	}

	log.Info("wallet client ready",
		"payment_network", pay.Name,
		"chain", pay.ChainIDHex,
		"networks", len(a.registry.List()),
	)
	return a, nil
}

// paymentNetwork prefers the configured network and falls back to state.json.
func (a *app) paymentNetwork(ctx context.Context) (networks.Descriptor, error) {
	name := a.cfg.Wallet.PaymentNetwork
	if name == "" {
		return a.state.Get().Descriptor()
	}
	d, found, err := a.registry.FindByName(ctx, name)
	if err != nil {
		return networks.Descriptor{}, err
	}
	if found {
		return d, nil
	}
	return networks.ForEnvironment(name)
}

var errNoExtension = errors.New("no extension provider configured")

// extensionProvider dials the configured provider once and reuses it.
func (a *app) extensionProvider(ctx context.Context) (eip1193.Provider, error) {
	if a.cfg.Extension.ProviderURL == "" {
		return nil, errNoExtension
	}
	a.extMu.Lock()
	defer a.extMu.Unlock()
	if a.extension == nil {
		p, err := eip1193.Dial(ctx, a.cfg.Extension.ProviderURL)
		if err != nil {
			return nil, err
		}
		a.extension = p
	}
	return nonClosing{a.extension}, nil
}

// nonClosing hides Close so a wallet disconnect keeps the shared dial alive.
type nonClosing struct{ eip1193.Provider }

func (a *app) Close(ctx context.Context) {
	if a.wallet != nil {
		if err := a.wallet.Disconnect(ctx); err != nil {
			log.Warn("disconnect on shutdown failed", "error", err)
		}
	}
	if a.extension != nil {
		a.extension.Close()
	}
	if a.chains != nil {
		a.chains.Close()
	}
}

// paymentChainProvider reads from the current payment network through the
// shared chain clients. Checkout polls receipts through it.
type paymentChainProvider struct {
	chains  *chains.Service
	network func() networks.Descriptor
}

func (p paymentChainProvider) Request(ctx context.Context, method string, params []any, out any) error {
	c, err := p.chains.Client(ctx, p.network())
	if err != nil {
		return err
	}
	return eip1193.FromClient(c.Client()).Request(ctx, method, params, out)
}
