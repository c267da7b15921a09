package wallet

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
	"github.com/farmgoods-io/farm-wallet-client/internal/environment"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

const InstallWalletAlert = "Please install MetaMask or another Ethereum wallet."

// Alerter shows a user-facing message.
type Alerter interface {
	Alert(msg string)
}

// ExtensionStrategy connects through the injected provider.
type ExtensionStrategy struct {
	// Provider returns the injected provider, or nil when none is present.
	Provider func(ctx context.Context) (eip1193.Provider, error)
	Alerts   Alerter
}

func (s *ExtensionStrategy) Kind() StrategyKind { return StrategyBrowserExtension }

func (s *ExtensionStrategy) Connect(ctx context.Context, facts environment.Facts) (*Connection, error) {
	var p eip1193.Provider
	if facts.InjectedProvider && s.Provider != nil {
		var err error
		p, err = s.Provider(ctx)
		if err != nil {
			log.Warn("injected provider unavailable", "error", err)
			p = nil
		}
	}
	if p == nil {
		if s.Alerts != nil {
			s.Alerts.Alert(InstallWalletAlert)
		}
		return nil, errors.Wrap(ErrNoWalletAvailable, "no injected provider")
	}

	sess := closerSession{p}
	w, available, err := requestAccounts(ctx, p)
	if err != nil {
		_ = sess.Close(ctx)
		return nil, err
	}
	return &Connection{Wallet: w, Available: available, Session: sess}, nil
}
