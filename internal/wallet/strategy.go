package wallet

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
	"github.com/farmgoods-io/farm-wallet-client/internal/environment"
)

// Strategy obtains an account and session one way.
type Strategy interface {
	Kind() StrategyKind
	Connect(ctx context.Context, facts environment.Facts) (*Connection, error)
}

// SelectStrategy picks the connection strategy for the reported environment:
// native bridge first, then relay pairing on mobile, else the injected provider.
func SelectStrategy(f environment.Facts) StrategyKind {
	switch {
	case f.NativeBridge:
		return StrategyNative
	case f.IsMobile():
		return StrategyWalletConnect
	default:
		return StrategyBrowserExtension
	}
}

// requestAccounts asks the provider for account access and returns the first account.
func requestAccounts(ctx context.Context, p eip1193.Provider) (Wallet, []Wallet, error) {
	var accounts []string
	if err := p.Request(ctx, eip1193.MethodRequestAccounts, nil, &accounts); err != nil {
		return Wallet{}, nil, providerErr(err, "request accounts")
	}
	var out []Wallet
	for _, a := range accounts {
		a = strings.TrimSpace(a)
		if !common.IsHexAddress(a) {
			continue
		}
		out = append(out, Wallet{Address: common.HexToAddress(a).Hex()})
	}
	if len(out) == 0 {
		return Wallet{}, nil, errors.Wrap(ErrNoWalletAvailable, "wallet returned no accounts")
	}
	return out[0], out[1:], nil
}

// closerSession adapts a provider whose Close takes no context.
type closerSession struct {
	eip1193.Provider
}

func (s closerSession) Close(context.Context) error {
	if c, ok := s.Provider.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}
