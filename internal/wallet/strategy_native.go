package wallet

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/environment"
	"github.com/farmgoods-io/farm-wallet-client/internal/keystore"
	"github.com/farmgoods-io/farm-wallet-client/internal/native"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
)

// KeyLister is the host-provided "list wallets" operation.
type KeyLister interface {
	List(ctx context.Context, password []byte) ([]*keystore.Key, error)
}

// NativeStrategy connects through the local keystore.
type NativeStrategy struct {
	Keys     KeyLister
	Password func(ctx context.Context) ([]byte, error)
	Chains   native.Chains
	Registry *networks.Registry
}

func (s *NativeStrategy) Kind() StrategyKind { return StrategyNative }

func (s *NativeStrategy) Connect(ctx context.Context, _ environment.Facts) (*Connection, error) {
	var password []byte
	if s.Password != nil {
		pw, err := s.Password(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "keystore password")
		}
		password = pw
	}

	keys, err := s.Keys.List(ctx, password)
	if errors.Is(err, keystore.ErrNoPassword) {
		return nil, errors.Mark(err, ErrNoWalletAvailable)
	}
	if err != nil {
		return nil, errors.Wrap(err, "list wallets")
	}
	if len(keys) == 0 {
		return nil, errors.Wrap(ErrNoWalletAvailable, "keystore is empty")
	}

	conn := &Connection{
		Wallet:  Wallet{Address: keys[0].Address().Hex()},
		Session: closerSession{native.NewProvider(keys[0], s.Chains, s.Registry)},
	}
	for _, k := range keys[1:] {
		conn.Available = append(conn.Available, Wallet{Address: k.Address().Hex()})
	}
	return conn, nil
}
