package wallet

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/environment"
	"github.com/farmgoods-io/farm-wallet-client/internal/relay"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

type Pairer interface {
	Pair(ctx context.Context, chainID uint64) (Pairing, error)
}

type Pairing interface {
	URI() string
	Wait(ctx context.Context) (RelaySession, error)
	Close()
}

type RelaySession interface {
	Session
	Accounts() []string
}

// RelayStrategy pairs with a mobile wallet through the relay and a QR modal.
type RelayStrategy struct {
	Pairer Pairer
	Modal  relay.Modal
	// ChainID is the chain proposed to the wallet.
	ChainID func() uint64
}

func (s *RelayStrategy) Kind() StrategyKind { return StrategyWalletConnect }

func (s *RelayStrategy) Connect(ctx context.Context, _ environment.Facts) (*Connection, error) {
	if s.Pairer == nil {
		return nil, errors.Wrap(ErrNoWalletAvailable, "relay not configured")
	}
	var chainID uint64
	if s.ChainID != nil {
		chainID = s.ChainID()
	}
	p, err := s.Pairer.Pair(ctx, chainID)
	if err != nil {
		return nil, errors.Wrap(err, "relay pairing")
	}

	if s.Modal != nil {
		if err := s.Modal.Open(ctx, p.URI()); err != nil {
			p.Close()
			return nil, errors.Wrap(err, "open pairing modal")
		}
		defer s.Modal.Close()
	}

	sess, err := p.Wait(ctx)
	if err != nil {
		return nil, providerErr(err, "relay session")
	}

	var conn Connection
	for i, a := range sess.Accounts() {
		w := Wallet{Address: a}
		if i == 0 {
			conn.Wallet = w
			continue
		}
		conn.Available = append(conn.Available, w)
	}
	if conn.Wallet.Address == "" {
		_ = sess.Close(ctx)
		return nil, errors.Wrap(ErrNoWalletAvailable, "relay session has no accounts")
	}
	conn.Session = sess
	log.Info("wallet paired over relay", "address", conn.Wallet.Address)
	return &conn, nil
}

// NewRelayPairer adapts a relay client.
func NewRelayPairer(c *relay.Client) Pairer {
	return relayPairer{c}
}

type relayPairer struct{ c *relay.Client }

func (r relayPairer) Pair(ctx context.Context, chainID uint64) (Pairing, error) {
	p, err := r.c.Pair(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return relayPairing{p}, nil
}

type relayPairing struct{ p *relay.Pairing }

func (r relayPairing) URI() string { return r.p.URI.String() }

func (r relayPairing) Wait(ctx context.Context) (RelaySession, error) {
	s, err := r.p.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r relayPairing) Close() { r.p.Close() }
