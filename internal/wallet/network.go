package wallet

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

// EnsureNetwork makes the connected wallet use target, adding the chain to the
// wallet when it does not know it. It returns false when the wallet has not
// reported target within the switch timeout.
func (c *Coordinator) EnsureNetwork(ctx context.Context, target networks.Descriptor) (bool, error) {
	sess, _ := c.currentSession()
	if sess == nil {
		return false, ErrNotConnected
	}
	if err := target.Validate(); err != nil {
		return false, errors.Wrap(err, "target network")
	}

	current, err := chainID(ctx, sess)
	if err != nil {
		return false, providerErr(err, "read wallet chain")
	}
	if networks.SameChain(current, target.ChainIDHex) {
		return true, nil
	}

	log.Info("switching wallet network", "from", current, "to", target.ChainIDHex, "network", target.Name)
	err = switchChain(ctx, sess, target.ChainIDHex)
	if eip1193.IsUnrecognizedChain(err) {
		log.Info("wallet does not know network, adding it", "chainId", target.ChainIDHex)
		if err := sess.Request(ctx, eip1193.MethodAddChain, []any{target.AddChainParams()}, nil); err != nil {
			if eip1193.IsUserRejected(err) {
				return false, providerErr(err, "add chain")
			}
			return false, errors.Mark(errors.Wrapf(err, "add chain %s", target.ChainIDHex), ErrUnknownChain)
		}
		err = switchChain(ctx, sess, target.ChainIDHex)
	}
	if err != nil {
		if eip1193.IsUnrecognizedChain(err) {
			return false, errors.Mark(errors.Wrapf(err, "switch to %s", target.ChainIDHex), ErrUnknownChain)
		}
		return false, providerErr(err, "switch chain")
	}

	return c.waitForChain(ctx, sess, target.ChainIDHex)
}

// waitForChain polls the wallet's chain id until it equals want or the switch timeout passes.
func (c *Coordinator) waitForChain(ctx context.Context, sess Session, want string) (bool, error) {
	deadline := time.NewTimer(c.switchTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.pollInterval)
	defer tick.Stop()

	for {
		got, err := chainID(ctx, sess)
		if err != nil {
			log.Warn("polling wallet chain", "error", err)
		} else if networks.SameChain(got, want) {
			return true, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			log.Warn("wallet did not switch network in time", "want", want, "timeout", c.switchTimeout)
			return false, nil
		case <-tick.C:
		}
	}
}

func chainID(ctx context.Context, p eip1193.Provider) (string, error) {
	var id string
	if err := p.Request(ctx, eip1193.MethodChainID, nil, &id); err != nil {
		return "", err
	}
	return id, nil
}

func switchChain(ctx context.Context, p eip1193.Provider, chainIDHex string) error {
	return p.Request(ctx, eip1193.MethodSwitchChain, []any{eip1193.SwitchChainParams{ChainID: chainIDHex}}, nil)
}
