package wallet

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

// SendTransaction submits tx from the active wallet on the payment network and
// returns the transaction hash. A failed gas estimate is retried once with the
// fallback gas limit unless tx carries its own gas.
func (c *Coordinator) SendTransaction(ctx context.Context, tx Tx) (string, error) {
	sess, w, epoch := c.sessionAt()
	if sess == nil {
		return "", ErrNotConnected
	}

	target := c.PaymentNetwork()
	ok, err := c.EnsureNetwork(ctx, target)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.Wrapf(ErrWrongNetwork, "wallet not on %s (%s)", target.Name, target.ChainIDHex)
	}
	// a connect or disconnect during the switch invalidates sess
	if cur, _, curEpoch := c.sessionAt(); cur == nil || curEpoch != epoch {
		return "", errors.Wrap(ErrNotConnected, "wallet session changed while switching network")
	}

	args := eip1193.TransactionArgs{To: tx.To}
	from := common.HexToAddress(w.Address)
	args.From = &from
	if len(tx.Data) > 0 {
		args.Data = hexutil.Bytes(tx.Data)
	}
	if tx.Value != nil {
		args.Value = (*hexutil.Big)(tx.Value)
	}
	if tx.Gas > 0 {
		gas := hexutil.Uint64(tx.Gas)
		args.Gas = &gas
	}

	hash, err := submit(ctx, sess, args)
	if err == nil {
		log.Info("transaction submitted", "hash", hash, "from", w.Address)
		return hash, nil
	}
	if tx.Gas > 0 || !eip1193.IsGasEstimation(err) {
		return "", markRejection(err)
	}

	log.Warn("gas estimation failed, retrying with fallback gas limit", "gas", c.fallbackGasLimit, "error", err)
	gas := hexutil.Uint64(c.fallbackGasLimit)
	args.Gas = &gas
	hash, err = submit(ctx, sess, args)
	if err != nil {
		if eip1193.IsGasEstimation(err) {
			return "", errors.Mark(err, ErrGasEstimationFailed)
		}
		return "", markRejection(err)
	}
	log.Info("transaction submitted with fallback gas", "hash", hash, "from", w.Address, "gas", c.fallbackGasLimit)
	return hash, nil
}

func submit(ctx context.Context, p eip1193.Provider, args eip1193.TransactionArgs) (string, error) {
	var hash string
	if err := p.Request(ctx, eip1193.MethodSendTransaction, []any{args}, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// markRejection tags a wallet rejection without changing the error text.
func markRejection(err error) error {
	if eip1193.IsUserRejected(err) {
		return errors.Mark(err, ErrUserRejected)
	}
	return err
}
