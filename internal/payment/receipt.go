package payment

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
)

// Receipt is the subset of a transaction receipt the checkout reads.
type Receipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	BlockNumber *hexutil.Big   `json:"blockNumber"`
	GasUsed     hexutil.Uint64 `json:"gasUsed"`
	Status      hexutil.Uint64 `json:"status"`
}

func (r *Receipt) Succeeded() bool { return r != nil && r.Status == 1 }

// waitMined polls for a receipt, backing off from 750ms up to 3s between polls.
func waitMined(ctx context.Context, p eip1193.Provider, hash common.Hash, timeout, delay time.Duration) (*Receipt, error) {
	deadline := time.Now().Add(timeout)
	if delay <= 0 {
		delay = 750 * time.Millisecond
	}

	for {
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(ErrReceiptTimeout, "tx %s", hash.Hex())
		}

		var r *Receipt
		if err := p.Request(ctx, eip1193.MethodGetTransactionRcpt, []any{hash.Hex()}, &r); err != nil {
			return nil, errors.Wrap(err, "get receipt")
		}
		if r != nil {
			return r, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			if delay < 3*time.Second {
				delay += 250 * time.Millisecond
			}
		}
	}
}
