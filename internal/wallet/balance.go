package wallet

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
)

// RefreshBalance reads the active wallet's native balance and stores it on the wallet.
func (c *Coordinator) RefreshBalance(ctx context.Context) (*big.Int, error) {
	sess, w := c.currentSession()
	if sess == nil {
		return nil, ErrNotConnected
	}

	var bal hexutil.Big
	if err := sess.Request(ctx, eip1193.MethodGetBalance, []any{w.Address, "latest"}, &bal); err != nil {
		return nil, providerErr(err, "read balance")
	}

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.wallet != nil && c.session == sess && strings.EqualFold(c.wallet.Address, w.Address) {
		c.wallet.Balance = new(big.Int).Set(bal.ToInt())
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.emit(snap)
	return new(big.Int).Set(bal.ToInt()), nil
}

// FormatAddress shortens an address for display: 0x1234...abcd.
func FormatAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
