package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
)

// Wallet is one externally-owned account authorised for use.
type Wallet struct {
	Address string   `json:"address"`
	Balance *big.Int `json:"balance,omitempty"`
}

func (w Wallet) clone() Wallet {
	if w.Balance != nil {
		w.Balance = new(big.Int).Set(w.Balance)
	}
	return w
}

type StrategyKind string

const (
	StrategyNone             StrategyKind = ""
	StrategyNative           StrategyKind = "native"
	StrategyBrowserExtension StrategyKind = "browserExtension"
	StrategyWalletConnect    StrategyKind = "walletConnect"
)

type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateConnectFailed State = "connectFailed"
)

// Session is the signer/provider pair a strategy hands to the coordinator.
type Session interface {
	eip1193.Provider
	Close(ctx context.Context) error
}

// Connection is the outcome of a successful strategy run.
type Connection struct {
	Wallet    Wallet
	Available []Wallet
	Session   Session
}

// Snapshot is the coordinator state passed to the state-change notifier.
type Snapshot struct {
	State     State        `json:"state"`
	Strategy  StrategyKind `json:"strategy,omitempty"`
	Wallet    *Wallet      `json:"wallet,omitempty"`
	Available []Wallet     `json:"available"`
	Error     string       `json:"error,omitempty"`
}

// Notifier receives a snapshot after every connect attempt, disconnect and balance refresh.
type Notifier func(Snapshot)

// Tx is a payment transaction. Gas of zero lets the wallet estimate.
type Tx struct {
	To    *common.Address
	Data  []byte
	Value *big.Int
	Gas   uint64
}
