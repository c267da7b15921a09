// Package payment turns storefront orders into wallet transactions.
package payment

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/farmgoods-io/farm-wallet-client/internal/tokens"
	"github.com/farmgoods-io/farm-wallet-client/internal/wallet"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

var (
	ErrInvalidOrder   = errors.New("invalid order")
	ErrUnknownToken   = errors.New("token not available on payment network")
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
	ErrReverted       = errors.New("payment transaction reverted")
)

const DefaultWaitTimeout = 2 * time.Minute

// Sender is the wallet facade the checkout pays through.
type Sender interface {
	SendTransaction(ctx context.Context, tx wallet.Tx) (string, error)
	PaymentNetwork() networks.Descriptor
}

type Order struct {
	ID       string         `json:"id"`
	Merchant common.Address `json:"merchant"`
	// Amount is a decimal string in whole token units, e.g. "12.5".
	Amount string `json:"amount"`
	// Token is a symbol or contract address; empty means the network's payment token.
	Token string `json:"token,omitempty"`
}

type Payment struct {
	OrderID string       `json:"orderId"`
	TxHash  string       `json:"txHash"`
	Token   tokens.Token `json:"token"`
	Amount  *big.Int     `json:"amount"`
	Receipt *Receipt     `json:"receipt,omitempty"`
}

type Checkout struct {
	Wallet Sender
	// Receipts, when set, is polled for the transaction receipt after submission.
	Receipts    eip1193.Provider
	WaitTimeout time.Duration

	pollDelay time.Duration
}

// Pay submits the transfer for o and, with a receipt source, waits for it to be mined.
func (c *Checkout) Pay(ctx context.Context, o Order) (*Payment, error) {
	network := c.Wallet.PaymentNetwork()
	tok, amount, err := resolve(network, o)
	if err != nil {
		return nil, err
	}

	tx := wallet.Tx{}
	if tok.IsNative() {
		tx.To = &o.Merchant
		tx.Value = amount
	} else {
		data, err := tokens.TransferCalldata(o.Merchant, amount)
		if err != nil {
			return nil, err
		}
		to := tok.Address
		tx.To = &to
		tx.Data = data
	}

	hash, err := c.Wallet.SendTransaction(ctx, tx)
	if err != nil {
		return nil, errors.Wrapf(err, "pay order %s", o.ID)
	}
	log.Info("payment submitted", "order", o.ID, "token", tok.Symbol, "amount", tokens.FormatUnits(amount, tok.Decimals), "tx", hash)

	p := &Payment{OrderID: o.ID, TxHash: hash, Token: tok, Amount: amount}
	if c.Receipts == nil {
		return p, nil
	}

	timeout := c.WaitTimeout
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	r, err := waitMined(ctx, c.Receipts, common.HexToHash(hash), timeout, c.pollDelay)
	if err != nil {
		return p, err
	}
	p.Receipt = r
	if !r.Succeeded() {
		return p, errors.Wrapf(ErrReverted, "order %s tx %s", o.ID, hash)
	}
	log.Info("payment confirmed", "order", o.ID, "tx", hash, "block", r.BlockNumber)
	return p, nil
}

func resolve(network networks.Descriptor, o Order) (tokens.Token, *big.Int, error) {
	if o.Merchant == (common.Address{}) {
		return tokens.Token{}, nil, errors.Wrap(ErrInvalidOrder, "merchant address is required")
	}

	var tok tokens.Token
	var ok bool
	if strings.TrimSpace(o.Token) == "" {
		tok, ok = tokens.PaymentToken(network)
		if !ok {
			tok = tokens.Native(network)
		}
	} else if tok, ok = tokens.Lookup(network, o.Token); !ok {
		return tokens.Token{}, nil, errors.Wrapf(ErrUnknownToken, "%s on %s", o.Token, network.Name)
	}

	amount, err := tokens.ParseUnits(o.Amount, tok.Decimals)
	if err != nil {
		return tokens.Token{}, nil, errors.Mark(err, ErrInvalidOrder)
	}
	if amount.Sign() == 0 {
		return tokens.Token{}, nil, errors.Wrap(ErrInvalidOrder, "amount must be positive")
	}
	return tok, amount, nil
}
