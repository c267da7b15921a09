package main

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/farmgoods-io/farm-wallet-client/internal/payment"
	"github.com/farmgoods-io/farm-wallet-client/internal/tokens"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var payFlags struct {
	order  string
	to     string
	amount string
	token  string
	noWait bool
}

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Pay an order from the connected wallet",
	Args:  cobra.NoArgs,
	RunE:  runPay,
}

func init() {
	f := payCmd.Flags()
	f.StringVar(&payFlags.order, "order", "", "order id (random when empty)")
	f.StringVar(&payFlags.to, "to", "", "merchant address")
	f.StringVar(&payFlags.amount, "amount", "", "amount in whole token units, e.g. 12.5")
	f.StringVar(&payFlags.token, "token", "", "token symbol or address (default: the network's payment token)")
	f.BoolVar(&payFlags.noWait, "no-wait", false, "return after submission without waiting for the receipt")
	f.BoolVar(&connectFlags.native, "native", false, "use the local keystore")
	f.BoolVar(&connectFlags.injected, "injected", false, "use the configured extension provider")
	f.BoolVar(&connectFlags.mobile, "mobile", false, "pair a mobile wallet over the relay")
	_ = payCmd.MarkFlagRequired("to")
	_ = payCmd.MarkFlagRequired("amount")
}

func runPay(cmd *cobra.Command, _ []string) error {
	if !common.IsHexAddress(payFlags.to) {
		return errors.Wrapf(payment.ErrInvalidOrder, "merchant %q is not an address", payFlags.to)
	}
	orderID := payFlags.order
	if orderID == "" {
		orderID = uuid.NewString()
	}

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(cmd.Context()))

	// SendTransaction switches networks itself.
	if _, err := connectWallet(cmd, a, false); err != nil {
		return err
	}
	if payFlags.noWait {
		a.checkout.Receipts = nil
	}

	p, err := a.checkout.Pay(cmd.Context(), payment.Order{
		ID:       orderID,
		Merchant: common.HexToAddress(payFlags.to),
		Amount:   payFlags.amount,
		Token:    payFlags.token,
	})
	if p != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "order %s: %s %s sent in %s\n",
			p.OrderID, tokens.FormatUnits(p.Amount, p.Token.Decimals), p.Token.Symbol, p.TxHash)
		if p.Receipt != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "mined in block %s\n", p.Receipt.BlockNumber)
		}
	}
	return err
}
