package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/farmgoods-io/farm-wallet-client/internal/appstate"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/spf13/cobra"
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "Manage known EVM networks",
}

var networksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered networks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tCHAIN\tCURRENCY\tRPC")
		for _, d := range reg.List() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.ChainIDHex, d.Currency.Symbol, d.PrimaryRPC())
		}
		return tw.Flush()
	},
}

var networkAdd struct {
	chainID  string
	symbol   string
	currency string
	decimals int
	rpcs     []string
	explorer string
}

var networksAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a network",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry(cmd)
		if err != nil {
			return err
		}
		d, err := reg.Add(cmd.Context(), networks.Descriptor{
			Name:       args[0],
			ChainIDHex: networkAdd.chainID,
			Currency: networks.NativeCurrency{
				Name:     networkAdd.currency,
				Symbol:   networkAdd.symbol,
				Decimals: networkAdd.decimals,
			},
			RPCURLs:     networkAdd.rpcs,
			ExplorerURL: networkAdd.explorer,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", d.DisplayName(), d.ChainIDHex)
		return nil
	},
}

var networksSelectCmd = &cobra.Command{
	Use:       "select mainnet|testnet|local",
	Short:     "Choose the payment network saved in state.json",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"mainnet", "testnet", "local"},
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := appstate.DefaultPath()
		if err != nil {
			return err
		}
		st, err := appstate.Open(path)
		if err != nil {
			return err
		}
		d, err := st.SetNetwork(strings.TrimSpace(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "payment network: %s (%s)\n", d.DisplayName(), d.ChainIDHex)
		return nil
	},
}

func init() {
	f := networksAddCmd.Flags()
	f.StringVar(&networkAdd.chainID, "chain-id", "", "chain id in hex, e.g. 0xa4b1")
	f.StringVar(&networkAdd.symbol, "symbol", "ETH", "native currency symbol")
	f.StringVar(&networkAdd.currency, "currency", "Ether", "native currency name")
	f.IntVar(&networkAdd.decimals, "decimals", 18, "native currency decimals")
	f.StringSliceVar(&networkAdd.rpcs, "rpc", nil, "RPC URL (repeatable)")
	f.StringVar(&networkAdd.explorer, "explorer", "", "block explorer URL")
	_ = networksAddCmd.MarkFlagRequired("chain-id")
	_ = networksAddCmd.MarkFlagRequired("rpc")
}

func openRegistry(cmd *cobra.Command) (*networks.Registry, error) {
	path, err := networks.DefaultPath()
	if err != nil {
		return nil, err
	}
	reg := networks.NewRegistry(path)
	if err := reg.EnsureDefaults(cmd.Context(), networks.Builtins()); err != nil {
		return nil, err
	}
	return reg, nil
}
