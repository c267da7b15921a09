package tokens

import (
	"context"
	"math/big"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

var erc20ABI = mustParseABI(erc20ABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// TransferCalldata encodes transfer(to, amount).
func TransferCalldata(to common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, errors.New("transfer amount must be non-negative")
	}
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return nil, errors.Wrap(err, "pack transfer")
	}
	return data, nil
}

// Backend reads contract state and native balances; *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// BalanceOf returns owner's balance of t in base units.
func BalanceOf(ctx context.Context, b Backend, t Token, owner common.Address) (*big.Int, error) {
	if owner == (common.Address{}) {
		return big.NewInt(0), nil
	}
	if t.IsNative() {
		wei, err := b.BalanceAt(ctx, owner, nil)
		if err != nil {
			return nil, errors.Wrap(err, "native balance")
		}
		return wei, nil
	}

	var out []interface{}
	if err := contract(t.Address, b).Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return nil, errors.Wrapf(err, "%s balanceOf", t.Symbol)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// Fetch reads symbol, decimals and name from the token contract at addr.
func Fetch(ctx context.Context, b bind.ContractCaller, chainIDHex string, addr common.Address) (Token, error) {
	c := contract(addr, b)
	call := &bind.CallOpts{Context: ctx}

	var out []interface{}
	if err := c.Call(call, &out, "symbol"); err != nil {
		return Token{}, errors.Wrap(err, "symbol")
	}
	sym := *abi.ConvertType(out[0], new(string)).(*string)

	out = nil
	if err := c.Call(call, &out, "decimals"); err != nil {
		return Token{}, errors.Wrap(err, "decimals")
	}
	dec := *abi.ConvertType(out[0], new(uint8)).(*uint8)

	name := ""
	out = nil
	if err := c.Call(call, &out, "name"); err == nil && len(out) > 0 {
		name = *abi.ConvertType(out[0], new(string)).(*string)
	}

	return Token{ChainIDHex: chainIDHex, Address: addr, Symbol: sym, Name: name, Decimals: dec}, nil
}

func contract(addr common.Address, caller bind.ContractCaller) *bind.BoundContract {
	return bind.NewBoundContract(addr, erc20ABI, caller, nil, nil)
}
