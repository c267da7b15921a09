package eip1193

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TransactionArgs is the eth_sendTransaction parameter object.
type TransactionArgs struct {
	From  *common.Address `json:"from,omitempty"`
	To    *common.Address `json:"to,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

// SwitchChainParams is the wallet_switchEthereumChain parameter object.
type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

// DecodeParam decodes positional parameter i into out, the way a JSON-RPC
// server would see it.
func DecodeParam(params []any, i int, out any) error {
	if i >= len(params) {
		return NewError(CodeInvalidParams, "missing parameter")
	}
	b, err := json.Marshal(params[i])
	if err != nil {
		return errors.Wrap(err, "encode param")
	}
	if err := json.Unmarshal(b, out); err != nil {
		return NewError(CodeInvalidParams, "invalid parameter: "+err.Error())
	}
	return nil
}

// SetResult copies v into out through JSON so in-process providers decode
// exactly like remote ones.
func SetResult(out any, v any) error {
	if out == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "encode result")
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.Wrap(err, "decode result")
	}
	return nil
}
