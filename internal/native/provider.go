// Package native is the in-process wallet: an EIP-1193 provider backed by a
// keystore key that signs locally and broadcasts through the chains service.
package native

import (
	"context"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/farmgoods-io/farm-wallet-client/internal/chains"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
	"github.com/farmgoods-io/farm-wallet-client/internal/keystore"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

// Backend is the part of ethclient.Client the provider needs.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Chains tracks the active network and hands out backends for it.
type Chains interface {
	ActiveNetwork() networks.Descriptor
	SwitchChain(ctx context.Context, chainIDHex string) (networks.Descriptor, error)
	ActiveBackend(ctx context.Context) (Backend, networks.Descriptor, error)
}

type serviceChains struct {
	*chains.Service
}

// FromService adapts a chains.Service.
func FromService(s *chains.Service) Chains {
	return serviceChains{s}
}

func (s serviceChains) ActiveBackend(ctx context.Context) (Backend, networks.Descriptor, error) {
	c, d, err := s.ActiveClient(ctx)
	if err != nil {
		return nil, d, err
	}
	return c, d, nil
}

type Provider struct {
	key      *keystore.Key
	chains   Chains
	registry *networks.Registry
}

func NewProvider(key *keystore.Key, c Chains, reg *networks.Registry) *Provider {
	return &Provider{key: key, chains: c, registry: reg}
}

func (p *Provider) Address() common.Address { return p.key.Address() }

func (p *Provider) Request(ctx context.Context, method string, params []any, out any) error {
	switch method {
	case eip1193.MethodRequestAccounts, eip1193.MethodAccounts:
		return eip1193.SetResult(out, []string{p.key.Address().Hex()})

	case eip1193.MethodChainID:
		return eip1193.SetResult(out, p.chains.ActiveNetwork().ChainIDHex)

	case eip1193.MethodSwitchChain:
		var req eip1193.SwitchChainParams
		if err := eip1193.DecodeParam(params, 0, &req); err != nil {
			return err
		}
		return p.switchChain(ctx, req.ChainID)

	case eip1193.MethodAddChain:
		var req networks.AddEthereumChainParameter
		if err := eip1193.DecodeParam(params, 0, &req); err != nil {
			return err
		}
		return p.addChain(ctx, req)

	case eip1193.MethodGetBalance:
		var addr common.Address
		if err := eip1193.DecodeParam(params, 0, &addr); err != nil {
			return err
		}
		bal, err := p.balance(ctx, addr)
		if err != nil {
			return err
		}
		return eip1193.SetResult(out, (*hexutil.Big)(bal))

	case eip1193.MethodSendTransaction:
		var args eip1193.TransactionArgs
		if err := eip1193.DecodeParam(params, 0, &args); err != nil {
			return err
		}
		hash, err := p.sendTransaction(ctx, args)
		if err != nil {
			return err
		}
		return eip1193.SetResult(out, hash.Hex())

	case eip1193.MethodGetTransactionRcpt:
		var hash common.Hash
		if err := eip1193.DecodeParam(params, 0, &hash); err != nil {
			return err
		}
		rcpt, err := p.receipt(ctx, hash)
		if err != nil {
			return err
		}
		return eip1193.SetResult(out, rcpt)
	}
	return eip1193.NewError(eip1193.CodeUnsupportedMethod, "unsupported method "+method)
}

func (p *Provider) switchChain(ctx context.Context, chainIDHex string) error {
	if networks.NormalizeChainIDHex(chainIDHex) == "" {
		return eip1193.NewError(eip1193.CodeInvalidParams, "invalid chainId "+chainIDHex)
	}
	_, err := p.chains.SwitchChain(ctx, chainIDHex)
	if errors.Is(err, chains.ErrUnknownNetwork) {
		return eip1193.UnrecognizedChain(chainIDHex)
	}
	if err != nil {
		return eip1193.NewError(eip1193.CodeInternal, err.Error())
	}
	return nil
}

func (p *Provider) addChain(ctx context.Context, req networks.AddEthereumChainParameter) error {
	d, err := networks.FromAddChainParams(req)
	if err != nil {
		return eip1193.NewError(eip1193.CodeInvalidParams, err.Error())
	}
	if _, found, _ := p.registry.FindByChainIDHex(ctx, d.ChainIDHex); found {
		return nil
	}
	if _, err := p.registry.Add(ctx, d); err != nil {
		return eip1193.NewError(eip1193.CodeInternal, err.Error())
	}
	log.Info("network added", "chain", d.ChainIDHex, "name", d.Name)
	return nil
}

func (p *Provider) balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	b, _, err := p.chains.ActiveBackend(ctx)
	if err != nil {
		return nil, eip1193.NewError(eip1193.CodeInternal, err.Error())
	}
	bal, err := b.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, eip1193.NewError(eip1193.CodeInternal, err.Error())
	}
	return bal, nil
}

func (p *Provider) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	b, _, err := p.chains.ActiveBackend(ctx)
	if err != nil {
		return nil, eip1193.NewError(eip1193.CodeInternal, err.Error())
	}
	r, err := b.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eip1193.NewError(eip1193.CodeInternal, err.Error())
	}
	return r, nil
}

func (p *Provider) sendTransaction(ctx context.Context, args eip1193.TransactionArgs) (common.Hash, error) {
	from := p.key.Address()
	if args.From != nil && *args.From != from {
		return common.Hash{}, eip1193.NewError(eip1193.CodeUnauthorized, "unknown account "+args.From.Hex())
	}

	b, d, err := p.chains.ActiveBackend(ctx)
	if err != nil {
		return common.Hash{}, eip1193.NewError(eip1193.CodeInternal, err.Error())
	}
	chainID := new(big.Int).SetUint64(d.ChainID)

	nonce, err := b.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, eip1193.NewError(eip1193.CodeInternal, "nonce: "+err.Error())
	}

	value := big.NewInt(0)
	if args.Value != nil {
		value = args.Value.ToInt()
	}

	var gasLimit uint64
	if args.Gas != nil {
		gasLimit = uint64(*args.Gas)
	} else {
		est, err := b.EstimateGas(ctx, ethereum.CallMsg{From: from, To: args.To, Value: value, Data: args.Data})
		if err != nil {
			return common.Hash{}, eip1193.NewError(eip1193.CodeServerError, "failed to estimate gas: "+err.Error())
		}
		gasLimit = est + est/10
		if gasLimit < 21_000 {
			gasLimit = 21_000
		}
	}

	var tx *types.Transaction
	if maxFee, tip, ok := suggest1559Fees(ctx, b); ok {
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: maxFee,
			Gas:       gasLimit,
			To:        args.To,
			Value:     value,
			Data:      args.Data,
		})
	} else {
		gasPrice, err := b.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, eip1193.NewError(eip1193.CodeInternal, "gas price: "+err.Error())
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       args.To,
			Value:    value,
			Gas:      gasLimit,
			GasPrice: gasPrice,
			Data:     args.Data,
		})
	}

	signed, err := p.key.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, eip1193.NewError(eip1193.CodeInternal, err.Error())
	}
	if err := b.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, eip1193.NewError(eip1193.CodeServerError, "send tx: "+err.Error())
	}
	log.Info("transaction sent", "hash", signed.Hash().Hex(), "chain", d.ChainIDHex, "gas", gasLimit)
	return signed.Hash(), nil
}

// suggest1559Fees returns 2*baseFee+tip when the chain has a base fee.
func suggest1559Fees(ctx context.Context, b Backend) (maxFee, tip *big.Int, ok bool) {
	head, err := b.HeaderByNumber(ctx, nil)
	if err != nil || head == nil || head.BaseFee == nil {
		return nil, nil, false
	}
	tip, err = b.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, false
	}
	maxFee = new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)
	return maxFee, tip, true
}
