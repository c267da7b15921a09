// Package eip1193 models the injected wallet provider protocol: a single
// Request entry point plus the provider error codes wallets return.
package eip1193

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	MethodRequestAccounts    = "eth_requestAccounts"
	MethodAccounts           = "eth_accounts"
	MethodChainID            = "eth_chainId"
	MethodSwitchChain        = "wallet_switchEthereumChain"
	MethodAddChain           = "wallet_addEthereumChain"
	MethodSendTransaction    = "eth_sendTransaction"
	MethodGetBalance         = "eth_getBalance"
	MethodGetTransactionRcpt = "eth_getTransactionReceipt"
)

const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
	CodeInvalidParams     = -32602
	CodeInternal          = -32603
	CodeServerError       = -32000
)

// Provider is an EIP-1193 provider. Params follow the JSON-RPC positional form;
// the result is decoded into out when out is non-nil.
type Provider interface {
	Request(ctx context.Context, method string, params []any, out any) error
}

// ProviderError is an error returned by a wallet in response to a request.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode satisfies rpc.Error so a ProviderError survives a JSON-RPC hop.
func (e *ProviderError) ErrorCode() int { return e.Code }

func (e *ProviderError) ErrorData() any { return e.Data }

func NewError(code int, msg string) *ProviderError {
	return &ProviderError{Code: code, Message: msg}
}

func UserRejected() *ProviderError {
	return NewError(CodeUserRejected, "User rejected the request.")
}

func UnrecognizedChain(chainIDHex string) *ProviderError {
	return NewError(CodeUnrecognizedChain, fmt.Sprintf("Unrecognized chain ID %q. Try adding the chain using wallet_addEthereumChain first.", chainIDHex))
}

// AsProviderError extracts a ProviderError from err, converting go-ethereum
// rpc errors that carry a code.
func AsProviderError(err error) (*ProviderError, bool) {
	if err == nil {
		return nil, false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	var re rpc.Error
	if errors.As(err, &re) {
		out := &ProviderError{Code: re.ErrorCode(), Message: re.Error()}
		var de rpc.DataError
		if errors.As(err, &de) {
			out.Data = de.ErrorData()
		}
		return out, true
	}
	return nil, false
}

func Code(err error) (int, bool) {
	pe, ok := AsProviderError(err)
	if !ok {
		return 0, false
	}
	return pe.Code, true
}

func IsUserRejected(err error) bool {
	c, ok := Code(err)
	return ok && c == CodeUserRejected
}

// IsUnrecognizedChain reports a 4902, or a wallet that signals an unknown chain
// only in the message (some return -32603 wrapping the original 4902).
func IsUnrecognizedChain(err error) bool {
	pe, ok := AsProviderError(err)
	if !ok {
		return false
	}
	if pe.Code == CodeUnrecognizedChain {
		return true
	}
	msg := strings.ToLower(pe.Message)
	return strings.Contains(msg, "unrecognized chain") || strings.Contains(msg, "4902")
}

// CodeExecutionReverted is what nodes return when eth_estimateGas hits a revert.
const CodeExecutionReverted = 3

var gasEstimationMarkers = []string{
	"gas required exceeds",
	"cannot estimate gas",
	"failed to estimate gas",
	"estimategas",
	"estimate gas",
	"intrinsic gas too low",
	"execution reverted",
}

// ErrGasEstimation marks a failure that happened while estimating gas.
var ErrGasEstimation = errors.New("gas estimation failed")

// IsGasEstimation reports whether err means the wallet could not estimate gas,
// including a revert during estimation. MetaMask nests the node error in Data
// under a -32603 wrapper.
func IsGasEstimation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrGasEstimation) {
		return true
	}
	pe, ok := AsProviderError(err)
	if !ok || pe.Code == CodeUserRejected {
		return false
	}
	if estimationFailure(pe.Code, pe.Message) {
		return true
	}
	if nested, ok := nestedError(pe.Data); ok {
		return nested.Code != CodeUserRejected && estimationFailure(nested.Code, nested.Message)
	}
	return false
}

func estimationFailure(code int, msg string) bool {
	if code == CodeExecutionReverted {
		return true
	}
	msg = strings.ToLower(msg)
	for _, m := range gasEstimationMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// nestedError decodes a {code, message} object carried in an error's data,
// whether it arrived as a map, raw JSON or a typed value.
func nestedError(data any) (ProviderError, bool) {
	var out ProviderError
	if data == nil {
		return out, false
	}
	var raw []byte
	switch v := data.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		return out, false
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return out, false
		}
		raw = b
	}
	var inner struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &inner); err != nil {
		return out, false
	}
	if inner.Code == 0 && inner.Message == "" {
		return out, false
	}
	out.Code, out.Message = inner.Code, inner.Message
	return out, true
}
