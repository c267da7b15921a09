package relay

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/farmgoods-io/farm-wallet-client/internal/eip1193"
)

const (
	methodSubscribe    = "irn_subscribe"
	methodPublish      = "irn_publish"
	methodSubscription = "irn_subscription"

	methodSessionPropose = "wc_sessionPropose"
	methodSessionRequest = "wc_sessionRequest"
	methodSessionEvent   = "wc_sessionEvent"
	methodSessionDelete  = "wc_sessionDelete"
	methodSessionPing    = "wc_sessionPing"
)

// publish tags
const (
	tagSessionPropose       = 1100
	tagSessionProposeResult = 1101
	tagSessionRequest       = 1108
	tagSessionRequestResult = 1109
	tagSessionEvent         = 1110
	tagSessionDelete        = 1112
	tagSessionDeleteResult  = 1113
)

// Wallet-side rejection codes.
const (
	codeUserRejected        = 5000
	codeUserRejectedChains  = 5001
	codeUserRejectedMethods = 5002
	codeUserDisconnected    = 6000
)

const defaultTTL = int64(5 * time.Minute / time.Second)

type rpcMessage struct {
	ID      int64                  `json:"id"`
	JSONRPC string                 `json:"jsonrpc"`
	Method  string                 `json:"method,omitempty"`
	Params  json.RawMessage        `json:"params,omitempty"`
	Result  json.RawMessage        `json:"result,omitempty"`
	Error   *eip1193.ProviderError `json:"error,omitempty"`
}

type subscribeParams struct {
	Topic string `json:"topic"`
}

type publishParams struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
	TTL     int64  `json:"ttl"`
	Tag     int    `json:"tag"`
	Prompt  bool   `json:"prompt,omitempty"`
}

type subscriptionParams struct {
	ID   string           `json:"id"`
	Data subscriptionData `json:"data"`
}

type subscriptionData struct {
	Topic       string `json:"topic"`
	Message     string `json:"message"`
	PublishedAt int64  `json:"publishedAt"`
	Tag         int    `json:"tag"`
}

// Metadata describes one side of the session to the other.
type Metadata struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
	Icons       []string `json:"icons,omitempty"`
}

type namespace struct {
	Chains  []string `json:"chains"`
	Methods []string `json:"methods"`
	Events  []string `json:"events"`
}

type sessionProposal struct {
	RequiredNamespaces map[string]namespace `json:"requiredNamespaces"`
	Proposer           Metadata             `json:"proposer"`
	ExpiryTimestamp    int64                `json:"expiryTimestamp,omitempty"`
}

type proposalResult struct {
	Accounts []string `json:"accounts"`
	Wallet   Metadata `json:"wallet"`
}

type sessionRequestParams struct {
	Request struct {
		Method string `json:"method"`
		Params []any  `json:"params"`
	} `json:"request"`
	ChainID string `json:"chainId"`
}

type sessionEventParams struct {
	Event struct {
		Name string          `json:"name"`
		Data json.RawMessage `json:"data"`
	} `json:"event"`
	ChainID string `json:"chainId"`
}

type sessionDeleteParams struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var sessionMethods = []string{
	eip1193.MethodSendTransaction,
	eip1193.MethodSwitchChain,
	eip1193.MethodAddChain,
	"personal_sign",
	"eth_signTypedData_v4",
}

var sessionEvents = []string{"chainChanged", "accountsChanged"}

var idSeq atomic.Int64

// nextID follows the relay convention of millisecond timestamp plus a counter.
func nextID() int64 {
	return time.Now().UnixMilli()*1000 + idSeq.Add(1)%1000
}

func caip2(chainID uint64) string {
	return "eip155:" + strconv.FormatUint(chainID, 10)
}

// parseAccount splits a CAIP-10 "eip155:<chain>:<address>" account.
func parseAccount(s string) (uint64, common.Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 || parts[0] != "eip155" {
		return 0, common.Address{}, errors.Newf("invalid account %q", s)
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, common.Address{}, errors.Wrapf(err, "invalid account chain %q", s)
	}
	if !common.IsHexAddress(parts[2]) {
		return 0, common.Address{}, errors.Newf("invalid account address %q", s)
	}
	return id, common.HexToAddress(parts[2]), nil
}

// walletError normalises wallet rejections to the provider codes callers check.
func walletError(e *eip1193.ProviderError) error {
	switch e.Code {
	case codeUserRejected, codeUserRejectedChains, codeUserRejectedMethods, eip1193.CodeUserRejected:
		return &eip1193.ProviderError{Code: eip1193.CodeUserRejected, Message: e.Message, Data: e.Data}
	}
	return e
}
