package networks

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NativeCurrency is the EIP-3085 nativeCurrency object.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Descriptor describes one EVM network a wallet can be asked to switch to.
type Descriptor struct {
	Name        string         `json:"name"`
	ChainID     uint64         `json:"chainId"`
	ChainIDHex  string         `json:"chainIdHex"`
	Currency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs     []string       `json:"rpcUrls"`
	ExplorerURL string         `json:"explorer,omitempty"`
}

// Piccadilly is the Autonity test network used for development payments.
var Piccadilly = Descriptor{
	Name:       "piccadilly",
	ChainID:    65100004,
	ChainIDHex: "0x3e158e4",
	Currency:   NativeCurrency{Name: "ATN", Symbol: "ATN", Decimals: 18},
	RPCURLs: []string{
		"https://autonity.rpc.web3cdn.network/testnet",
		"https://autonity-piccadilly.rpc.subquery.network/public",
		"https://rpc.piccadilly.autonity.org",
	},
	ExplorerURL: "https://piccadilly.autonity.org",
}

// ArbitrumOne is the production payment network.
var ArbitrumOne = Descriptor{
	Name:        "arbitrum",
	ChainID:     42161,
	ChainIDHex:  "0xa4b1",
	Currency:    NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
	RPCURLs:     []string{"https://arb1.arbitrum.io/rpc"},
	ExplorerURL: "https://arbiscan.io",
}

// Local is an anvil/hardhat dev chain on the default port.
var Local = Descriptor{
	Name:       "local",
	ChainID:    31337,
	ChainIDHex: "0x7a69",
	Currency:   NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
	RPCURLs:    []string{"http://127.0.0.1:8545"},
}

// Builtins returns the networks known at process start.
func Builtins() []Descriptor {
	return []Descriptor{Piccadilly.Clone(), ArbitrumOne.Clone(), Local.Clone()}
}

// ForEnvironment maps a deployment environment name to its payment network.
func ForEnvironment(env string) (Descriptor, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "mainnet", "production", "prod":
		return ArbitrumOne.Clone(), nil
	case "testnet", "test", "piccadilly", "dev", "develop":
		return Piccadilly.Clone(), nil
	case "local":
		return Local.Clone(), nil
	default:
		return Descriptor{}, errors.Newf("unknown network environment %q", env)
	}
}

func (d Descriptor) Clone() Descriptor {
	d.RPCURLs = append([]string(nil), d.RPCURLs...)
	return d
}

// PrimaryRPC returns the first configured RPC URL, or "".
func (d Descriptor) PrimaryRPC() string {
	for _, u := range d.RPCURLs {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

// Validate checks the descriptor is usable and fills ChainIDHex/ChainID from each other.
func (d *Descriptor) Validate() error {
	d.Name = strings.ToLower(strings.TrimSpace(d.Name))
	if d.Name == "" {
		return errors.New("network name is required")
	}
	if d.ChainIDHex == "" && d.ChainID != 0 {
		d.ChainIDHex = HexFromChainID(d.ChainID)
	}
	id, err := ParseChainID(d.ChainIDHex)
	if err != nil {
		return errors.Wrapf(err, "network %s", d.Name)
	}
	if d.ChainID != 0 && d.ChainID != id {
		return errors.Newf("network %s: chainId %d does not match chainIdHex %s", d.Name, d.ChainID, d.ChainIDHex)
	}
	d.ChainID = id
	d.ChainIDHex = HexFromChainID(id)
	d.RPCURLs = normalizeRPCs(d.RPCURLs)
	d.ExplorerURL = strings.TrimSpace(d.ExplorerURL)
	return nil
}

// AddEthereumChainParameter is the wallet_addEthereumChain payload (EIP-3085).
type AddEthereumChainParameter struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

func (d Descriptor) AddChainParams() AddEthereumChainParameter {
	p := AddEthereumChainParameter{
		ChainID:        HexFromChainID(d.ChainID),
		ChainName:      d.DisplayName(),
		NativeCurrency: d.Currency,
		RPCURLs:        append([]string(nil), d.RPCURLs...),
	}
	if d.ExplorerURL != "" {
		p.BlockExplorerURLs = []string{d.ExplorerURL}
	}
	return p
}

// FromAddChainParams builds a descriptor from a wallet_addEthereumChain payload.
func FromAddChainParams(p AddEthereumChainParameter) (Descriptor, error) {
	d := Descriptor{
		Name:       p.ChainName,
		ChainIDHex: p.ChainID,
		Currency:   p.NativeCurrency,
		RPCURLs:    p.RPCURLs,
	}
	if len(p.BlockExplorerURLs) > 0 {
		d.ExplorerURL = p.BlockExplorerURLs[0]
	}
	if err := d.Validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func (d Descriptor) DisplayName() string {
	switch d.ChainID {
	case Piccadilly.ChainID:
		return "Autonity Piccadilly (Tiber) Testnet"
	case ArbitrumOne.ChainID:
		return "Arbitrum One"
	}
	return d.Name
}

// ParseChainID accepts "0x"-prefixed or bare hex, in any case and with leading zeros.
func ParseChainID(s string) (uint64, error) {
	h := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if h == "" {
		return 0, errors.Newf("invalid chain id %q", s)
	}
	id, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid chain id %q", s)
	}
	return id, nil
}

// NormalizeChainIDHex returns the canonical quantity form ("0x3e158e4") or "" when unparsable.
func NormalizeChainIDHex(s string) string {
	id, err := ParseChainID(s)
	if err != nil {
		return ""
	}
	return HexFromChainID(id)
}

func HexFromChainID(id uint64) string {
	return hexutil.EncodeUint64(id)
}

// SameChain reports whether two chain-id hex strings name the same chain.
func SameChain(a, b string) bool {
	x, err := ParseChainID(a)
	if err != nil {
		return false
	}
	y, err := ParseChainID(b)
	if err != nil {
		return false
	}
	return x == y
}

func normalizeRPCs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, u := range in {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		key := strings.ToLower(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out
}
