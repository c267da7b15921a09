// Package tokens describes the payment tokens and talks ERC-20 to them.
package tokens

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/farmgoods-io/farm-wallet-client/internal/constants"
	"github.com/farmgoods-io/farm-wallet-client/internal/networks"
)

type Token struct {
	ChainIDHex string         `json:"chainId"`
	Address    common.Address `json:"address"`
	Symbol     string         `json:"symbol"`
	Name       string         `json:"name,omitempty"`
	Decimals   uint8          `json:"decimals"`
}

// IsNative reports whether t is the chain's native currency.
func (t Token) IsNative() bool {
	return t.Address == common.HexToAddress(constants.NativeAddr)
}

var (
	DevANTPiccadilly = Token{
		ChainIDHex: networks.Piccadilly.ChainIDHex,
		Address:    common.HexToAddress("0x8F1F739F2546a03Ee9aFf68597d86179398d891F"),
		Symbol:     "tANT",
		Name:       "Dev ANT",
		Decimals:   18,
	}
	ANTArbitrum = Token{
		ChainIDHex: networks.ArbitrumOne.ChainIDHex,
		Address:    common.HexToAddress("0xa78d8321B20c4Ef90eCd72f2588AA985A4BDb684"),
		Symbol:     "ANT",
		Name:       "ANT",
		Decimals:   18,
	}
)

// Native returns the native currency of d as a token at the zero address.
func Native(d networks.Descriptor) Token {
	dec := d.Currency.Decimals
	if dec <= 0 || dec > 255 {
		dec = 18
	}
	return Token{
		ChainIDHex: d.ChainIDHex,
		Address:    common.HexToAddress(constants.NativeAddr),
		Symbol:     d.Currency.Symbol,
		Name:       d.Currency.Name,
		Decimals:   uint8(dec),
	}
}

func Builtins() []Token {
	return []Token{DevANTPiccadilly, ANTArbitrum}
}

// PaymentToken is the storefront's default token on d, if it has one.
func PaymentToken(d networks.Descriptor) (Token, bool) {
	for _, t := range Builtins() {
		if networks.SameChain(t.ChainIDHex, d.ChainIDHex) {
			return t, true
		}
	}
	return Token{}, false
}

// List returns the native currency and the built-in tokens of d, sorted by symbol.
func List(d networks.Descriptor) []Token {
	out := []Token{Native(d)}
	for _, t := range Builtins() {
		if networks.SameChain(t.ChainIDHex, d.ChainIDHex) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out[1:], func(i, j int) bool {
		return strings.ToLower(out[1+i].Symbol) < strings.ToLower(out[1+j].Symbol)
	})
	return out
}

// Lookup finds a token on d by symbol or address.
func Lookup(d networks.Descriptor, symbolOrAddress string) (Token, bool) {
	s := strings.TrimSpace(symbolOrAddress)
	for _, t := range List(d) {
		if strings.EqualFold(t.Symbol, s) {
			return t, true
		}
		if common.IsHexAddress(s) && common.HexToAddress(s) == t.Address {
			return t, true
		}
	}
	return Token{}, false
}
