package networks

import "strings"

var chainDefaults = map[string]struct {
	Name     string
	Explorer string
}{
	// Ethereum
	"0x1":      {"mainnet", "https://etherscan.io"},
	"0xaa36a7": {"sepolia", "https://sepolia.etherscan.io"},

	// Arbitrum
	"0xa4b1":  {"arbitrum", "https://arbiscan.io"},
	"0x66eee": {"arbitrum-sepolia", "https://sepolia.arbiscan.io"},

	// Autonity
	"0x3e158e4": {"piccadilly", "https://piccadilly.autonity.org"},
	"0x3dfd240": {"autonity", "https://autonity.blockscout.com"},

	"0xa":    {"optimism", "https://optimistic.etherscan.io"},
	"0x2105": {"base", "https://basescan.org"},
	"0x89":   {"polygon", "https://polygonscan.com"},
}

// Enrich fills a blank explorer from the built-in chain table.
func Enrich(d Descriptor) Descriptor {
	return enrich(d)
}

func enrich(d Descriptor) Descriptor {
	if strings.TrimSpace(d.ExplorerURL) != "" {
		return d
	}
	if def, ok := chainDefaults[NormalizeChainIDHex(d.ChainIDHex)]; ok {
		d.ExplorerURL = def.Explorer
	}
	return d
}
