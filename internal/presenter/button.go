// Package presenter turns coordinator state into what the storefront renders:
// the connect/profile button, alerts, and the pairing QR modal.
package presenter

import "github.com/farmgoods-io/farm-wallet-client/internal/wallet"

// ButtonState is the header wallet button.
type ButtonState struct {
	ShowConnect  bool   `json:"showConnect"`
	ShowProfile  bool   `json:"showProfile"`
	ProfileLabel string `json:"profileLabel"`
	Busy         bool   `json:"busy"`
}

func Button(s wallet.Snapshot) ButtonState {
	if s.Wallet == nil || s.Wallet.Address == "" {
		return ButtonState{ShowConnect: true, Busy: s.State == wallet.StateConnecting}
	}
	return ButtonState{ShowProfile: true, ProfileLabel: wallet.FormatAddress(s.Wallet.Address)}
}
