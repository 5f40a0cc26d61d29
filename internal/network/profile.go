// Package network resolves a network selector into connection parameters.
package network

import (
	"github.com/stellar/go/network"

	"github.com/lumeris/lumeris/internal/domain"
)

// Mode selects which Stellar network the wallet talks to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeMain Mode = "main"
)

const (
	testnetHorizonURL = "https://horizon-testnet.stellar.org"
	mainnetHorizonURL = "https://horizon.stellar.org"
)

// Profile holds everything needed to talk to one network. Balances are
// ledger-specific, so switching profiles invalidates any cached snapshot.
type Profile struct {
	HorizonURL string
	Passphrase string
	IsTest     bool
}

// Resolve maps a mode to its profile. Pure, no I/O.
func Resolve(mode Mode) (Profile, error) {
	switch mode {
	case ModeTest:
		return Profile{
			HorizonURL: testnetHorizonURL,
			Passphrase: network.TestNetworkPassphrase,
			IsTest:     true,
		}, nil
	case ModeMain:
		return Profile{
			HorizonURL: mainnetHorizonURL,
			Passphrase: network.PublicNetworkPassphrase,
			IsTest:     false,
		}, nil
	default:
		return Profile{}, domain.NewValidationError("unknown network mode %q, want %q or %q", mode, ModeTest, ModeMain)
	}
}
