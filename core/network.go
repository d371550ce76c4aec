package core

import (
	"strings"

	"github.com/stellar/go-stellar-sdk/network"
)

// Well-known network passphrases.
const (
	PassphraseMainnet   = network.PublicNetworkPassphrase
	PassphraseTestnet   = network.TestNetworkPassphrase
	PassphraseFuturenet = network.FutureNetworkPassphrase
	PassphraseLocal     = "Standalone Network ; February 2017"
)

var defaultArchiveURLs = map[string]string{
	PassphraseMainnet:   "https://history.stellar.org/prd/core-live/core_live_001",
	PassphraseTestnet:   "https://history.stellar.org/prd/core-testnet/core_testnet_001",
	PassphraseFuturenet: "https://history-futurenet.stellar.org",
	PassphraseLocal:     "http://localhost:8000/archive",
}

// NetworkID is the SHA-256 of the network passphrase.
func NetworkID(passphrase string) Hash {
	return network.ID(passphrase)
}

// PassphraseForNetwork resolves a short network name (mainnet, pubnet,
// testnet, futurenet, local, standalone) to its passphrase.
func PassphraseForNetwork(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet", "pubnet", "public":
		return PassphraseMainnet, true
	case "testnet":
		return PassphraseTestnet, true
	case "futurenet":
		return PassphraseFuturenet, true
	case "local", "standalone":
		return PassphraseLocal, true
	default:
		return "", false
	}
}

// DefaultArchiveURL guesses the public history archive for a passphrase.
func DefaultArchiveURL(passphrase string) (string, bool) {
	u, ok := defaultArchiveURLs[passphrase]
	return u, ok
}
