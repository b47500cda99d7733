package wallet

import (
	"fmt"
	"sort"

	"github.com/layer-3/chainauth/core"
)

// WalletInfo describes a wallet app as data. Wallets of one family differ
// only in their deep link scheme and store links.
type WalletInfo struct {
	ID             string              `json:"id" yaml:"id"`
	Name           string              `json:"name" yaml:"name"`
	BlockchainType core.BlockchainType `json:"blockchain_type" yaml:"blockchain_type"`
	// DeepLink is the URI prefix the app registers, e.g. "metamask://".
	DeepLink      string `json:"deep_link" yaml:"deep_link"`
	UniversalLink string `json:"universal_link,omitempty" yaml:"universal_link"`
	IOSStoreURL   string `json:"ios_store_url,omitempty" yaml:"ios_store_url"`
	AndroidStore  string `json:"android_store_url,omitempty" yaml:"android_store_url"`
}

var catalogue = map[string]WalletInfo{
	"metamask": {
		ID: "metamask", Name: "MetaMask", BlockchainType: core.BlockchainEVM,
		DeepLink:      "metamask://",
		UniversalLink: "https://metamask.app.link/",
		IOSStoreURL:   "https://apps.apple.com/app/metamask/id1438144202",
		AndroidStore:  "https://play.google.com/store/apps/details?id=io.metamask",
	},
	"rainbow": {
		ID: "rainbow", Name: "Rainbow", BlockchainType: core.BlockchainEVM,
		DeepLink:      "rainbow://",
		UniversalLink: "https://rnbwapp.com/",
		IOSStoreURL:   "https://apps.apple.com/app/rainbow-ethereum-wallet/id1457119021",
		AndroidStore:  "https://play.google.com/store/apps/details?id=me.rainbow",
	},
	"trust": {
		ID: "trust", Name: "Trust Wallet", BlockchainType: core.BlockchainEVM,
		DeepLink:      "trust://",
		UniversalLink: "https://link.trustwallet.com/",
		IOSStoreURL:   "https://apps.apple.com/app/trust-crypto-bitcoin-wallet/id1288339409",
		AndroidStore:  "https://play.google.com/store/apps/details?id=com.wallet.crypto.trustapp",
	},
	"coinbase": {
		ID: "coinbase", Name: "Coinbase Wallet", BlockchainType: core.BlockchainEVM,
		DeepLink:      "cbwallet://",
		UniversalLink: "https://go.cb-w.com/",
		IOSStoreURL:   "https://apps.apple.com/app/coinbase-wallet/id1278383455",
		AndroidStore:  "https://play.google.com/store/apps/details?id=org.toshi",
	},
	"phantom": {
		ID: "phantom", Name: "Phantom", BlockchainType: core.BlockchainSolana,
		DeepLink:      "phantom://",
		UniversalLink: "https://phantom.app/ul/",
		IOSStoreURL:   "https://apps.apple.com/app/phantom-solana-wallet/id1598432977",
		AndroidStore:  "https://play.google.com/store/apps/details?id=app.phantom",
	},
	"solflare": {
		ID: "solflare", Name: "Solflare", BlockchainType: core.BlockchainSolana,
		DeepLink:      "solflare://ul/",
		UniversalLink: "https://solflare.com/ul/",
		IOSStoreURL:   "https://apps.apple.com/app/solflare/id1580902717",
		AndroidStore:  "https://play.google.com/store/apps/details?id=com.solflare.mobile",
	},
	"xverse": {
		ID: "xverse", Name: "Xverse", BlockchainType: core.BlockchainBitcoin,
		DeepLink:     "xverse://",
		IOSStoreURL:  "https://apps.apple.com/app/xverse-bitcoin-web3-wallet/id1552272513",
		AndroidStore: "https://play.google.com/store/apps/details?id=com.secretkeylabs.xverse",
	},
	"unisat": {
		ID: "unisat", Name: "UniSat", BlockchainType: core.BlockchainBitcoin,
		DeepLink:     "unisat://",
		IOSStoreURL:  "https://apps.apple.com/app/unisat-wallet/id6474128098",
		AndroidStore: "https://play.google.com/store/apps/details?id=io.unisat",
	},
	"sui": {
		ID: "sui", Name: "Sui Wallet", BlockchainType: core.BlockchainSui,
		DeepLink: "suiwallet://",
	},
}

// Lookup returns the catalogue entry for id.
func Lookup(id string) (WalletInfo, error) {
	info, ok := catalogue[id]
	if !ok {
		return WalletInfo{}, core.NewError(core.KindConnection, core.CodeWalletNotInstalled,
			fmt.Sprintf("unknown wallet %q", id), nil)
	}
	return info, nil
}

// Wallets lists the catalogue for one family, or all wallets when t is empty.
func Wallets(t core.BlockchainType) []WalletInfo {
	var out []WalletInfo
	for _, w := range catalogue {
		if t == "" || w.BlockchainType == t {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
