// Package domain defines core data structures used throughout the wallet.
package domain

import (
	"fmt"

	"github.com/stellar/go/txnbuild"
)

// Asset identifies a ledger asset. The zero value is the native asset:
// no code, no issuer. IsNative is the only authority on nativeness, so
// call sites never compare issuer strings against "" themselves.
type Asset struct {
	Code   string `json:"code,omitempty"`
	Issuer string `json:"issuer,omitempty"`
}

// NativeAsset returns the network's native asset.
func NativeAsset() Asset {
	return Asset{}
}

// CreditAsset returns an issued asset.
func CreditAsset(code, issuer string) Asset {
	return Asset{Code: code, Issuer: issuer}
}

// IsNative reports whether the asset is the network's native asset.
func (a Asset) IsNative() bool {
	return a.Code == ""
}

// Canonical returns the horizon canonical form: "native" or "CODE:ISSUER".
func (a Asset) Canonical() string {
	if a.IsNative() {
		return "native"
	}
	return fmt.Sprintf("%s:%s", a.Code, a.Issuer)
}

// String returns a short human-readable form.
func (a Asset) String() string {
	if a.IsNative() {
		return "XLM"
	}
	return a.Code
}

// ToTxnbuild converts the asset to its transaction-builder representation.
func (a Asset) ToTxnbuild() txnbuild.Asset {
	if a.IsNative() {
		return txnbuild.NativeAsset{}
	}
	return txnbuild.CreditAsset{Code: a.Code, Issuer: a.Issuer}
}
