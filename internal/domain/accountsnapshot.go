package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BalanceLineType is the horizon asset type of a balance line.
type BalanceLineType string

const (
	BalanceLineNative     BalanceLineType = "native"
	BalanceLineCredit4    BalanceLineType = "credit_alphanum4"
	BalanceLineCredit12   BalanceLineType = "credit_alphanum12"
	BalanceLinePoolShares BalanceLineType = "liquidity_pool_shares"
)

// BalanceLine is one balance entry of a ledger account. At most one line
// exists per (code, issuer) pair and at most one native line.
type BalanceLine struct {
	Type    BalanceLineType `json:"asset_type"`
	Asset   Asset           `json:"asset"`
	Balance string          `json:"balance"`
	Limit   string          `json:"limit,omitempty"`
	PoolID  string          `json:"liquidity_pool_id,omitempty"`
}

// Amount parses the balance into a decimal. Malformed values count as zero;
// horizon always serves well-formed decimal strings.
func (b BalanceLine) Amount() decimal.Decimal {
	d, err := decimal.NewFromString(b.Balance)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// AccountSnapshot is what the ledger last said about the loaded account.
// It is replaced wholesale on every successful load, never merged, so
// readers can never observe a half-updated state.
type AccountSnapshot struct {
	PublicKey string        `json:"public_key"`
	Funded    bool          `json:"funded"`
	Sequence  int64         `json:"sequence"`
	Balances  []BalanceLine `json:"balances"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// BalanceFor returns the balance line for the given asset, if present.
func (s AccountSnapshot) BalanceFor(asset Asset) (BalanceLine, bool) {
	for _, line := range s.Balances {
		if line.Type == BalanceLinePoolShares {
			continue
		}
		if line.Asset == asset {
			return line, true
		}
	}
	return BalanceLine{}, false
}

// PoolShareLine returns the pool-shares balance line for the pool ID, if present.
func (s AccountSnapshot) PoolShareLine(poolID string) (BalanceLine, bool) {
	for _, line := range s.Balances {
		if line.Type == BalanceLinePoolShares && line.PoolID == poolID {
			return line, true
		}
	}
	return BalanceLine{}, false
}

// Clone returns a deep copy, so callers can hold the result across later
// store updates.
func (s AccountSnapshot) Clone() AccountSnapshot {
	out := s
	if s.Balances != nil {
		out.Balances = make([]BalanceLine, len(s.Balances))
		copy(out.Balances, s.Balances)
	}
	return out
}
