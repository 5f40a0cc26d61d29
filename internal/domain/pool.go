package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PoolSnapshot is the observed state of a constant-product liquidity pool.
// Reserves and shares are non-negative; an empty pool (TotalShares zero)
// has zero reserves on both sides.
type PoolSnapshot struct {
	ID          string          `json:"id"`
	AssetA      Asset           `json:"asset_a"`
	AssetB      Asset           `json:"asset_b"`
	ReserveA    decimal.Decimal `json:"reserve_a"`
	ReserveB    decimal.Decimal `json:"reserve_b"`
	TotalShares decimal.Decimal `json:"total_shares"`
	FeeBps      int32           `json:"fee_bps"`
	FetchedAt   time.Time       `json:"fetched_at"`
}

// Empty reports whether the pool has no shares minted yet.
func (p PoolSnapshot) Empty() bool {
	return p.TotalShares.IsZero()
}

// JoinSimulation is the outcome of simulating a pool deposit against a
// PoolSnapshot. It is derived and immutable: recomputed from its inputs,
// never adjusted in place.
type JoinSimulation struct {
	MintedShares     decimal.Decimal `json:"minted_shares"`
	NewTotalShares   decimal.Decimal `json:"new_total_shares"`
	NewOwnershipPct  decimal.Decimal `json:"new_ownership_pct"`
	AdjustedDepositA decimal.Decimal `json:"adjusted_deposit_a"`
	AdjustedDepositB decimal.Decimal `json:"adjusted_deposit_b"`
	RatioAdjusted    bool            `json:"ratio_adjusted"`
	Err              error           `json:"-"`
}

// SlippageCheck reports how far a pool drifted between two snapshots.
type SlippageCheck struct {
	ReserveRatioChangePct decimal.Decimal `json:"reserve_ratio_change_pct"`
	TotalSharesChangePct  decimal.Decimal `json:"total_shares_change_pct"`
	ExceedsTolerance      bool            `json:"exceeds_tolerance"`
}
