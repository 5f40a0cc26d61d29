// Package amm simulates constant-product liquidity pool operations.
// Every function is pure and deterministic over its numeric inputs;
// nothing here touches the network or account state.
package amm

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/lumeris/lumeris/internal/domain"
)

// DefaultRatioTolerance is the relative deviation between the pool ratio
// and the deposit ratio that still counts as balanced.
const DefaultRatioTolerance = 0.0005

// minMintedShares guards against numerically meaningless share counts.
var minMintedShares = decimal.NewFromFloat(1e-6)

var (
	// ErrNonPositiveDeposit is returned when either deposit amount is zero or negative.
	ErrNonPositiveDeposit = errors.New("Deposit amounts must be greater than 0")
	// ErrDepositTooSmall is returned when a deposit would mint a dust amount of shares.
	ErrDepositTooSmall = errors.New("deposit too small to mint shares")
	// ErrDegeneratePool is returned when a pool has shares outstanding but a
	// drained or negative reserve, so no price ratio can be derived from it.
	ErrDegeneratePool = errors.New("pool reserves are inconsistent with its share count")
)

var hundred = decimal.NewFromInt(100)

// SimulateJoin computes the outcome of depositing (depositA, depositB)
// into the pool using the default ratio tolerance.
func SimulateJoin(pool domain.PoolSnapshot, depositA, depositB decimal.Decimal) domain.JoinSimulation {
	return SimulateJoinWithTolerance(pool, depositA, depositB, DefaultRatioTolerance)
}

// SimulateJoinWithTolerance computes the outcome of depositing
// (depositA, depositB) into the pool.
//
// An empty pool is bootstrapped: the first depositor sets the implied
// exchange rate and receives sqrt(depositA*depositB) shares, owning 100%.
// For a non-empty pool an imbalanced deposit is first reduced on one side
// so the accepted amounts match the pool ratio (never exceeding what the
// caller offered), then shares are minted by the minimum-of-two-ratios
// rule, which keeps the pool's implied price unchanged.
func SimulateJoinWithTolerance(pool domain.PoolSnapshot, depositA, depositB decimal.Decimal, tolerance float64) domain.JoinSimulation {
	if !depositA.IsPositive() || !depositB.IsPositive() {
		return domain.JoinSimulation{Err: ErrNonPositiveDeposit}
	}

	if pool.Empty() {
		minted := sqrt(depositA.Mul(depositB))
		if minted.LessThan(minMintedShares) {
			return domain.JoinSimulation{Err: ErrDepositTooSmall}
		}
		return domain.JoinSimulation{
			MintedShares:     minted,
			NewTotalShares:   minted,
			NewOwnershipPct:  hundred,
			AdjustedDepositA: depositA,
			AdjustedDepositB: depositB,
		}
	}

	if degenerate(pool) {
		return domain.JoinSimulation{Err: ErrDegeneratePool}
	}

	adjustedA, adjustedB := depositA, depositB
	ratioAdjusted := false

	currentRatio := pool.ReserveA.Div(pool.ReserveB)
	depositRatio := depositA.Div(depositB)
	drift := depositRatio.Sub(currentRatio).Abs().Div(currentRatio)
	if drift.GreaterThan(decimal.NewFromFloat(tolerance)) {
		ratioAdjusted = true
		if depositRatio.GreaterThan(currentRatio) {
			// too much A offered, shrink A to match the pool ratio
			adjustedA = depositB.Mul(currentRatio)
		} else {
			adjustedB = depositA.Div(currentRatio)
		}
	}

	sharesByA := adjustedA.Mul(pool.TotalShares).Div(pool.ReserveA)
	sharesByB := adjustedB.Mul(pool.TotalShares).Div(pool.ReserveB)
	minted := decimal.Min(sharesByA, sharesByB)
	if minted.LessThan(minMintedShares) {
		return domain.JoinSimulation{Err: ErrDepositTooSmall}
	}

	newTotal := pool.TotalShares.Add(minted)

	return domain.JoinSimulation{
		MintedShares:     minted,
		NewTotalShares:   newTotal,
		NewOwnershipPct:  minted.Div(newTotal).Mul(hundred),
		AdjustedDepositA: adjustedA,
		AdjustedDepositB: adjustedB,
		RatioAdjusted:    ratioAdjusted,
	}
}

// CheckSlippageProtection reports how far the pool drifted between a
// simulation snapshot and a later one taken just before submission.
// ExceedsTolerance is set when either the reserve ratio or the total
// share count moved by more than tolerancePct percent.
func CheckSlippageProtection(before, after domain.PoolSnapshot, tolerancePct decimal.Decimal) domain.SlippageCheck {
	check := domain.SlippageCheck{
		ReserveRatioChangePct: relativeChangePct(ratioOf(before), ratioOf(after)),
		TotalSharesChangePct:  relativeChangePct(before.TotalShares, after.TotalShares),
	}
	check.ExceedsTolerance = check.ReserveRatioChangePct.GreaterThan(tolerancePct) ||
		check.TotalSharesChangePct.GreaterThan(tolerancePct)
	return check
}

// CalculateOptimalDeposit finds the largest deposit that matches the pool
// ratio without exceeding either cap. For an empty pool any ratio is
// acceptable, so the caps themselves are returned.
func CalculateOptimalDeposit(maxAmountA, maxAmountB decimal.Decimal, pool domain.PoolSnapshot) (amountA, amountB decimal.Decimal) {
	if pool.Empty() {
		return maxAmountA, maxAmountB
	}
	if degenerate(pool) {
		return decimal.Zero, decimal.Zero
	}

	currentRatio := pool.ReserveA.Div(pool.ReserveB)
	candidateA := maxAmountB.Mul(currentRatio)
	if candidateA.LessThanOrEqual(maxAmountA) {
		// B is the binding constraint
		return candidateA, maxAmountB
	}
	return maxAmountA, maxAmountA.Div(currentRatio)
}

// EstimateImpermanentLoss compares holding the two assets against
// providing them as liquidity, given the price ratio at entry and now.
// A zero initial ratio means no trade history yet and is treated as no
// loss rather than an error.
func EstimateImpermanentLoss(initialPriceRatio, currentPriceRatio decimal.Decimal) decimal.Decimal {
	if initialPriceRatio.IsZero() {
		return decimal.Zero
	}

	priceChange := currentPriceRatio.Div(initialPriceRatio)
	holdValue := sqrt(priceChange).Mul(decimal.NewFromInt(2))
	lpValue := decimal.NewFromInt(1).Add(priceChange)
	return holdValue.Sub(lpValue).Div(lpValue).Mul(hundred)
}

// degenerate reports whether a pool with shares outstanding has a reserve
// that cannot anchor a price ratio. Such snapshots can reach the simulator
// through the PoolSnapshot data model even though a healthy ledger never
// produces them; they must fail, not divide by zero.
func degenerate(pool domain.PoolSnapshot) bool {
	return !pool.ReserveA.IsPositive() || !pool.ReserveB.IsPositive()
}

func ratioOf(pool domain.PoolSnapshot) decimal.Decimal {
	if pool.ReserveB.IsZero() {
		return decimal.Zero
	}
	return pool.ReserveA.Div(pool.ReserveB)
}

func relativeChangePct(before, after decimal.Decimal) decimal.Decimal {
	if before.IsZero() {
		if after.IsZero() {
			return decimal.Zero
		}
		return hundred
	}
	return after.Sub(before).Abs().Div(before).Mul(hundred)
}

// sqrt computes the square root through float64. Shares and reserves fit
// comfortably within float64 precision for simulation purposes; exact
// arithmetic is only required for the ratio math above.
func sqrt(d decimal.Decimal) decimal.Decimal {
	f, _ := d.Float64()
	if f <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(math.Sqrt(f))
}
