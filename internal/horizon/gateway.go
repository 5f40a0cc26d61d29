// Package horizon is the wallet's gateway to a Horizon-compatible ledger
// endpoint. It binds the exact REST surface the wallet needs (accounts,
// fee stats, liquidity pools, transaction submission) and maps wire types
// into domain types. The SDK client is resolved once at construction; a
// bad endpoint fails here, not inside later calls.
package horizon

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	hProtocol "github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
	"go.uber.org/zap"

	"github.com/lumeris/lumeris/internal/domain"
	"github.com/lumeris/lumeris/internal/network"
)

const requestTimeout = 30 * time.Second

// SubmissionReceipt describes a transaction the ledger accepted.
type SubmissionReceipt struct {
	Hash       string
	Ledger     int32
	FeeCharged int64
}

// Gateway wraps a horizon client for one network profile.
type Gateway struct {
	client  *horizonclient.Client
	profile network.Profile
	logger  *zap.Logger
}

// NewGateway builds a gateway for the given profile.
func NewGateway(profile network.Profile, logger *zap.Logger) *Gateway {
	client := &horizonclient.Client{
		HorizonURL: profile.HorizonURL,
		HTTP:       &http.Client{Timeout: requestTimeout},
	}
	client.SetHorizonTimeout(requestTimeout)
	return &Gateway{
		client: client,
		profile: profile,
		logger:  logger,
	}
}

// Profile returns the network profile the gateway talks to.
func (g *Gateway) Profile() network.Profile {
	return g.profile
}

// LoadAccount fetches the account snapshot for accountID. A ledger entry
// that does not exist yet is a first-class state, not an error: the
// returned snapshot has Funded=false and no balances.
func (g *Gateway) LoadAccount(ctx context.Context, accountID string) (domain.AccountSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.AccountSnapshot{}, &domain.FetchError{Cause: err}
	}

	account, err := g.client.AccountDetail(horizonclient.AccountRequest{AccountID: accountID})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			g.logger.Debug("account not found on ledger", zap.String("account", accountID))
			return domain.AccountSnapshot{
				PublicKey: accountID,
				Funded:    false,
				Balances:  []domain.BalanceLine{},
				FetchedAt: time.Now().UTC(),
			}, nil
		}
		return domain.AccountSnapshot{}, &domain.FetchError{Cause: err}
	}

	sequence, err := account.GetSequenceNumber()
	if err != nil {
		return domain.AccountSnapshot{}, &domain.FetchError{Cause: errors.Wrap(err, "parse account sequence")}
	}

	return domain.AccountSnapshot{
		PublicKey: accountID,
		Funded:    true,
		Sequence:  sequence,
		Balances:  mapBalances(account.Balances),
		FetchedAt: time.Now().UTC(),
	}, nil
}

// SuggestedFee returns the base fee to use for the next submission, taken
// fresh from fee stats every time. Base fees move with congestion, so a
// fee from an earlier call must never be reused.
func (g *Gateway) SuggestedFee(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &domain.FetchError{Cause: err}
	}

	stats, err := g.client.FeeStats()
	if err != nil {
		return 0, &domain.FetchError{Cause: err}
	}

	fee := stats.FeeCharged.P50
	if fee < txnbuild.MinBaseFee {
		fee = txnbuild.MinBaseFee
	}
	return fee, nil
}

// Submit sends a signed transaction envelope to the ledger. Rejections
// come back as SubmissionError with the ledger's result codes preserved.
func (g *Gateway) Submit(ctx context.Context, tx *txnbuild.Transaction) (SubmissionReceipt, error) {
	if err := ctx.Err(); err != nil {
		return SubmissionReceipt{}, &domain.FetchError{Cause: err}
	}

	resp, err := g.client.SubmitTransaction(tx)
	if err != nil {
		return SubmissionReceipt{}, asSubmissionError(err)
	}

	g.logger.Info("transaction accepted",
		zap.String("hash", resp.Hash),
		zap.Int32("ledger", resp.Ledger))

	return SubmissionReceipt{
		Hash:       resp.Hash,
		Ledger:     resp.Ledger,
		FeeCharged: resp.FeeCharged,
	}, nil
}

// PoolByAssets fetches the constant-product pool holding the two assets.
// Reserves in the returned snapshot follow the (assetA, assetB) order the
// caller asked for, regardless of the ledger's canonical ordering.
func (g *Gateway) PoolByAssets(ctx context.Context, assetA, assetB domain.Asset) (domain.PoolSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.PoolSnapshot{}, &domain.FetchError{Cause: err}
	}

	page, err := g.client.LiquidityPools(horizonclient.LiquidityPoolsRequest{
		Reserves: []string{assetA.Canonical(), assetB.Canonical()},
	})
	if err != nil {
		return domain.PoolSnapshot{}, &domain.FetchError{Cause: err}
	}

	for _, record := range page.Embedded.Records {
		snapshot, ok := mapPool(record, assetA, assetB)
		if !ok {
			continue
		}
		return snapshot, nil
	}

	return domain.PoolSnapshot{}, &domain.FetchError{
		Cause: errors.Errorf("no liquidity pool found for %s/%s", assetA.Canonical(), assetB.Canonical()),
	}
}

func mapBalances(balances []hProtocol.Balance) []domain.BalanceLine {
	lines := make([]domain.BalanceLine, 0, len(balances))
	for _, b := range balances {
		line := domain.BalanceLine{
			Type:    domain.BalanceLineType(b.Type),
			Balance: b.Balance,
			Limit:   b.Limit,
			PoolID:  b.LiquidityPoolId,
		}
		if line.Type == domain.BalanceLineCredit4 || line.Type == domain.BalanceLineCredit12 {
			line.Asset = domain.CreditAsset(b.Code, b.Issuer)
		}
		lines = append(lines, line)
	}
	return lines
}

// mapPool converts a horizon pool record, reordering reserves to the
// caller's (assetA, assetB) orientation. Records whose reserves do not
// cover both requested assets are skipped; the reserves filter is a
// containment filter, not an exact match.
func mapPool(record hProtocol.LiquidityPool, assetA, assetB domain.Asset) (domain.PoolSnapshot, bool) {
	var reserveA, reserveB decimal.Decimal
	foundA, foundB := false, false

	for _, reserve := range record.Reserves {
		amount, err := decimal.NewFromString(reserve.Amount)
		if err != nil {
			return domain.PoolSnapshot{}, false
		}
		switch reserve.Asset {
		case assetA.Canonical():
			reserveA, foundA = amount, true
		case assetB.Canonical():
			reserveB, foundB = amount, true
		}
	}
	if !foundA || !foundB {
		return domain.PoolSnapshot{}, false
	}

	totalShares, err := decimal.NewFromString(record.TotalShares)
	if err != nil {
		return domain.PoolSnapshot{}, false
	}

	return domain.PoolSnapshot{
		ID:          record.ID,
		AssetA:      assetA,
		AssetB:      assetB,
		ReserveA:    reserveA,
		ReserveB:    reserveB,
		TotalShares: totalShares,
		FeeBps:      int32(record.FeeBP),
		FetchedAt:   time.Now().UTC(),
	}, true
}

func asSubmissionError(err error) error {
	subErr := &domain.SubmissionError{Cause: err}
	if hErr := horizonclient.GetError(err); hErr != nil {
		if codes, codesErr := hErr.ResultCodes(); codesErr == nil && codes != nil {
			subErr.TxCode = codes.TransactionCode
			subErr.OpCodes = codes.OperationCodes
		}
	}
	return subErr
}
