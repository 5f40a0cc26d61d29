// Package orchestrator turns high-level wallet intents (pay, trust,
// join pool) into signed, submitted ledger transactions.
package orchestrator

import (
	"context"
	"encoding/hex"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/price"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/txnbuild"
	"github.com/stellar/go/xdr"
	"go.uber.org/zap"

	"github.com/lumeris/lumeris/internal/domain"
	"github.com/lumeris/lumeris/internal/horizon"
	"github.com/lumeris/lumeris/internal/keyvault"
	"github.com/lumeris/lumeris/internal/network"
	"github.com/lumeris/lumeris/internal/services/amm"
	"github.com/lumeris/lumeris/internal/storage/submissions"
)

// txTimeoutSeconds bounds how long a signed envelope stays valid.
const txTimeoutSeconds = 300

// amountPrecision is the ledger's decimal precision for amounts.
const amountPrecision = 7

// memoTextMaxBytes is the ledger's limit for text memos.
const memoTextMaxBytes = 28

var assetCodePattern = regexp.MustCompile(`^[a-zA-Z0-9]{1,12}$`)

// Gateway is the slice of the ledger gateway the orchestrator needs.
type Gateway interface {
	SuggestedFee(ctx context.Context) (int64, error)
	Submit(ctx context.Context, tx *txnbuild.Transaction) (horizon.SubmissionReceipt, error)
	PoolByAssets(ctx context.Context, assetA, assetB domain.Asset) (domain.PoolSnapshot, error)
}

// SnapshotStore is the slice of the account store the orchestrator needs.
type SnapshotStore interface {
	Snapshot() domain.AccountSnapshot
	Load(ctx context.Context) error
}

// Journal records confirmed submissions for audit.
type Journal interface {
	Append(record submissions.Record) error
}

// OperationKind names the intent behind a submission.
type OperationKind string

const (
	OpPayment         OperationKind = "payment"
	OpCreateAccount   OperationKind = "create_account"
	OpAddTrustline    OperationKind = "add_trustline"
	OpRemoveTrustline OperationKind = "remove_trustline"
	OpPoolDeposit     OperationKind = "pool_deposit"
)

// phase is the per-call state machine. Each call walks it front to back;
// there is no partial or resumable state between calls.
type phase string

const (
	phaseBuilding   phase = "building"
	phaseSigning    phase = "signing"
	phaseSubmitting phase = "submitting"
	phaseConfirmed  phase = "confirmed"
	phaseFailed     phase = "failed"
)

// pendingOperation lives only for the duration of one call.
type pendingOperation struct {
	id    string
	kind  OperationKind
	phase phase
}

// Receipt describes a confirmed submission.
type Receipt struct {
	ID         string        `json:"id"`
	Kind       OperationKind `json:"kind"`
	TxHash     string        `json:"tx_hash"`
	Ledger     int32         `json:"ledger"`
	FeeCharged int64         `json:"fee_charged"`
}

// PaymentParams describes a payment intent. A zero Asset pays the native
// asset. MemoText is optional.
type PaymentParams struct {
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
	Asset       domain.Asset    `json:"asset"`
	MemoText    string          `json:"memo_text,omitempty"`
}

// PoolJoinParams describes a pool deposit intent. MaxAmountA/B cap what
// the wallet is willing to deposit on each side; SlippageTolerancePct
// bounds how far the pool may have drifted from Baseline (when given)
// and how far the ledger may move the effective price during execution.
type PoolJoinParams struct {
	AssetA               domain.Asset         `json:"asset_a"`
	AssetB               domain.Asset         `json:"asset_b"`
	MaxAmountA           decimal.Decimal      `json:"max_amount_a"`
	MaxAmountB           decimal.Decimal      `json:"max_amount_b"`
	SlippageTolerancePct decimal.Decimal      `json:"slippage_tolerance_pct"`
	Baseline             *domain.PoolSnapshot `json:"baseline,omitempty"`
}

// Orchestrator builds, signs and submits ledger transactions using the
// latest account snapshot for sequencing and a fee fetched fresh per
// call. Every operation is atomic from the caller's point of view: it
// either confirms (and a state refresh has been triggered) or fails with
// a typed error and no visible mutation.
type Orchestrator struct {
	gateway    Gateway
	store      SnapshotStore
	vault      keyvault.Vault
	profile    network.Profile
	journal    Journal
	logger     *zap.Logger
	networkTag string
}

// New creates an orchestrator. journal may be nil when auditing is off.
func New(gateway Gateway, store SnapshotStore, vault keyvault.Vault, profile network.Profile, journal Journal, logger *zap.Logger) *Orchestrator {
	tag := "main"
	if profile.IsTest {
		tag = "test"
	}
	return &Orchestrator{
		gateway:    gateway,
		store:      store,
		vault:      vault,
		profile:    profile,
		journal:    journal,
		logger:     logger,
		networkTag: tag,
	}
}

// SendPayment validates the intent locally, then builds, signs and
// submits a single-operation payment transaction.
func (o *Orchestrator) SendPayment(ctx context.Context, params PaymentParams) (Receipt, error) {
	if !strkey.IsValidEd25519PublicKey(params.Destination) {
		return Receipt{}, domain.NewValidationError("destination %q is not a valid account address", params.Destination)
	}
	if !params.Amount.IsPositive() {
		return Receipt{}, domain.NewValidationError("payment amount must be greater than 0, got %s", params.Amount)
	}
	if err := validatePrecision("payment amount", params.Amount); err != nil {
		return Receipt{}, err
	}
	if err := validateAsset(params.Asset); err != nil {
		return Receipt{}, err
	}
	if len(params.MemoText) > memoTextMaxBytes {
		return Receipt{}, domain.NewValidationError("memo text exceeds %d bytes", memoTextMaxBytes)
	}

	op := &txnbuild.Payment{
		Destination: params.Destination,
		Amount:      params.Amount.StringFixed(amountPrecision),
		Asset:       params.Asset.ToTxnbuild(),
	}

	var memo txnbuild.Memo
	if params.MemoText != "" {
		memo = txnbuild.MemoText(params.MemoText)
	}

	return o.submit(ctx, OpPayment, []txnbuild.Operation{op}, memo)
}

// CreateAccount funds a destination address that has no ledger entry yet.
// On the ledger being modeled, funding a non-existent account is a
// distinct operation from paying an existing one.
func (o *Orchestrator) CreateAccount(ctx context.Context, destination string, startingBalance decimal.Decimal) (Receipt, error) {
	if !strkey.IsValidEd25519PublicKey(destination) {
		return Receipt{}, domain.NewValidationError("destination %q is not a valid account address", destination)
	}
	if !startingBalance.IsPositive() {
		return Receipt{}, domain.NewValidationError("starting balance must be greater than 0, got %s", startingBalance)
	}
	if err := validatePrecision("starting balance", startingBalance); err != nil {
		return Receipt{}, err
	}

	op := &txnbuild.CreateAccount{
		Destination: destination,
		Amount:      startingBalance.StringFixed(amountPrecision),
	}
	return o.submit(ctx, OpCreateAccount, []txnbuild.Operation{op}, nil)
}

// AddTrustline opts the account into holding the given issued asset.
// A nil limit requests the maximum trustline limit.
func (o *Orchestrator) AddTrustline(ctx context.Context, asset domain.Asset, limit *decimal.Decimal) (Receipt, error) {
	if asset.IsNative() {
		return Receipt{}, domain.NewValidationError("the native asset needs no trustline")
	}
	if err := validateAsset(asset); err != nil {
		return Receipt{}, err
	}

	limitStr := txnbuild.MaxTrustlineLimit
	if limit != nil {
		if !limit.IsPositive() {
			return Receipt{}, domain.NewValidationError("trustline limit must be greater than 0, got %s", limit)
		}
		if err := validatePrecision("trustline limit", *limit); err != nil {
			return Receipt{}, err
		}
		limitStr = limit.StringFixed(amountPrecision)
	}

	op := &txnbuild.ChangeTrust{
		Line:  txnbuild.ChangeTrustAssetWrapper{Asset: txnbuild.CreditAsset{Code: asset.Code, Issuer: asset.Issuer}},
		Limit: limitStr,
	}
	return o.submit(ctx, OpAddTrustline, []txnbuild.Operation{op}, nil)
}

// RemoveTrustline deletes the trustline for the given asset. The ledger
// protocol only allows removal at zero balance, so a non-zero balance is
// rejected locally before any network round trip.
func (o *Orchestrator) RemoveTrustline(ctx context.Context, asset domain.Asset) (Receipt, error) {
	if asset.IsNative() {
		return Receipt{}, domain.NewValidationError("the native asset has no trustline to remove")
	}
	if err := validateAsset(asset); err != nil {
		return Receipt{}, err
	}

	snapshot := o.store.Snapshot()
	line, ok := snapshot.BalanceFor(asset)
	if !ok {
		return Receipt{}, domain.NewValidationError("no trustline for %s found on the account", asset.Canonical())
	}
	if !line.Amount().IsZero() {
		return Receipt{}, domain.NewValidationError("cannot remove trustline for %s: non-zero balance %s", asset.Canonical(), line.Balance)
	}

	op := &txnbuild.ChangeTrust{
		Line:  txnbuild.ChangeTrustAssetWrapper{Asset: txnbuild.CreditAsset{Code: asset.Code, Issuer: asset.Issuer}},
		Limit: "0",
	}
	return o.submit(ctx, OpRemoveTrustline, []txnbuild.Operation{op}, nil)
}

// JoinLiquidityPool deposits into the constant-product pool holding the
// two assets. The pool is re-fetched just before submission; if it
// drifted from params.Baseline beyond the slippage tolerance the call
// fails with SlippageExceededError without submitting anything. The same
// tolerance is supplied to the ledger as the deposit's price bounds, so
// drift between this check and execution is bounded ledger-side too.
func (o *Orchestrator) JoinLiquidityPool(ctx context.Context, params PoolJoinParams) (Receipt, error) {
	if !params.MaxAmountA.IsPositive() || !params.MaxAmountB.IsPositive() {
		return Receipt{}, domain.NewValidationError("pool deposit amounts must be greater than 0")
	}
	if err := validatePrecision("deposit cap A", params.MaxAmountA); err != nil {
		return Receipt{}, err
	}
	if err := validatePrecision("deposit cap B", params.MaxAmountB); err != nil {
		return Receipt{}, err
	}
	if err := validateAsset(params.AssetA); err != nil {
		return Receipt{}, err
	}
	if err := validateAsset(params.AssetB); err != nil {
		return Receipt{}, err
	}
	if params.AssetA == params.AssetB {
		return Receipt{}, domain.NewValidationError("pool assets must differ")
	}
	if params.SlippageTolerancePct.IsNegative() {
		return Receipt{}, domain.NewValidationError("slippage tolerance must not be negative")
	}

	pool, err := o.gateway.PoolByAssets(ctx, params.AssetA, params.AssetB)
	if err != nil {
		return Receipt{}, err
	}

	if params.Baseline != nil {
		check := amm.CheckSlippageProtection(*params.Baseline, pool, params.SlippageTolerancePct)
		if check.ExceedsTolerance {
			return Receipt{}, &domain.SlippageExceededError{
				ReserveRatioChangePct: check.ReserveRatioChangePct,
				TotalSharesChangePct:  check.TotalSharesChangePct,
				TolerancePct:          params.SlippageTolerancePct,
			}
		}
	}

	amountA, amountB := amm.CalculateOptimalDeposit(params.MaxAmountA, params.MaxAmountB, pool)
	// the computed split can carry a long fraction; truncating keeps both
	// sides at ledger precision without rounding above a cap
	amountA = amountA.Truncate(amountPrecision)
	amountB = amountB.Truncate(amountPrecision)
	if !amountA.IsPositive() || !amountB.IsPositive() {
		return Receipt{}, domain.NewValidationError("deposit caps leave nothing to deposit at the current pool ratio")
	}

	ops, err := o.buildPoolDepositOps(pool, params, amountA, amountB)
	if err != nil {
		return Receipt{}, err
	}

	return o.submit(ctx, OpPoolDeposit, ops, nil)
}

// buildPoolDepositOps assembles the deposit operation, prepending the
// pool-share trustline when the account does not hold one yet. The ledger
// requires deposit sides in canonical asset order; caller-side amounts
// and price bounds are reoriented to match.
func (o *Orchestrator) buildPoolDepositOps(pool domain.PoolSnapshot, params PoolJoinParams, amountA, amountB decimal.Decimal) ([]txnbuild.Operation, error) {
	txAssetA := params.AssetA.ToTxnbuild()
	txAssetB := params.AssetB.ToTxnbuild()

	first, second := txAssetA, txAssetB
	poolID, err := txnbuild.NewLiquidityPoolId(first, second)
	if err != nil {
		first, second = txAssetB, txAssetA
		amountA, amountB = amountB, amountA
		poolID, err = txnbuild.NewLiquidityPoolId(first, second)
		if err != nil {
			return nil, domain.NewValidationError("cannot derive pool id for %s/%s: %s",
				params.AssetA.Canonical(), params.AssetB.Canonical(), err)
		}
	}

	// price bounds around the deposit's own ratio, in canonical orientation
	depositPrice := amountA.Div(amountB)
	tolerance := params.SlippageTolerancePct.Div(decimal.NewFromInt(100))
	minPrice, err := parsePrice(depositPrice.Mul(decimal.NewFromInt(1).Sub(tolerance)))
	if err != nil {
		return nil, err
	}
	maxPrice, err := parsePrice(depositPrice.Mul(decimal.NewFromInt(1).Add(tolerance)))
	if err != nil {
		return nil, err
	}

	deposit := &txnbuild.LiquidityPoolDeposit{
		LiquidityPoolID: poolID,
		MaxAmountA:      amountA.StringFixed(amountPrecision),
		MaxAmountB:      amountB.StringFixed(amountPrecision),
		MinPrice:        minPrice,
		MaxPrice:        maxPrice,
	}

	snapshot := o.store.Snapshot()
	if _, ok := snapshot.PoolShareLine(hex.EncodeToString(poolID[:])); ok {
		return []txnbuild.Operation{deposit}, nil
	}

	// first deposit into this pool: opt into the pool shares in the same
	// transaction so the deposit cannot land without its trustline
	trust := &txnbuild.ChangeTrust{
		Line: txnbuild.LiquidityPoolShareChangeTrustAsset{
			LiquidityPoolParameters: txnbuild.LiquidityPoolParameters{
				AssetA: first,
				AssetB: second,
				Fee:    int32(xdr.LiquidityPoolFeeV18),
			},
		},
		Limit: txnbuild.MaxTrustlineLimit,
	}
	return []txnbuild.Operation{trust, deposit}, nil
}

// submit walks the per-call state machine. The sequence number comes
// from the current snapshot; the base fee is fetched fresh every call.
func (o *Orchestrator) submit(ctx context.Context, kind OperationKind, ops []txnbuild.Operation, memo txnbuild.Memo) (Receipt, error) {
	pending := pendingOperation{id: uuid.NewString(), kind: kind, phase: phaseBuilding}
	logger := o.logger.With(zap.String("op_id", pending.id), zap.String("kind", string(kind)))

	receipt, err := o.run(ctx, &pending, ops, memo, logger)
	if err != nil {
		pending.phase = phaseFailed
		logger.Warn("operation failed", zap.String("phase", string(phaseFailed)), zap.Error(err))
		return Receipt{}, err
	}

	pending.phase = phaseConfirmed
	logger.Info("operation confirmed",
		zap.String("tx_hash", receipt.TxHash),
		zap.Int32("ledger", receipt.Ledger),
		zap.Int64("fee_charged", receipt.FeeCharged))

	if o.journal != nil {
		record := submissions.Record{
			ID:          receipt.ID,
			Kind:        string(receipt.Kind),
			TxHash:      receipt.TxHash,
			Ledger:      receipt.Ledger,
			Network:     o.networkTag,
			SubmittedAt: time.Now().UTC(),
		}
		if err := o.journal.Append(record); err != nil {
			logger.Warn("submission journal append failed", zap.Error(err))
		}
	}

	// refresh state so readers see the submission's effects; the poll loop
	// covers us if this one read fails
	if err := o.store.Load(ctx); err != nil {
		logger.Warn("post-submission refresh failed", zap.Error(err))
	}

	return receipt, nil
}

func (o *Orchestrator) run(ctx context.Context, pending *pendingOperation, ops []txnbuild.Operation, memo txnbuild.Memo, logger *zap.Logger) (Receipt, error) {
	snapshot := o.store.Snapshot()
	if snapshot.FetchedAt.IsZero() {
		if err := o.store.Load(ctx); err != nil {
			return Receipt{}, err
		}
		snapshot = o.store.Snapshot()
	}
	if !snapshot.Funded {
		return Receipt{}, domain.NewValidationError("source account %s is not funded on the ledger", snapshot.PublicKey)
	}

	fee, err := o.gateway.SuggestedFee(ctx)
	if err != nil {
		return Receipt{}, err
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &txnbuild.SimpleAccount{AccountID: snapshot.PublicKey, Sequence: snapshot.Sequence},
		IncrementSequenceNum: true,
		Operations:           ops,
		BaseFee:              fee,
		Memo:                 memo,
		Preconditions:        txnbuild.Preconditions{TimeBounds: txnbuild.NewTimeout(txTimeoutSeconds)},
	})
	if err != nil {
		return Receipt{}, domain.NewValidationError("transaction build failed: %s", err)
	}

	pending.phase = phaseSigning
	material, err := o.vault.Get()
	if err != nil {
		return Receipt{}, err
	}
	if !material.CanSign() {
		return Receipt{}, &domain.AuthError{Op: string(pending.kind)}
	}
	signer, err := keypair.ParseFull(material.Secret)
	if err != nil {
		return Receipt{}, domain.NewValidationError("stored secret is not a valid signing key")
	}
	tx, err = tx.Sign(o.profile.Passphrase, signer)
	if err != nil {
		return Receipt{}, domain.NewValidationError("transaction signing failed: %s", err)
	}

	pending.phase = phaseSubmitting
	logger.Debug("submitting transaction", zap.Int64("base_fee", fee))
	result, err := o.gateway.Submit(ctx, tx)
	if err != nil {
		return Receipt{}, err
	}

	return Receipt{
		ID:         pending.id,
		Kind:       pending.kind,
		TxHash:     result.Hash,
		Ledger:     result.Ledger,
		FeeCharged: result.FeeCharged,
	}, nil
}

// validatePrecision rejects amounts the ledger cannot represent exactly.
// Silently rounding a caller's figure before paying it is worse than
// failing: the submitted amount must be the requested amount.
func validatePrecision(name string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(amountPrecision)) {
		return domain.NewValidationError("%s %s has more than %d decimal places", name, amount, amountPrecision)
	}
	return nil
}

func validateAsset(asset domain.Asset) error {
	if asset.IsNative() {
		if asset.Issuer != "" {
			return domain.NewValidationError("native asset must not carry an issuer")
		}
		return nil
	}
	if !assetCodePattern.MatchString(asset.Code) {
		return domain.NewValidationError("asset code %q must be 1-12 alphanumeric characters", asset.Code)
	}
	if !strkey.IsValidEd25519PublicKey(asset.Issuer) {
		return domain.NewValidationError("asset issuer %q is not a valid account address", asset.Issuer)
	}
	return nil
}

func parsePrice(p decimal.Decimal) (xdr.Price, error) {
	if !p.IsPositive() {
		return xdr.Price{}, domain.NewValidationError("price bound must be positive, got %s", p)
	}
	parsed, err := price.Parse(p.StringFixed(amountPrecision))
	if err != nil {
		return xdr.Price{}, domain.NewValidationError("cannot express price bound %s: %s", p, err)
	}
	return parsed, nil
}
