// Package wallet is the session facade the UI collaborator talks to:
// connect/disconnect, key management, the cached account snapshot, the
// submission operations and the pure pool-math calls.
package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"go.uber.org/zap"

	"github.com/lumeris/lumeris/internal/domain"
	"github.com/lumeris/lumeris/internal/horizon"
	"github.com/lumeris/lumeris/internal/keyvault"
	"github.com/lumeris/lumeris/internal/network"
	"github.com/lumeris/lumeris/internal/services/accountstore"
	"github.com/lumeris/lumeris/internal/services/amm"
	"github.com/lumeris/lumeris/internal/services/orchestrator"
	"github.com/lumeris/lumeris/internal/storage/submissions"
)

// Wallet owns one session: a network profile, the account store polling
// it, and the orchestrator submitting to it. Switching networks tears the
// session down and builds a fresh one, because balances are ledger-specific.
type Wallet struct {
	logger       *zap.Logger
	vault        keyvault.Vault
	journal      *submissions.WALStore
	pollInterval time.Duration

	mu        sync.Mutex
	connected bool
	profile   network.Profile
	store     *accountstore.Store
	orch      *orchestrator.Orchestrator
}

// New creates a wallet around an injected key vault and optional journal.
func New(vault keyvault.Vault, journal *submissions.WALStore, pollInterval time.Duration, logger *zap.Logger) *Wallet {
	return &Wallet{
		logger:       logger,
		vault:        vault,
		journal:      journal,
		pollInterval: pollInterval,
	}
}

// Connect resolves the network profile, wires the session components and
// starts polling. If the vault already holds key material the account is
// loaded immediately. Connecting while connected switches networks.
func (w *Wallet) Connect(ctx context.Context, mode network.Mode) error {
	profile, err := network.Resolve(mode)
	if err != nil {
		return err
	}

	w.Disconnect()

	// read the vault before committing any session state, so a vault
	// failure cannot leave a session that accepts operations but never polls
	material, err := w.vault.Get()
	if err != nil {
		return err
	}

	gateway := horizon.NewGateway(profile, w.logger.Named("horizon"))
	store := accountstore.New(gateway, w.logger.Named("accountstore"))
	orch := orchestrator.New(gateway, store, w.vault, profile, w.journal, w.logger.Named("orchestrator"))

	if !material.IsZero() {
		// funded=false is a valid outcome here, not an error; only a real
		// fetch failure is worth a warning
		if err := store.SetKey(ctx, material); err != nil {
			w.logger.Warn("initial account load failed", zap.Error(err))
		}
	}

	store.StartPolling(ctx, w.pollInterval)

	w.mu.Lock()
	w.connected = true
	w.profile = profile
	w.store = store
	w.orch = orch
	w.mu.Unlock()
	w.logger.Info("wallet connected", zap.String("horizon", profile.HorizonURL), zap.Bool("testnet", profile.IsTest))
	return nil
}

// Disconnect stops polling and drops the session's key material and
// snapshot. The vault keeps its contents; ForgetKey clears those.
// Safe to call when not connected.
func (w *Wallet) Disconnect() {
	w.mu.Lock()
	store := w.store
	connected := w.connected
	w.connected = false
	w.store = nil
	w.orch = nil
	w.mu.Unlock()

	if !connected || store == nil {
		return
	}
	store.StopPolling()
	store.ClearKey()
	w.logger.Info("wallet disconnected")
}

// CreateKey generates a fresh keypair, stores it in the vault and, when
// connected, loads its (unfunded) account state. Returns the public key.
func (w *Wallet) CreateKey(ctx context.Context) (string, error) {
	kp, err := keypair.Random()
	if err != nil {
		return "", err
	}
	material := domain.KeyMaterial{PublicKey: kp.Address(), Secret: kp.Seed()}
	return material.PublicKey, w.adoptKey(ctx, material)
}

// ImportKey parses a signing secret, stores it in the vault and, when
// connected, loads its account state. Returns the public key.
func (w *Wallet) ImportKey(ctx context.Context, secret string) (string, error) {
	kp, err := keypair.ParseFull(secret)
	if err != nil {
		return "", domain.NewValidationError("secret is not a valid signing key")
	}
	material := domain.KeyMaterial{PublicKey: kp.Address(), Secret: kp.Seed()}
	return material.PublicKey, w.adoptKey(ctx, material)
}

// ForgetKey wipes the vault and the session state.
func (w *Wallet) ForgetKey() error {
	w.mu.Lock()
	store := w.store
	w.mu.Unlock()

	if store != nil {
		store.ClearKey()
	}
	return w.vault.Clear()
}

func (w *Wallet) adoptKey(ctx context.Context, material domain.KeyMaterial) error {
	if err := w.vault.Put(material); err != nil {
		return err
	}

	w.mu.Lock()
	store := w.store
	w.mu.Unlock()

	if store == nil {
		return nil
	}
	if err := store.SetKey(ctx, material); err != nil {
		// key is adopted either way; the snapshot refreshes on the next poll
		w.logger.Warn("account load after key change failed", zap.Error(err))
	}
	return nil
}

// GetSnapshot returns the current cached account snapshot. Synchronous;
// never triggers a fetch.
func (w *Wallet) GetSnapshot() domain.AccountSnapshot {
	w.mu.Lock()
	store := w.store
	w.mu.Unlock()

	if store == nil {
		return domain.AccountSnapshot{}
	}
	return store.Snapshot()
}

// Refresh forces an immediate account reload, for manual refresh surfaces.
func (w *Wallet) Refresh(ctx context.Context) error {
	w.mu.Lock()
	store := w.store
	connected := w.connected
	w.mu.Unlock()

	if !connected || store == nil {
		return domain.NewValidationError("wallet is not connected to a network")
	}
	return store.Load(ctx)
}

// SendPayment submits a payment using the current session.
func (w *Wallet) SendPayment(ctx context.Context, params orchestrator.PaymentParams) (orchestrator.Receipt, error) {
	orch, err := w.session()
	if err != nil {
		return orchestrator.Receipt{}, err
	}
	return orch.SendPayment(ctx, params)
}

// CreateAccount funds an address that has no ledger entry yet.
func (w *Wallet) CreateAccount(ctx context.Context, destination string, startingBalance decimal.Decimal) (orchestrator.Receipt, error) {
	orch, err := w.session()
	if err != nil {
		return orchestrator.Receipt{}, err
	}
	return orch.CreateAccount(ctx, destination, startingBalance)
}

// AddTrustline opts the account into an issued asset.
func (w *Wallet) AddTrustline(ctx context.Context, asset domain.Asset, limit *decimal.Decimal) (orchestrator.Receipt, error) {
	orch, err := w.session()
	if err != nil {
		return orchestrator.Receipt{}, err
	}
	return orch.AddTrustline(ctx, asset, limit)
}

// RemoveTrustline removes a zero-balance trustline.
func (w *Wallet) RemoveTrustline(ctx context.Context, asset domain.Asset) (orchestrator.Receipt, error) {
	orch, err := w.session()
	if err != nil {
		return orchestrator.Receipt{}, err
	}
	return orch.RemoveTrustline(ctx, asset)
}

// JoinLiquidityPool deposits into a liquidity pool under a slippage bound.
func (w *Wallet) JoinLiquidityPool(ctx context.Context, params orchestrator.PoolJoinParams) (orchestrator.Receipt, error) {
	orch, err := w.session()
	if err != nil {
		return orchestrator.Receipt{}, err
	}
	return orch.JoinLiquidityPool(ctx, params)
}

// SimulatePoolJoin is a pass-through to the pure pool simulator.
func (w *Wallet) SimulatePoolJoin(pool domain.PoolSnapshot, depositA, depositB decimal.Decimal) domain.JoinSimulation {
	return amm.SimulateJoin(pool, depositA, depositB)
}

// CalculateOptimalDeposit is a pass-through to the pure pool simulator.
func (w *Wallet) CalculateOptimalDeposit(maxAmountA, maxAmountB decimal.Decimal, pool domain.PoolSnapshot) (decimal.Decimal, decimal.Decimal) {
	return amm.CalculateOptimalDeposit(maxAmountA, maxAmountB, pool)
}

// EstimateImpermanentLoss is a pass-through to the pure pool simulator.
func (w *Wallet) EstimateImpermanentLoss(initialPriceRatio, currentPriceRatio decimal.Decimal) decimal.Decimal {
	return amm.EstimateImpermanentLoss(initialPriceRatio, currentPriceRatio)
}

func (w *Wallet) session() (*orchestrator.Orchestrator, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected || w.orch == nil {
		return nil, domain.NewValidationError("wallet is not connected to a network")
	}
	return w.orch, nil
}
