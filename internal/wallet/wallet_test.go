package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lumeris/lumeris/internal/domain"
	"github.com/lumeris/lumeris/internal/keyvault"
	"github.com/lumeris/lumeris/internal/services/orchestrator"
)

func newTestWallet(t *testing.T) *Wallet {
	t.Helper()
	vault, err := keyvault.NewFileVault(t.TempDir())
	require.NoError(t, err)
	return New(vault, nil, time.Hour, zap.NewNop())
}

func TestOperationsRequireConnection(t *testing.T) {
	w := newTestWallet(t)

	_, err := w.SendPayment(context.Background(), orchestrator.PaymentParams{})
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)

	_, err = w.JoinLiquidityPool(context.Background(), orchestrator.PoolJoinParams{})
	require.ErrorAs(t, err, &validationErr)

	require.ErrorAs(t, w.Refresh(context.Background()), &validationErr)
}

func TestGetSnapshotDisconnectedIsEmpty(t *testing.T) {
	w := newTestWallet(t)
	snapshot := w.GetSnapshot()
	require.False(t, snapshot.Funded)
	require.Empty(t, snapshot.Balances)
}

func TestCreateKeyStoresMaterial(t *testing.T) {
	vault, err := keyvault.NewFileVault(t.TempDir())
	require.NoError(t, err)
	w := New(vault, nil, time.Hour, zap.NewNop())

	publicKey, err := w.CreateKey(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, publicKey)

	material, err := vault.Get()
	require.NoError(t, err)
	require.Equal(t, publicKey, material.PublicKey)
	require.True(t, material.CanSign())
}

func TestImportKey(t *testing.T) {
	vault, err := keyvault.NewFileVault(t.TempDir())
	require.NoError(t, err)
	w := New(vault, nil, time.Hour, zap.NewNop())

	kp, err := keypair.Random()
	require.NoError(t, err)

	publicKey, err := w.ImportKey(context.Background(), kp.Seed())
	require.NoError(t, err)
	require.Equal(t, kp.Address(), publicKey)

	t.Run("garbage secret rejected", func(t *testing.T) {
		_, err := w.ImportKey(context.Background(), "SNOTASECRET")
		var validationErr *domain.ValidationError
		require.ErrorAs(t, err, &validationErr)
	})
}

func TestForgetKeyWipesVault(t *testing.T) {
	vault, err := keyvault.NewFileVault(t.TempDir())
	require.NoError(t, err)
	w := New(vault, nil, time.Hour, zap.NewNop())

	_, err = w.CreateKey(context.Background())
	require.NoError(t, err)
	require.NoError(t, w.ForgetKey())

	material, err := vault.Get()
	require.NoError(t, err)
	require.True(t, material.IsZero())
}

type brokenVault struct {
	err error
}

func (v brokenVault) Put(domain.KeyMaterial) error     { return v.err }
func (v brokenVault) Get() (domain.KeyMaterial, error) { return domain.KeyMaterial{}, v.err }
func (v brokenVault) Clear() error                     { return v.err }

func TestConnectVaultFailureLeavesWalletDisconnected(t *testing.T) {
	w := New(brokenVault{err: errors.New("disk gone")}, nil, time.Hour, zap.NewNop())

	err := w.Connect(context.Background(), "test")
	require.Error(t, err)

	// the failed connect must not leave a half-initialized session behind
	_, err = w.SendPayment(context.Background(), orchestrator.PaymentParams{})
	var validationErr *domain.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.ErrorAs(t, w.Refresh(context.Background()), &validationErr)
}

func TestDisconnectWithoutConnectIsSafe(t *testing.T) {
	w := newTestWallet(t)
	w.Disconnect()
	w.Disconnect()
}

func TestPureCallsWorkWithoutConnection(t *testing.T) {
	w := newTestWallet(t)

	pool := domain.PoolSnapshot{
		ReserveA:    decimal.NewFromInt(1000),
		ReserveB:    decimal.NewFromInt(1000),
		TotalShares: decimal.NewFromInt(1000),
	}

	result := w.SimulatePoolJoin(pool, decimal.NewFromInt(10), decimal.NewFromInt(10))
	require.NoError(t, result.Err)

	amountA, amountB := w.CalculateOptimalDeposit(decimal.NewFromInt(10), decimal.NewFromInt(10), pool)
	require.True(t, amountA.LessThanOrEqual(decimal.NewFromInt(10)))
	require.True(t, amountB.LessThanOrEqual(decimal.NewFromInt(10)))

	loss := w.EstimateImpermanentLoss(decimal.NewFromInt(2), decimal.NewFromInt(2))
	require.True(t, loss.IsZero())
}
