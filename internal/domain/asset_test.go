package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/txnbuild"
	"github.com/stretchr/testify/require"
)

const issuer = "GDQERENWDDSQZS7R7WKHZI3BSOYMV3FSWR7TFUYFTKQ447PIX6NREOJM"

func TestAssetNative(t *testing.T) {
	native := NativeAsset()
	require.True(t, native.IsNative())
	require.Equal(t, "native", native.Canonical())
	require.Equal(t, "XLM", native.String())

	_, ok := native.ToTxnbuild().(txnbuild.NativeAsset)
	require.True(t, ok)
}

func TestAssetCredit(t *testing.T) {
	usdc := CreditAsset("USDC", issuer)
	require.False(t, usdc.IsNative())
	require.Equal(t, "USDC:"+issuer, usdc.Canonical())

	credit, ok := usdc.ToTxnbuild().(txnbuild.CreditAsset)
	require.True(t, ok)
	require.Equal(t, "USDC", credit.Code)
	require.Equal(t, issuer, credit.Issuer)
}

func TestSnapshotBalanceLookup(t *testing.T) {
	usdc := CreditAsset("USDC", issuer)
	snapshot := AccountSnapshot{
		Funded: true,
		Balances: []BalanceLine{
			{Type: BalanceLineNative, Balance: "50.0000000"},
			{Type: BalanceLineCredit4, Asset: usdc, Balance: "12.0000000"},
			{Type: BalanceLinePoolShares, PoolID: "pool123", Balance: "3.0000000"},
		},
	}

	line, ok := snapshot.BalanceFor(usdc)
	require.True(t, ok)
	require.Equal(t, "12.0000000", line.Balance)
	require.True(t, line.Amount().Equal(decimal.NewFromInt(12)))

	native, ok := snapshot.BalanceFor(NativeAsset())
	require.True(t, ok)
	require.Equal(t, "50.0000000", native.Balance)

	_, ok = snapshot.BalanceFor(CreditAsset("EURT", issuer))
	require.False(t, ok)

	pool, ok := snapshot.PoolShareLine("pool123")
	require.True(t, ok)
	require.Equal(t, "3.0000000", pool.Balance)
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	snapshot := AccountSnapshot{
		Balances: []BalanceLine{{Type: BalanceLineNative, Balance: "1.0000000"}},
	}

	clone := snapshot.Clone()
	clone.Balances[0].Balance = "9.0000000"
	require.Equal(t, "1.0000000", snapshot.Balances[0].Balance)
}
