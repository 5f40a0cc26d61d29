package keyvault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumeris/lumeris/internal/domain"
)

func TestFileVaultRoundTrip(t *testing.T) {
	vault, err := NewFileVault(t.TempDir())
	require.NoError(t, err)

	material := domain.KeyMaterial{
		PublicKey: "GDQERENWDDSQZS7R7WKHZI3BSOYMV3FSWR7TFUYFTKQ447PIX6NREOJM",
		Secret:    "SAV76USXIJOBMEQXPANUOQM6F5LIOTLPDIDVRJBFFE2MDJXG24TAPUU7",
	}
	require.NoError(t, vault.Put(material))

	got, err := vault.Get()
	require.NoError(t, err)
	require.Equal(t, material, got)
}

func TestFileVaultEmpty(t *testing.T) {
	vault, err := NewFileVault(t.TempDir())
	require.NoError(t, err)

	got, err := vault.Get()
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestFileVaultRejectsEmptyMaterial(t *testing.T) {
	vault, err := NewFileVault(t.TempDir())
	require.NoError(t, err)
	require.Error(t, vault.Put(domain.KeyMaterial{}))
}

func TestFileVaultClearIsIdempotent(t *testing.T) {
	vault, err := NewFileVault(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, vault.Put(domain.KeyMaterial{PublicKey: "GABC", Secret: "SABC"}))
	require.NoError(t, vault.Clear())
	require.NoError(t, vault.Clear())

	got, err := vault.Get()
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestFileVaultFileIsOwnerOnly(t *testing.T) {
	dir := t.TempDir()
	vault, err := NewFileVault(dir)
	require.NoError(t, err)
	require.NoError(t, vault.Put(domain.KeyMaterial{PublicKey: "GABC", Secret: "SABC"}))

	info, err := os.Stat(filepath.Join(dir, vaultFileName))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileVaultWatchOnlyMaterial(t *testing.T) {
	vault, err := NewFileVault(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, vault.Put(domain.KeyMaterial{PublicKey: "GABC"}))

	got, err := vault.Get()
	require.NoError(t, err)
	require.False(t, got.CanSign())
	require.Equal(t, "GABC", got.PublicKey)
}
