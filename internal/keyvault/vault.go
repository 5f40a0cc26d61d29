// Package keyvault stores the wallet's key material. The vault is passed
// explicitly to every component that needs signing capability; nothing in
// the codebase reaches into ambient storage for a secret.
package keyvault

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/lumeris/lumeris/internal/domain"
)

const vaultFileName = "keymaterial.json"

// Vault is the secret store interface consumed by the wallet session and
// the transaction orchestrator.
type Vault interface {
	Put(km domain.KeyMaterial) error
	Get() (domain.KeyMaterial, error)
	Clear() error
}

// FileVault persists key material as a single owner-only file under a
// dedicated directory. Contents are never logged.
type FileVault struct {
	path string
}

type vaultPayload struct {
	PublicKey string `json:"public_key"`
	Secret    string `json:"secret,omitempty"`
}

// NewFileVault creates a vault rooted at dir, creating it if needed.
func NewFileVault(dir string) (*FileVault, error) {
	if dir == "" {
		return nil, errors.New("key vault dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create key vault dir")
	}
	return &FileVault{path: filepath.Join(dir, vaultFileName)}, nil
}

// Put replaces the stored key material.
func (v *FileVault) Put(km domain.KeyMaterial) error {
	if km.IsZero() {
		return errors.New("refusing to store empty key material")
	}

	payload, err := json.Marshal(vaultPayload{PublicKey: km.PublicKey, Secret: km.Secret})
	if err != nil {
		return errors.Wrap(err, "encode key material")
	}

	if err := os.WriteFile(v.path, payload, 0o600); err != nil {
		return errors.Wrap(err, "write key vault")
	}
	return nil
}

// Get returns the stored key material. A vault with nothing stored yet
// returns zero material and no error.
func (v *FileVault) Get() (domain.KeyMaterial, error) {
	raw, err := os.ReadFile(v.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.KeyMaterial{}, nil
		}
		return domain.KeyMaterial{}, errors.Wrap(err, "read key vault")
	}

	var payload vaultPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.KeyMaterial{}, errors.Wrap(err, "decode key vault")
	}

	return domain.KeyMaterial{PublicKey: payload.PublicKey, Secret: payload.Secret}, nil
}

// Clear removes the stored key material. Idempotent.
func (v *FileVault) Clear() error {
	if err := os.Remove(v.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "clear key vault")
	}
	return nil
}
