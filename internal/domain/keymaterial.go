package domain

// KeyMaterial holds the keys of the active wallet session. Secret may be
// empty: a watch-only session can read account state but cannot sign.
type KeyMaterial struct {
	PublicKey string
	Secret    string
}

// CanSign reports whether the material includes a signing secret.
func (k KeyMaterial) CanSign() bool {
	return k.Secret != ""
}

// IsZero reports whether no key is loaded at all.
func (k KeyMaterial) IsZero() bool {
	return k.PublicKey == ""
}
