package integrity

import (
	"fmt"
	"strings"
)

// SigningKeyProvider supplies issuer-scoped signing key material. Key
// provisioning is an external capability so deployments can plug in a KMS
// without touching the signing path.
type SigningKeyProvider interface {
	KeyFor(issuerID string) ([]byte, error)
}

// StaticKeyProvider serves signing keys from a fixed in-memory map with an
// optional fallback key for issuers without dedicated material. It is the
// configuration-file deployment mode and the test double.
type StaticKeyProvider struct {
	keys     map[string][]byte
	fallback []byte
}

// NewStaticKeyProvider builds a provider over per-issuer keys. fallback may
// be nil, in which case unknown issuers are rejected.
func NewStaticKeyProvider(keys map[string][]byte, fallback []byte) *StaticKeyProvider {
	cp := make(map[string][]byte, len(keys))
	for id, k := range keys {
		cp[strings.TrimSpace(id)] = append([]byte(nil), k...)
	}
	return &StaticKeyProvider{keys: cp, fallback: append([]byte(nil), fallback...)}
}

// KeyFor returns the signing key for issuerID, or the fallback key when one
// is configured.
func (p *StaticKeyProvider) KeyFor(issuerID string) ([]byte, error) {
	if k, ok := p.keys[strings.TrimSpace(issuerID)]; ok && len(k) > 0 {
		return k, nil
	}
	if len(p.fallback) > 0 {
		return p.fallback, nil
	}
	return nil, fmt.Errorf("%w: no signing key for issuer %q", ErrCryptoFailure, issuerID)
}
