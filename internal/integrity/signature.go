package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

const signatureDomain = "academia-veritas:signature:v1"

// Signer produces and checks detached authentication tags over fingerprints.
// The tag proves the fingerprint was endorsed by the holder of the issuer's
// signing key; the key never enters the fingerprint itself.
type Signer struct {
	keys SigningKeyProvider
}

// NewSigner builds a Signer over the given key provider.
func NewSigner(keys SigningKeyProvider) (*Signer, error) {
	if keys == nil {
		return nil, errors.New("signer requires a signing key provider")
	}
	return &Signer{keys: keys}, nil
}

// Sign computes the detached tag for fingerprint under issuerID's key and
// returns it base64-encoded for storage.
func (s *Signer) Sign(fp Fingerprint, issuerID string) (string, error) {
	if len(fp) != FingerprintSize {
		return "", fmt.Errorf("%w: cannot sign fingerprint of %d bytes", ErrInvalidInput, len(fp))
	}
	tag, err := s.tag(fp, issuerID)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(tag), nil
}

// Verify reports whether signature is a valid tag for fingerprint under
// issuerID's key. Comparison is constant-time. Malformed or truncated
// signatures verify as false, never as an error: the check fails closed.
// The returned error only covers key provisioning failures, which callers
// must surface rather than fold into a negative factor.
func (s *Signer) Verify(fp Fingerprint, signature string, issuerID string) (bool, error) {
	if len(fp) != FingerprintSize || signature == "" {
		return false, nil
	}
	supplied, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(supplied) != sha256.Size {
		return false, nil
	}
	want, err := s.tag(fp, issuerID)
	if err != nil {
		return false, err
	}
	return hmac.Equal(supplied, want), nil
}

func (s *Signer) tag(fp Fingerprint, issuerID string) ([]byte, error) {
	key, err := s.keys.KeyFor(issuerID)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(signatureDomain + "|"))
	mac.Write(fp)
	return mac.Sum(nil), nil
}
