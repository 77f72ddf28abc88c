// Package integrity implements the certificate integrity engine: salted
// issuer-bound fingerprints, detached signatures over those fingerprints,
// and batch digests for anchoring many fingerprints at once. Everything
// here is pure computation; persistence and ledger I/O live elsewhere.
package integrity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// FingerprintSize is the byte length of a certificate fingerprint.
	FingerprintSize = sha256.Size

	// SaltSize is the byte length of the per-certificate salt.
	SaltSize = 16

	// IssueDateLayout is the accepted calendar date format.
	IssueDateLayout = "2006-01-02"

	fingerprintDomain = "academia-veritas:fingerprint:v1"
)

// Fingerprint is a 256-bit keyed digest binding certificate fields to an
// issuer, a salt and an issuance time.
type Fingerprint []byte

// Hex returns the fixed-width lowercase hex encoding of the fingerprint.
func (f Fingerprint) Hex() string { return hex.EncodeToString(f) }

// ParseFingerprintHex decodes a 64-character hex fingerprint.
func ParseFingerprintHex(s string) (Fingerprint, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: fingerprint is not valid hex", ErrInvalidInput)
	}
	if len(b) != FingerprintSize {
		return nil, fmt.Errorf("%w: fingerprint must be %d bytes, got %d", ErrInvalidInput, FingerprintSize, len(b))
	}
	return Fingerprint(b), nil
}

// Salt is the per-certificate random value stored next to the fingerprint.
// It is unique, not secret; recomputing a fingerprint requires it.
type Salt []byte

// Hex returns the lowercase hex encoding of the salt.
func (s Salt) Hex() string { return hex.EncodeToString(s) }

// ParseSaltHex decodes a stored hex salt.
func ParseSaltHex(v string) (Salt, error) {
	b, err := hex.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("%w: salt is not valid hex", ErrInvalidInput)
	}
	if len(b) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrInvalidInput, SaltSize, len(b))
	}
	return Salt(b), nil
}

// NewSalt draws a fresh 128-bit random salt.
func NewSalt() (Salt, error) {
	b := make([]byte, SaltSize)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("%w: reading salt randomness: %v", ErrCryptoFailure, err)
	}
	return Salt(b), nil
}

// CertificateFields are the attributes bound by a fingerprint. A certificate
// is immutable once fingerprinted; any change requires a new fingerprint.
type CertificateFields struct {
	StudentName string
	RollNumber  string
	CourseName  string
	Grade       string
	IssueDate   string
}

// Canonicalize lower-cases and trims every textual field, normalizes the
// issue date to ISO-8601 and rejects fields that are empty afterwards.
// The same normalization backs both fingerprinting and record lookup, so
// "JANE DOE " and "jane doe" identify the same certificate.
func Canonicalize(fields CertificateFields) (CertificateFields, error) {
	c := CertificateFields{
		StudentName: strings.ToLower(strings.TrimSpace(fields.StudentName)),
		RollNumber:  strings.ToLower(strings.TrimSpace(fields.RollNumber)),
		CourseName:  strings.ToLower(strings.TrimSpace(fields.CourseName)),
		Grade:       strings.ToLower(strings.TrimSpace(fields.Grade)),
	}
	for _, f := range []struct{ name, value string }{
		{"student_name", c.StudentName},
		{"roll_number", c.RollNumber},
		{"course_name", c.CourseName},
		{"grade", c.Grade},
	} {
		if f.value == "" {
			return CertificateFields{}, fmt.Errorf("%w: %s is required", ErrInvalidInput, f.name)
		}
	}
	rawDate := strings.TrimSpace(fields.IssueDate)
	if rawDate == "" {
		return CertificateFields{}, fmt.Errorf("%w: issue_date is required", ErrInvalidInput)
	}
	t, err := time.Parse(IssueDateLayout, rawDate)
	if err != nil {
		return CertificateFields{}, fmt.Errorf("%w: %q is not a calendar date", ErrUnsupportedDate, rawDate)
	}
	c.IssueDate = t.Format(IssueDateLayout)
	return c, nil
}

// Generate derives the fingerprint for fields issued by issuerID right now,
// drawing a fresh salt. The returned salt must be stored with the record;
// it is an input to any later recomputation.
func Generate(fields CertificateFields, issuerID string) (Fingerprint, Salt, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, nil, err
	}
	fp, err := GenerateAt(fields, issuerID, salt, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}
	return fp, salt, nil
}

// GenerateAt recomputes the fingerprint for a certificate from its stored
// salt and issuance time. It is deterministic: fixed fields, issuer, salt
// and timestamp always yield the same fingerprint.
func GenerateAt(fields CertificateFields, issuerID string, salt Salt, issuedAt time.Time) (Fingerprint, error) {
	c, err := Canonicalize(fields)
	if err != nil {
		return nil, err
	}
	issuer := strings.TrimSpace(issuerID)
	if issuer == "" {
		return nil, fmt.Errorf("%w: issuer id is required", ErrInvalidInput)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrInvalidInput, SaltSize, len(salt))
	}

	// The key binds the digest to this issuer and salt so identical field
	// sets from different issuers, or reissues under a new salt, never
	// collide and cannot be ground offline without the salt.
	key := fingerprintDomain + "|" + issuer + "|" + salt.Hex()
	msg := strings.Join([]string{
		c.StudentName,
		c.RollNumber,
		c.CourseName,
		c.Grade,
		c.IssueDate,
		issuer,
		strconv.FormatInt(issuedAt.UTC().Unix(), 10),
	}, "|")

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(msg))
	return Fingerprint(mac.Sum(nil)), nil
}
