package integrity

import "errors"

var (
	// ErrInvalidInput marks certificate fields that are missing or empty
	// after normalization. The caller must reject the request before any
	// digest is computed.
	ErrInvalidInput = errors.New("invalid certificate input")

	// ErrUnsupportedDate marks an issue date that does not parse as an
	// ISO-8601 calendar date.
	ErrUnsupportedDate = errors.New("unsupported issue date")

	// ErrCryptoFailure marks an unexpected failure producing a digest or
	// tag, including missing key material. It must never be collapsed
	// into a negative verification factor.
	ErrCryptoFailure = errors.New("crypto failure")
)
