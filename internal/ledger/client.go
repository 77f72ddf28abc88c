// Package ledger anchors certificate fingerprints to an external
// append-only ledger and answers membership queries against it.
package ledger

import (
	"context"
	"errors"
	"time"

	"academia-veritas/registry-backend/internal/integrity"
)

var (
	// ErrAnchorUnavailable marks a ledger that could not be reached or
	// would not accept the operation. Distinct from a negative membership
	// answer: "couldn't check" is never reported as "not anchored".
	ErrAnchorUnavailable = errors.New("ledger unavailable")

	// ErrAnchorTimeout marks a submission that was broadcast but not
	// confirmed within the bounded wait. The ledger may still confirm it
	// out-of-band; callers proceed and reconcile later.
	ErrAnchorTimeout = errors.New("anchor submission unconfirmed within timeout")

	// ErrAlreadyAnchored marks a fingerprint that is already present on
	// the ledger. Issuance flows treat this as success, not failure.
	ErrAlreadyAnchored = errors.New("fingerprint already anchored")
)

// Receipt is the opaque handle returned by a confirmed anchor submission.
type Receipt struct {
	TxHash     string    `json:"tx_hash"`
	Ledger     int32     `json:"ledger"`
	AnchoredAt time.Time `json:"anchored_at"`
}

// Client appends fingerprints to, and queries membership in, an external
// immutable store.
//
// Anchor is idempotent from the caller's perspective: a fingerprint already
// present yields ErrAlreadyAnchored rather than a new receipt. Submissions
// against the same anchor identity are serialized internally; membership
// reads run freely in parallel.
type Client interface {
	Anchor(ctx context.Context, fp integrity.Fingerprint) (Receipt, error)
	IsAnchored(ctx context.Context, fp integrity.Fingerprint) (bool, error)
}
