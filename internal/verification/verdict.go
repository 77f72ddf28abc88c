// Package verification reduces independent integrity checks over a
// certificate to a single confidence verdict.
package verification

// Tier is the discrete confidence level of a verdict.
type Tier string

const (
	TierFullyVerified     Tier = "FULLY_VERIFIED"
	TierPartiallyVerified Tier = "PARTIALLY_VERIFIED"
	TierBasic             Tier = "BASIC"
	TierUnverified        Tier = "UNVERIFIED"
)

// Confidence maps a tier to the coarse bucket shown to verifiers.
func (t Tier) Confidence() string {
	switch t {
	case TierFullyVerified:
		return "HIGH"
	case TierPartiallyVerified:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Factors carries the boolean sub-checks behind a verdict. LedgerChecked
// distinguishes "checked and absent" from "could not check": an unreachable
// ledger must not masquerade as a failed anchor.
type Factors struct {
	DatabaseMatched  bool `json:"database_verified"`
	LedgerMatched    bool `json:"ledger_verified"`
	SignatureMatched bool `json:"signature_verified"`
	LedgerChecked    bool `json:"ledger_checked"`
}

// Verdict is the per-request reduction of all attempted factors. It is
// derived state: recomputed on every verification, never persisted as
// ground truth.
type Verdict struct {
	Factors Factors `json:"verification_factors"`
	Tier    Tier    `json:"status"`
	Matched int     `json:"factors_matched"`
	Total   int     `json:"factors_total"`
}
