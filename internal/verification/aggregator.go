package verification

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"academia-veritas/registry-backend/internal/integrity"
	"academia-veritas/registry-backend/internal/ledger"
)

// Record is the matched local certificate as the aggregator sees it: the
// stored fingerprint plus whatever extra factors issuance produced.
type Record struct {
	IssuerID      string
	Fingerprint   integrity.Fingerprint
	Signature     string
	AnchorReceipt string
}

// SignatureVerifier checks a detached tag for an issuer.
// *integrity.Signer satisfies it.
type SignatureVerifier interface {
	Verify(fp integrity.Fingerprint, signature string, issuerID string) (bool, error)
}

// Aggregator runs the ledger and signature checks for a matched record and
// reduces them, together with the database match itself, to a verdict.
type Aggregator struct {
	ledger       ledger.Client
	signer       SignatureVerifier
	logger       *zap.Logger
	checkTimeout time.Duration
}

// NewAggregator builds an aggregator. checkTimeout bounds the combined
// factor checks per verification; zero selects a 10s default.
func NewAggregator(lc ledger.Client, signer SignatureVerifier, logger *zap.Logger, checkTimeout time.Duration) *Aggregator {
	if checkTimeout <= 0 {
		checkTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{ledger: lc, signer: signer, logger: logger, checkTimeout: checkTimeout}
}

// Verify reduces the factors for record. A nil record means the database
// lookup found nothing: the verdict short-circuits to UNVERIFIED with no
// further checks, since there is no fingerprint to check against.
//
// The ledger and signature checks have no ordering dependency and run
// concurrently; both complete (or time out) before the verdict is computed.
// Every failed or ambiguous sub-check resolves to a false factor, lowering
// the tier, never raising it.
func (a *Aggregator) Verify(ctx context.Context, record *Record) Verdict {
	v := Verdict{Total: 1}
	if record == nil {
		v.Tier = TierUnverified
		return v
	}
	v.Factors.DatabaseMatched = true
	v.Matched = 1

	hasReceipt := strings.TrimSpace(record.AnchorReceipt) != ""
	hasSignature := strings.TrimSpace(record.Signature) != ""

	ctx, cancel := context.WithTimeout(ctx, a.checkTimeout)
	defer cancel()

	var (
		wg            sync.WaitGroup
		ledgerOK      bool
		ledgerChecked bool
		signatureOK   bool
	)
	if hasReceipt {
		v.Total++
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := a.ledger.IsAnchored(ctx, record.Fingerprint)
			if err != nil {
				a.logger.Warn("ledger factor unavailable",
					zap.String("fingerprint", record.Fingerprint.Hex()),
					zap.Error(err))
				return
			}
			ledgerChecked = true
			ledgerOK = ok
		}()
	}
	if hasSignature {
		v.Total++
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := a.signer.Verify(record.Fingerprint, record.Signature, record.IssuerID)
			if err != nil {
				a.logger.Error("signature factor check failed",
					zap.String("issuer_id", record.IssuerID),
					zap.Error(err))
				return
			}
			signatureOK = ok
		}()
	}
	wg.Wait()

	v.Factors.LedgerMatched = ledgerOK
	v.Factors.LedgerChecked = ledgerChecked
	v.Factors.SignatureMatched = signatureOK
	if ledgerOK {
		v.Matched++
	}
	if signatureOK {
		v.Matched++
	}

	switch {
	case v.Matched == v.Total && v.Total >= 2:
		v.Tier = TierFullyVerified
	case v.Matched >= 2:
		v.Tier = TierPartiallyVerified
	default:
		v.Tier = TierBasic
	}
	return v
}
