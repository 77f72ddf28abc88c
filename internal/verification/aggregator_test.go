package verification

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"academia-veritas/registry-backend/internal/integrity"
	"academia-veritas/registry-backend/internal/ledger"
)

type fakeLedger struct {
	anchored map[string]bool
	err      error
	delay    time.Duration
	calls    int32
}

func (f *fakeLedger) Anchor(ctx context.Context, fp integrity.Fingerprint) (ledger.Receipt, error) {
	f.anchored[fp.Hex()] = true
	return ledger.Receipt{TxHash: "fake-tx"}, nil
}

func (f *fakeLedger) IsAnchored(ctx context.Context, fp integrity.Fingerprint) (bool, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return false, f.err
	}
	return f.anchored[fp.Hex()], nil
}

type fakeSigner struct {
	ok    bool
	err   error
	delay time.Duration
	calls int32
}

func (f *fakeSigner) Verify(fp integrity.Fingerprint, signature, issuerID string) (bool, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.ok, f.err
}

func testRecord(t *testing.T) *Record {
	t.Helper()
	fp, salt, err := integrity.Generate(integrity.CertificateFields{
		StudentName: "Jane Doe",
		RollNumber:  "R-98765",
		CourseName:  "B.Tech CS",
		Grade:       "A",
		IssueDate:   "2025-10-15",
	}, "inst-1")
	require.NoError(t, err)
	require.NotEmpty(t, salt)
	return &Record{
		IssuerID:      "inst-1",
		Fingerprint:   fp,
		Signature:     "c2lnbmF0dXJl",
		AnchorReceipt: "tx-hash-1",
	}
}

func newTestAggregator(lc ledger.Client, signer SignatureVerifier) *Aggregator {
	return NewAggregator(lc, signer, zap.NewNop(), time.Second)
}

func TestVerifyNoRecordShortCircuitsToUnverified(t *testing.T) {
	lc := &fakeLedger{anchored: map[string]bool{}}
	signer := &fakeSigner{ok: true}
	agg := newTestAggregator(lc, signer)

	v := agg.Verify(context.Background(), nil)

	assert.Equal(t, TierUnverified, v.Tier)
	assert.Equal(t, 0, v.Matched)
	assert.Equal(t, 1, v.Total)
	assert.False(t, v.Factors.DatabaseMatched)
	assert.Zero(t, atomic.LoadInt32(&lc.calls))
	assert.Zero(t, atomic.LoadInt32(&signer.calls))
	assert.Equal(t, "LOW", v.Tier.Confidence())
}

func TestVerifyDatabaseOnlyIsBasic(t *testing.T) {
	lc := &fakeLedger{anchored: map[string]bool{}}
	signer := &fakeSigner{ok: true}
	agg := newTestAggregator(lc, signer)

	rec := testRecord(t)
	rec.Signature = ""
	rec.AnchorReceipt = ""
	v := agg.Verify(context.Background(), rec)

	assert.Equal(t, TierBasic, v.Tier)
	assert.Equal(t, 1, v.Matched)
	assert.Equal(t, 1, v.Total)
	assert.True(t, v.Factors.DatabaseMatched)
	assert.False(t, v.Factors.LedgerChecked)
	assert.Zero(t, atomic.LoadInt32(&lc.calls))
	assert.Zero(t, atomic.LoadInt32(&signer.calls))
}

func TestVerifyAllFactorsFullyVerified(t *testing.T) {
	rec := testRecord(t)
	lc := &fakeLedger{anchored: map[string]bool{rec.Fingerprint.Hex(): true}}
	signer := &fakeSigner{ok: true}
	agg := newTestAggregator(lc, signer)

	v := agg.Verify(context.Background(), rec)

	assert.Equal(t, TierFullyVerified, v.Tier)
	assert.Equal(t, 3, v.Matched)
	assert.Equal(t, 3, v.Total)
	assert.True(t, v.Factors.LedgerMatched)
	assert.True(t, v.Factors.LedgerChecked)
	assert.True(t, v.Factors.SignatureMatched)
	assert.Equal(t, "HIGH", v.Tier.Confidence())
}

func TestVerifyTwoFactorsWithoutSignatureIsFullyVerified(t *testing.T) {
	rec := testRecord(t)
	rec.Signature = ""
	lc := &fakeLedger{anchored: map[string]bool{rec.Fingerprint.Hex(): true}}
	agg := newTestAggregator(lc, &fakeSigner{})

	v := agg.Verify(context.Background(), rec)

	assert.Equal(t, TierFullyVerified, v.Tier)
	assert.Equal(t, 2, v.Matched)
	assert.Equal(t, 2, v.Total)
}

func TestVerifyOneFailingFactorIsPartial(t *testing.T) {
	rec := testRecord(t)

	t.Run("ledger absent", func(t *testing.T) {
		lc := &fakeLedger{anchored: map[string]bool{}}
		agg := newTestAggregator(lc, &fakeSigner{ok: true})
		v := agg.Verify(context.Background(), rec)

		assert.Equal(t, TierPartiallyVerified, v.Tier)
		assert.Equal(t, 2, v.Matched)
		assert.Equal(t, 3, v.Total)
		assert.False(t, v.Factors.LedgerMatched)
		assert.True(t, v.Factors.LedgerChecked)
		assert.Equal(t, "MEDIUM", v.Tier.Confidence())
	})

	t.Run("signature mismatch", func(t *testing.T) {
		lc := &fakeLedger{anchored: map[string]bool{rec.Fingerprint.Hex(): true}}
		agg := newTestAggregator(lc, &fakeSigner{ok: false})
		v := agg.Verify(context.Background(), rec)

		assert.Equal(t, TierPartiallyVerified, v.Tier)
		assert.Equal(t, 2, v.Matched)
		assert.False(t, v.Factors.SignatureMatched)
	})
}

func TestVerifyBothExtraFactorsFailingIsBasic(t *testing.T) {
	rec := testRecord(t)
	lc := &fakeLedger{anchored: map[string]bool{}}
	agg := newTestAggregator(lc, &fakeSigner{ok: false})

	v := agg.Verify(context.Background(), rec)

	assert.Equal(t, TierBasic, v.Tier)
	assert.Equal(t, 1, v.Matched)
	assert.Equal(t, 3, v.Total)
}

func TestVerifyLedgerUnavailableDegradesWithoutFalseNegative(t *testing.T) {
	rec := testRecord(t)
	lc := &fakeLedger{anchored: map[string]bool{}, err: ledger.ErrAnchorUnavailable}
	agg := newTestAggregator(lc, &fakeSigner{ok: true})

	v := agg.Verify(context.Background(), rec)

	assert.Equal(t, TierPartiallyVerified, v.Tier)
	assert.False(t, v.Factors.LedgerMatched)
	assert.False(t, v.Factors.LedgerChecked, "unavailable must not read as a completed negative check")
}

func TestVerifySignatureProviderErrorDegrades(t *testing.T) {
	rec := testRecord(t)
	lc := &fakeLedger{anchored: map[string]bool{rec.Fingerprint.Hex(): true}}
	agg := newTestAggregator(lc, &fakeSigner{err: integrity.ErrCryptoFailure})

	v := agg.Verify(context.Background(), rec)

	assert.Equal(t, TierPartiallyVerified, v.Tier)
	assert.False(t, v.Factors.SignatureMatched)
}

func TestVerifyChecksRunConcurrently(t *testing.T) {
	rec := testRecord(t)
	lc := &fakeLedger{anchored: map[string]bool{rec.Fingerprint.Hex(): true}, delay: 100 * time.Millisecond}
	signer := &fakeSigner{ok: true, delay: 100 * time.Millisecond}
	agg := newTestAggregator(lc, signer)

	start := time.Now()
	v := agg.Verify(context.Background(), rec)
	elapsed := time.Since(start)

	assert.Equal(t, TierFullyVerified, v.Tier)
	assert.Equal(t, int32(1), atomic.LoadInt32(&lc.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&signer.calls))
	assert.Less(t, elapsed, 190*time.Millisecond, "factor checks should overlap")
}

func TestVerifyCanceledContextDegradesLedgerFactor(t *testing.T) {
	rec := testRecord(t)
	lc := &fakeLedger{anchored: map[string]bool{rec.Fingerprint.Hex(): true}, delay: time.Second}
	agg := newTestAggregator(lc, &fakeSigner{ok: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := agg.Verify(ctx, rec)

	assert.False(t, v.Factors.LedgerChecked)
	assert.Equal(t, TierPartiallyVerified, v.Tier)
}

type factorState int

const (
	factorAbsent factorState = iota
	factorPass
	factorFail
)

func verdictFor(t *testing.T, rec Record, ledgerState, sigState factorState) Verdict {
	t.Helper()
	cp := rec
	lc := &fakeLedger{anchored: map[string]bool{}}
	signer := &fakeSigner{}
	switch ledgerState {
	case factorAbsent:
		cp.AnchorReceipt = ""
	case factorPass:
		lc.anchored[cp.Fingerprint.Hex()] = true
	}
	switch sigState {
	case factorAbsent:
		cp.Signature = ""
	case factorPass:
		signer.ok = true
	}
	return newTestAggregator(lc, signer).Verify(context.Background(), &cp)
}

func TestVerdictMonotonicity(t *testing.T) {
	rec := testRecord(t)
	rank := map[Tier]int{
		TierUnverified:        0,
		TierBasic:             1,
		TierPartiallyVerified: 2,
		TierFullyVerified:     3,
	}
	states := []factorState{factorAbsent, factorPass, factorFail}

	for _, ls := range states {
		for _, ss := range states {
			base := verdictFor(t, *rec, ls, ss)

			// Adding a passing factor never lowers the tier.
			if ls == factorAbsent {
				withLedger := verdictFor(t, *rec, factorPass, ss)
				assert.GreaterOrEqual(t, rank[withLedger.Tier], rank[base.Tier])
			}
			if ss == factorAbsent {
				withSig := verdictFor(t, *rec, ls, factorPass)
				assert.GreaterOrEqual(t, rank[withSig.Tier], rank[base.Tier])
			}

			// Removing a passing factor never raises it.
			if ls == factorPass {
				without := verdictFor(t, *rec, factorAbsent, ss)
				assert.LessOrEqual(t, rank[without.Tier], rank[base.Tier])
			}
			if ss == factorPass {
				without := verdictFor(t, *rec, ls, factorAbsent)
				assert.LessOrEqual(t, rank[without.Tier], rank[base.Tier])
			}
		}
	}
}

// End-to-end reduction over real engine output: generate, sign, anchor,
// then verify the same certificate.
func TestVerifyIssuedCertificateEndToEnd(t *testing.T) {
	fields := integrity.CertificateFields{
		StudentName: "Jane Doe",
		RollNumber:  "R-98765",
		CourseName:  "B.Tech CS",
		Grade:       "A",
		IssueDate:   "2025-10-15",
	}
	fp, _, err := integrity.Generate(fields, "inst-1")
	require.NoError(t, err)

	signer, err := integrity.NewSigner(integrity.NewStaticKeyProvider(map[string][]byte{
		"inst-1": []byte("inst-1-signing-key-32-bytes-long"),
	}, nil))
	require.NoError(t, err)
	sig, err := signer.Sign(fp, "inst-1")
	require.NoError(t, err)

	lc := &fakeLedger{anchored: map[string]bool{}}
	receipt, err := lc.Anchor(context.Background(), fp)
	require.NoError(t, err)

	anchored, err := lc.IsAnchored(context.Background(), fp)
	require.NoError(t, err)
	assert.True(t, anchored)

	agg := newTestAggregator(lc, signer)
	v := agg.Verify(context.Background(), &Record{
		IssuerID:      "inst-1",
		Fingerprint:   fp,
		Signature:     sig,
		AnchorReceipt: receipt.TxHash,
	})

	assert.Equal(t, TierFullyVerified, v.Tier)
	assert.Equal(t, "HIGH", v.Tier.Confidence())
	assert.Equal(t, 3, v.Matched)
}
