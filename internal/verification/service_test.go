package verification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"academia-veritas/registry-backend/internal/audit"
	"academia-veritas/registry-backend/internal/auth"
	"academia-veritas/registry-backend/internal/certificate"
	"academia-veritas/registry-backend/internal/intake"
	"academia-veritas/registry-backend/internal/integrity"
)

const testVerifierID = "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d"

// fakeCertRepo serves a single configured row from FindByFields and records
// what was searched for. The embedded interface panics on anything else the
// service has no business calling.
type fakeCertRepo struct {
	certificate.Repository
	cert       *certificate.Certificate
	err        error
	lastSearch integrity.CertificateFields
}

func (f *fakeCertRepo) FindByFields(ctx context.Context, fields integrity.CertificateFields) (*certificate.Certificate, error) {
	f.lastSearch = fields
	return f.cert, f.err
}

type fakeInstitutions struct {
	name string
}

func (f *fakeInstitutions) GetInstitutionByID(ctx context.Context, id uuid.UUID) (*auth.Institution, error) {
	return &auth.Institution{ID: id, Name: f.name}, nil
}

type memoryTrail struct {
	mu       sync.Mutex
	attempts []audit.Attempt
	err      error
}

func (m *memoryTrail) Insert(ctx context.Context, attempt *audit.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *memoryTrail) Recent(ctx context.Context, limit int64) ([]audit.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]audit.Attempt, 0, len(m.attempts))
	for i := len(m.attempts) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		out = append(out, m.attempts[i])
	}
	return out, nil
}

// issuedCertificate builds a row exactly as the issuance pipeline would
// store it, with a signature that genuinely verifies.
func issuedCertificate(t *testing.T, signer *integrity.Signer, receipt string) (*certificate.Certificate, integrity.Fingerprint) {
	t.Helper()
	institutionID := uuid.New()
	fields := integrity.CertificateFields{
		StudentName: "Jane Doe",
		RollNumber:  "CS-2024-117",
		CourseName:  "B.Sc. Computer Science",
		Grade:       "First Class Honours",
		IssueDate:   "2024-06-30",
	}
	fp, salt, err := integrity.Generate(fields, institutionID.String())
	require.NoError(t, err)
	sig, err := signer.Sign(fp, institutionID.String())
	require.NoError(t, err)

	status := certificate.AnchorPending
	if receipt != "" {
		status = certificate.AnchorAnchored
	}
	return &certificate.Certificate{
		ID:            uuid.New(),
		InstitutionID: institutionID,
		StudentName:   fields.StudentName,
		RollNumber:    fields.RollNumber,
		CourseName:    fields.CourseName,
		Grade:         fields.Grade,
		IssueDate:     fields.IssueDate,
		Fingerprint:   fp.Hex(),
		Salt:          salt.Hex(),
		Signature:     sig,
		AnchorReceipt: receipt,
		AnchorStatus:  status,
		CreatedAt:     time.Now().UTC(),
	}, fp
}

func serviceSigner(t *testing.T) *integrity.Signer {
	t.Helper()
	signer, err := integrity.NewSigner(integrity.NewStaticKeyProvider(nil, []byte("verification-test-key")))
	require.NoError(t, err)
	return signer
}

func TestServiceVerifyFullyVerified(t *testing.T) {
	signer := serviceSigner(t)
	cert, fp := issuedCertificate(t, signer, "tx1")
	repo := &fakeCertRepo{cert: cert}
	lc := &fakeLedger{anchored: map[string]bool{fp.Hex(): true}}
	trail := &memoryTrail{}

	svc := NewService(repo, &fakeInstitutions{name: "State Technical University"},
		NewAggregator(lc, signer, zap.NewNop(), time.Second), trail, nil, nil, zap.NewNop())

	resp, err := svc.Verify(context.Background(), testVerifierID, VerifyRequest{
		StudentName: "JANE DOE ",
		RollNumber:  "cs-2024-117",
		CourseName:  "B.Sc. Computer Science",
		Grade:       "First Class Honours",
		IssueDate:   "2024-06-30",
	}, "203.0.113.9")
	require.NoError(t, err)

	assert.Equal(t, TierFullyVerified, resp.Tier)
	assert.Equal(t, "HIGH", resp.Confidence)
	assert.Equal(t, 3, resp.Matched)
	require.NotNil(t, resp.Certificate)
	assert.Equal(t, "State Technical University", resp.Certificate.Institution)
	assert.Equal(t, cert.Fingerprint, resp.Certificate.Fingerprint)
	assert.Nil(t, resp.SearchedFor)

	// Lookup used the canonical form of the request, not the raw casing.
	assert.Equal(t, "jane doe", repo.lastSearch.StudentName)

	require.Len(t, trail.attempts, 1)
	attempt := trail.attempts[0]
	assert.Equal(t, string(TierFullyVerified), attempt.Tier)
	assert.Equal(t, cert.Fingerprint, attempt.Fingerprint)
	assert.Equal(t, "structured", attempt.Source)
	assert.Equal(t, testVerifierID, attempt.VerifierID)
	assert.True(t, attempt.DatabaseMatched)
	assert.True(t, attempt.LedgerMatched)
	assert.True(t, attempt.SignatureMatched)
}

func TestServiceVerifyNoMatchEchoesSearch(t *testing.T) {
	repo := &fakeCertRepo{cert: nil}
	trail := &memoryTrail{}
	svc := NewService(repo, &fakeInstitutions{name: "X"},
		NewAggregator(&fakeLedger{anchored: map[string]bool{}}, serviceSigner(t), zap.NewNop(), time.Second),
		trail, nil, nil, zap.NewNop())

	resp, err := svc.Verify(context.Background(), testVerifierID, VerifyRequest{
		StudentName: "Nobody Real",
		RollNumber:  "ZZ-0000",
		CourseName:  "Astrology",
		Grade:       "F",
		IssueDate:   "2020-01-01",
	}, "")
	require.NoError(t, err)

	assert.Equal(t, TierUnverified, resp.Tier)
	assert.Equal(t, "LOW", resp.Confidence)
	assert.Nil(t, resp.Certificate)
	require.NotNil(t, resp.SearchedFor)
	assert.Equal(t, "nobody real", resp.SearchedFor.StudentName)
	assert.Equal(t, "zz-0000", resp.SearchedFor.RollNumber)

	require.Len(t, trail.attempts, 1)
	assert.False(t, trail.attempts[0].DatabaseMatched)
	assert.Equal(t, string(TierUnverified), trail.attempts[0].Tier)
}

func TestServiceVerifyExtractsRawText(t *testing.T) {
	repo := &fakeCertRepo{cert: nil}
	trail := &memoryTrail{}
	svc := NewService(repo, nil,
		NewAggregator(&fakeLedger{anchored: map[string]bool{}}, serviceSigner(t), zap.NewNop(), time.Second),
		trail, nil, nil, zap.NewNop())

	raw := `STATE TECHNICAL UNIVERSITY
Student Name: Jane Doe
Roll Number: CS-2024-117
Course: B.Sc. Computer Science
Grade: B
Issued On: 30/06/2024`

	// The explicit grade overrides the extracted one.
	_, err := svc.Verify(context.Background(), testVerifierID, VerifyRequest{RawText: raw, Grade: "A"}, "")
	require.NoError(t, err)

	assert.Equal(t, "jane doe", repo.lastSearch.StudentName)
	assert.Equal(t, "cs-2024-117", repo.lastSearch.RollNumber)
	assert.Equal(t, "a", repo.lastSearch.Grade)
	assert.Equal(t, "2024-06-30", repo.lastSearch.IssueDate)

	require.Len(t, trail.attempts, 1)
	assert.Equal(t, "raw_text", trail.attempts[0].Source)
}

func TestServiceVerifyReportsMissingExtractFields(t *testing.T) {
	svc := NewService(&fakeCertRepo{}, nil,
		NewAggregator(&fakeLedger{anchored: map[string]bool{}}, serviceSigner(t), zap.NewNop(), time.Second),
		nil, nil, nil, zap.NewNop())

	_, err := svc.Verify(context.Background(), testVerifierID, VerifyRequest{RawText: "Student Name: Jane Doe"}, "")
	var extractErr *intake.ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.Contains(t, extractErr.Missing, "roll_number")
	assert.Contains(t, extractErr.Missing, "issue_date")
	assert.NotContains(t, extractErr.Missing, "student_name")
}

func TestServiceVerifyRejectsIncompleteStructuredRequest(t *testing.T) {
	svc := NewService(&fakeCertRepo{}, nil,
		NewAggregator(&fakeLedger{anchored: map[string]bool{}}, serviceSigner(t), zap.NewNop(), time.Second),
		nil, nil, nil, zap.NewNop())

	_, err := svc.Verify(context.Background(), testVerifierID, VerifyRequest{StudentName: "Jane Doe"}, "")
	assert.ErrorIs(t, err, integrity.ErrInvalidInput)
}

func TestServiceVerifySurvivesTrailFailure(t *testing.T) {
	signer := serviceSigner(t)
	cert, fp := issuedCertificate(t, signer, "tx1")
	trail := &memoryTrail{err: context.DeadlineExceeded}

	svc := NewService(&fakeCertRepo{cert: cert}, nil,
		NewAggregator(&fakeLedger{anchored: map[string]bool{fp.Hex(): true}}, signer, zap.NewNop(), time.Second),
		trail, nil, nil, zap.NewNop())

	resp, err := svc.Verify(context.Background(), testVerifierID, VerifyRequest{
		StudentName: cert.StudentName,
		RollNumber:  cert.RollNumber,
		CourseName:  cert.CourseName,
		Grade:       cert.Grade,
		IssueDate:   cert.IssueDate,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, TierFullyVerified, resp.Tier)
}

func TestServiceHistory(t *testing.T) {
	trail := &memoryTrail{}
	for _, tier := range []Tier{TierBasic, TierFullyVerified} {
		require.NoError(t, trail.Insert(context.Background(), &audit.Attempt{
			Tier:      string(tier),
			CheckedAt: time.Now().UTC(),
		}))
	}

	svc := NewService(&fakeCertRepo{}, nil,
		NewAggregator(&fakeLedger{anchored: map[string]bool{}}, serviceSigner(t), zap.NewNop(), time.Second),
		trail, nil, nil, zap.NewNop())

	attempts, err := svc.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, string(TierFullyVerified), attempts[0].Tier)

	svcNoTrail := NewService(&fakeCertRepo{}, nil,
		NewAggregator(&fakeLedger{anchored: map[string]bool{}}, serviceSigner(t), zap.NewNop(), time.Second),
		nil, nil, nil, zap.NewNop())
	_, err = svcNoTrail.History(context.Background(), 10)
	assert.ErrorIs(t, err, ErrHistoryUnavailable)
}
