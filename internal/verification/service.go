package verification

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"academia-veritas/registry-backend/internal/audit"
	"academia-veritas/registry-backend/internal/certificate"
	"academia-veritas/registry-backend/internal/intake"
	"academia-veritas/registry-backend/internal/integrity"
	"academia-veritas/registry-backend/internal/metrics"
	"academia-veritas/registry-backend/internal/notify"
)

// ErrHistoryUnavailable is returned when the audit trail backend is not
// configured or cannot be queried.
var ErrHistoryUnavailable = errors.New("verification history unavailable")

// VerifyRequest carries either the structured certificate fields, raw
// scanned text to run through the intake extractor, or both. Explicit fields
// win over extracted ones.
type VerifyRequest struct {
	StudentName string `json:"student_name"`
	RollNumber  string `json:"roll_number"`
	CourseName  string `json:"course_name"`
	Grade       string `json:"grade"`
	IssueDate   string `json:"issue_date"`
	RawText     string `json:"raw_text"`
}

// SearchedFields echoes the canonical natural key a failed lookup searched
// for, so the caller can see exactly what was compared.
type SearchedFields struct {
	StudentName string `json:"student_name"`
	RollNumber  string `json:"roll_number"`
	CourseName  string `json:"course_name"`
	Grade       string `json:"grade"`
	IssueDate   string `json:"issue_date"`
}

// CertificateSummary is the public view of a matched certificate.
type CertificateSummary struct {
	ID            string     `json:"id"`
	InstitutionID string     `json:"institution_id"`
	Institution   string     `json:"institution,omitempty"`
	StudentName   string     `json:"student_name"`
	RollNumber    string     `json:"roll_number"`
	CourseName    string     `json:"course_name"`
	Grade         string     `json:"grade"`
	IssueDate     string     `json:"issue_date"`
	Fingerprint   string     `json:"fingerprint"`
	AnchorStatus  string     `json:"anchor_status"`
	AnchoredAt    *time.Time `json:"anchored_at,omitempty"`
	IssuedAt      time.Time  `json:"issued_at"`
}

// VerifyResponse is the full verification result returned to the caller.
type VerifyResponse struct {
	Verdict
	Confidence  string              `json:"confidence"`
	Message     string              `json:"message"`
	Certificate *CertificateSummary `json:"certificate,omitempty"`
	SearchedFor *SearchedFields     `json:"searched_for,omitempty"`
}

// Service is the verification façade in front of the aggregator: it resolves
// the request into a record, runs the factor checks, and leaves an audit
// trail of every attempt.
type Service interface {
	Verify(ctx context.Context, verifierID string, req VerifyRequest, requestIP string) (*VerifyResponse, error)
	History(ctx context.Context, limit int64) ([]audit.Attempt, error)
}

type service struct {
	certs        certificate.Repository
	institutions certificate.InstitutionDirectory
	aggregator   *Aggregator
	trail        audit.Store
	events       *notify.Hub
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewService creates a new verification service. trail, events and metrics
// may be nil; verification still works without them.
func NewService(certs certificate.Repository, institutions certificate.InstitutionDirectory, aggregator *Aggregator, trail audit.Store, events *notify.Hub, m *metrics.Metrics, logger *zap.Logger) Service {
	return &service{
		certs:        certs,
		institutions: institutions,
		aggregator:   aggregator,
		trail:        trail,
		events:       events,
		metrics:      m,
		logger:       logger,
	}
}

// Verify resolves the requested fields to a stored certificate and reduces
// the integrity factors over it to a verdict. Every attempt, matched or not,
// lands in the audit trail.
func (s *service) Verify(ctx context.Context, verifierID string, req VerifyRequest, requestIP string) (*VerifyResponse, error) {
	fields, source, err := s.resolveFields(req)
	if err != nil {
		return nil, err
	}
	canonical, err := integrity.Canonicalize(fields)
	if err != nil {
		return nil, err
	}

	cert, err := s.certs.FindByFields(ctx, canonical)
	if err != nil {
		return nil, err
	}

	record := s.recordFrom(cert)
	verdict := s.aggregator.Verify(ctx, record)
	s.metrics.Verification(string(verdict.Tier))

	resp := &VerifyResponse{
		Verdict:    verdict,
		Confidence: verdict.Tier.Confidence(),
		Message:    tierMessage(verdict.Tier),
	}
	if cert != nil {
		resp.Certificate = s.summarize(ctx, cert)
	} else {
		resp.SearchedFor = &SearchedFields{
			StudentName: canonical.StudentName,
			RollNumber:  canonical.RollNumber,
			CourseName:  canonical.CourseName,
			Grade:       canonical.Grade,
			IssueDate:   canonical.IssueDate,
		}
	}

	s.record(ctx, verifierID, canonical, cert, verdict, source, requestIP)
	return resp, nil
}

func (s *service) History(ctx context.Context, limit int64) ([]audit.Attempt, error) {
	if s.trail == nil {
		return nil, ErrHistoryUnavailable
	}
	attempts, err := s.trail.Recent(ctx, limit)
	if err != nil {
		s.logger.Error("failed to load verification history", zap.Error(err))
		return nil, ErrHistoryUnavailable
	}
	return attempts, nil
}

// resolveFields merges the structured request fields with those extracted
// from raw text. Raw text must extract completely; explicit fields then
// override individual extracted values.
func (s *service) resolveFields(req VerifyRequest) (integrity.CertificateFields, string, error) {
	explicit := integrity.CertificateFields{
		StudentName: req.StudentName,
		RollNumber:  req.RollNumber,
		CourseName:  req.CourseName,
		Grade:       req.Grade,
		IssueDate:   req.IssueDate,
	}
	if strings.TrimSpace(req.RawText) == "" {
		return explicit, "structured", nil
	}

	extracted, err := intake.ExtractFields(req.RawText)
	if err != nil {
		return integrity.CertificateFields{}, "", err
	}
	merged := extracted
	if strings.TrimSpace(explicit.StudentName) != "" {
		merged.StudentName = explicit.StudentName
	}
	if strings.TrimSpace(explicit.RollNumber) != "" {
		merged.RollNumber = explicit.RollNumber
	}
	if strings.TrimSpace(explicit.CourseName) != "" {
		merged.CourseName = explicit.CourseName
	}
	if strings.TrimSpace(explicit.Grade) != "" {
		merged.Grade = explicit.Grade
	}
	if strings.TrimSpace(explicit.IssueDate) != "" {
		merged.IssueDate = explicit.IssueDate
	}
	return merged, "raw_text", nil
}

// recordFrom maps a stored row to the aggregator's view of it. A row whose
// stored fingerprint cannot be decoded keeps its database factor but cannot
// support the stronger checks; those degrade to false rather than erroring
// the whole verification.
func (s *service) recordFrom(cert *certificate.Certificate) *Record {
	if cert == nil {
		return nil
	}
	record := &Record{
		IssuerID:      cert.InstitutionID.String(),
		Signature:     cert.Signature,
		AnchorReceipt: cert.AnchorReceipt,
	}
	fp, err := integrity.ParseFingerprintHex(cert.Fingerprint)
	if err != nil {
		s.logger.Warn("stored fingerprint is malformed",
			zap.String("certificate_id", cert.ID.String()), zap.Error(err))
		return record
	}
	record.Fingerprint = fp
	return record
}

func (s *service) summarize(ctx context.Context, cert *certificate.Certificate) *CertificateSummary {
	summary := &CertificateSummary{
		ID:            cert.ID.String(),
		InstitutionID: cert.InstitutionID.String(),
		StudentName:   cert.StudentName,
		RollNumber:    cert.RollNumber,
		CourseName:    cert.CourseName,
		Grade:         cert.Grade,
		IssueDate:     cert.IssueDate,
		Fingerprint:   cert.Fingerprint,
		AnchorStatus:  string(cert.AnchorStatus),
		AnchoredAt:    cert.AnchoredAt,
		IssuedAt:      cert.CreatedAt,
	}
	if s.institutions != nil {
		if inst, err := s.institutions.GetInstitutionByID(ctx, cert.InstitutionID); err == nil && inst != nil {
			summary.Institution = inst.Name
		}
	}
	return summary
}

// record appends the attempt to the audit trail and pushes the event stream.
// Both are best-effort; a verification verdict never fails on their account.
func (s *service) record(ctx context.Context, verifierID string, canonical integrity.CertificateFields, cert *certificate.Certificate, verdict Verdict, source, requestIP string) {
	attempt := &audit.Attempt{
		VerifierID:       verifierID,
		StudentName:      canonical.StudentName,
		RollNumber:       canonical.RollNumber,
		CourseName:       canonical.CourseName,
		Tier:             string(verdict.Tier),
		Confidence:       verdict.Tier.Confidence(),
		FactorsMatched:   verdict.Matched,
		FactorsTotal:     verdict.Total,
		DatabaseMatched:  verdict.Factors.DatabaseMatched,
		LedgerMatched:    verdict.Factors.LedgerMatched,
		SignatureMatched: verdict.Factors.SignatureMatched,
		Source:           source,
		RequestIP:        requestIP,
		CheckedAt:        time.Now().UTC(),
	}
	if cert != nil {
		attempt.CertificateID = cert.ID.String()
		attempt.Fingerprint = cert.Fingerprint
	}
	if s.trail != nil {
		if err := s.trail.Insert(ctx, attempt); err != nil {
			s.logger.Warn("failed to record verification attempt", zap.Error(err))
		}
	}
	if s.events != nil {
		s.events.Publish(notify.Event{
			Type:          notify.EventVerificationRecorded,
			CertificateID: attempt.CertificateID,
			Fingerprint:   attempt.Fingerprint,
			Status:        string(verdict.Tier),
			At:            attempt.CheckedAt,
		})
	}
}

func tierMessage(tier Tier) string {
	switch tier {
	case TierFullyVerified:
		return "Certificate verified: every available integrity factor matched."
	case TierPartiallyVerified:
		return "Certificate verified with reduced confidence: at least one factor could not be confirmed."
	case TierBasic:
		return "Certificate found in the registry, but stronger integrity factors could not be confirmed."
	default:
		return "No matching certificate found in the registry."
	}
}
