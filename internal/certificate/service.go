package certificate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"academia-veritas/registry-backend/internal/auth"
	"academia-veritas/registry-backend/internal/integrity"
	"academia-veritas/registry-backend/internal/ledger"
	"academia-veritas/registry-backend/internal/metrics"
	"academia-veritas/registry-backend/internal/notify"
)

var (
	// ErrDuplicateFingerprint means a row with the identical fingerprint is
	// already stored. In practice this only fires on a raced double submit,
	// since every issuance draws a fresh salt.
	ErrDuplicateFingerprint = errors.New("certificate with identical fingerprint already exists")
	// ErrNotFound covers both a missing row and a row owned by another
	// institution, so lookups don't leak existence across tenants.
	ErrNotFound = errors.New("certificate not found")
	// ErrNothingPending is returned by BatchAnchor when no rows need anchoring.
	ErrNothingPending = errors.New("no pending certificates to anchor")
)

const (
	defaultAnchorTimeout = 20 * time.Second
	defaultBatchLimit    = 256
	maxPageLimit         = 100
	defaultPageLimit     = 20
)

// InstitutionDirectory resolves issuing institutions for display purposes.
type InstitutionDirectory interface {
	GetInstitutionByID(ctx context.Context, id uuid.UUID) (*auth.Institution, error)
}

// ArchiveStore persists rendered certificate documents off-box.
type ArchiveStore interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// Service handles certificate business logic.
type Service interface {
	Issue(ctx context.Context, institutionID uuid.UUID, req IssueRequest) (*IssueResult, error)
	Get(ctx context.Context, institutionID, id uuid.UUID) (*Certificate, error)
	List(ctx context.Context, institutionID uuid.UUID, page, limit int) (*Page, error)
	RenderPDF(ctx context.Context, institutionID, id uuid.UUID) ([]byte, error)
	ExportWorkbook(ctx context.Context, institutionID uuid.UUID) ([]byte, error)
	ExportCSV(ctx context.Context, institutionID uuid.UUID) ([]byte, error)
	BatchAnchor(ctx context.Context, institutionID uuid.UUID) (*BatchAnchorResult, error)
}

// Options carries the optional wiring and tunables for the service. The
// zero value is usable: nil Archive/Events/Metrics disable those integrations
// and the timeouts fall back to defaults.
type Options struct {
	Archive       ArchiveStore
	Events        *notify.Hub
	Metrics       *metrics.Metrics
	AnchorTimeout time.Duration
	BatchLimit    int
}

type service struct {
	repo          Repository
	signer        *integrity.Signer
	chain         ledger.Client
	institutions  InstitutionDirectory
	archive       ArchiveStore
	events        *notify.Hub
	metrics       *metrics.Metrics
	anchorTimeout time.Duration
	batchLimit    int
	logger        *zap.Logger
}

// NewService creates a new certificate service.
func NewService(repo Repository, signer *integrity.Signer, chain ledger.Client, institutions InstitutionDirectory, opts Options, logger *zap.Logger) Service {
	if opts.AnchorTimeout <= 0 {
		opts.AnchorTimeout = defaultAnchorTimeout
	}
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = defaultBatchLimit
	}
	return &service{
		repo:          repo,
		signer:        signer,
		chain:         chain,
		institutions:  institutions,
		archive:       opts.Archive,
		events:        opts.Events,
		metrics:       opts.Metrics,
		anchorTimeout: opts.AnchorTimeout,
		batchLimit:    opts.BatchLimit,
		logger:        logger,
	}
}

// Issue runs the full issuance pipeline: fingerprint, sign, persist, then a
// best-effort ledger anchor. A certificate whose anchor attempt does not
// confirm is stored pending and picked up later by the reconciler; the
// issuer still gets a usable certificate immediately.
func (s *service) Issue(ctx context.Context, institutionID uuid.UUID, req IssueRequest) (*IssueResult, error) {
	fields := integrity.CertificateFields{
		StudentName: req.StudentName,
		RollNumber:  req.RollNumber,
		CourseName:  req.CourseName,
		Grade:       req.Grade,
		IssueDate:   req.IssueDate,
	}
	issuer := institutionID.String()
	issuedAt := time.Now().UTC()

	salt, err := integrity.NewSalt()
	if err != nil {
		return nil, err
	}
	fp, err := integrity.GenerateAt(fields, issuer, salt, issuedAt)
	if err != nil {
		return nil, err
	}
	sig, err := s.signer.Sign(fp, issuer)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByFingerprint(ctx, fp.Hex())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateFingerprint
	}

	cert := &Certificate{
		ID:            uuid.New(),
		InstitutionID: institutionID,
		StudentName:   strings.TrimSpace(req.StudentName),
		RollNumber:    strings.TrimSpace(req.RollNumber),
		CourseName:    strings.TrimSpace(req.CourseName),
		Grade:         strings.TrimSpace(req.Grade),
		IssueDate:     req.IssueDate,
		Fingerprint:   fp.Hex(),
		Salt:          salt.Hex(),
		Signature:     sig,
		AnchorStatus:  AnchorPending,
		CreatedAt:     issuedAt,
	}
	if err := s.repo.Create(ctx, cert); err != nil {
		return nil, err
	}
	s.metrics.CertificateIssued()
	s.logger.Info("certificate issued",
		zap.String("certificate_id", cert.ID.String()),
		zap.String("institution_id", issuer),
		zap.String("fingerprint", cert.Fingerprint))

	result := &IssueResult{Certificate: cert}
	if warning := s.anchorCertificate(ctx, cert, fp); warning != "" {
		result.AnchorWarning = warning
	}
	s.archiveCertificate(ctx, cert)
	s.publish(notify.EventCertificateIssued, cert)
	return result, nil
}

// anchorCertificate attempts the ledger write within the configured budget
// and records the outcome on the row. It returns a human-readable warning
// when the certificate stays pending.
func (s *service) anchorCertificate(ctx context.Context, cert *Certificate, fp integrity.Fingerprint) string {
	anchorCtx, cancel := context.WithTimeout(ctx, s.anchorTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := s.chain.Anchor(anchorCtx, fp)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		s.metrics.AnchorSubmission(metrics.AnchorOutcomeAnchored, elapsed)
		s.markAnchored(ctx, cert, receipt.TxHash, anchorDetail{TxHash: receipt.TxHash, Ledger: receipt.Ledger}, receipt.AnchoredAt)
		return ""
	case errors.Is(err, ledger.ErrAlreadyAnchored):
		s.metrics.AnchorSubmission(metrics.AnchorOutcomeExisting, elapsed)
		s.markAnchored(ctx, cert, "", anchorDetail{Note: "fingerprint already present on ledger"}, time.Now().UTC())
		return ""
	case errors.Is(err, ledger.ErrAnchorTimeout):
		s.metrics.AnchorSubmission(metrics.AnchorOutcomeTimeout, elapsed)
		s.logger.Warn("ledger anchor timed out, certificate stored pending",
			zap.String("certificate_id", cert.ID.String()), zap.Error(err))
		return "ledger anchoring did not confirm in time; the certificate is stored and will be anchored shortly"
	default:
		s.metrics.AnchorSubmission(metrics.AnchorOutcomeUnavailable, elapsed)
		s.logger.Warn("ledger anchor unavailable, certificate stored pending",
			zap.String("certificate_id", cert.ID.String()), zap.Error(err))
		return "ledger network unavailable; the certificate is stored and will be anchored shortly"
	}
}

func (s *service) markAnchored(ctx context.Context, cert *Certificate, receipt string, detail anchorDetail, at time.Time) {
	raw, err := json.Marshal(detail)
	if err != nil {
		raw = nil
	}
	if err := s.repo.UpdateAnchorState(ctx, cert.ID, AnchorAnchored, receipt, raw, &at); err != nil {
		s.logger.Warn("failed to record anchor state",
			zap.String("certificate_id", cert.ID.String()), zap.Error(err))
		return
	}
	cert.AnchorStatus = AnchorAnchored
	cert.AnchorReceipt = receipt
	cert.AnchorDetail = raw
	cert.AnchoredAt = &at
	s.logger.Info("certificate anchored",
		zap.String("certificate_id", cert.ID.String()),
		zap.String("tx_hash", receipt))
	s.publish(notify.EventCertificateAnchored, cert)
}

// archiveCertificate renders the issued certificate to PDF and uploads it to
// the archive bucket. Failures are logged and swallowed: the archive copy is
// a convenience, not part of the integrity chain.
func (s *service) archiveCertificate(ctx context.Context, cert *Certificate) {
	if s.archive == nil {
		return
	}
	pdfBytes, err := s.renderCertificatePDF(ctx, cert)
	if err != nil {
		s.logger.Warn("failed to render certificate pdf for archive",
			zap.String("certificate_id", cert.ID.String()), zap.Error(err))
		return
	}
	key := fmt.Sprintf("certificates/%s/%s.pdf", cert.InstitutionID, cert.ID)
	if _, err := s.archive.Upload(ctx, key, bytes.NewReader(pdfBytes), "application/pdf"); err != nil {
		s.logger.Warn("failed to archive certificate pdf",
			zap.String("certificate_id", cert.ID.String()), zap.Error(err))
		return
	}
	cert.ArchiveKey = key
	if err := s.repo.UpdateArchiveKey(ctx, cert.ID, key); err != nil {
		s.logger.Warn("failed to record archive key",
			zap.String("certificate_id", cert.ID.String()), zap.Error(err))
	}
}

func (s *service) Get(ctx context.Context, institutionID, id uuid.UUID) (*Certificate, error) {
	cert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cert == nil || cert.InstitutionID != institutionID {
		return nil, ErrNotFound
	}
	return cert, nil
}

func (s *service) List(ctx context.Context, institutionID uuid.UUID, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset := (page - 1) * limit

	certs, total, err := s.repo.ListByInstitution(ctx, institutionID, offset, limit)
	if err != nil {
		return nil, err
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &Page{
		Certificates: certs,
		CurrentPage:  page,
		TotalPages:   totalPages,
		TotalCount:   total,
		Limit:        limit,
		HasNext:      page < totalPages,
		HasPrev:      page > 1,
	}, nil
}

// BatchAnchor folds every pending certificate of the institution into a
// single Merkle root and anchors that root in one ledger write. Rows covered
// by a confirmed root move to the batched state and carry the root in their
// anchor detail.
func (s *service) BatchAnchor(ctx context.Context, institutionID uuid.UUID) (*BatchAnchorResult, error) {
	pending, err := s.repo.ListPendingByInstitution(ctx, institutionID, s.batchLimit)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, ErrNothingPending
	}

	leaves := make([]integrity.Fingerprint, 0, len(pending))
	for _, cert := range pending {
		fp, err := integrity.ParseFingerprintHex(cert.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("stored fingerprint for certificate %s is malformed: %w", cert.ID, err)
		}
		leaves = append(leaves, fp)
	}
	root := integrity.BatchRoot(leaves)

	start := time.Now()
	receipt, err := s.chain.Anchor(ctx, root)
	elapsed := time.Since(start)

	result := &BatchAnchorResult{Root: root.Hex(), Count: len(pending)}
	var detail anchorDetail
	var anchoredAt time.Time
	switch {
	case err == nil:
		s.metrics.AnchorSubmission(metrics.AnchorOutcomeAnchored, elapsed)
		result.Receipt = receipt.TxHash
		result.Batched = true
		detail = anchorDetail{TxHash: receipt.TxHash, Ledger: receipt.Ledger, BatchRoot: root.Hex()}
		anchoredAt = receipt.AnchoredAt
	case errors.Is(err, ledger.ErrAlreadyAnchored):
		s.metrics.AnchorSubmission(metrics.AnchorOutcomeExisting, elapsed)
		result.Batched = true
		result.Existing = true
		detail = anchorDetail{BatchRoot: root.Hex(), Note: "batch root already present on ledger"}
		anchoredAt = time.Now().UTC()
	default:
		s.metrics.AnchorSubmission(metrics.AnchorOutcomeForError(err), elapsed)
		s.logger.Warn("batch anchor failed",
			zap.String("institution_id", institutionID.String()),
			zap.Int("count", len(pending)), zap.Error(err))
		return nil, err
	}

	raw, merr := json.Marshal(detail)
	if merr != nil {
		raw = nil
	}
	for i := range pending {
		cert := &pending[i]
		if err := s.repo.UpdateAnchorState(ctx, cert.ID, AnchorBatched, result.Receipt, raw, &anchoredAt); err != nil {
			s.logger.Warn("failed to mark certificate batched",
				zap.String("certificate_id", cert.ID.String()), zap.Error(err))
			continue
		}
		cert.AnchorStatus = AnchorBatched
		cert.AnchorReceipt = result.Receipt
		cert.AnchoredAt = &anchoredAt
		s.publish(notify.EventCertificateBatched, cert)
	}
	s.logger.Info("batch anchored",
		zap.String("institution_id", institutionID.String()),
		zap.String("root", result.Root),
		zap.Int("count", result.Count))
	return result, nil
}

func (s *service) publish(eventType string, cert *Certificate) {
	if s.events == nil {
		return
	}
	s.events.Publish(notify.Event{
		Type:          eventType,
		CertificateID: cert.ID.String(),
		Fingerprint:   cert.Fingerprint,
		Status:        string(cert.AnchorStatus),
		Receipt:       cert.AnchorReceipt,
		At:            time.Now().UTC(),
	})
}
