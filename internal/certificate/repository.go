package certificate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"academia-veritas/registry-backend/internal/integrity"
)

// Repository handles certificate persistence.
type Repository interface {
	Create(ctx context.Context, cert *Certificate) error
	GetByID(ctx context.Context, id uuid.UUID) (*Certificate, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*Certificate, error)
	FindByFields(ctx context.Context, fields integrity.CertificateFields) (*Certificate, error)
	ListByInstitution(ctx context.Context, institutionID uuid.UUID, offset, limit int) ([]Certificate, int64, error)
	ListAllByInstitution(ctx context.Context, institutionID uuid.UUID) ([]Certificate, error)
	ListPendingByInstitution(ctx context.Context, institutionID uuid.UUID, limit int) ([]Certificate, error)
	UpdateAnchorState(ctx context.Context, id uuid.UUID, status AnchorStatus, receipt string, detail datatypes.JSON, anchoredAt *time.Time) error
	UpdateArchiveKey(ctx context.Context, id uuid.UUID, key string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a new certificate repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, cert *Certificate) error {
	if err := r.db.WithContext(ctx).Create(cert).Error; err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	return nil
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Certificate, error) {
	var cert Certificate
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&cert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}
	return &cert, nil
}

func (r *gormRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*Certificate, error) {
	var cert Certificate
	err := r.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&cert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get certificate by fingerprint: %w", err)
	}
	return &cert, nil
}

// FindByFields looks a certificate up by its canonical natural key. The
// stored columns keep the issuer's original casing, so the comparison
// lowercases and trims on both sides. When several rows match (the same
// record re-issued over time) the most recent issuance wins.
func (r *gormRepository) FindByFields(ctx context.Context, fields integrity.CertificateFields) (*Certificate, error) {
	canonical, err := integrity.Canonicalize(fields)
	if err != nil {
		return nil, err
	}
	var cert Certificate
	err = r.db.WithContext(ctx).
		Where("LOWER(TRIM(student_name)) = ?", canonical.StudentName).
		Where("LOWER(TRIM(roll_number)) = ?", canonical.RollNumber).
		Where("LOWER(TRIM(course_name)) = ?", canonical.CourseName).
		Where("LOWER(TRIM(grade)) = ?", canonical.Grade).
		Where("issue_date = ?", canonical.IssueDate).
		Order("created_at DESC").
		First(&cert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find certificate by fields: %w", err)
	}
	return &cert, nil
}

func (r *gormRepository) ListByInstitution(ctx context.Context, institutionID uuid.UUID, offset, limit int) ([]Certificate, int64, error) {
	var total int64
	query := r.db.WithContext(ctx).Model(&Certificate{}).Where("institution_id = ?", institutionID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count certificates: %w", err)
	}

	var certs []Certificate
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&certs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list certificates: %w", err)
	}
	return certs, total, nil
}

func (r *gormRepository) ListAllByInstitution(ctx context.Context, institutionID uuid.UUID) ([]Certificate, error) {
	var certs []Certificate
	err := r.db.WithContext(ctx).
		Where("institution_id = ?", institutionID).
		Order("created_at ASC").
		Find(&certs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	return certs, nil
}

// ListPendingByInstitution returns unanchored rows oldest-first so a batch
// digest built from them folds the leaves in a stable order.
func (r *gormRepository) ListPendingByInstitution(ctx context.Context, institutionID uuid.UUID, limit int) ([]Certificate, error) {
	var certs []Certificate
	err := r.db.WithContext(ctx).
		Where("institution_id = ? AND anchor_status = ?", institutionID, AnchorPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&certs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending certificates: %w", err)
	}
	return certs, nil
}

func (r *gormRepository) UpdateAnchorState(ctx context.Context, id uuid.UUID, status AnchorStatus, receipt string, detail datatypes.JSON, anchoredAt *time.Time) error {
	updates := map[string]interface{}{
		"anchor_status":  status,
		"anchor_receipt": receipt,
		"anchored_at":    anchoredAt,
	}
	if detail != nil {
		updates["anchor_detail"] = detail
	}
	err := r.db.WithContext(ctx).Model(&Certificate{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update anchor state: %w", err)
	}
	return nil
}

func (r *gormRepository) UpdateArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	err := r.db.WithContext(ctx).Model(&Certificate{}).Where("id = ?", id).
		Update("archive_key", key).Error
	if err != nil {
		return fmt.Errorf("failed to update archive key: %w", err)
	}
	return nil
}
