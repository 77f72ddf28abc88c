package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	CreateInstitution(ctx context.Context, inst *Institution) error
	GetInstitutionByEmail(ctx context.Context, email string) (*Institution, error)
	GetInstitutionByID(ctx context.Context, id uuid.UUID) (*Institution, error)

	CreateVerifier(ctx context.Context, v *Verifier) error
	GetVerifierByEmail(ctx context.Context, email string) (*Verifier, error)
	GetVerifierByID(ctx context.Context, id uuid.UUID) (*Verifier, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateInstitution(ctx context.Context, inst *Institution) error {
	return r.db.WithContext(ctx).Create(inst).Error
}

func (r *gormRepository) GetInstitutionByEmail(ctx context.Context, email string) (*Institution, error) {
	var inst Institution
	err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *gormRepository) GetInstitutionByID(ctx context.Context, id uuid.UUID) (*Institution, error) {
	var inst Institution
	err := r.db.WithContext(ctx).First(&inst, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *gormRepository) CreateVerifier(ctx context.Context, v *Verifier) error {
	return r.db.WithContext(ctx).Create(v).Error
}

func (r *gormRepository) GetVerifierByEmail(ctx context.Context, email string) (*Verifier, error) {
	var v Verifier
	err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *gormRepository) GetVerifierByID(ctx context.Context, id uuid.UUID) (*Verifier, error) {
	var v Verifier
	err := r.db.WithContext(ctx).First(&v, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}
