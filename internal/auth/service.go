package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrValidation         = errors.New("invalid registration data")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const minPasswordLength = 8

// Claims is the JWT payload: subject is the account id, account_type the
// caller role.
type Claims struct {
	AccountType AccountType `json:"account_type"`
	jwt.RegisteredClaims
}

// Config carries the token signing material.
type Config struct {
	JWTSecret []byte
	TokenTTL  time.Duration
}

// Service registers and authenticates institutions and verifiers.
type Service interface {
	RegisterInstitution(ctx context.Context, req RegisterRequest) (*Institution, error)
	RegisterVerifier(ctx context.Context, req RegisterRequest) (*Verifier, error)
	LoginInstitution(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	LoginVerifier(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	ParseToken(raw string) (*Claims, error)
}

type service struct {
	repo     Repository
	secret   []byte
	tokenTTL time.Duration
	logger   *zap.Logger
}

func NewService(repo Repository, cfg Config, logger *zap.Logger) (Service, error) {
	if len(cfg.JWTSecret) == 0 {
		return nil, errors.New("auth config: jwt secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{repo: repo, secret: cfg.JWTSecret, tokenTTL: cfg.TokenTTL, logger: logger}, nil
}

func (s *service) RegisterInstitution(ctx context.Context, req RegisterRequest) (*Institution, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}
	email := normalizeEmail(req.Email)
	existing, err := s.repo.GetInstitutionByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing institution: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	inst := &Institution{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.repo.CreateInstitution(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to create institution: %w", err)
	}
	s.logger.Info("institution registered", zap.String("institution_id", inst.ID.String()))
	return inst, nil
}

func (s *service) RegisterVerifier(ctx context.Context, req RegisterRequest) (*Verifier, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}
	email := normalizeEmail(req.Email)
	existing, err := s.repo.GetVerifierByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing verifier: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	v := &Verifier{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := s.repo.CreateVerifier(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to create verifier: %w", err)
	}
	s.logger.Info("verifier registered", zap.String("verifier_id", v.ID.String()))
	return v, nil
}

func (s *service) LoginInstitution(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	inst, err := s.repo.GetInstitutionByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, fmt.Errorf("failed to load institution: %w", err)
	}
	if inst == nil || bcrypt.CompareHashAndPassword([]byte(inst.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issueToken(inst.ID, AccountInstitution)
}

func (s *service) LoginVerifier(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	v, err := s.repo.GetVerifierByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		return nil, fmt.Errorf("failed to load verifier: %w", err)
	}
	if v == nil || bcrypt.CompareHashAndPassword([]byte(v.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issueToken(v.ID, AccountVerifier)
}

// ParseToken validates a bearer token and returns its claims. Any parse or
// validation failure maps to ErrInvalidToken; callers never learn why a
// token was rejected.
func (s *service) ParseToken(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *service) issueToken(id uuid.UUID, accountType AccountType) (*TokenResponse, error) {
	now := time.Now()
	expires := now.Add(s.tokenTTL)
	claims := Claims{
		AccountType: accountType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			Issuer:    "academia-veritas",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &TokenResponse{Token: signed, ExpiresAt: expires, AccountType: accountType}, nil
}

func validateRegistration(req RegisterRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return fmt.Errorf("%w: email address is malformed", ErrValidation)
	}
	if len(req.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
