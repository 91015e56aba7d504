package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/config"
	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/repository"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

// AuthService coordinates admin login.
type AuthService struct {
	admins     repository.AdminRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, admins repository.AdminRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{
		admins:     admins,
		tokenMgr:   tokens,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// Login authenticates an admin and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.Admin, string, time.Time, error) {
	admin, err := s.admins.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", time.Time{}, apperrors.Format(apperrors.CodeInvalidCredentials)
	}
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if !admin.Active {
		return nil, "", time.Time{}, apperrors.NewForbidden("admin inactive")
	}
	if err := auth.ComparePassword(admin.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.Format(apperrors.CodeInvalidCredentials)
	}
	token, exp, err := s.tokenMgr.GenerateToken(admin.ID, domain.SubjectTypeAdmin)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return admin, token, exp, nil
}

// BootstrapAdmin creates the first admin when none exists with that email.
func (s *AuthService) BootstrapAdmin(ctx context.Context, name, email, password string) (*domain.Admin, bool, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, false, nil
	}
	existing, err := s.admins.GetByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, false, err
	}
	admin := &domain.Admin{Name: name, Email: email, PasswordHash: hash, Active: true}
	if err := s.admins.Create(ctx, admin); err != nil {
		return nil, false, err
	}
	return admin, true, nil
}
