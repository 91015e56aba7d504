package service

import (
	"context"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/events"
	"github.com/spec-kit/coop-member-import/internal/repository"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

// MinPasswordLength applies to permanent passwords chosen at activation.
const MinPasswordLength = 8

// ActivationDependencies groups what the activation service needs.
type ActivationDependencies struct {
	Members    repository.MemberRepository
	Tokens     *auth.TokenManager
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	BcryptCost int
	Now        func() time.Time
}

// ActivationService converts a temporary credential into a permanent password.
type ActivationService struct {
	members    repository.MemberRepository
	tokens     *auth.TokenManager
	audit      auditor
	logger     *zap.Logger
	bcryptCost int
	now        func() time.Time
}

// NewActivationService builds the service.
func NewActivationService(deps ActivationDependencies) *ActivationService {
	logger := orNop(deps.Logger)
	return &ActivationService{
		members:    deps.Members,
		tokens:     deps.Tokens,
		audit:      newAuditor(deps.Dispatcher, logger),
		logger:     logger,
		bcryptCost: deps.BcryptCost,
		now:        orNow(deps.Now),
	}
}

func invalidCredentials() error {
	return apperrors.Format(apperrors.CodeInvalidCredentials)
}

// VerifyTemporaryCredential checks a member's temporary password. An expired
// credential moves the member to token_expired.
func (s *ActivationService) VerifyTemporaryCredential(ctx context.Context, memberID, password string) (*domain.Member, error) {
	member, err := s.members.GetByMemberID(ctx, strings.TrimSpace(memberID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "load member").WithCause(err)
	}
	if err := s.checkCredentialUsable(ctx, member); err != nil {
		return nil, err
	}
	if !auth.VerifyPassword(password, *member.TemporaryPasswordHash) {
		return nil, invalidCredentials()
	}
	return member, nil
}

func (s *ActivationService) checkCredentialUsable(ctx context.Context, member *domain.Member) error {
	if member.ActivationStatus == domain.StatusActivated {
		return apperrors.Format(apperrors.CodeAlreadyActivated, member.MemberID)
	}
	if member.TemporaryPasswordHash == nil || member.TemporaryPasswordExpires == nil {
		return invalidCredentials()
	}
	if member.TemporaryCredentialExpired(s.now()) {
		s.expire(ctx, member)
		return apperrors.Format(apperrors.CodeCredentialExpired, member.MemberID)
	}
	return nil
}

func (s *ActivationService) expire(ctx context.Context, member *domain.Member) {
	if member.ActivationStatus == domain.StatusTokenExpired || !domain.CanTransition(member.ActivationStatus, domain.StatusTokenExpired) {
		return
	}
	if err := s.members.TransitionStatus(ctx, member.ID, member.ActivationStatus, domain.StatusTokenExpired); err != nil {
		s.logger.Warn("expiry not stored", zap.String("member_id", member.MemberID), zap.Error(err))
		return
	}
	member.ActivationStatus = domain.StatusTokenExpired
}

// ActivateWithTemporaryPassword activates a member who received the SMS invitation.
func (s *ActivationService) ActivateWithTemporaryPassword(ctx context.Context, memberID, tempPassword, newPassword string) (*domain.Member, error) {
	if err := validateNewPassword(newPassword); err != nil {
		return nil, err
	}
	member, err := s.VerifyTemporaryCredential(ctx, memberID, tempPassword)
	if err != nil {
		return nil, err
	}
	return s.activate(ctx, member, newPassword, domain.ActivationMethodSMS)
}

// ActivateWithEmailToken activates a member from an email activation link.
// Links issued before the latest credential rotation are rejected.
func (s *ActivationService) ActivateWithEmailToken(ctx context.Context, token, newPassword string) (*domain.Member, error) {
	if err := validateNewPassword(newPassword); err != nil {
		return nil, err
	}
	claims, err := s.tokens.ParseActivationToken(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Format(apperrors.CodeCredentialExpired, "")
		}
		return nil, invalidCredentials()
	}

	member, err := s.members.GetByID(ctx, claims.MemberID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "load member").WithCause(err)
	}
	if err := s.checkCredentialUsable(ctx, member); err != nil {
		return nil, err
	}
	rotatedAt := member.TemporaryPasswordExpires.Add(-auth.TemporaryPasswordTTL).Add(-time.Second)
	if claims.IssuedAt == nil || claims.IssuedAt.Time.Before(rotatedAt) {
		return nil, invalidCredentials()
	}
	return s.activate(ctx, member, newPassword, domain.ActivationMethodEmail)
}

func (s *ActivationService) activate(ctx context.Context, member *domain.Member, newPassword string, method domain.ActivationMethod) (*domain.Member, error) {
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	at := s.now()
	if err := s.members.Activate(ctx, member.ID, hash, method, at); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.Format(apperrors.CodeAlreadyActivated, member.MemberID)
		}
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "activate member").WithCause(err)
	}

	member.ActivationStatus = domain.StatusActivated
	member.ActivationMethod = &method
	member.PermanentPasswordHash = hash
	member.TemporaryPasswordHash = nil
	member.TemporaryPasswordExpires = nil
	member.ActivatedAt = &at
	member.LastPasswordChangeAt = &at

	meta := map[string]any{"memberId": member.MemberID, "method": string(method)}
	s.audit.record(ctx, member.ID, domain.ActionPasswordChanged, "Member set a permanent password", meta)
	s.audit.record(ctx, member.ID, domain.ActionMemberActivated, "Member account activated", meta)
	return member, nil
}

func validateNewPassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperrors.NewValidationError("password must be at least 8 characters", map[string]any{"min_length": MinPasswordLength})
	}
	return nil
}
