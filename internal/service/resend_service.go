package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/events"
	"github.com/spec-kit/coop-member-import/internal/repository"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

// ResendResult reports one resend.
type ResendResult struct {
	Success   bool      `json:"success"`
	MemberID  string    `json:"memberId"`
	Channel   string    `json:"channel"`
	ExpiresAt time.Time `json:"expiresAt"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
}

// ResendDependencies groups what the resend service needs.
type ResendDependencies struct {
	Members       repository.MemberRepository
	Notifications *NotificationService
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	BcryptCost    int
	Now           func() time.Time
}

// ResendService issues a fresh credential to a pending member and sends it again.
type ResendService struct {
	members       repository.MemberRepository
	notifications *NotificationService
	audit         auditor
	logger        *zap.Logger
	bcryptCost    int
	now           func() time.Time
}

// NewResendService builds the service.
func NewResendService(deps ResendDependencies) *ResendService {
	logger := orNop(deps.Logger)
	return &ResendService{
		members:       deps.Members,
		notifications: deps.Notifications,
		audit:         newAuditor(deps.Dispatcher, logger),
		logger:        logger,
		bcryptCost:    deps.BcryptCost,
		now:           orNow(deps.Now),
	}
}

// checkEligible returns a precondition error or nil.
func checkEligible(member *domain.Member, channel domain.Channel) *apperrors.DomainError {
	if !member.IsImported() {
		return apperrors.Format(apperrors.CodeNotImportedMember, member.MemberID)
	}
	if member.ActivationStatus != domain.StatusPendingActivation {
		return apperrors.Format(apperrors.CodeIneligibleStatus, member.MemberID, string(member.ActivationStatus))
	}
	if !member.HasContact(channel) {
		if channel == domain.ChannelEmail {
			return apperrors.Format(apperrors.CodeNoEmailOnFile, member.MemberID)
		}
		return apperrors.Format(apperrors.CodeNoPhoneOnFile, member.MemberID)
	}
	return nil
}

// Resend rotates the member's temporary credential and dispatches it on channel.
// Precondition failures are returned as errors and leave the member untouched.
// The credential stays rotated when delivery fails.
func (s *ResendService) Resend(ctx context.Context, memberID string, actor domain.Actor, channel domain.Channel) (*ResendResult, error) {
	if !channel.Valid() {
		return nil, apperrors.Format(apperrors.CodeInvalidChannel, string(channel))
	}
	member, err := s.members.GetByID(ctx, memberID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.Format(apperrors.CodeMemberNotFound, memberID)
	}
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "load member").WithCause(err)
	}
	if de := checkEligible(member, channel); de != nil {
		return nil, de
	}

	cred, err := auth.NewTemporaryCredential(s.now(), s.bcryptCost)
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeAccountCreationFailed, member.MemberID).WithCause(err)
	}
	if err := s.members.RotateTemporaryCredential(ctx, member.ID, cred.Hash, cred.ExpiresAt, true); err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "rotate temporary credential").WithCause(err)
	}
	hash, expires := cred.Hash, cred.ExpiresAt
	member.TemporaryPasswordHash = &hash
	member.TemporaryPasswordExpires = &expires
	member.SMSSentAt = nil
	member.EmailSentAt = nil

	dispatch := s.notifications.SendAndLog(ctx, channel, DispatchRequest{
		MemberID:          member.ID,
		Member:            member,
		ActorID:           actor.ID,
		TemporaryPassword: cred.Plaintext,
	})

	result := &ResendResult{
		Success:   dispatch.Success,
		MemberID:  member.MemberID,
		Channel:   string(channel),
		ExpiresAt: cred.ExpiresAt,
		Code:      dispatch.Code,
		Message:   dispatch.Message,
	}
	if dispatch.Success {
		s.audit.record(ctx, actor.ID, domain.ActionInvitationResent,
			fmt.Sprintf("Invitation resent by %s", channel),
			map[string]any{"memberId": member.MemberID, "channel": string(channel), "expiresAt": cred.ExpiresAt})
	}
	return result, nil
}

// BulkResend resends to each internal member id in order. Ineligible members
// are skipped, delivery failures are counted as failed.
func (s *ResendService) BulkResend(ctx context.Context, memberIDs []string, actor domain.Actor, channel domain.Channel) (*BulkSummary, error) {
	if !channel.Valid() {
		return nil, apperrors.Format(apperrors.CodeInvalidChannel, string(channel))
	}
	summary := &BulkSummary{Total: len(memberIDs), Details: make([]BulkDetail, 0, len(memberIDs))}

	for i, id := range memberIDs {
		if err := ctx.Err(); err != nil {
			summary.interrupt(memberIDs[i:], err)
			return summary, err
		}
		res, err := s.Resend(ctx, id, actor, channel)
		switch {
		case err != nil:
			de := apperrors.ToDomainError(err)
			status := BulkStatusSkipped
			if de.HTTPStatus >= 500 {
				status = BulkStatusFailed
			}
			summary.add(BulkDetail{MemberID: id, Status: status, Code: de.Code, Reason: de.Message})
		case res.Success:
			summary.add(BulkDetail{MemberID: res.MemberID, Status: BulkStatusSuccess})
		default:
			summary.add(BulkDetail{MemberID: res.MemberID, Status: BulkStatusFailed, Code: res.Code, Reason: res.Message})
		}
	}

	s.audit.record(ctx, actor.ID, domain.ActionBulkResend,
		fmt.Sprintf("Bulk %s resend: %d succeeded, %d failed, %d skipped", channel, summary.Successful, summary.Failed, summary.Skipped),
		map[string]any{
			"channel":    string(channel),
			"total":      summary.Total,
			"successful": summary.Successful,
			"failed":     summary.Failed,
			"skipped":    summary.Skipped,
		})
	return summary, nil
}
