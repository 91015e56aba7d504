package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/events"
	"github.com/spec-kit/coop-member-import/internal/repository"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

// RetryPolicy bounds automatic notification retries.
type RetryPolicy struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	BulkMemberDelay time.Duration
}

// DefaultRetryPolicy is three attempts with 1s..60s exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		BulkMemberDelay: 100 * time.Millisecond,
	}
}

// Backoff returns min(base * 2^n, max).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	delay := p.BaseDelay
	for i := 0; i < n; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// RetryRequest is one retry attempt on a single member.
type RetryRequest struct {
	Channel domain.Channel
	// MemberID is the internal member id.
	MemberID          string
	ActorID           string
	TemporaryPassword string
	Manual            bool
}

// RetryResult reports a retry attempt.
type RetryResult struct {
	Success            bool          `json:"success"`
	MemberID           string        `json:"memberId"`
	Channel            string        `json:"channel"`
	RetryCount         int           `json:"retryCount"`
	NextRetryDelay     time.Duration `json:"-"`
	MaxRetriesExceeded bool          `json:"maxRetriesExceeded"`
	BackoffActive      bool          `json:"backoffActive"`
	Attempted          bool          `json:"attempted"`
	Code               string        `json:"code,omitempty"`
	Message            string        `json:"message"`
}

// BulkDetail is one member's line in a bulk summary.
type BulkDetail struct {
	MemberID string `json:"memberId"`
	Status   string `json:"status"`
	Code     string `json:"code,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Bulk detail statuses.
const (
	BulkStatusSuccess = "success"
	BulkStatusFailed  = "failed"
	BulkStatusSkipped = "skipped"
)

// BulkSummary aggregates a bulk retry or resend.
type BulkSummary struct {
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Details    []BulkDetail `json:"details"`
}

func (s *BulkSummary) add(detail BulkDetail) {
	switch detail.Status {
	case BulkStatusSuccess:
		s.Successful++
	case BulkStatusFailed:
		s.Failed++
	default:
		s.Skipped++
	}
	s.Details = append(s.Details, detail)
}

// interrupt marks ids that were never processed as skipped so the counts
// still add up to Total.
func (s *BulkSummary) interrupt(remaining []string, cause error) {
	for _, id := range remaining {
		s.add(BulkDetail{
			MemberID: id,
			Status:   BulkStatusSkipped,
			Code:     apperrors.CodeOperationInterrupted,
			Reason:   "not processed: " + cause.Error(),
		})
	}
}

// RetryDependencies groups what the retry service needs.
type RetryDependencies struct {
	Members       repository.MemberRepository
	Notifications *NotificationService
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	Policy        RetryPolicy
	BcryptCost    int
	Now           func() time.Time
}

// RetryService re-sends failed invitations under a bounded backoff policy.
type RetryService struct {
	members       repository.MemberRepository
	notifications *NotificationService
	audit         auditor
	logger        *zap.Logger
	policy        RetryPolicy
	bcryptCost    int
	now           func() time.Time
}

// NewRetryService builds the service.
func NewRetryService(deps RetryDependencies) *RetryService {
	logger := orNop(deps.Logger)
	policy := deps.Policy
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = time.Minute
	}
	return &RetryService{
		members:       deps.Members,
		notifications: deps.Notifications,
		audit:         newAuditor(deps.Dispatcher, logger),
		logger:        logger,
		policy:        policy,
		bcryptCost:    deps.BcryptCost,
		now:           orNow(deps.Now),
	}
}

// Policy returns the active policy.
func (s *RetryService) Policy() RetryPolicy {
	return s.policy
}

// RetrySMS retries the SMS invitation.
func (s *RetryService) RetrySMS(ctx context.Context, memberID, actorID string, manual bool) (*RetryResult, error) {
	return s.Retry(ctx, RetryRequest{Channel: domain.ChannelSMS, MemberID: memberID, ActorID: actorID, Manual: manual})
}

// RetryEmail retries the email invitation.
func (s *RetryService) RetryEmail(ctx context.Context, memberID, actorID string, manual bool) (*RetryResult, error) {
	return s.Retry(ctx, RetryRequest{Channel: domain.ChannelEmail, MemberID: memberID, ActorID: actorID, Manual: manual})
}

// Retry performs one attempt. The ceiling and backoff are reported in the result;
// a missing member or contact is returned as an error.
func (s *RetryService) Retry(ctx context.Context, req RetryRequest) (*RetryResult, error) {
	if !req.Channel.Valid() {
		return nil, apperrors.Format(apperrors.CodeInvalidChannel, string(req.Channel))
	}
	member, err := s.members.GetByID(ctx, req.MemberID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.Format(apperrors.CodeMemberNotFound, req.MemberID)
	}
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "load member").WithCause(err)
	}
	return s.retryMember(ctx, member, req)
}

func (s *RetryService) retryMember(ctx context.Context, member *domain.Member, req RetryRequest) (*RetryResult, error) {
	channel := req.Channel
	if !member.HasContact(channel) {
		code := apperrors.CodeNoPhoneOnFile
		if channel == domain.ChannelEmail {
			code = apperrors.CodeNoEmailOnFile
		}
		return nil, apperrors.Format(code, member.MemberID)
	}

	count, lastAttempt := member.RetryState(channel)
	result := &RetryResult{MemberID: member.MemberID, Channel: string(channel), RetryCount: count}

	if count >= s.policy.MaxRetries {
		de := apperrors.Format(apperrors.CodeMaxRetriesExceeded, s.policy.MaxRetries, string(channel), member.MemberID)
		result.MaxRetriesExceeded = true
		result.Code = de.Code
		result.Message = de.Message
		return result, nil
	}

	if !req.Manual && lastAttempt != nil {
		wait := s.policy.Backoff(count)
		if elapsed := s.now().Sub(*lastAttempt); elapsed < wait {
			remaining := wait - elapsed
			de := apperrors.Format(apperrors.CodeBackoffActive, member.MemberID, remaining.Milliseconds())
			result.BackoffActive = true
			result.NextRetryDelay = remaining
			result.Code = de.Code
			result.Message = de.Message
			return result, nil
		}
	}

	password := req.TemporaryPassword
	if channel == domain.ChannelSMS && password == "" {
		cred, err := auth.NewTemporaryCredential(s.now(), s.bcryptCost)
		if err != nil {
			return nil, apperrors.Format(apperrors.CodeAccountCreationFailed, member.MemberID).WithCause(err)
		}
		if err := s.members.RotateTemporaryCredential(ctx, member.ID, cred.Hash, cred.ExpiresAt, false); err != nil {
			return nil, apperrors.Format(apperrors.CodeDatabaseError, "rotate temporary credential").WithCause(err)
		}
		hash, expires := cred.Hash, cred.ExpiresAt
		member.TemporaryPasswordHash = &hash
		member.TemporaryPasswordExpires = &expires
		password = cred.Plaintext
	}

	actorID := req.ActorID
	if actorID == "" {
		actorID = domain.SystemActor.ID
	}
	dispatch := s.notifications.SendAndLog(ctx, channel, DispatchRequest{
		MemberID:          member.ID,
		Member:            member,
		ActorID:           actorID,
		TemporaryPassword: password,
	})
	result.Attempted = !dispatch.PreconditionFailed

	if dispatch.Success {
		if err := s.members.ResetRetry(ctx, member.ID, channel); err != nil {
			s.logger.Warn("retry counter not reset", zap.String("member_id", member.MemberID), zap.Error(err))
		}
		s.restorePending(ctx, member, channel)
		s.audit.record(ctx, actorID, domain.ActionNotificationRetryOK,
			fmt.Sprintf("%s invitation retry succeeded", channel),
			map[string]any{"memberId": member.MemberID, "channel": string(channel), "manual": req.Manual})
		result.Success = true
		result.RetryCount = 0
		result.Message = dispatch.Message
		return result, nil
	}

	if dispatch.PreconditionFailed {
		return nil, apperrors.NewDomainError(dispatch.Code, dispatch.Message, http.StatusUnprocessableEntity, nil)
	}

	newCount, err := s.members.RecordRetryFailure(ctx, member.ID, channel, s.now())
	if err != nil {
		s.logger.Warn("retry failure not recorded", zap.String("member_id", member.MemberID), zap.Error(err))
		newCount = count + 1
	}
	s.audit.record(ctx, actorID, domain.ActionNotificationRetryFail, dispatch.Message, map[string]any{
		"memberId": member.MemberID,
		"channel":  string(channel),
		"attempt":  newCount,
		"error":    dispatch.Message,
		"manual":   req.Manual,
	})
	result.RetryCount = newCount
	result.Code = dispatch.Code
	result.Message = dispatch.Message
	result.MaxRetriesExceeded = newCount >= s.policy.MaxRetries
	if !result.MaxRetriesExceeded {
		result.NextRetryDelay = s.policy.Backoff(newCount)
	}
	return result, nil
}

// restorePending moves the member out of the channel's failed state after a
// successful retry.
func (s *RetryService) restorePending(ctx context.Context, member *domain.Member, channel domain.Channel) {
	if member.ActivationStatus != channel.FailedStatus() {
		return
	}
	if err := s.members.TransitionStatus(ctx, member.ID, member.ActivationStatus, domain.StatusPendingActivation); err != nil {
		s.logger.Warn("status not restored", zap.String("member_id", member.MemberID), zap.Error(err))
		return
	}
	member.ActivationStatus = domain.StatusPendingActivation
}

// RetryFailedNotifications retries a list of members by external member id.
// Members that cannot be attempted are counted as skipped.
func (s *RetryService) RetryFailedNotifications(ctx context.Context, memberIDs []string, channel domain.Channel, actor domain.Actor) (*BulkSummary, error) {
	if !channel.Valid() {
		return nil, apperrors.Format(apperrors.CodeInvalidChannel, string(channel))
	}
	summary := &BulkSummary{Total: len(memberIDs), Details: make([]BulkDetail, 0, len(memberIDs))}

	for i, externalID := range memberIDs {
		if i > 0 {
			if err := sleepWithContext(ctx, s.policy.BulkMemberDelay); err != nil {
				summary.interrupt(memberIDs[i:], err)
				return summary, err
			}
		}
		summary.add(s.retryOne(ctx, externalID, channel, actor))
	}

	s.audit.record(ctx, actor.ID, domain.ActionBulkRetry,
		fmt.Sprintf("Bulk %s retry: %d succeeded, %d failed, %d skipped", channel, summary.Successful, summary.Failed, summary.Skipped),
		map[string]any{
			"channel":    string(channel),
			"total":      summary.Total,
			"successful": summary.Successful,
			"failed":     summary.Failed,
			"skipped":    summary.Skipped,
		})
	return summary, nil
}

func (s *RetryService) retryOne(ctx context.Context, externalID string, channel domain.Channel, actor domain.Actor) BulkDetail {
	member, err := s.members.GetByMemberID(ctx, externalID)
	if errors.Is(err, pgx.ErrNoRows) {
		de := apperrors.Format(apperrors.CodeMemberNotFound, externalID)
		return BulkDetail{MemberID: externalID, Status: BulkStatusSkipped, Code: de.Code, Reason: de.Message}
	}
	if err != nil {
		return BulkDetail{MemberID: externalID, Status: BulkStatusFailed, Code: apperrors.CodeDatabaseError, Reason: err.Error()}
	}

	res, err := s.retryMember(ctx, member, RetryRequest{Channel: channel, MemberID: member.ID, ActorID: actor.ID})
	if err != nil {
		de := apperrors.ToDomainError(err)
		status := BulkStatusSkipped
		if de.HTTPStatus >= 500 {
			status = BulkStatusFailed
		}
		return BulkDetail{MemberID: externalID, Status: status, Code: de.Code, Reason: de.Message}
	}
	switch {
	case res.Success:
		return BulkDetail{MemberID: externalID, Status: BulkStatusSuccess}
	case !res.Attempted:
		return BulkDetail{MemberID: externalID, Status: BulkStatusSkipped, Code: res.Code, Reason: res.Message}
	}
	return BulkDetail{MemberID: externalID, Status: BulkStatusFailed, Code: res.Code, Reason: res.Message}
}
