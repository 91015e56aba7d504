package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/events"
	"github.com/spec-kit/coop-member-import/internal/notify"
	"github.com/spec-kit/coop-member-import/internal/observability"
	"github.com/spec-kit/coop-member-import/internal/repository"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

// DispatchRequest describes one invitation send.
type DispatchRequest struct {
	MemberID string
	// Member may be supplied when the caller already loaded it.
	Member            *domain.Member
	ActorID           string
	TemporaryPassword string
	// TrackImportID selects the import whose sent/failed counters are bumped.
	// Empty means the member's own import.
	TrackImportID string
}

// DispatchResult is the outcome of SendAndLog.
type DispatchResult struct {
	Success            bool
	Message            string
	Timestamp          time.Time
	Code               string
	PreconditionFailed bool
	MessageID          string
}

// Failure rebuilds the catalogued error behind an unsuccessful dispatch.
func (r DispatchResult) Failure(memberID string) *apperrors.DomainError {
	status := http.StatusBadGateway
	if r.PreconditionFailed {
		status = http.StatusUnprocessableEntity
	}
	return apperrors.NewDomainError(r.Code, r.Message, status, map[string]any{"member_id": memberID})
}

// NotificationDependencies groups what the notification service needs.
type NotificationDependencies struct {
	Members    repository.MemberRepository
	Imports    repository.ImportOperationRepository
	SMS        notify.Adapter
	Email      notify.Adapter
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Now        func() time.Time
}

// NotificationService sends invitations and keeps member and import
// bookkeeping in step with the outcome.
type NotificationService struct {
	members repository.MemberRepository
	imports repository.ImportOperationRepository
	sms     notify.Adapter
	email   notify.Adapter
	audit   auditor
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := orNop(deps.Logger)
	return &NotificationService{
		members: deps.Members,
		imports: deps.Imports,
		sms:     deps.SMS,
		email:   deps.Email,
		audit:   newAuditor(deps.Dispatcher, logger),
		logger:  logger,
		metrics: deps.Metrics,
		now:     orNow(deps.Now),
	}
}

// SendSMSAndLog sends the SMS invitation.
func (s *NotificationService) SendSMSAndLog(ctx context.Context, req DispatchRequest) DispatchResult {
	return s.SendAndLog(ctx, domain.ChannelSMS, req)
}

// SendEmailAndLog sends the email invitation.
func (s *NotificationService) SendEmailAndLog(ctx context.Context, req DispatchRequest) DispatchResult {
	return s.SendAndLog(ctx, domain.ChannelEmail, req)
}

// SendAndLog dispatches on channel. Precondition failures return before the
// transport is touched and leave the member unchanged.
func (s *NotificationService) SendAndLog(ctx context.Context, channel domain.Channel, req DispatchRequest) DispatchResult {
	if !channel.Valid() {
		return s.precondition(apperrors.Format(apperrors.CodeInvalidChannel, string(channel)))
	}

	member := req.Member
	if member == nil {
		found, err := s.members.GetByID(ctx, req.MemberID)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.precondition(apperrors.Format(apperrors.CodeMemberNotFound, req.MemberID))
		}
		if err != nil {
			return DispatchResult{
				Message:   err.Error(),
				Code:      apperrors.CodeDatabaseError,
				Timestamp: s.now(),
			}
		}
		member = found
	}
	if !member.HasContact(channel) {
		code := apperrors.CodeNoPhoneOnFile
		if channel == domain.ChannelEmail {
			code = apperrors.CodeNoEmailOnFile
		}
		return s.precondition(apperrors.Format(code, member.MemberID))
	}

	adapter, target := s.sms, member.PhoneNumber
	if channel == domain.ChannelEmail {
		adapter, target = s.email, member.Email
	}

	data := notify.TemplateData{
		MemberID:          member.ID,
		DisplayName:       member.FullName,
		TemporaryPassword: req.TemporaryPassword,
		ExpiresIn:         auth.TemporaryPasswordTTL,
	}
	if member.TemporaryPasswordExpires != nil {
		if remaining := member.TemporaryPasswordExpires.Sub(s.now()); remaining > 0 {
			data.ExpiresIn = remaining.Round(time.Hour)
		}
	}

	trackID := req.TrackImportID
	if trackID == "" && member.ImportID != nil {
		trackID = *member.ImportID
	}
	actorID := req.ActorID
	if actorID == "" {
		actorID = domain.SystemActor.ID
	}

	result := adapter.Send(ctx, target, data)
	sentAt := s.now()
	s.metrics.RecordNotification(string(channel), result.Success)

	if result.Success {
		if err := s.members.MarkSent(ctx, member.ID, channel, sentAt); err != nil {
			s.logger.Warn("sent marker not stored",
				zap.String("member_id", member.MemberID),
				zap.String("channel", string(channel)),
				zap.Error(err))
		}
		s.bump(ctx, trackID, domain.SentCounter(channel))
		s.audit.record(ctx, actorID, domain.SentAction(channel),
			"Invitation sent by "+string(channel),
			map[string]any{
				"memberId":  member.MemberID,
				"messageId": result.ChannelMessageID,
				"importId":  trackID,
			})
		return DispatchResult{
			Success:   true,
			Message:   "invitation sent",
			Timestamp: sentAt,
			MessageID: result.ChannelMessageID,
		}
	}

	reason := "unknown error"
	if result.Err != nil {
		reason = result.Err.Error()
	}
	code := apperrors.CodeSMSSendFailed
	if channel == domain.ChannelEmail {
		code = apperrors.CodeEmailSendFailed
	}
	failure := apperrors.Format(code, member.MemberID, reason)

	s.audit.record(ctx, actorID, domain.FailedAction(channel), failure.Message, map[string]any{
		"memberId": member.MemberID,
		"error":    reason,
		"importId": trackID,
	})
	s.markFailed(ctx, member, channel)
	s.bump(ctx, trackID, domain.FailedCounter(channel))

	return DispatchResult{
		Message:   failure.Message,
		Timestamp: sentAt,
		Code:      code,
	}
}

func (s *NotificationService) precondition(err *apperrors.DomainError) DispatchResult {
	return DispatchResult{
		Message:            err.Message,
		Code:               err.Code,
		PreconditionFailed: true,
		Timestamp:          s.now(),
	}
}

func (s *NotificationService) markFailed(ctx context.Context, member *domain.Member, channel domain.Channel) {
	next := channel.FailedStatus()
	if member.ActivationStatus == next {
		return
	}
	if !domain.CanTransition(member.ActivationStatus, next) {
		s.logger.Warn("status transition rejected",
			zap.String("member_id", member.MemberID),
			zap.String("from", string(member.ActivationStatus)),
			zap.String("to", string(next)))
		return
	}
	if err := s.members.TransitionStatus(ctx, member.ID, member.ActivationStatus, next); err != nil {
		s.logger.Warn("status transition not stored",
			zap.String("member_id", member.MemberID),
			zap.String("to", string(next)),
			zap.Error(err))
		return
	}
	member.ActivationStatus = next
}

func (s *NotificationService) bump(ctx context.Context, importID string, counter domain.ImportCounter) {
	if importID == "" || s.imports == nil {
		return
	}
	if err := s.imports.IncrementCounter(ctx, importID, counter); err != nil {
		s.logger.Warn("import counter not incremented",
			zap.String("import_id", importID),
			zap.String("counter", string(counter)),
			zap.Error(err))
	}
}
