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

// retryTargetStatuses are the member states a retry-of-import picks up.
var retryTargetStatuses = []domain.ActivationStatus{
	domain.StatusSMSFailed,
	domain.StatusEmailFailed,
	domain.StatusPendingActivation,
	domain.StatusTokenExpired,
}

// PartialImportRecovery describes what an import achieved.
type PartialImportRecovery struct {
	ImportID       string               `json:"importId"`
	Status         domain.ImportStatus  `json:"status"`
	TotalRows      int                  `json:"totalRows"`
	SuccessfulRows int                  `json:"successfulRows"`
	FailedRows     int                  `json:"failedRows"`
	SkippedRows    int                  `json:"skippedRows"`
	Errors         []domain.ImportError `json:"errors"`
	// SuccessfulMembers are the members that already progressed past
	// pending_activation.
	SuccessfulMembers []MemberListItem `json:"successfulMembers"`
}

// RecoveryCheck reports whether an import can be retried.
type RecoveryCheck struct {
	CanRecover    bool   `json:"canRecover"`
	Reason        string `json:"reason"`
	FailedMembers int    `json:"failedMembers"`
}

// RetryImportResult reports a retry-of-import run.
type RetryImportResult struct {
	ImportOperation *domain.ImportOperation `json:"importOperation"`
	Statistics      domain.ImportStatistics `json:"statistics"`
	Errors          []domain.ImportError    `json:"errors"`
}

// RecoveryDependencies groups what the recovery service needs.
type RecoveryDependencies struct {
	Members       repository.MemberRepository
	Imports       repository.ImportOperationRepository
	Notifications *NotificationService
	Reporter      *ErrorReporter
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
	BcryptCost    int
	Now           func() time.Time
}

// RecoveryService inspects partially successful imports and re-runs delivery
// for their unactivated members.
type RecoveryService struct {
	members       repository.MemberRepository
	imports       repository.ImportOperationRepository
	notifications *NotificationService
	reporter      *ErrorReporter
	audit         auditor
	logger        *zap.Logger
	bcryptCost    int
	now           func() time.Time
}

// NewRecoveryService builds the service.
func NewRecoveryService(deps RecoveryDependencies) *RecoveryService {
	logger := orNop(deps.Logger)
	return &RecoveryService{
		members:       deps.Members,
		imports:       deps.Imports,
		notifications: deps.Notifications,
		reporter:      deps.Reporter,
		audit:         newAuditor(deps.Dispatcher, logger),
		logger:        logger,
		bcryptCost:    deps.BcryptCost,
		now:           orNow(deps.Now),
	}
}

func (s *RecoveryService) loadImport(ctx context.Context, importID string) (*domain.ImportOperation, error) {
	op, err := s.imports.GetByID(ctx, importID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.Format(apperrors.CodeImportNotFound, importID)
	}
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "load import operation").WithCause(err)
	}
	return op, nil
}

// GetPartialImportRecovery counts members of the import that moved past
// pending_activation as successful.
func (s *RecoveryService) GetPartialImportRecovery(ctx context.Context, importID string) (*PartialImportRecovery, error) {
	op, err := s.loadImport(ctx, importID)
	if err != nil {
		return nil, err
	}
	members, err := s.members.ListByImport(ctx, importID, nil)
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "list import members").WithCause(err)
	}
	successful := make([]MemberListItem, 0, len(members))
	for i := range members {
		if members[i].ActivationStatus != domain.StatusPendingActivation {
			successful = append(successful, maskMember(&members[i]))
		}
	}
	return &PartialImportRecovery{
		ImportID:          op.ID,
		Status:            op.Status,
		TotalRows:         op.TotalRows,
		SuccessfulRows:    len(successful),
		FailedRows:        op.FailedImports,
		SkippedRows:       op.SkippedRows,
		Errors:            op.ImportErrors,
		SuccessfulMembers: successful,
	}, nil
}

// ValidateRecoveryPossible never returns an error; lookup failures become a
// negative check.
func (s *RecoveryService) ValidateRecoveryPossible(ctx context.Context, importID string) RecoveryCheck {
	op, err := s.loadImport(ctx, importID)
	if err != nil {
		return RecoveryCheck{Reason: apperrors.ToDomainError(err).Message}
	}
	failed, err := s.members.ListByImport(ctx, importID, []domain.ActivationStatus{domain.StatusSMSFailed, domain.StatusEmailFailed})
	if err != nil {
		return RecoveryCheck{Reason: "could not load import members"}
	}
	if op.Status == domain.ImportStatusCompleted && op.FailedImports == 0 && len(failed) == 0 {
		return RecoveryCheck{Reason: "import completed without failures"}
	}
	return RecoveryCheck{
		CanRecover:    true,
		Reason:        fmt.Sprintf("%d failed rows, %d members with failed notifications", op.FailedImports, len(failed)),
		FailedMembers: len(failed),
	}
}

// RetryFailedImport regenerates credentials for the import's unactivated
// members and sends them again under a new import operation. The original
// operation is left as it was.
func (s *RecoveryService) RetryFailedImport(ctx context.Context, importID string, actor domain.Actor) (*RetryImportResult, error) {
	original, err := s.loadImport(ctx, importID)
	if err != nil {
		return nil, err
	}
	targets, err := s.members.ListByImport(ctx, importID, retryTargetStatuses)
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "list import members").WithCause(err)
	}

	op := &domain.ImportOperation{
		AdminID:     actor.ID,
		AdminName:   actor.Name,
		CSVFileName: original.CSVFileName + " (Retry)",
		TotalRows:   len(targets),
		Status:      domain.ImportStatusPending,
	}
	if err := s.imports.Create(ctx, op); err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "create import operation").WithCause(err)
	}

	result := &RetryImportResult{ImportOperation: op}
	stats := domain.ImportStatistics{TotalRows: len(targets)}

	for i := range targets {
		member := &targets[i]
		if err := ctx.Err(); err != nil {
			interrupted := apperrors.Format(apperrors.CodeOperationInterrupted, op.ID, i, len(targets)).WithCause(err)
			s.reporter.Report(context.WithoutCancel(ctx), interrupted, ErrorContext{ImportID: op.ID, ActorID: actor.ID})
			result.Statistics = stats
			return result, interrupted
		}
		ec := ErrorContext{ImportID: op.ID, MemberID: member.MemberID, ActorID: actor.ID}

		if !member.HasContact(domain.ChannelSMS) {
			s.record(ctx, result, ec, apperrors.Format(apperrors.CodeNoPhoneOnFile, member.MemberID))
			stats.SkippedRows++
			continue
		}

		cred, err := auth.NewTemporaryCredential(s.now(), s.bcryptCost)
		if err != nil {
			s.record(ctx, result, ec, apperrors.Format(apperrors.CodeAccountCreationFailed, member.MemberID).WithCause(err))
			stats.FailedImports++
			continue
		}
		if err := s.members.RotateTemporaryCredential(ctx, member.ID, cred.Hash, cred.ExpiresAt, false); err != nil {
			s.record(ctx, result, ec, apperrors.Format(apperrors.CodeDatabaseError, "rotate temporary credential").WithCause(err))
			stats.FailedImports++
			continue
		}
		hash, expires := cred.Hash, cred.ExpiresAt
		member.TemporaryPasswordHash = &hash
		member.TemporaryPasswordExpires = &expires

		dispatch := s.notifications.SendSMSAndLog(ctx, DispatchRequest{
			MemberID:          member.ID,
			Member:            member,
			ActorID:           actor.ID,
			TemporaryPassword: cred.Plaintext,
			TrackImportID:     op.ID,
		})
		if !dispatch.Success {
			stats.SMSFailedCount++
			stats.FailedImports++
			s.record(ctx, result, ec, dispatch.Failure(member.MemberID))
			continue
		}

		stats.SMSSentCount++
		stats.SuccessfulImports++
		if member.ActivationStatus != domain.StatusPendingActivation && domain.CanTransition(member.ActivationStatus, domain.StatusPendingActivation) {
			if err := s.members.TransitionStatus(ctx, member.ID, member.ActivationStatus, domain.StatusPendingActivation); err != nil {
				s.logger.Warn("status not restored", zap.String("member_id", member.MemberID), zap.Error(err))
			}
		}
	}

	completedAt := s.now()
	if err := s.imports.Finalize(ctx, op.ID, stats, completedAt); err != nil {
		s.logger.Error("import operation not finalized", zap.String("import_id", op.ID), zap.Error(err))
	}
	if fresh, err := s.imports.GetByID(ctx, op.ID); err == nil {
		result.ImportOperation = fresh
	}
	result.Statistics = stats

	s.audit.record(ctx, actor.ID, domain.ActionImportRetried,
		fmt.Sprintf("Retried import %s: %d of %d members notified", importID, stats.SuccessfulImports, stats.TotalRows),
		map[string]any{
			"originalImportId": importID,
			"importId":         op.ID,
			"totalRows":        stats.TotalRows,
			"successful":       stats.SuccessfulImports,
			"failed":           stats.FailedImports,
			"skipped":          stats.SkippedRows,
		})
	return result, nil
}

func (s *RecoveryService) record(ctx context.Context, result *RetryImportResult, ec ErrorContext, err *apperrors.DomainError) {
	result.Errors = append(result.Errors, domain.ImportError{
		MemberID:     ec.MemberID,
		ErrorMessage: err.Message,
		ErrorCode:    err.Code,
	})
	s.reporter.Report(ctx, err, ec)
}
