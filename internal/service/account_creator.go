package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/events"
	"github.com/spec-kit/coop-member-import/internal/repository"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

// CreatedMember summarizes one account created by an import.
type CreatedMember struct {
	ID       string `json:"id"`
	MemberID string `json:"memberId"`
	FullName string `json:"fullName"`
	SMSSent  bool   `json:"smsSent"`
}

// NotificationFailure records an invitation that could not be delivered.
type NotificationFailure struct {
	MemberID string `json:"memberId"`
	Channel  string `json:"channel"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// CreateAccountsResult is the outcome of one bulk account creation.
type CreateAccountsResult struct {
	ImportOperation      *domain.ImportOperation `json:"importOperation"`
	CreatedMembers       []CreatedMember         `json:"createdMembers"`
	Statistics           domain.ImportStatistics `json:"statistics"`
	NotificationFailures []NotificationFailure   `json:"notificationFailures"`
	Errors               []domain.ImportError    `json:"errors"`
}

// AccountCreatorDependencies groups what the creator needs.
type AccountCreatorDependencies struct {
	Members          repository.MemberRepository
	Imports          repository.ImportOperationRepository
	Notifications    *NotificationService
	Reporter         *ErrorReporter
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	BcryptCost       int
	PlaceholderEmail string
	Now              func() time.Time
}

// AccountCreator turns validated rows into pending member accounts.
type AccountCreator struct {
	members          repository.MemberRepository
	imports          repository.ImportOperationRepository
	notifications    *NotificationService
	reporter         *ErrorReporter
	audit            auditor
	logger           *zap.Logger
	bcryptCost       int
	placeholderEmail string
	now              func() time.Time
}

// NewAccountCreator builds the creator.
func NewAccountCreator(deps AccountCreatorDependencies) *AccountCreator {
	logger := orNop(deps.Logger)
	placeholder := deps.PlaceholderEmail
	if placeholder == "" {
		placeholder = "no-email.invalid"
	}
	return &AccountCreator{
		members:          deps.Members,
		imports:          deps.Imports,
		notifications:    deps.Notifications,
		reporter:         deps.Reporter,
		audit:            newAuditor(deps.Dispatcher, logger),
		logger:           logger,
		bcryptCost:       deps.BcryptCost,
		placeholderEmail: placeholder,
		now:              orNow(deps.Now),
	}
}

// PlaceholderEmail is the synthetic address stored for a member with no email.
func PlaceholderEmail(memberID, domainName string) string {
	return fmt.Sprintf("member_%s@%s", memberID, domainName)
}

type rowOutcome int

const (
	rowCreated rowOutcome = iota
	rowSkipped
	rowFailed
)

// CreateAccounts processes batch rows in file order. Row-level failures are
// recorded and never abort the batch. A cancelled context leaves the import
// pending and returns the partial result together with the error.
func (c *AccountCreator) CreateAccounts(ctx context.Context, batch domain.ImportBatch, csvFileName string, actor domain.Actor) (*CreateAccountsResult, error) {
	op := &domain.ImportOperation{
		AdminID:     actor.ID,
		AdminName:   actor.Name,
		CSVFileName: csvFileName,
		TotalRows:   len(batch.Rows),
		Status:      domain.ImportStatusPending,
	}
	if err := c.imports.Create(ctx, op); err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "create import operation").WithCause(err)
	}

	result := &CreateAccountsResult{ImportOperation: op}
	stats := domain.ImportStatistics{TotalRows: len(batch.Rows)}

	for i, row := range batch.Rows {
		if err := ctx.Err(); err != nil {
			interrupted := apperrors.Format(apperrors.CodeOperationInterrupted, op.ID, i, len(batch.Rows)).WithCause(err)
			c.reporter.Report(context.WithoutCancel(ctx), interrupted, ErrorContext{ImportID: op.ID, ActorID: actor.ID})
			result.Statistics = stats
			return result, interrupted
		}

		outcome := c.createOne(ctx, op.ID, row, actor, result, &stats)
		switch outcome {
		case rowCreated:
			stats.SuccessfulImports++
		case rowSkipped:
			stats.SkippedRows++
		case rowFailed:
			stats.FailedImports++
		}
	}

	completedAt := c.now()
	if err := c.imports.Finalize(ctx, op.ID, stats, completedAt); err != nil {
		c.logger.Error("import operation not finalized", zap.String("import_id", op.ID), zap.Error(err))
	}
	if fresh, err := c.imports.GetByID(ctx, op.ID); err == nil {
		result.ImportOperation = fresh
	} else {
		op.Status = domain.ImportStatusCompleted
		op.CompletedAt = &completedAt
	}
	result.Statistics = stats

	c.audit.record(ctx, actor.ID, domain.ActionMembersImported,
		fmt.Sprintf("Imported %d of %d members from %s", stats.SuccessfulImports, stats.TotalRows, csvFileName),
		map[string]any{
			"importId":          op.ID,
			"fileName":          csvFileName,
			"totalRows":         stats.TotalRows,
			"successfulImports": stats.SuccessfulImports,
			"failedImports":     stats.FailedImports,
			"skippedRows":       stats.SkippedRows,
			"smsSentCount":      stats.SMSSentCount,
			"smsFailedCount":    stats.SMSFailedCount,
		})

	c.logger.Info("import completed",
		zap.String("import_id", op.ID),
		zap.Int("total", stats.TotalRows),
		zap.Int("successful", stats.SuccessfulImports),
		zap.Int("failed", stats.FailedImports),
		zap.Int("skipped", stats.SkippedRows))
	return result, nil
}

func (c *AccountCreator) createOne(ctx context.Context, importID string, row domain.MemberRow, actor domain.Actor, result *CreateAccountsResult, stats *domain.ImportStatistics) rowOutcome {
	errCtx := ErrorContext{ImportID: importID, RowNumber: row.RowNumber, MemberID: row.MemberID, ActorID: actor.ID}

	conflict, err := c.members.FindConflict(ctx, row.MemberID, row.PhoneNumber, row.Email)
	if err != nil {
		c.fail(ctx, result, errCtx, classifyStoreError(err, row, "check duplicates"))
		c.bump(ctx, importID, domain.CounterFailedImports)
		return rowFailed
	}
	if conflict != nil {
		c.fail(ctx, result, errCtx, classifyStoreError(conflict.Err(), row, "check duplicates"))
		c.bump(ctx, importID, domain.CounterSkippedRows)
		return rowSkipped
	}

	now := c.now()
	cred, err := auth.NewTemporaryCredential(now, c.bcryptCost)
	if err != nil {
		c.fail(ctx, result, errCtx, apperrors.Format(apperrors.CodeAccountCreationFailed, row.MemberID).WithCause(err))
		c.bump(ctx, importID, domain.CounterFailedImports)
		return rowFailed
	}

	email, hasRealEmail := row.Email, row.HasEmail()
	if !hasRealEmail {
		email = PlaceholderEmail(row.MemberID, c.placeholderEmail)
	}
	opID := importID
	expires := cred.ExpiresAt
	hash := cred.Hash
	member := &domain.Member{
		MemberID:                 row.MemberID,
		FullName:                 row.Name,
		PhoneNumber:              row.PhoneNumber,
		Email:                    email,
		HasRealEmail:             hasRealEmail,
		Role:                     domain.MemberRole,
		ActivationStatus:         domain.StatusPendingActivation,
		TemporaryPasswordHash:    &hash,
		TemporaryPasswordExpires: &expires,
		PermanentPasswordHash:    unusablePasswordHash(),
		ImportID:                 &opID,
	}
	if err := c.members.Create(ctx, member); err != nil {
		domainErr := classifyStoreError(err, row, "create member")
		c.fail(ctx, result, errCtx, domainErr)
		if repository.IsDuplicate(err) {
			c.bump(ctx, importID, domain.CounterSkippedRows)
			return rowSkipped
		}
		c.bump(ctx, importID, domain.CounterFailedImports)
		return rowFailed
	}
	c.bump(ctx, importID, domain.CounterSuccessfulImports)

	dispatch := c.notifications.SendSMSAndLog(ctx, DispatchRequest{
		MemberID:          member.ID,
		Member:            member,
		ActorID:           actor.ID,
		TemporaryPassword: cred.Plaintext,
		TrackImportID:     importID,
	})
	if dispatch.Success {
		stats.SMSSentCount++
	} else {
		stats.SMSFailedCount++
		result.NotificationFailures = append(result.NotificationFailures, NotificationFailure{
			MemberID: row.MemberID,
			Channel:  string(domain.ChannelSMS),
			Code:     dispatch.Code,
			Message:  dispatch.Message,
		})
	}

	result.CreatedMembers = append(result.CreatedMembers, CreatedMember{
		ID:       member.ID,
		MemberID: member.MemberID,
		FullName: member.FullName,
		SMSSent:  dispatch.Success,
	})
	return rowCreated
}

func (c *AccountCreator) fail(ctx context.Context, result *CreateAccountsResult, ec ErrorContext, err *apperrors.DomainError) {
	result.Errors = append(result.Errors, domain.ImportError{
		RowNumber:    ec.RowNumber,
		MemberID:     ec.MemberID,
		ErrorMessage: err.Message,
		ErrorCode:    err.Code,
	})
	c.reporter.Report(ctx, err, ec)
}

func (c *AccountCreator) bump(ctx context.Context, importID string, counter domain.ImportCounter) {
	if err := c.imports.IncrementCounter(ctx, importID, counter); err != nil {
		c.logger.Warn("import counter not incremented",
			zap.String("import_id", importID),
			zap.String("counter", string(counter)),
			zap.Error(err))
	}
}

// unusablePasswordHash fills the permanent hash until activation. It is not a
// bcrypt hash, so no password ever verifies against it.
func unusablePasswordHash() string {
	return "!unusable:" + uuid.NewString()
}
