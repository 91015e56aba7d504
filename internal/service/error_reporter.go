package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/events"
	"github.com/spec-kit/coop-member-import/internal/repository"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

// ErrorContext locates an error within an import.
type ErrorContext struct {
	ImportID  string
	RowNumber int
	MemberID  string
	ActorID   string
}

// ErrorReporter logs structured import errors, audits them and appends them to
// the owning import operation. Every step is best-effort.
type ErrorReporter struct {
	imports repository.ImportOperationRepository
	audit   auditor
	logger  *zap.Logger
}

// NewErrorReporter builds the reporter.
func NewErrorReporter(imports repository.ImportOperationRepository, dispatcher events.Dispatcher, logger *zap.Logger) *ErrorReporter {
	logger = orNop(logger)
	return &ErrorReporter{imports: imports, audit: newAuditor(dispatcher, logger), logger: logger}
}

// Report records err against ec.
func (r *ErrorReporter) Report(ctx context.Context, err *apperrors.DomainError, ec ErrorContext) {
	if r == nil || err == nil {
		return
	}
	fields := []zap.Field{
		zap.String("code", err.Code),
		zap.String("import_id", ec.ImportID),
		zap.Int("row_number", ec.RowNumber),
		zap.String("member_id", ec.MemberID),
	}
	if err.Err != nil {
		fields = append(fields, zap.Error(err.Err))
	}
	if err.HTTPStatus >= 500 {
		r.logger.Error(err.Message, fields...)
	} else {
		r.logger.Warn(err.Message, fields...)
	}

	actorID := ec.ActorID
	if actorID == "" {
		actorID = domain.SystemActor.ID
	}
	r.audit.record(ctx, actorID, domain.ActionImportError, err.Message, map[string]any{
		"errorCode": err.Code,
		"importId":  ec.ImportID,
		"rowNumber": ec.RowNumber,
		"memberId":  ec.MemberID,
		"details":   err.Details,
	})

	if ec.ImportID == "" || r.imports == nil {
		return
	}
	entry := domain.ImportError{
		RowNumber:    ec.RowNumber,
		MemberID:     ec.MemberID,
		ErrorMessage: err.Message,
		ErrorCode:    err.Code,
	}
	if appendErr := r.imports.AppendError(ctx, ec.ImportID, entry); appendErr != nil {
		r.logger.Warn("import error not appended",
			zap.String("import_id", ec.ImportID),
			zap.String("code", err.Code),
			zap.Error(appendErr))
	}
}

// classifyStoreError maps a member persistence error to a catalogued code.
func classifyStoreError(err error, row domain.MemberRow, operation string) *apperrors.DomainError {
	switch {
	case errors.Is(err, repository.ErrDuplicateMemberID):
		return apperrors.Format(apperrors.CodeDuplicateMemberID, row.MemberID).WithCause(err)
	case errors.Is(err, repository.ErrDuplicatePhone):
		return apperrors.Format(apperrors.CodeDuplicatePhone, row.PhoneNumber).WithCause(err)
	case errors.Is(err, repository.ErrDuplicateEmail):
		return apperrors.Format(apperrors.CodeDuplicateEmail, row.Email).WithCause(err)
	}
	return apperrors.Format(apperrors.CodeDatabaseError, operation).WithCause(err)
}
