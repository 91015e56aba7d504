package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/csvimport"
	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/repository"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

// PreviewResult is returned after validating an upload.
type PreviewResult struct {
	Token       string                 `json:"previewToken,omitempty"`
	FileName    string                 `json:"fileName"`
	TotalRows   int                    `json:"totalRows"`
	ValidRows   []domain.MemberRow     `json:"validRows"`
	InvalidRows []csvimport.InvalidRow `json:"invalidRows"`
	Errors      []string               `json:"errors"`
	Warnings    []string               `json:"warnings"`
	CanConfirm  bool                   `json:"canConfirm"`
	ExpiresAt   *time.Time             `json:"expiresAt,omitempty"`
}

// ImportDependencies groups what the import service needs.
type ImportDependencies struct {
	Previews     repository.PreviewStore
	Creator      *AccountCreator
	Logger       *zap.Logger
	MaxFileBytes int64
	PreviewTTL   time.Duration
	Now          func() time.Time
}

// ImportService runs the two-step upload: preview, then confirm.
type ImportService struct {
	previews     repository.PreviewStore
	creator      *AccountCreator
	logger       *zap.Logger
	maxFileBytes int64
	previewTTL   time.Duration
	now          func() time.Time
}

// NewImportService builds the service.
func NewImportService(deps ImportDependencies) *ImportService {
	ttl := deps.PreviewTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ImportService{
		previews:     deps.Previews,
		creator:      deps.Creator,
		logger:       orNop(deps.Logger),
		maxFileBytes: deps.MaxFileBytes,
		previewTTL:   ttl,
		now:          orNow(deps.Now),
	}
}

// Preview validates an upload. File and header problems are returned as errors;
// row problems are reported in the result. A token is issued only when at least
// one row is valid.
func (s *ImportService) Preview(ctx context.Context, filename string, size int64, r io.Reader, actor domain.Actor) (*PreviewResult, error) {
	if err := csvimport.ValidateFile(filename); err != nil {
		return nil, err
	}
	if err := csvimport.ValidateSize(size, s.maxFileBytes); err != nil {
		return nil, err
	}
	table, err := csvimport.Parse(r, filename)
	if err != nil {
		return nil, err
	}
	headers := csvimport.ValidateHeaders(table.Headers)
	if err := headers.Err(); err != nil {
		return nil, err
	}

	validation := table.Validate(headers.HasEmailColumn)
	result := &PreviewResult{
		FileName:    filename,
		TotalRows:   len(table.Rows),
		ValidRows:   validation.ValidRows,
		InvalidRows: validation.InvalidRows,
		Errors:      validation.FileLevelErrors,
		Warnings:    headers.Warnings(),
	}
	if len(validation.ValidRows) == 0 {
		return result, nil
	}

	token := uuid.NewString()
	payload := repository.PreviewPayload{
		FileName:  filename,
		TotalRows: len(table.Rows),
		Batch:     domain.ImportBatch{Rows: validation.ValidRows, HasEmailColumn: headers.HasEmailColumn},
		AdminID:   actor.ID,
		CreatedAt: s.now(),
	}
	if err := s.previews.Save(ctx, token, payload, s.previewTTL); err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "save import preview").WithCause(err)
	}
	expires := payload.CreatedAt.Add(s.previewTTL)
	result.Token = token
	result.CanConfirm = true
	result.ExpiresAt = &expires

	s.logger.Info("import preview created",
		zap.String("file", filename),
		zap.Int("rows", result.TotalRows),
		zap.Int("valid", len(validation.ValidRows)),
		zap.Int("invalid", len(validation.InvalidRows)))
	return result, nil
}

// Confirm consumes a preview token and creates the accounts. A token can be
// confirmed once.
func (s *ImportService) Confirm(ctx context.Context, token string, actor domain.Actor) (*CreateAccountsResult, error) {
	owned, err := s.previews.Get(ctx, token)
	if err != nil {
		return nil, previewLoadError(token, err)
	}
	// Only the admin who uploaded the file may confirm it; a mismatch leaves
	// the preview in place for its owner.
	if owned.AdminID != actor.ID {
		return nil, apperrors.NewForbidden("preview belongs to another admin")
	}

	payload, err := s.previews.Take(ctx, token)
	if err != nil {
		return nil, previewLoadError(token, err)
	}
	return s.creator.CreateAccounts(ctx, payload.Batch, payload.FileName, actor)
}

func previewLoadError(token string, err error) error {
	if errors.Is(err, repository.ErrPreviewNotFound) {
		return apperrors.Format(apperrors.CodePreviewExpired, token)
	}
	return apperrors.Format(apperrors.CodeDatabaseError, "load import preview").WithCause(err)
}
