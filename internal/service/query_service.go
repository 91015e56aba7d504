package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/repository"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

// MemberListItem is a masked view of an imported member.
type MemberListItem struct {
	ID               string                  `json:"id"`
	MemberID         string                  `json:"memberId"`
	FullName         string                  `json:"fullName"`
	PhoneNumber      string                  `json:"phoneNumber"`
	Email            string                  `json:"email,omitempty"`
	ActivationStatus domain.ActivationStatus `json:"activationStatus"`
	ImportID         string                  `json:"importId,omitempty"`
	SMSSentAt        *time.Time              `json:"smsSentAt,omitempty"`
	EmailSentAt      *time.Time              `json:"emailSentAt,omitempty"`
	SMSRetryCount    int                     `json:"smsRetryCount"`
	EmailRetryCount  int                     `json:"emailRetryCount"`
	CreatedAt        time.Time               `json:"createdAt"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// MemberQuery filters the imported member listing.
type MemberQuery struct {
	Statuses []domain.ActivationStatus
	Search   string
	ImportID string
	SortBy   string
	SortDesc bool
	Page     int
	PageSize int
}

// QueryService serves read-only admin views.
type QueryService struct {
	members repository.MemberRepository
	imports repository.ImportOperationRepository
}

// NewQueryService builds the service.
func NewQueryService(members repository.MemberRepository, imports repository.ImportOperationRepository) *QueryService {
	return &QueryService{members: members, imports: imports}
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}

// ListImportedMembers returns masked members created by imports.
func (s *QueryService) ListImportedMembers(ctx context.Context, q MemberQuery) (*Page[MemberListItem], error) {
	page, size := normalizePage(q.Page, q.PageSize)
	filter := repository.MemberFilter{
		Statuses:     q.Statuses,
		ImportedOnly: true,
		SortBy:       q.SortBy,
		SortDesc:     q.SortDesc,
		Limit:        size,
		Offset:       (page - 1) * size,
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		filter.SearchTerm = &search
	}
	if q.ImportID != "" {
		importID := q.ImportID
		filter.ImportID = &importID
	}

	members, total, err := s.members.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "list members").WithCause(err)
	}
	items := make([]MemberListItem, 0, len(members))
	for i := range members {
		items = append(items, maskMember(&members[i]))
	}
	return &Page[MemberListItem]{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// GetMemberDetail returns the unmasked member.
func (s *QueryService) GetMemberDetail(ctx context.Context, id string) (*domain.Member, error) {
	member, err := s.members.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.Format(apperrors.CodeMemberNotFound, id)
	}
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "load member").WithCause(err)
	}
	return member, nil
}

// ListImports returns import operations, newest first.
func (s *QueryService) ListImports(ctx context.Context, page, size int) (*Page[domain.ImportOperation], error) {
	page, size = normalizePage(page, size)
	ops, total, err := s.imports.List(ctx, size, (page-1)*size)
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "list imports").WithCause(err)
	}
	if ops == nil {
		ops = []domain.ImportOperation{}
	}
	return &Page[domain.ImportOperation]{Items: ops, Total: total, Page: page, PageSize: size}, nil
}

// GetImport returns one import operation.
func (s *QueryService) GetImport(ctx context.Context, id string) (*domain.ImportOperation, error) {
	op, err := s.imports.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.Format(apperrors.CodeImportNotFound, id)
	}
	if err != nil {
		return nil, apperrors.Format(apperrors.CodeDatabaseError, "load import operation").WithCause(err)
	}
	return op, nil
}

func maskMember(m *domain.Member) MemberListItem {
	item := MemberListItem{
		ID:               m.ID,
		MemberID:         MaskMemberID(m.MemberID),
		FullName:         m.FullName,
		PhoneNumber:      MaskPhone(m.PhoneNumber),
		ActivationStatus: m.ActivationStatus,
		SMSSentAt:        m.SMSSentAt,
		EmailSentAt:      m.EmailSentAt,
		SMSRetryCount:    m.SMSRetryCount,
		EmailRetryCount:  m.EmailRetryCount,
		CreatedAt:        m.CreatedAt,
	}
	if m.HasRealEmail {
		item.Email = MaskEmail(m.Email)
	}
	if m.ImportID != nil {
		item.ImportID = *m.ImportID
	}
	return item
}

// MaskMemberID keeps the first and last character.
func MaskMemberID(id string) string {
	r := []rune(id)
	if len(r) <= 2 {
		return strings.Repeat("*", len(r))
	}
	return string(r[0]) + strings.Repeat("*", len(r)-2) + string(r[len(r)-1])
}

// MaskPhone keeps the last four digits.
func MaskPhone(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + string(digits[len(digits)-4:])
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return strings.Repeat("*", len(email))
	}
	local := []rune(email[:at])
	return string(local[0]) + "***" + email[at:]
}
