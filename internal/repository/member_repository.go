package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/coop-member-import/internal/domain"
)

// MemberFilter captures admin search parameters over imported members.
type MemberFilter struct {
	Statuses     []domain.ActivationStatus
	SearchTerm   *string
	ImportID     *string
	ImportedOnly bool
	SortBy       string
	SortDesc     bool
	Limit        int
	Offset       int
}

// MemberConflict names the first field of a candidate that collides with a stored member.
type MemberConflict struct {
	Field string
	Value string
}

// Err maps the conflict to its duplicate sentinel.
func (c *MemberConflict) Err() error {
	switch c.Field {
	case "phone_number":
		return ErrDuplicatePhone
	case "email":
		return ErrDuplicateEmail
	}
	return ErrDuplicateMemberID
}

// MemberRepository encapsulates member persistence.
type MemberRepository interface {
	Create(ctx context.Context, member *domain.Member) error
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	GetByMemberID(ctx context.Context, memberID string) (*domain.Member, error)
	FindConflict(ctx context.Context, memberID, phone, email string) (*MemberConflict, error)
	TransitionStatus(ctx context.Context, id string, from, to domain.ActivationStatus) error
	MarkSent(ctx context.Context, id string, channel domain.Channel, at time.Time) error
	RotateTemporaryCredential(ctx context.Context, id, hash string, expires time.Time, clearSent bool) error
	RecordRetryFailure(ctx context.Context, id string, channel domain.Channel, at time.Time) (int, error)
	ResetRetry(ctx context.Context, id string, channel domain.Channel) error
	Activate(ctx context.Context, id, permanentHash string, method domain.ActivationMethod, at time.Time) error
	ListByImport(ctx context.Context, importID string, statuses []domain.ActivationStatus) ([]domain.Member, error)
	ListWithFilter(ctx context.Context, filter MemberFilter) ([]domain.Member, int, error)
	ListRetryCandidates(ctx context.Context, channel domain.Channel, maxRetries, limit int) ([]domain.Member, error)
}

type memberRepository struct {
	pool *pgxpool.Pool
}

// NewMemberRepository returns a Postgres-backed implementation.
func NewMemberRepository(pool *pgxpool.Pool) MemberRepository {
	return &memberRepository{pool: pool}
}

const memberColumns = `id, member_id, full_name, phone_number, email, has_real_email, role,
               activation_status, activation_method, temporary_password_hash, temporary_password_expires,
               permanent_password_hash, import_id, sms_sent_at, email_sent_at, activated_at,
               last_password_change_at, sms_retry_count, sms_last_retry_at, email_retry_count,
               email_last_retry_at, created_at, updated_at`

var memberSortColumns = map[string]string{
	"created_at":        "created_at",
	"member_id":         "member_id",
	"name":              "full_name",
	"activation_status": "activation_status",
	"sms_sent_at":       "sms_sent_at",
	"email_sent_at":     "email_sent_at",
}

func (r *memberRepository) Create(ctx context.Context, member *domain.Member) error {
	const query = `
        INSERT INTO members (member_id, full_name, phone_number, email, has_real_email, role,
            activation_status, temporary_password_hash, temporary_password_expires,
            permanent_password_hash, import_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		member.MemberID,
		member.FullName,
		member.PhoneNumber,
		member.Email,
		member.HasRealEmail,
		member.Role,
		member.ActivationStatus,
		member.TemporaryPasswordHash,
		member.TemporaryPasswordExpires,
		member.PermanentPasswordHash,
		member.ImportID,
	).Scan(&member.ID, &member.CreatedAt, &member.UpdatedAt)
	return classifyMemberError(err)
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id=$1`
	return scanMember(r.pool.QueryRow(ctx, query, id))
}

func (r *memberRepository) GetByMemberID(ctx context.Context, memberID string) (*domain.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE member_id=$1`
	return scanMember(r.pool.QueryRow(ctx, query, memberID))
}

func (r *memberRepository) FindConflict(ctx context.Context, memberID, phone, email string) (*MemberConflict, error) {
	const query = `
        SELECT CASE
                 WHEN member_id=$1 THEN 'member_id'
                 WHEN phone_number=$2 THEN 'phone_number'
                 ELSE 'email'
               END AS field
        FROM members
        WHERE member_id=$1 OR phone_number=$2 OR ($3 <> '' AND email=$3)
        ORDER BY CASE WHEN member_id=$1 THEN 0 WHEN phone_number=$2 THEN 1 ELSE 2 END
        LIMIT 1`

	var field string
	if err := r.pool.QueryRow(ctx, query, memberID, phone, email).Scan(&field); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	conflict := &MemberConflict{Field: field}
	switch field {
	case "member_id":
		conflict.Value = memberID
	case "phone_number":
		conflict.Value = phone
	default:
		conflict.Value = email
	}
	return conflict, nil
}

func (r *memberRepository) TransitionStatus(ctx context.Context, id string, from, to domain.ActivationStatus) error {
	const query = `
        UPDATE members SET activation_status=$1, updated_at=NOW()
        WHERE id=$2 AND activation_status=$3`
	return r.execOne(ctx, query, to, id, from)
}

func (r *memberRepository) MarkSent(ctx context.Context, id string, channel domain.Channel, at time.Time) error {
	column := "sms_sent_at"
	if channel == domain.ChannelEmail {
		column = "email_sent_at"
	}
	query := fmt.Sprintf(`UPDATE members SET %s=$1, updated_at=NOW() WHERE id=$2`, column)
	return r.execOne(ctx, query, at, id)
}

func (r *memberRepository) RotateTemporaryCredential(ctx context.Context, id, hash string, expires time.Time, clearSent bool) error {
	const query = `
        UPDATE members SET temporary_password_hash=$1, temporary_password_expires=$2,
            sms_sent_at=CASE WHEN $3 THEN NULL ELSE sms_sent_at END,
            email_sent_at=CASE WHEN $3 THEN NULL ELSE email_sent_at END,
            updated_at=NOW()
        WHERE id=$4`
	return r.execOne(ctx, query, hash, expires, clearSent, id)
}

func (r *memberRepository) RecordRetryFailure(ctx context.Context, id string, channel domain.Channel, at time.Time) (int, error) {
	countCol, lastCol := retryColumns(channel)
	query := fmt.Sprintf(`
        UPDATE members SET %[1]s=%[1]s+1, %[2]s=$1, updated_at=NOW()
        WHERE id=$2
        RETURNING %[1]s`, countCol, lastCol)

	var count int
	if err := r.pool.QueryRow(ctx, query, at, id).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *memberRepository) ResetRetry(ctx context.Context, id string, channel domain.Channel) error {
	countCol, lastCol := retryColumns(channel)
	query := fmt.Sprintf(`UPDATE members SET %s=0, %s=NULL, updated_at=NOW() WHERE id=$1`, countCol, lastCol)
	return r.execOne(ctx, query, id)
}

func (r *memberRepository) Activate(ctx context.Context, id, permanentHash string, method domain.ActivationMethod, at time.Time) error {
	const query = `
        UPDATE members SET permanent_password_hash=$1, activation_method=$2, activation_status=$3,
            temporary_password_hash=NULL, temporary_password_expires=NULL,
            activated_at=$4, last_password_change_at=$4, updated_at=NOW()
        WHERE id=$5 AND activation_status <> $3`
	return r.execOne(ctx, query, permanentHash, method, domain.StatusActivated, at, id)
}

func (r *memberRepository) ListByImport(ctx context.Context, importID string, statuses []domain.ActivationStatus) ([]domain.Member, error) {
	members, _, err := r.list(ctx, MemberFilter{ImportID: &importID, Statuses: statuses, SortBy: "created_at"}, false)
	return members, err
}

func (r *memberRepository) ListWithFilter(ctx context.Context, filter MemberFilter) ([]domain.Member, int, error) {
	return r.list(ctx, filter, true)
}

func (r *memberRepository) list(ctx context.Context, filter MemberFilter, paginate bool) ([]domain.Member, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.ImportedOnly {
		clauses = append(clauses, "import_id IS NOT NULL")
	}
	if filter.ImportID != nil {
		args = append(args, *filter.ImportID)
		clauses = append(clauses, fmt.Sprintf("import_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("activation_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf(
			"(LOWER(member_id) LIKE %[1]s OR LOWER(full_name) LIKE %[1]s OR phone_number LIKE %[1]s OR (has_real_email AND LOWER(email) LIKE %[1]s))",
			placeholder))
	}
	where := strings.Join(clauses, " AND ")

	sortCol, ok := memberSortColumns[filter.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM members WHERE %s ORDER BY %s %s, id ASC`, memberColumns, where, sortCol, direction)

	total := 0
	if paginate {
		if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM members WHERE `+where, args...).Scan(&total); err != nil {
			return nil, 0, err
		}

		limit := filter.Limit
		if limit <= 0 {
			limit = 20
		}
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		query = fmt.Sprintf(`%s LIMIT %d OFFSET %d`, query, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	members, err := scanMembers(rows)
	if err != nil {
		return nil, 0, err
	}
	if !paginate {
		total = len(members)
	}
	return members, total, nil
}

func (r *memberRepository) ListRetryCandidates(ctx context.Context, channel domain.Channel, maxRetries, limit int) ([]domain.Member, error) {
	countCol, _ := retryColumns(channel)
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM members
        WHERE activation_status=$1 AND %s < $2 AND import_id IS NOT NULL
        ORDER BY updated_at ASC LIMIT %d`, memberColumns, countCol, limit)

	rows, err := r.pool.Query(ctx, query, channel.FailedStatus(), maxRetries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMembers(rows)
}

func (r *memberRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func retryColumns(channel domain.Channel) (string, string) {
	if channel == domain.ChannelEmail {
		return "email_retry_count", "email_last_retry_at"
	}
	return "sms_retry_count", "sms_last_retry_at"
}

func scanMember(row pgx.Row) (*domain.Member, error) {
	var m domain.Member
	if err := row.Scan(memberFields(&m)...); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMembers(rows pgx.Rows) ([]domain.Member, error) {
	var result []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(memberFields(&m)...); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func memberFields(m *domain.Member) []any {
	return []any{
		&m.ID,
		&m.MemberID,
		&m.FullName,
		&m.PhoneNumber,
		&m.Email,
		&m.HasRealEmail,
		&m.Role,
		&m.ActivationStatus,
		&m.ActivationMethod,
		&m.TemporaryPasswordHash,
		&m.TemporaryPasswordExpires,
		&m.PermanentPasswordHash,
		&m.ImportID,
		&m.SMSSentAt,
		&m.EmailSentAt,
		&m.ActivatedAt,
		&m.LastPasswordChangeAt,
		&m.SMSRetryCount,
		&m.SMSLastRetryAt,
		&m.EmailRetryCount,
		&m.EmailLastRetryAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	}
}
