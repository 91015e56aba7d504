package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Unique constraint names on members.
const (
	constraintMemberID = "members_member_id_key"
	constraintPhone    = "members_phone_number_key"
	constraintEmail    = "members_email_key"
)

var (
	ErrDuplicateMemberID = errors.New("duplicate member_id")
	ErrDuplicatePhone    = errors.New("duplicate phone_number")
	ErrDuplicateEmail    = errors.New("duplicate email")
	ErrUnknownCounter    = errors.New("unknown import counter")
	ErrPreviewNotFound   = errors.New("preview not found")
)

// IsDuplicate reports whether err is one of the member uniqueness sentinels.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateMemberID) || errors.Is(err, ErrDuplicatePhone) || errors.Is(err, ErrDuplicateEmail)
}

// classifyMemberError maps unique violations on members to sentinels.
func classifyMemberError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintMemberID:
		return ErrDuplicateMemberID
	case constraintPhone:
		return ErrDuplicatePhone
	case constraintEmail:
		return ErrDuplicateEmail
	}
	return err
}
