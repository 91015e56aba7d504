package domain

import (
	"errors"
	"time"
)

// ActivationStatus tracks where a member is in the activation lifecycle.
type ActivationStatus string

const (
	StatusPendingActivation ActivationStatus = "pending_activation"
	StatusActivated         ActivationStatus = "activated"
	StatusSMSFailed         ActivationStatus = "sms_failed"
	StatusEmailFailed       ActivationStatus = "email_failed"
	StatusTokenExpired      ActivationStatus = "token_expired"
)

// ActivationMethod records the channel a member activated through.
type ActivationMethod string

const (
	ActivationMethodSMS   ActivationMethod = "sms"
	ActivationMethodEmail ActivationMethod = "email"
)

// Channel is a notification delivery path.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Valid reports whether the channel is known.
func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// FailedStatus returns the status a member lands in when dispatch on this channel fails.
func (c Channel) FailedStatus() ActivationStatus {
	if c == ChannelEmail {
		return StatusEmailFailed
	}
	return StatusSMSFailed
}

// MemberRole is fixed for imported accounts.
const MemberRole = "member"

// ErrInvalidTransition is returned when a status change is not in the transition table.
var ErrInvalidTransition = errors.New("invalid activation status transition")

var transitions = map[ActivationStatus][]ActivationStatus{
	StatusPendingActivation: {StatusActivated, StatusSMSFailed, StatusEmailFailed, StatusTokenExpired},
	StatusSMSFailed:         {StatusPendingActivation, StatusActivated, StatusEmailFailed, StatusTokenExpired},
	StatusEmailFailed:       {StatusPendingActivation, StatusActivated, StatusSMSFailed, StatusTokenExpired},
	StatusTokenExpired:      {StatusPendingActivation},
	StatusActivated:         nil,
}

// Valid reports whether the status is one of the known states.
func (s ActivationStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from one status to another is allowed.
// Same-state moves are always allowed and treated as no-ops.
func CanTransition(from, to ActivationStatus) bool {
	if from == to {
		return from.Valid()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Member is an imported cooperative member account.
type Member struct {
	ID                       string
	MemberID                 string
	FullName                 string
	PhoneNumber              string
	Email                    string
	HasRealEmail             bool
	Role                     string
	ActivationStatus         ActivationStatus
	ActivationMethod         *ActivationMethod
	TemporaryPasswordHash    *string
	TemporaryPasswordExpires *time.Time
	PermanentPasswordHash    string
	ImportID                 *string
	SMSSentAt                *time.Time
	EmailSentAt              *time.Time
	ActivatedAt              *time.Time
	LastPasswordChangeAt     *time.Time
	SMSRetryCount            int
	SMSLastRetryAt           *time.Time
	EmailRetryCount          int
	EmailLastRetryAt         *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// TransitionTo moves the member to the next status when the table allows it.
func (m *Member) TransitionTo(next ActivationStatus) error {
	if !CanTransition(m.ActivationStatus, next) {
		return ErrInvalidTransition
	}
	m.ActivationStatus = next
	return nil
}

// IsImported reports whether the member was created by a bulk import.
func (m *Member) IsImported() bool {
	return m.ImportID != nil && *m.ImportID != ""
}

// HasContact reports whether the member can be reached on the channel.
func (m *Member) HasContact(channel Channel) bool {
	switch channel {
	case ChannelSMS:
		return m.PhoneNumber != ""
	case ChannelEmail:
		return m.HasRealEmail && m.Email != ""
	}
	return false
}

// RetryState returns the retry counter and last attempt timestamp for a channel.
func (m *Member) RetryState(channel Channel) (int, *time.Time) {
	if channel == ChannelEmail {
		return m.EmailRetryCount, m.EmailLastRetryAt
	}
	return m.SMSRetryCount, m.SMSLastRetryAt
}

// TemporaryCredentialExpired reports whether the stored temporary credential has lapsed.
func (m *Member) TemporaryCredentialExpired(now time.Time) bool {
	return m.TemporaryPasswordExpires != nil && now.After(*m.TemporaryPasswordExpires)
}
