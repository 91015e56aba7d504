package dto

import (
	"time"

	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/service"
)

// MemberResponse is the admin detail view of a member. Password hashes are
// never exposed.
type MemberResponse struct {
	ID                       string     `json:"id"`
	MemberID                 string     `json:"memberId"`
	FullName                 string     `json:"fullName"`
	PhoneNumber              string     `json:"phoneNumber"`
	Email                    string     `json:"email,omitempty"`
	ActivationStatus         string     `json:"activationStatus"`
	ActivationMethod         string     `json:"activationMethod,omitempty"`
	ImportID                 string     `json:"importId,omitempty"`
	TemporaryPasswordExpires *time.Time `json:"temporaryPasswordExpires,omitempty"`
	SMSSentAt                *time.Time `json:"smsSentAt,omitempty"`
	EmailSentAt              *time.Time `json:"emailSentAt,omitempty"`
	ActivatedAt              *time.Time `json:"activatedAt,omitempty"`
	SMSRetryCount            int        `json:"smsRetryCount"`
	SMSLastRetryAt           *time.Time `json:"smsLastRetryAt,omitempty"`
	EmailRetryCount          int        `json:"emailRetryCount"`
	EmailLastRetryAt         *time.Time `json:"emailLastRetryAt,omitempty"`
	CreatedAt                time.Time  `json:"createdAt"`
}

// NewMemberResponse maps a member to its detail response.
func NewMemberResponse(m *domain.Member) MemberResponse {
	resp := MemberResponse{
		ID:                       m.ID,
		MemberID:                 m.MemberID,
		FullName:                 m.FullName,
		PhoneNumber:              m.PhoneNumber,
		ActivationStatus:         string(m.ActivationStatus),
		TemporaryPasswordExpires: m.TemporaryPasswordExpires,
		SMSSentAt:                m.SMSSentAt,
		EmailSentAt:              m.EmailSentAt,
		ActivatedAt:              m.ActivatedAt,
		SMSRetryCount:            m.SMSRetryCount,
		SMSLastRetryAt:           m.SMSLastRetryAt,
		EmailRetryCount:          m.EmailRetryCount,
		EmailLastRetryAt:         m.EmailLastRetryAt,
		CreatedAt:                m.CreatedAt,
	}
	if m.HasRealEmail {
		resp.Email = m.Email
	}
	if m.ActivationMethod != nil {
		resp.ActivationMethod = string(*m.ActivationMethod)
	}
	if m.ImportID != nil {
		resp.ImportID = *m.ImportID
	}
	return resp
}

// ChannelRequest selects a notification channel. Empty means sms.
type ChannelRequest struct {
	Channel string `json:"channel"`
}

// BulkMemberRequest targets several members at once.
type BulkMemberRequest struct {
	MemberIDs []string `json:"member_ids"`
	Channel   string   `json:"channel"`
}

// RetryResponse is a single retry outcome with the next delay in milliseconds.
type RetryResponse struct {
	*service.RetryResult
	NextRetryDelayMs int64 `json:"nextRetryDelayMs,omitempty"`
}

// NewRetryResponse maps a retry result.
func NewRetryResponse(r *service.RetryResult) RetryResponse {
	return RetryResponse{RetryResult: r, NextRetryDelayMs: r.NextRetryDelay.Milliseconds()}
}
