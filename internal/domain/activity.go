package domain

import "time"

// ActivityAction tags an audit record.
type ActivityAction string

const (
	ActionMembersImported       ActivityAction = "members_imported"
	ActionImportRetried         ActivityAction = "import_retried"
	ActionImportError           ActivityAction = "import_error"
	ActionSMSSent               ActivityAction = "sms_sent"
	ActionSMSFailed             ActivityAction = "sms_failed"
	ActionEmailSent             ActivityAction = "email_sent"
	ActionEmailFailed           ActivityAction = "email_failed"
	ActionNotificationRetryOK   ActivityAction = "notification_retry_success"
	ActionNotificationRetryFail ActivityAction = "notification_retry_failed"
	ActionInvitationResent      ActivityAction = "invitation_resent"
	ActionBulkResend            ActivityAction = "bulk_resend"
	ActionBulkRetry             ActivityAction = "bulk_retry"
	ActionPasswordChanged       ActivityAction = "password_changed"
	ActionMemberActivated       ActivityAction = "member_activated"
)

// SentAction returns the audit tag for a successful send on a channel.
func SentAction(channel Channel) ActivityAction {
	if channel == ChannelEmail {
		return ActionEmailSent
	}
	return ActionSMSSent
}

// FailedAction returns the audit tag for a failed send on a channel.
func FailedAction(channel Channel) ActivityAction {
	if channel == ChannelEmail {
		return ActionEmailFailed
	}
	return ActionSMSFailed
}

// Activity is an append-only audit record.
type Activity struct {
	ID          string         `json:"id"`
	ActorID     string         `json:"actorId"`
	Action      ActivityAction `json:"action"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// Known reports whether the action is one this service emits.
func (a ActivityAction) Known() bool {
	switch a {
	case ActionMembersImported, ActionImportRetried, ActionImportError,
		ActionSMSSent, ActionSMSFailed, ActionEmailSent, ActionEmailFailed,
		ActionNotificationRetryOK, ActionNotificationRetryFail,
		ActionInvitationResent, ActionBulkResend, ActionBulkRetry,
		ActionPasswordChanged, ActionMemberActivated:
		return true
	}
	return false
}
