package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/domain"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

func TestResendRejectsActivatedMember(t *testing.T) {
	env := newTestEnv(t)
	member := env.seedMember(t, "M1", "+1-555-0001", domain.StatusActivated, "Seeded1!")
	before := *env.members.get(t, "M1")

	_, err := env.resend.Resend(context.Background(), member.ID, testAdmin, domain.ChannelSMS)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeIneligibleStatus, apperrors.CodeOf(err))

	after := env.members.get(t, "M1")
	assert.Equal(t, *before.TemporaryPasswordHash, *after.TemporaryPasswordHash)
	assert.Equal(t, *before.TemporaryPasswordExpires, *after.TemporaryPasswordExpires)
	env.sms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestResendRejectsFailedStatus(t *testing.T) {
	env := newTestEnv(t)
	member := env.seedMember(t, "M1", "+1-555-0001", domain.StatusSMSFailed, "Seeded1!")

	_, err := env.resend.Resend(context.Background(), member.ID, testAdmin, domain.ChannelSMS)
	assert.Equal(t, apperrors.CodeIneligibleStatus, apperrors.CodeOf(err))
}

func TestResendRejectsNonImportedMember(t *testing.T) {
	env := newTestEnv(t)
	member := env.seedMember(t, "M1", "+1-555-0001", domain.StatusPendingActivation, "Seeded1!")
	env.members.get(t, "M1").ImportID = nil

	_, err := env.resend.Resend(context.Background(), member.ID, testAdmin, domain.ChannelSMS)
	assert.Equal(t, apperrors.CodeNotImportedMember, apperrors.CodeOf(err))
}

func TestResendRotatesCredential(t *testing.T) {
	env := newTestEnv(t)
	member := env.seedMember(t, "M1", "+1-555-0001", domain.StatusPendingActivation, "Seeded1!")
	sentAt := env.clock.Now()
	env.members.get(t, "M1").SMSSentAt = &sentAt
	oldExpires := *member.TemporaryPasswordExpires
	env.clock.Advance(time.Minute)

	env.sms.On("Send", mock.Anything, "+1-555-0001", mock.Anything).Return(sendOK()).Once()
	res, err := env.resend.Resend(context.Background(), member.ID, testAdmin, domain.ChannelSMS)
	require.NoError(t, err)
	assert.True(t, res.Success)

	stored := env.members.get(t, "M1")
	assert.True(t, stored.TemporaryPasswordExpires.After(oldExpires))
	assert.False(t, auth.VerifyPassword("Seeded1!", *stored.TemporaryPasswordHash))
	require.NotNil(t, stored.SMSSentAt)
	assert.True(t, stored.SMSSentAt.After(sentAt))
	assert.Equal(t, 1, env.audit.count(domain.ActionInvitationResent))
}

func TestResendKeepsRotatedCredentialWhenDeliveryFails(t *testing.T) {
	env := newTestEnv(t)
	member := env.seedMember(t, "M1", "+1-555-0001", domain.StatusPendingActivation, "Seeded1!")
	env.sms.On("Send", mock.Anything, "+1-555-0001", mock.Anything).Return(sendFail("down")).Once()

	res, err := env.resend.Resend(context.Background(), member.ID, testAdmin, domain.ChannelSMS)
	require.NoError(t, err)
	assert.False(t, res.Success)

	stored := env.members.get(t, "M1")
	assert.False(t, auth.VerifyPassword("Seeded1!", *stored.TemporaryPasswordHash))
	assert.Nil(t, stored.SMSSentAt)
	assert.Equal(t, domain.StatusSMSFailed, stored.ActivationStatus)
	assert.Zero(t, env.audit.count(domain.ActionInvitationResent))
}

func TestBulkResendSummary(t *testing.T) {
	env := newTestEnv(t)
	ok := env.seedMember(t, "OK", "+1-555-0001", domain.StatusPendingActivation, "Seeded1!")
	done := env.seedMember(t, "DONE", "+1-555-0002", domain.StatusActivated, "Seeded1!")
	bad := env.seedMember(t, "BAD", "+1-555-0003", domain.StatusPendingActivation, "Seeded1!")

	env.sms.On("Send", mock.Anything, "+1-555-0001", mock.Anything).Return(sendOK())
	env.sms.On("Send", mock.Anything, "+1-555-0003", mock.Anything).Return(sendFail("rejected"))

	summary, err := env.resend.BulkResend(context.Background(),
		[]string{ok.ID, done.ID, bad.ID, "missing"}, testAdmin, domain.ChannelSMS)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, apperrors.CodeIneligibleStatus, summary.Details[1].Code)
	assert.Equal(t, apperrors.CodeMemberNotFound, summary.Details[3].Code)
	assert.Equal(t, 1, env.audit.count(domain.ActionBulkResend))
}

func TestBulkResendInterruptedStillReconciles(t *testing.T) {
	env := newTestEnv(t)
	first := env.seedMember(t, "FIRST", "+1-555-0001", domain.StatusPendingActivation, "Seeded1!")
	second := env.seedMember(t, "SECOND", "+1-555-0002", domain.StatusPendingActivation, "Seeded1!")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.sms.On("Send", mock.Anything, "+1-555-0001", mock.Anything).
		Run(func(mock.Arguments) { cancel() }).Return(sendOK()).Once()

	summary, err := env.resend.BulkResend(ctx, []string{first.ID, second.ID}, testAdmin, domain.ChannelSMS)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, second.ID, summary.Details[1].MemberID)
	assert.Equal(t, apperrors.CodeOperationInterrupted, summary.Details[1].Code)
}
