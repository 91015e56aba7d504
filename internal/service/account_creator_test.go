package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/notify"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

func TestCreateAccountsAllValidRows(t *testing.T) {
	env := newTestEnv(t)
	env.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(sendOK())

	batch := domain.ImportBatch{HasEmailColumn: true}
	for i := 1; i <= 5; i++ {
		batch.Rows = append(batch.Rows, row(i+1, fmt.Sprintf("M%d", i), fmt.Sprintf("Member %d", i), fmt.Sprintf("+1-555-000%d", i), ""))
	}

	result, err := env.creator.CreateAccounts(context.Background(), batch, "members.csv", testAdmin)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Statistics.SuccessfulImports)
	assert.Zero(t, result.Statistics.FailedImports+result.Statistics.SkippedRows)
	assert.True(t, result.Statistics.Reconciles())
	assert.Equal(t, 5, result.Statistics.SMSSentCount)
	assert.Len(t, result.CreatedMembers, 5)

	op := result.ImportOperation
	assert.Equal(t, domain.ImportStatusCompleted, op.Status)
	assert.Equal(t, 5, op.SuccessfulImports)
	assert.Equal(t, 5, op.SMSSentCount)

	want := env.clock.Now().Add(24 * time.Hour)
	for i := 1; i <= 5; i++ {
		m := env.members.get(t, fmt.Sprintf("M%d", i))
		assert.Equal(t, domain.StatusPendingActivation, m.ActivationStatus)
		require.NotNil(t, m.TemporaryPasswordExpires)
		assert.WithinDuration(t, want, *m.TemporaryPasswordExpires, time.Second)
		require.NotNil(t, m.ImportID)
		assert.Equal(t, op.ID, *m.ImportID)
		assert.NotNil(t, m.SMSSentAt)
		assert.False(t, m.HasRealEmail)
		assert.Equal(t, PlaceholderEmail(m.MemberID, "no-email.invalid"), m.Email)
	}
	assert.Equal(t, 1, env.audit.count(domain.ActionMembersImported))
	assert.Equal(t, 5, env.audit.count(domain.ActionSMSSent))
}

func TestCreateAccountsSkipsExistingMemberID(t *testing.T) {
	env := newTestEnv(t)
	env.seedMember(t, "M1", "+1-555-9999", domain.StatusPendingActivation, "Seeded1!")
	env.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(sendOK())

	batch := domain.ImportBatch{Rows: []domain.MemberRow{
		row(2, "M1", "Again", "+1-555-0001", ""),
		row(3, "M2", "New", "+1-555-0002", ""),
	}}
	result, err := env.creator.CreateAccounts(context.Background(), batch, "members.csv", testAdmin)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Statistics.SkippedRows)
	assert.Equal(t, 1, result.Statistics.SuccessfulImports)
	assert.Zero(t, result.Statistics.FailedImports)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, apperrors.CodeDuplicateMemberID, result.Errors[0].ErrorCode)
	assert.Contains(t, result.Errors[0].ErrorMessage, "M1")
	assert.Equal(t, 2, result.Errors[0].RowNumber)

	stored, err := env.imports.GetByID(context.Background(), result.ImportOperation.ID)
	require.NoError(t, err)
	require.Len(t, stored.ImportErrors, 1)
	assert.Equal(t, apperrors.CodeDuplicateMemberID, stored.ImportErrors[0].ErrorCode)
	assert.Equal(t, 1, env.audit.count(domain.ActionImportError))
}

func TestCreateAccountsSkipsDuplicatePhoneAndRealEmail(t *testing.T) {
	env := newTestEnv(t)
	env.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(sendOK())

	first := domain.ImportBatch{HasEmailColumn: true, Rows: []domain.MemberRow{
		row(2, "M1", "A", "+1-555-0001", "a@x.com"),
	}}
	_, err := env.creator.CreateAccounts(context.Background(), first, "first.csv", testAdmin)
	require.NoError(t, err)

	second := domain.ImportBatch{HasEmailColumn: true, Rows: []domain.MemberRow{
		row(2, "M2", "B", "+1-555-0001", ""),
		row(3, "M3", "C", "+1-555-0003", "a@x.com"),
	}}
	result, err := env.creator.CreateAccounts(context.Background(), second, "second.csv", testAdmin)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Statistics.SkippedRows)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, apperrors.CodeDuplicatePhone, result.Errors[0].ErrorCode)
	assert.Equal(t, apperrors.CodeDuplicateEmail, result.Errors[1].ErrorCode)
	assert.True(t, env.members.get(t, "M1").HasRealEmail)
}

func TestCreateAccountsStoreFailureCountsAsFailed(t *testing.T) {
	env := newTestEnv(t)
	env.members.createErr = errors.New("connection reset")

	batch := domain.ImportBatch{Rows: []domain.MemberRow{row(2, "M1", "A", "+1-555-0001", "")}}
	result, err := env.creator.CreateAccounts(context.Background(), batch, "members.csv", testAdmin)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Statistics.FailedImports)
	assert.True(t, result.Statistics.Reconciles())
	require.Len(t, result.Errors, 1)
	assert.Equal(t, apperrors.CodeDatabaseError, result.Errors[0].ErrorCode)
	env.sms.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateAccountsSMSFailureThenManualRetry(t *testing.T) {
	env := newTestEnv(t)
	env.sms.On("Send", mock.Anything, "+1-555-0001", mock.Anything).Return(sendFail("gateway timeout")).Twice()

	batch := domain.ImportBatch{Rows: []domain.MemberRow{row(2, "M1", "A", "+1-555-0001", "")}}
	result, err := env.creator.CreateAccounts(context.Background(), batch, "members.csv", testAdmin)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Statistics.SuccessfulImports)
	assert.Equal(t, 1, result.Statistics.SMSFailedCount)
	assert.Equal(t, 1, result.ImportOperation.SMSFailedCount)
	require.Len(t, result.NotificationFailures, 1)
	assert.Equal(t, apperrors.CodeSMSSendFailed, result.NotificationFailures[0].Code)

	member := env.members.get(t, "M1")
	assert.Equal(t, domain.StatusSMSFailed, member.ActivationStatus)

	failed, err := env.retry.RetrySMS(context.Background(), member.ID, testAdmin.ID, true)
	require.NoError(t, err)
	assert.False(t, failed.Success)
	assert.Equal(t, 1, failed.RetryCount)

	env.sms.On("Send", mock.Anything, "+1-555-0001", mock.Anything).Return(sendOK()).Once()
	retried, err := env.retry.RetrySMS(context.Background(), member.ID, testAdmin.ID, true)
	require.NoError(t, err)
	assert.True(t, retried.Success)
	assert.Zero(t, retried.RetryCount)

	member = env.members.get(t, "M1")
	assert.Zero(t, member.SMSRetryCount)
	assert.Nil(t, member.SMSLastRetryAt)
	assert.Equal(t, domain.StatusPendingActivation, member.ActivationStatus)
	env.sms.AssertExpectations(t)
}

func TestCreateAccountsInterruptedLeavesImportPending(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	env.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(sendOK()).
		Run(func(mock.Arguments) { cancel() }).
		Once()

	batch := domain.ImportBatch{Rows: []domain.MemberRow{
		row(2, "M1", "A", "+1-555-0001", ""),
		row(3, "M2", "B", "+1-555-0002", ""),
	}}
	result, err := env.creator.CreateAccounts(ctx, batch, "members.csv", testAdmin)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.Sentinel(apperrors.CodeOperationInterrupted))
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Statistics.SuccessfulImports)

	stored, getErr := env.imports.GetByID(context.Background(), result.ImportOperation.ID)
	require.NoError(t, getErr)
	assert.Equal(t, domain.ImportStatusPending, stored.Status)
	require.NotEmpty(t, stored.ImportErrors)
	assert.Equal(t, apperrors.CodeOperationInterrupted, stored.ImportErrors[len(stored.ImportErrors)-1].ErrorCode)
}

func TestCreateAccountsStoresVerifiableTemporaryCredential(t *testing.T) {
	env := newTestEnv(t)
	var sentPassword string
	env.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).
		Return(sendOK()).
		Run(func(args mock.Arguments) {
			sentPassword = args.Get(2).(notify.TemplateData).TemporaryPassword
		})

	batch := domain.ImportBatch{Rows: []domain.MemberRow{row(2, "M1", "A", "+1-555-0001", "")}}
	_, err := env.creator.CreateAccounts(context.Background(), batch, "members.csv", testAdmin)
	require.NoError(t, err)

	member := env.members.get(t, "M1")
	require.NotNil(t, member.TemporaryPasswordHash)
	assert.GreaterOrEqual(t, len(sentPassword), auth.TemporaryPasswordLength)
	assert.True(t, auth.VerifyPassword(sentPassword, *member.TemporaryPasswordHash))
	assert.False(t, auth.VerifyPassword(sentPassword, member.PermanentPasswordHash))
}
