package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coop-member-import/internal/domain"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

func importWithOneSMSFailure(t *testing.T, env *testEnv) *CreateAccountsResult {
	t.Helper()
	env.sms.On("Send", mock.Anything, "+1-555-0001", mock.Anything).Return(sendOK()).Once()
	env.sms.On("Send", mock.Anything, "+1-555-0002", mock.Anything).Return(sendFail("timeout")).Once()

	batch := domain.ImportBatch{Rows: []domain.MemberRow{
		row(2, "M1", "A", "+1-555-0001", ""),
		row(3, "M2", "B", "+1-555-0002", ""),
	}}
	result, err := env.creator.CreateAccounts(context.Background(), batch, "members.csv", testAdmin)
	require.NoError(t, err)
	return result
}

func TestValidateRecoveryPossible(t *testing.T) {
	env := newTestEnv(t)

	check := env.recovery.ValidateRecoveryPossible(context.Background(), "missing")
	assert.False(t, check.CanRecover)
	assert.NotEmpty(t, check.Reason)

	env.sms.On("Send", mock.Anything, "+1-555-0009", mock.Anything).Return(sendOK()).Once()
	clean, err := env.creator.CreateAccounts(context.Background(),
		domain.ImportBatch{Rows: []domain.MemberRow{row(2, "C1", "Clean", "+1-555-0009", "")}}, "clean.csv", testAdmin)
	require.NoError(t, err)
	check = env.recovery.ValidateRecoveryPossible(context.Background(), clean.ImportOperation.ID)
	assert.False(t, check.CanRecover)

	partial := importWithOneSMSFailure(t, env)
	check = env.recovery.ValidateRecoveryPossible(context.Background(), partial.ImportOperation.ID)
	assert.True(t, check.CanRecover)
	assert.Equal(t, 1, check.FailedMembers)
}

func TestGetPartialImportRecovery(t *testing.T) {
	env := newTestEnv(t)
	result := importWithOneSMSFailure(t, env)

	recovery, err := env.recovery.GetPartialImportRecovery(context.Background(), result.ImportOperation.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, recovery.TotalRows)
	assert.Equal(t, 1, recovery.SuccessfulRows)
	assert.Zero(t, recovery.FailedRows)
	require.Len(t, recovery.SuccessfulMembers, 1)
	progressed := recovery.SuccessfulMembers[0]
	assert.Equal(t, env.members.get(t, "M2").ID, progressed.ID)
	assert.Equal(t, domain.StatusSMSFailed, progressed.ActivationStatus)
	assert.Equal(t, "*******0002", progressed.PhoneNumber)

	_, err = env.recovery.GetPartialImportRecovery(context.Background(), "missing")
	assert.Equal(t, apperrors.CodeImportNotFound, apperrors.CodeOf(err))
}

func TestRetryFailedImportCreatesNewOperation(t *testing.T) {
	env := newTestEnv(t)
	original := importWithOneSMSFailure(t, env)
	before, err := env.imports.GetByID(context.Background(), original.ImportOperation.ID)
	require.NoError(t, err)

	env.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(sendOK())
	result, err := env.recovery.RetryFailedImport(context.Background(), original.ImportOperation.ID, testAdmin)
	require.NoError(t, err)

	assert.NotEqual(t, original.ImportOperation.ID, result.ImportOperation.ID)
	assert.Equal(t, "members.csv (Retry)", result.ImportOperation.CSVFileName)
	assert.Equal(t, domain.ImportStatusCompleted, result.ImportOperation.Status)
	assert.Equal(t, 2, result.Statistics.TotalRows)
	assert.Equal(t, 2, result.Statistics.SuccessfulImports)
	assert.Equal(t, 2, result.ImportOperation.SMSSentCount)

	after, err := env.imports.GetByID(context.Background(), original.ImportOperation.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.Equal(t, domain.StatusPendingActivation, env.members.get(t, "M2").ActivationStatus)
	assert.Equal(t, 1, env.audit.count(domain.ActionImportRetried))
}

func TestRetryFailedImportUnknownImport(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.recovery.RetryFailedImport(context.Background(), "missing", testAdmin)
	assert.Equal(t, apperrors.CodeImportNotFound, apperrors.CodeOf(err))
}

func TestRetryFailedImportRecordsDispatchFailures(t *testing.T) {
	env := newTestEnv(t)
	original := importWithOneSMSFailure(t, env)

	env.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(sendFail("gateway down"))
	result, err := env.recovery.RetryFailedImport(context.Background(), original.ImportOperation.ID, testAdmin)
	require.NoError(t, err)
	require.Len(t, result.Errors, 2)

	stored, err := env.imports.GetByID(context.Background(), result.ImportOperation.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.FailedImports)
	require.Len(t, stored.ImportErrors, 2)
	for _, entry := range stored.ImportErrors {
		assert.Equal(t, apperrors.CodeSMSSendFailed, entry.ErrorCode)
		assert.Contains(t, entry.ErrorMessage, "gateway down")
	}
	assert.Equal(t, []string{"M1", "M2"}, []string{stored.ImportErrors[0].MemberID, stored.ImportErrors[1].MemberID})
}
