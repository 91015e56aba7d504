package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coop-member-import/internal/domain"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

func preview(t *testing.T, env *testEnv, name, body string) (*PreviewResult, error) {
	t.Helper()
	return env.importer.Preview(context.Background(), name, int64(len(body)), strings.NewReader(body), testAdmin)
}

func TestPreviewDuplicateIDsNotConfirmable(t *testing.T) {
	env := newTestEnv(t)
	body := "member_id,name,phone_number,email\n" +
		"M1,A,+1-555-0001,a@x.com\n" +
		"M1,B,+1-555-0002,\n"

	result, err := preview(t, env, "members.csv", body)
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalRows)
	assert.Empty(t, result.ValidRows)
	assert.Len(t, result.InvalidRows, 2)
	assert.False(t, result.CanConfirm)
	assert.Empty(t, result.Token)
	assert.Empty(t, env.previews.items)
}

func TestPreviewRejectsFileAndHeaderProblems(t *testing.T) {
	env := newTestEnv(t)

	_, err := preview(t, env, "members.xlsx", "member_id,name,phone_number\nM1,A,+1-555-0001\n")
	assert.Equal(t, apperrors.CodeInvalidFileFormat, apperrors.CodeOf(err))

	_, err = preview(t, env, "members.csv", "member_id,name\nM1,A\n")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeMissingColumns, apperrors.CodeOf(err))
	assert.Contains(t, err.Error(), "phone_number")
	assert.Empty(t, env.previews.items)
}

func TestPreviewThenConfirmOnce(t *testing.T) {
	env := newTestEnv(t)
	env.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(sendOK())
	body := "member_id,name,phone_number,branch\n" +
		"M1,Alice,+1-555-0001,North\n" +
		"M2,,+1-555-0002,South\n"

	result, err := preview(t, env, "Members.CSV", body)
	require.NoError(t, err)
	assert.True(t, result.CanConfirm)
	require.NotEmpty(t, result.Token)
	assert.Len(t, result.ValidRows, 1)
	assert.Len(t, result.InvalidRows, 1)
	assert.NotEmpty(t, result.Warnings)
	require.NotNil(t, result.ExpiresAt)

	created, err := env.importer.Confirm(context.Background(), result.Token, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, created.Statistics.SuccessfulImports)
	assert.Equal(t, "Members.CSV", created.ImportOperation.CSVFileName)
	assert.Equal(t, domain.StatusPendingActivation, env.members.get(t, "M1").ActivationStatus)

	_, err = env.importer.Confirm(context.Background(), result.Token, testAdmin)
	assert.Equal(t, apperrors.CodePreviewExpired, apperrors.CodeOf(err))
}

func TestConfirmRequiresPreviewOwner(t *testing.T) {
	env := newTestEnv(t)
	env.sms.On("Send", mock.Anything, mock.Anything, mock.Anything).Return(sendOK())

	result, err := preview(t, env, "members.csv", "member_id,name,phone_number\nM1,Alice,+1-555-0001\n")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)

	other := domain.Actor{ID: "admin-2", Name: "Bob Admin"}
	_, err = env.importer.Confirm(context.Background(), result.Token, other)
	assert.Equal(t, "FORBIDDEN", apperrors.CodeOf(err))
	assert.Contains(t, env.previews.items, result.Token)

	created, err := env.importer.Confirm(context.Background(), result.Token, testAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, created.Statistics.SuccessfulImports)
}
