package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coop-member-import/internal/domain"
	apperrors "github.com/spec-kit/coop-member-import/pkg/util/errorutil"
)

func TestMasking(t *testing.T) {
	assert.Equal(t, "M***9", MaskMemberID("M1239"))
	assert.Equal(t, "**", MaskMemberID("AB"))
	assert.Equal(t, "*******0001", MaskPhone("+1 (555) 555-0001"))
	assert.Equal(t, "***", MaskPhone("123"))
	assert.Equal(t, "a***@example.com", MaskEmail("alice@example.com"))
	assert.Equal(t, "*******", MaskEmail("invalid"))
}

func TestListImportedMembersMasksAndPaginates(t *testing.T) {
	env := newTestEnv(t)
	env.seedMember(t, "M100", "+1-555-0001", domain.StatusPendingActivation, "Seeded1!")
	env.seedMember(t, "M200", "+1-555-0002", domain.StatusSMSFailed, "Seeded1!")
	env.seedMember(t, "M300", "+1-555-0003", domain.StatusActivated, "Seeded1!")

	page, err := env.query.ListImportedMembers(context.Background(), MemberQuery{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "M**0", page.Items[0].MemberID)
	assert.Equal(t, "*******0001", page.Items[0].PhoneNumber)
	assert.Empty(t, page.Items[0].Email)

	failed, err := env.query.ListImportedMembers(context.Background(), MemberQuery{
		Statuses: []domain.ActivationStatus{domain.StatusSMSFailed},
	})
	require.NoError(t, err)
	require.Len(t, failed.Items, 1)
	assert.Equal(t, domain.StatusSMSFailed, failed.Items[0].ActivationStatus)
	assert.Equal(t, 20, failed.PageSize)
}

func TestGetMemberDetailIsUnmasked(t *testing.T) {
	env := newTestEnv(t)
	seeded := env.seedMember(t, "M100", "+1-555-0001", domain.StatusPendingActivation, "Seeded1!")

	member, err := env.query.GetMemberDetail(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "M100", member.MemberID)
	assert.Equal(t, "+1-555-0001", member.PhoneNumber)

	_, err = env.query.GetMemberDetail(context.Background(), "missing")
	assert.Equal(t, apperrors.CodeMemberNotFound, apperrors.CodeOf(err))
}

func TestListAndGetImports(t *testing.T) {
	env := newTestEnv(t)
	env.seedMember(t, "M1", "+1-555-0001", domain.StatusPendingActivation, "Seeded1!")
	env.seedMember(t, "M2", "+1-555-0002", domain.StatusPendingActivation, "Seeded1!")

	page, err := env.query.ListImports(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)

	op, err := env.query.GetImport(context.Background(), page.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "seed.csv", op.CSVFileName)

	_, err = env.query.GetImport(context.Background(), "missing")
	assert.Equal(t, apperrors.CodeImportNotFound, apperrors.CodeOf(err))
}
