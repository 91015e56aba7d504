package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/coop-member-import/internal/auth"
	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/events"
	"github.com/spec-kit/coop-member-import/internal/notify"
	"github.com/spec-kit/coop-member-import/internal/repository"
)

const testBcryptCost = 4

// memberStore is an in-memory MemberRepository.
type memberStore struct {
	mu        sync.Mutex
	byID      map[string]*domain.Member
	order     []string
	createErr error
}

func newMemberStore() *memberStore {
	return &memberStore{byID: map[string]*domain.Member{}}
}

func (s *memberStore) Create(_ context.Context, m *domain.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.byID {
		switch {
		case existing.MemberID == m.MemberID:
			return repository.ErrDuplicateMemberID
		case existing.PhoneNumber == m.PhoneNumber:
			return repository.ErrDuplicatePhone
		case existing.Email == m.Email:
			return repository.ErrDuplicateEmail
		}
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	clone := *m
	s.byID[m.ID] = &clone
	s.order = append(s.order, m.ID)
	return nil
}

func (s *memberStore) GetByID(_ context.Context, id string) (*domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *m
	return &clone, nil
}

func (s *memberStore) GetByMemberID(_ context.Context, memberID string) (*domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byID {
		if m.MemberID == memberID {
			clone := *m
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (s *memberStore) FindConflict(_ context.Context, memberID, phone, email string) (*repository.MemberConflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		m := s.byID[id]
		switch {
		case m.MemberID == memberID:
			return &repository.MemberConflict{Field: "member_id", Value: memberID}, nil
		case m.PhoneNumber == phone:
			return &repository.MemberConflict{Field: "phone_number", Value: phone}, nil
		case email != "" && m.Email == email:
			return &repository.MemberConflict{Field: "email", Value: email}, nil
		}
	}
	return nil, nil
}

func (s *memberStore) update(id string, fn func(m *domain.Member) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	return fn(m)
}

func (s *memberStore) TransitionStatus(_ context.Context, id string, from, to domain.ActivationStatus) error {
	return s.update(id, func(m *domain.Member) error {
		if m.ActivationStatus != from {
			return pgx.ErrNoRows
		}
		m.ActivationStatus = to
		return nil
	})
}

func (s *memberStore) MarkSent(_ context.Context, id string, channel domain.Channel, at time.Time) error {
	return s.update(id, func(m *domain.Member) error {
		if channel == domain.ChannelEmail {
			m.EmailSentAt = &at
		} else {
			m.SMSSentAt = &at
		}
		return nil
	})
}

func (s *memberStore) RotateTemporaryCredential(_ context.Context, id, hash string, expires time.Time, clearSent bool) error {
	return s.update(id, func(m *domain.Member) error {
		m.TemporaryPasswordHash = &hash
		m.TemporaryPasswordExpires = &expires
		if clearSent {
			m.SMSSentAt = nil
			m.EmailSentAt = nil
		}
		return nil
	})
}

func (s *memberStore) RecordRetryFailure(_ context.Context, id string, channel domain.Channel, at time.Time) (int, error) {
	count := 0
	err := s.update(id, func(m *domain.Member) error {
		if channel == domain.ChannelEmail {
			m.EmailRetryCount++
			m.EmailLastRetryAt = &at
			count = m.EmailRetryCount
		} else {
			m.SMSRetryCount++
			m.SMSLastRetryAt = &at
			count = m.SMSRetryCount
		}
		return nil
	})
	return count, err
}

func (s *memberStore) ResetRetry(_ context.Context, id string, channel domain.Channel) error {
	return s.update(id, func(m *domain.Member) error {
		if channel == domain.ChannelEmail {
			m.EmailRetryCount, m.EmailLastRetryAt = 0, nil
		} else {
			m.SMSRetryCount, m.SMSLastRetryAt = 0, nil
		}
		return nil
	})
}

func (s *memberStore) Activate(_ context.Context, id, permanentHash string, method domain.ActivationMethod, at time.Time) error {
	return s.update(id, func(m *domain.Member) error {
		if m.ActivationStatus == domain.StatusActivated {
			return pgx.ErrNoRows
		}
		m.PermanentPasswordHash = permanentHash
		m.ActivationMethod = &method
		m.ActivationStatus = domain.StatusActivated
		m.TemporaryPasswordHash = nil
		m.TemporaryPasswordExpires = nil
		m.ActivatedAt = &at
		m.LastPasswordChangeAt = &at
		return nil
	})
}

func hasStatus(statuses []domain.ActivationStatus, status domain.ActivationStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *memberStore) ListByImport(_ context.Context, importID string, statuses []domain.ActivationStatus) ([]domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Member
	for _, id := range s.order {
		m := s.byID[id]
		if m.ImportID != nil && *m.ImportID == importID && hasStatus(statuses, m.ActivationStatus) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memberStore) ListWithFilter(_ context.Context, f repository.MemberFilter) ([]domain.Member, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.Member
	for _, id := range s.order {
		m := s.byID[id]
		if f.ImportedOnly && m.ImportID == nil {
			continue
		}
		if f.ImportID != nil && (m.ImportID == nil || *m.ImportID != *f.ImportID) {
			continue
		}
		if !hasStatus(f.Statuses, m.ActivationStatus) {
			continue
		}
		if f.SearchTerm != nil && !strings.Contains(strings.ToLower(m.MemberID+" "+m.FullName), strings.ToLower(*f.SearchTerm)) {
			continue
		}
		matched = append(matched, *m)
	}
	total := len(matched)
	start := min(f.Offset, total)
	end := min(start+f.Limit, total)
	return matched[start:end], total, nil
}

func (s *memberStore) ListRetryCandidates(_ context.Context, channel domain.Channel, maxRetries, limit int) ([]domain.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Member
	for _, id := range s.order {
		m := s.byID[id]
		count, _ := m.RetryState(channel)
		if m.ActivationStatus == channel.FailedStatus() && count < maxRetries && len(out) < limit {
			out = append(out, *m)
		}
	}
	return out, nil
}

// get returns the stored member without copying, for assertions.
func (s *memberStore) get(t *testing.T, memberID string) *domain.Member {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byID {
		if m.MemberID == memberID {
			return m
		}
	}
	t.Fatalf("member %s not stored", memberID)
	return nil
}

// importStore is an in-memory ImportOperationRepository.
type importStore struct {
	mu    sync.Mutex
	byID  map[string]*domain.ImportOperation
	order []string
}

func newImportStore() *importStore {
	return &importStore{byID: map[string]*domain.ImportOperation{}}
}

func (s *importStore) Create(_ context.Context, op *domain.ImportOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op.ID = uuid.NewString()
	op.CreatedAt = time.Now()
	if op.Status == "" {
		op.Status = domain.ImportStatusPending
	}
	clone := *op
	s.byID[op.ID] = &clone
	s.order = append(s.order, op.ID)
	return nil
}

func (s *importStore) GetByID(_ context.Context, id string) (*domain.ImportOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *op
	clone.ImportErrors = append([]domain.ImportError(nil), op.ImportErrors...)
	return &clone, nil
}

func (s *importStore) Finalize(_ context.Context, id string, stats domain.ImportStatistics, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	op.TotalRows = stats.TotalRows
	op.SuccessfulImports = stats.SuccessfulImports
	op.FailedImports = stats.FailedImports
	op.SkippedRows = stats.SkippedRows
	op.Status = domain.ImportStatusCompleted
	op.CompletedAt = &completedAt
	return nil
}

func (s *importStore) IncrementCounter(_ context.Context, id string, counter domain.ImportCounter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	switch counter {
	case domain.CounterSuccessfulImports:
		op.SuccessfulImports++
	case domain.CounterFailedImports:
		op.FailedImports++
	case domain.CounterSkippedRows:
		op.SkippedRows++
	case domain.CounterSMSSent:
		op.SMSSentCount++
	case domain.CounterSMSFailed:
		op.SMSFailedCount++
	case domain.CounterEmailSent:
		op.EmailSentCount++
	case domain.CounterEmailFailed:
		op.EmailFailedCount++
	default:
		return repository.ErrUnknownCounter
	}
	return nil
}

func (s *importStore) AppendError(_ context.Context, id string, entry domain.ImportError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	op.ImportErrors = append(op.ImportErrors, entry)
	return nil
}

func (s *importStore) List(_ context.Context, limit, offset int) ([]domain.ImportOperation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ImportOperation
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, *s.byID[s.order[i]])
	}
	total := len(out)
	start := min(offset, total)
	end := min(start+limit, total)
	return out[start:end], total, nil
}

// previewStore is an in-memory PreviewStore.
type previewStore struct {
	mu    sync.Mutex
	items map[string]repository.PreviewPayload
}

func newPreviewStore() *previewStore {
	return &previewStore{items: map[string]repository.PreviewPayload{}}
}

func (s *previewStore) Save(_ context.Context, token string, payload repository.PreviewPayload, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[token] = payload
	return nil
}

func (s *previewStore) Get(_ context.Context, token string) (*repository.PreviewPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.items[token]
	if !ok {
		return nil, repository.ErrPreviewNotFound
	}
	return &payload, nil
}

func (s *previewStore) Take(_ context.Context, token string) (*repository.PreviewPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.items[token]
	if !ok {
		return nil, repository.ErrPreviewNotFound
	}
	delete(s.items, token)
	return &payload, nil
}

// mockAdapter is a testify mock for a channel adapter.
type mockAdapter struct {
	mock.Mock
}

func (m *mockAdapter) Send(ctx context.Context, target string, data notify.TemplateData) notify.SendResult {
	args := m.Called(ctx, target, data)
	return args.Get(0).(notify.SendResult)
}

func sendOK() notify.SendResult {
	return notify.SendResult{Success: true, ChannelMessageID: "msg-" + uuid.NewString()}
}

func sendFail(reason string) notify.SendResult {
	return notify.SendResult{Err: errors.New(reason)}
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// auditLog captures published events.
type auditLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (a *auditLog) handle(_ context.Context, e events.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *auditLog) count(action domain.ActivityAction) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.events {
		if e.Type == action {
			n++
		}
	}
	return n
}

type testEnv struct {
	members  *memberStore
	imports  *importStore
	previews *previewStore
	sms      *mockAdapter
	email    *mockAdapter
	audit    *auditLog
	clock    *clock
	tokens   *auth.TokenManager

	notifications *NotificationService
	creator       *AccountCreator
	retry         *RetryService
	resend        *ResendService
	recovery      *RecoveryService
	importer      *ImportService
	query         *QueryService
	activation    *ActivationService
}

var testAdmin = domain.Actor{ID: "admin-1", Name: "Ada Admin"}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		members:  newMemberStore(),
		imports:  newImportStore(),
		previews: newPreviewStore(),
		sms:      &mockAdapter{},
		email:    &mockAdapter{},
		audit:    &auditLog{},
		clock:    &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		tokens:   auth.NewTokenManager("test-secret", 60),
	}
	dispatcher := events.NewInMemoryDispatcher(nil)
	dispatcher.SubscribeAll(env.audit.handle)

	reporter := NewErrorReporter(env.imports, dispatcher, nil)
	env.notifications = NewNotificationService(NotificationDependencies{
		Members:    env.members,
		Imports:    env.imports,
		SMS:        env.sms,
		Email:      env.email,
		Dispatcher: dispatcher,
		Now:        env.clock.Now,
	})
	env.creator = NewAccountCreator(AccountCreatorDependencies{
		Members:       env.members,
		Imports:       env.imports,
		Notifications: env.notifications,
		Reporter:      reporter,
		Dispatcher:    dispatcher,
		BcryptCost:    testBcryptCost,
		Now:           env.clock.Now,
	})
	policy := DefaultRetryPolicy()
	policy.BulkMemberDelay = 0
	env.retry = NewRetryService(RetryDependencies{
		Members:       env.members,
		Notifications: env.notifications,
		Dispatcher:    dispatcher,
		Policy:        policy,
		BcryptCost:    testBcryptCost,
		Now:           env.clock.Now,
	})
	env.resend = NewResendService(ResendDependencies{
		Members:       env.members,
		Notifications: env.notifications,
		Dispatcher:    dispatcher,
		BcryptCost:    testBcryptCost,
		Now:           env.clock.Now,
	})
	env.recovery = NewRecoveryService(RecoveryDependencies{
		Members:       env.members,
		Imports:       env.imports,
		Notifications: env.notifications,
		Reporter:      reporter,
		Dispatcher:    dispatcher,
		BcryptCost:    testBcryptCost,
		Now:           env.clock.Now,
	})
	env.importer = NewImportService(ImportDependencies{
		Previews:     env.previews,
		Creator:      env.creator,
		MaxFileBytes: 1 << 20,
		Now:          env.clock.Now,
	})
	env.query = NewQueryService(env.members, env.imports)
	env.activation = NewActivationService(ActivationDependencies{
		Members:    env.members,
		Tokens:     env.tokens,
		Dispatcher: dispatcher,
		BcryptCost: testBcryptCost,
		Now:        env.clock.Now,
	})
	return env
}

// seedMember stores an imported member with a known temporary password.
func (env *testEnv) seedMember(t *testing.T, memberID, phone string, status domain.ActivationStatus, tempPassword string) *domain.Member {
	t.Helper()
	op := &domain.ImportOperation{AdminID: testAdmin.ID, AdminName: testAdmin.Name, CSVFileName: "seed.csv", Status: domain.ImportStatusCompleted}
	require.NoError(t, env.imports.Create(context.Background(), op))

	hash, err := auth.HashPassword(tempPassword, testBcryptCost)
	require.NoError(t, err)
	expires := env.clock.Now().Add(auth.TemporaryPasswordTTL)
	importID := op.ID
	member := &domain.Member{
		MemberID:                 memberID,
		FullName:                 "Member " + memberID,
		PhoneNumber:              phone,
		Email:                    PlaceholderEmail(memberID, "no-email.invalid"),
		Role:                     domain.MemberRole,
		ActivationStatus:         status,
		TemporaryPasswordHash:    &hash,
		TemporaryPasswordExpires: &expires,
		PermanentPasswordHash:    unusablePasswordHash(),
		ImportID:                 &importID,
	}
	require.NoError(t, env.members.Create(context.Background(), member))
	return member
}

func row(n int, memberID, name, phone, email string) domain.MemberRow {
	return domain.MemberRow{RowNumber: n, MemberID: memberID, Name: name, PhoneNumber: phone, Email: email}
}
