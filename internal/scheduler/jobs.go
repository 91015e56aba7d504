package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/coop-member-import/internal/domain"
	"github.com/spec-kit/coop-member-import/internal/service"
)

// BulkRetrier is the part of the retry service the jobs drive.
type BulkRetrier interface {
	RetryFailedNotifications(ctx context.Context, memberIDs []string, channel domain.Channel, actor domain.Actor) (*service.BulkSummary, error)
}

// RetryCandidateLister finds members whose last send failed.
type RetryCandidateLister interface {
	ListRetryCandidates(ctx context.Context, channel domain.Channel, maxRetries, limit int) ([]domain.Member, error)
}

// JobRunner holds the scheduled retry jobs.
type JobRunner struct {
	members    RetryCandidateLister
	retrier    BulkRetrier
	logger     *zap.Logger
	maxRetries int
	batchSize  int
	timeout    time.Duration
}

// NewJobRunner builds the runner.
func NewJobRunner(members RetryCandidateLister, retrier BulkRetrier, logger *zap.Logger, maxRetries, batchSize int) *JobRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobRunner{
		members:    members,
		retrier:    retrier,
		logger:     logger,
		maxRetries: maxRetries,
		batchSize:  batchSize,
		timeout:    4 * time.Minute,
	}
}

// RetryFailedSMS retries members in sms_failed.
func (j *JobRunner) RetryFailedSMS() {
	j.run(domain.ChannelSMS)
}

// RetryFailedEmail retries members in email_failed.
func (j *JobRunner) RetryFailedEmail() {
	j.run(domain.ChannelEmail)
}

func (j *JobRunner) run(channel domain.Channel) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if _, err := j.RunOnce(ctx, channel); err != nil {
		j.logger.Error("scheduled retry failed", zap.String("channel", string(channel)), zap.Error(err))
	}
}

// RunOnce retries one batch of candidates on channel.
func (j *JobRunner) RunOnce(ctx context.Context, channel domain.Channel) (*service.BulkSummary, error) {
	candidates, err := j.members.ListRetryCandidates(ctx, channel, j.maxRetries, j.batchSize)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &service.BulkSummary{}, nil
	}

	ids := make([]string, 0, len(candidates))
	for i := range candidates {
		ids = append(ids, candidates[i].MemberID)
	}
	summary, err := j.retrier.RetryFailedNotifications(ctx, ids, channel, domain.SystemActor)
	if summary != nil {
		j.logger.Info("scheduled retry batch",
			zap.String("channel", string(channel)),
			zap.Int("total", summary.Total),
			zap.Int("successful", summary.Successful),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped))
	}
	return summary, err
}
