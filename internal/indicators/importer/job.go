package importer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/habilita/habilita/internal/jobs"
	"github.com/habilita/habilita/jobs"
)

// CommitJob runs import commits queued by the web handler.
type CommitJob struct {
	service *Service
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewCommitJob constructs the handler. The worker has no user session, so
// backend calls authenticate with the client's service token.
func NewCommitJob(service *Service, metrics *jobmetrics.Metrics, logger *slog.Logger) *CommitJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommitJob{service: service, metrics: metrics, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract. A missing preview or an
// already committed batch is not retried.
func (j *CommitJob) Handle(ctx context.Context, task *asynq.Task) error {
	payload, err := jobs.DecodeImportCommit(task)
	if err != nil {
		j.logger.Warn("import commit payload", slog.Any("error", err))
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track("import_commit")
	out, err := j.service.Commit(ctx, payload.BatchID, payload.Actor)
	j.metrics.AddImportedRows("created", out.Created)
	j.metrics.AddImportedRows("skipped", out.Skipped)
	if err = tracker.End(err); err != nil {
		j.logger.Error("import commit", slog.String("batch", payload.BatchID), slog.Any("error", err))
		if errors.Is(err, ErrPreviewNotFound) || errors.Is(err, ErrAlreadyCommitted) || errors.Is(err, ErrNothingToCommit) {
			return asynq.SkipRetry
		}
		return err
	}
	return nil
}
