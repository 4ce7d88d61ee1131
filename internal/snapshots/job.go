package snapshots

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/habilita/habilita/internal/jobs"
	"github.com/habilita/habilita/jobs"
)

// Job processes compliance snapshot tasks.
type Job struct {
	service *Service
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewJob constructs a job handler.
func NewJob(service *Service, metrics *jobmetrics.Metrics, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{service: service, metrics: metrics, logger: logger}
}

// Handle fulfils the asynq.HandlerFunc contract.
func (j *Job) Handle(ctx context.Context, task *asynq.Task) error {
	payload, err := jobs.DecodeComplianceSnapshot(task)
	if err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics.Track("compliance_snapshot")
	snap, err := j.service.Capture(ctx, payload.Year)
	if err = tracker.End(err); err != nil {
		j.logger.Error("compliance snapshot", slog.Int("year", payload.Year), slog.Any("error", err))
		if errors.Is(err, ErrNoData) {
			return asynq.SkipRetry
		}
		return err
	}
	if payload.Year == 0 {
		j.metrics.SetComplianceRate(snap.Rate)
	}
	return nil
}
