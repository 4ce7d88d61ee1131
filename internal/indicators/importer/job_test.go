package importer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/habilita/habilita/internal/jobs"
	"github.com/habilita/habilita/jobs"
)

func TestCommitJobRunsQueuedBatch(t *testing.T) {
	svc, _, creator, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.Preview(ctx, "carga.csv", strings.NewReader("indicador_codigo,sede_id,anio,mes,numerador,denominador\nIND-01,10,2025,1,1,2\n"), "ana")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	job := NewCommitJob(svc, jobmetrics.NewMetrics(reg), nil)
	task, err := jobs.NewImportCommitTask(jobs.ImportCommitPayload{BatchID: p.ID, Actor: "ana"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(ctx, task))
	assert.Equal(t, 1, creator.calls)

	out, err := svc.Outcome(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana", out.Actor)

	count, err := testutil.GatherAndCount(reg, "habilita_import_rows_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = job.Handle(ctx, task)
	assert.True(t, errors.Is(err, asynq.SkipRetry), "second run must not retry: %v", err)
	assert.Equal(t, 1, creator.calls)
}

func TestCommitJobSkipsBadPayload(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	job := NewCommitJob(svc, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(jobs.TaskImportCommit, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestCommitJobUnknownBatchSkipsRetry(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	job := NewCommitJob(svc, nil, nil)
	task, err := jobs.NewImportCommitTask(jobs.ImportCommitPayload{BatchID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427"})
	require.NoError(t, err)
	assert.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}
