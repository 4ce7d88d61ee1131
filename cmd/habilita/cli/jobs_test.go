package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habilita/habilita/jobs"
)

type stubClient struct {
	tasks []*asynq.Task
	err   error
}

func (s *stubClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type(), Queue: "q"}, nil
}

func (s *stubClient) Close() error { return nil }

type stubInspector struct {
	infos     map[string]*asynq.QueueInfo
	scheduled []*asynq.TaskInfo
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func (s stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, nil
}

func (s stubInspector) Close() error { return nil }

func TestTriggerSnapshot(t *testing.T) {
	client := &stubClient{}
	c := NewJobsCLIWith(client, nil)

	info, err := c.Trigger(context.Background(), "snapshot", []string{"2025"})
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskComplianceSnapshot, info.Type)
	require.Len(t, client.tasks, 1)

	var payload jobs.ComplianceSnapshotPayload
	require.NoError(t, json.Unmarshal(client.tasks[0].Payload(), &payload))
	assert.Equal(t, 2025, payload.Year)

	_, err = c.Trigger(context.Background(), "snapshot", []string{"veinte"})
	require.ErrorContains(t, err, "invalid year")
}

func TestTriggerImport(t *testing.T) {
	client := &stubClient{}
	c := NewJobsCLIWith(client, nil)

	_, err := c.Trigger(context.Background(), "import", nil)
	require.ErrorIs(t, err, ErrUsage)

	_, err = c.Trigger(context.Background(), "import", []string{"b-1", "ana"})
	require.NoError(t, err)
	payload, err := jobs.DecodeImportCommit(client.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, jobs.ImportCommitPayload{BatchID: "b-1", Actor: "ana"}, payload)

	client.err = asynq.ErrTaskIDConflict
	_, err = c.Trigger(context.Background(), "import", []string{"b-1"})
	require.ErrorIs(t, err, jobs.ErrDuplicateTask)

	_, err = c.Trigger(context.Background(), "reindex", nil)
	require.ErrorContains(t, err, "unsupported job")
}

func TestRunInspect(t *testing.T) {
	inspector := stubInspector{
		infos: map[string]*asynq.QueueInfo{
			jobs.QueueImports: {Queue: jobs.QueueImports, Pending: 2, Active: 1, Archived: 1},
		},
		scheduled: []*asynq.TaskInfo{{ID: "s-1", Type: jobs.TaskComplianceSnapshot, NextProcessAt: time.Date(2025, 6, 16, 5, 30, 0, 0, time.UTC)}},
	}
	c := NewJobsCLIWith(&stubClient{}, inspector)

	stats, err := c.InspectQueues(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, QueueStats{Queue: jobs.QueueImports, Pending: 2, Active: 1, Archived: 1}, stats[0])
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault}, stats[1])

	out := &bytes.Buffer{}
	require.NoError(t, c.Run(context.Background(), []string{"inspect"}, out))
	assert.Contains(t, out.String(), "QUEUE")
	assert.Contains(t, out.String(), "scheduled compliance:snapshot id=s-1 at=2025-06-16 05:30")

	require.ErrorIs(t, c.Run(context.Background(), nil, out), ErrUsage)
	require.ErrorIs(t, c.Run(context.Background(), []string{"trigger"}, out), ErrUsage)
}

func TestRunTrigger(t *testing.T) {
	out := &bytes.Buffer{}
	c := NewJobsCLIWith(&stubClient{}, nil)
	require.NoError(t, c.Run(context.Background(), []string{"trigger", "snapshot"}, out))
	assert.Equal(t, "enqueued compliance:snapshot id=task-1 queue=q\n", out.String())
}
