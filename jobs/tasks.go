package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueImports holds import commits so a slow backend does not delay
	// scheduled work.
	QueueImports = "imports"

	// TaskImportCommit posts the valid rows of a stored import preview.
	TaskImportCommit = "results:import"
	// TaskComplianceSnapshot captures the compliance summary.
	TaskComplianceSnapshot = "compliance:snapshot"
)

// ErrEmptyBatch is returned when an import task carries no batch id.
var ErrEmptyBatch = errors.New("jobs: import batch id required")

// ImportCommitPayload identifies the preview to commit and who confirmed it.
type ImportCommitPayload struct {
	BatchID string `json:"batch_id"`
	Actor   string `json:"actor"`
}

// ComplianceSnapshotPayload scopes a snapshot to a year. Zero means the
// current year, which is what the daily schedule captures.
type ComplianceSnapshotPayload struct {
	Year int `json:"year"`
}

// NewImportCommitTask builds an import commit task. The task id is derived
// from the batch so a double submit is rejected by the queue. Commits are
// never retried: the outcome, failed or not, is what the user sees.
func NewImportCommitTask(payload ImportCommitPayload) (*asynq.Task, error) {
	payload.BatchID = strings.TrimSpace(payload.BatchID)
	if payload.BatchID == "" {
		return nil, ErrEmptyBatch
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskImportCommit, data,
		asynq.Queue(QueueImports),
		asynq.TaskID("import:"+payload.BatchID),
		asynq.MaxRetry(0),
	), nil
}

// NewComplianceSnapshotTask builds a snapshot task.
func NewComplianceSnapshotTask(payload ComplianceSnapshotPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskComplianceSnapshot, data, asynq.Queue(QueueDefault)), nil
}

// DecodeImportCommit reads an import commit payload.
func DecodeImportCommit(task *asynq.Task) (ImportCommitPayload, error) {
	var payload ImportCommitPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ImportCommitPayload{}, err
	}
	if strings.TrimSpace(payload.BatchID) == "" {
		return ImportCommitPayload{}, ErrEmptyBatch
	}
	return payload, nil
}

// DecodeComplianceSnapshot reads a snapshot payload. An empty payload is a
// snapshot of the current year.
func DecodeComplianceSnapshot(task *asynq.Task) (ComplianceSnapshotPayload, error) {
	var payload ComplianceSnapshotPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ComplianceSnapshotPayload{}, err
	}
	return payload, nil
}
