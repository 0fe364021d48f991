package models

import (
	"bytes"
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Column names of the render job row. Optional ones may be missing from older schemas.
const (
	ColumnID           = "id"
	ColumnPayload      = "payload"
	ColumnStatus       = "status"
	ColumnProgress     = "progress"
	ColumnWorkerID     = "worker_id"
	ColumnCreatedAt    = "created_at"
	ColumnStartedAt    = "started_at"
	ColumnFinishedAt   = "finished_at"
	ColumnCompletedAt  = "completed_at"
	ColumnUpdatedAt    = "updated_at"
	ColumnErrorMessage = "error_message"
	ColumnResult       = "result"
)

type RenderJob struct {
	ID           string          `json:"id" db:"id" redis:"id"`
	Payload      json.RawMessage `json:"payload,omitempty" db:"payload" redis:"payload"`
	Status       JobStatus       `json:"status" db:"status" redis:"status"`
	Progress     int             `json:"progress" db:"progress" redis:"progress"`
	WorkerID     string          `json:"worker_id,omitempty" db:"worker_id" redis:"worker_id"`
	CreatedAt    *time.Time      `json:"created_at,omitempty" db:"created_at" redis:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty" db:"started_at" redis:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty" db:"finished_at" redis:"finished_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty" db:"completed_at" redis:"completed_at"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message" redis:"error_message"`
	Result       json.RawMessage `json:"result,omitempty" db:"result" redis:"result"`
}

// HasPayload reports whether the row carries a usable payload document.
func (j *RenderJob) HasPayload() bool {
	if j == nil || len(j.Payload) == 0 {
		return false
	}
	trimmed := string(bytes.TrimSpace(j.Payload))
	return trimmed != "" && trimmed != "null" && trimmed != `""`
}

// RenderResult is stored on the job row when the render completes.
type RenderResult struct {
	PublicURL  string `json:"publicUrl"`
	Bucket     string `json:"bucket"`
	ObjectPath string `json:"objectPath"`
	RequestID  string `json:"requestId"`
}

// JobPatch is a set of column assignments for one job row. A nil value clears the column.
type JobPatch map[string]interface{}

// Without returns a copy of the patch minus the given column.
func (p JobPatch) Without(column string) JobPatch {
	out := make(JobPatch, len(p))
	for k, v := range p {
		if k != column {
			out[k] = v
		}
	}
	return out
}
