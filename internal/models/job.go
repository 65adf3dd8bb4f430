package models

import "time"

// JobKind names the long-running operations a front end can start.
type JobKind string

const (
	JobDownload  JobKind = "download"
	JobVideo     JobKind = "video"
	JobSolarWind JobKind = "solarwind"
	JobCleanup   JobKind = "cleanup"
)

// JobStatus follows pending -> running -> completed|failed|cancelled.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is the status record of one background operation.
type Job struct {
	ID         string                 `json:"id"`
	Kind       JobKind                `json:"kind"`
	Status     JobStatus              `json:"status"`
	Progress   float64                `json:"progress"` // 0..1
	Message    string                 `json:"message,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Result     interface{}            `json:"result,omitempty"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}
