package models

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusStopped   JobStatus = "stopped"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusRunning, JobStatusStopped, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusStopped || s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one load-test session. ExternalID is nil until the executor
// returned a correlation id. ExpiresAt is always StartedAt + Duration.
type Job struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	Target       string          `json:"target"`
	Port         *int            `json:"port,omitempty"`
	Duration     int             `json:"duration"`
	JobType      string          `json:"job_type"`
	Status       JobStatus       `json:"status"`
	Params       json.RawMessage `json:"params,omitempty"`
	ExternalID   *string         `json:"external_id,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Live reports whether the job still occupies a concurrency slot at now.
// A running job past its expiry is not live even if nothing updated it.
func (j *Job) Live(now time.Time) bool {
	return j.Status == JobStatusRunning && j.ExpiresAt.After(now)
}

// EffectiveStatus is Status with lapsed running jobs reported as completed.
func (j *Job) EffectiveStatus(now time.Time) JobStatus {
	if j.Status == JobStatusRunning && !j.ExpiresAt.After(now) {
		return JobStatusCompleted
	}
	return j.Status
}
