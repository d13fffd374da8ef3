package models

import (
	"time"
)

// JobType enumerates the closed set of work the queue accepts.
type JobType string

const (
	JobIngestSource     JobType = "INGEST_SOURCE"
	JobPrepAssets       JobType = "PREP_ASSETS_FOR_PRODUCT"
	JobRefreshPrice     JobType = "REFRESH_PRICE"
	JobRefreshInventory JobType = "REFRESH_INVENTORY"
)

// JobStatus enumerates lifecycle states persisted in the job_queue table.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// Job represents one queued unit of work. A job is held by at most one
// worker at a time; a completed or terminally failed job never returns to
// pending.
type Job struct {
	ID          string     `json:"id"`
	JobType     JobType    `json:"job_type"`
	Payload     Payload    `json:"payload"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Payload is the opaque key/value map interpreted by the handler for a
// job's type.
type Payload map[string]any

// StringField extracts a string payload field, reporting whether it was
// present and non-empty.
func (p Payload) StringField(key string) (string, bool) {
	v, ok := p[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
