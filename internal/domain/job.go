package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the publication state of a job posting.
type JobStatus string

const (
	JobStatusDraft           JobStatus = "draft"
	JobStatusPendingApproval JobStatus = "pending_approval"
	JobStatusActive          JobStatus = "active"
	JobStatusPaused          JobStatus = "paused"
	JobStatusClosed          JobStatus = "closed"
	JobStatusExpired         JobStatus = "expired"
	JobStatusCancelled       JobStatus = "cancelled"
	JobStatusArchived        JobStatus = "archived"
)

// JobStatuses lists every job status.
var JobStatuses = []JobStatus{
	JobStatusDraft, JobStatusPendingApproval, JobStatusActive, JobStatusPaused,
	JobStatusClosed, JobStatusExpired, JobStatusCancelled, JobStatusArchived,
}

// ParseJobStatus converts a raw string to a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	for _, st := range JobStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown job status %q", s)}
}

// Job is a job posting. Its Status only changes through the lifecycle machine.
type Job struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	OrganizationID  uuid.UUID  `json:"organization_id" db:"organization_id"`
	Title           string     `json:"title" db:"title"`
	Status          JobStatus  `json:"status" db:"status"`
	PipelineID      *uuid.UUID `json:"pipeline_id,omitempty" db:"pipeline_id"`
	HireLimit       *int       `json:"hire_limit,omitempty" db:"hire_limit"`
	MaxApplications *int       `json:"max_applications,omitempty" db:"max_applications"`
	PostedDate      *time.Time `json:"posted_date,omitempty" db:"posted_date"`
	ClosedDate      *time.Time `json:"closed_date,omitempty" db:"closed_date"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	StatusChangedAt time.Time  `json:"status_changed_at" db:"status_changed_at"`
	Version         int64      `json:"version" db:"version"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}
