package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a change other subsystems may react to.
type EventType string

const (
	EventApplicationStatusChanged EventType = "application.status_changed"
	EventApplicationStageChanged  EventType = "application.stage_changed"
	EventJobStatusChanged         EventType = "job.status_changed"
)

// Event describes one committed status or stage change.
type Event struct {
	Type          EventType  `json:"type"`
	ApplicationID *uuid.UUID `json:"application_id,omitempty"`
	JobID         uuid.UUID  `json:"job_id"`
	OldStatus     string     `json:"old_status"`
	NewStatus     string     `json:"new_status"`
	StageKey      string     `json:"stage_key,omitempty"`
	Actor         string     `json:"actor"`
	Reason        string     `json:"reason,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}
