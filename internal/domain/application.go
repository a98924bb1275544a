package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ApplicationStatus is the pipeline-independent status every application carries.
type ApplicationStatus string

const (
	ApplicationStatusLead                ApplicationStatus = "lead"
	ApplicationStatusNew                 ApplicationStatus = "new"
	ApplicationStatusUnderReview         ApplicationStatus = "under_review"
	ApplicationStatusScreening           ApplicationStatus = "screening"
	ApplicationStatusShortlisted         ApplicationStatus = "shortlisted"
	ApplicationStatusInterviewScheduled  ApplicationStatus = "interview_scheduled"
	ApplicationStatusInterviewInProgress ApplicationStatus = "interview_in_progress"
	ApplicationStatusInterviewCompleted  ApplicationStatus = "interview_completed"
	ApplicationStatusReferenceCheck      ApplicationStatus = "reference_check"
	ApplicationStatusOfferPending        ApplicationStatus = "offer_pending"
	ApplicationStatusOfferSent           ApplicationStatus = "offer_sent"
	ApplicationStatusOfferAccepted       ApplicationStatus = "offer_accepted"
	ApplicationStatusOfferRejected       ApplicationStatus = "offer_rejected"
	ApplicationStatusNegotiating         ApplicationStatus = "negotiating"
	ApplicationStatusHired               ApplicationStatus = "hired"
	ApplicationStatusRejected            ApplicationStatus = "rejected"
	ApplicationStatusWithdrawn           ApplicationStatus = "withdrawn"
	ApplicationStatusOnHold              ApplicationStatus = "on_hold"
)

var applicationStatuses = map[ApplicationStatus]bool{
	ApplicationStatusLead: true, ApplicationStatusNew: true, ApplicationStatusUnderReview: true,
	ApplicationStatusScreening: true, ApplicationStatusShortlisted: true,
	ApplicationStatusInterviewScheduled: true, ApplicationStatusInterviewInProgress: true,
	ApplicationStatusInterviewCompleted: true, ApplicationStatusReferenceCheck: true,
	ApplicationStatusOfferPending: true, ApplicationStatusOfferSent: true,
	ApplicationStatusOfferAccepted: true, ApplicationStatusOfferRejected: true,
	ApplicationStatusNegotiating: true, ApplicationStatusHired: true,
	ApplicationStatusRejected: true, ApplicationStatusWithdrawn: true, ApplicationStatusOnHold: true,
}

// ParseApplicationStatus converts a raw string to an ApplicationStatus.
func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	st := ApplicationStatus(s)
	if !applicationStatuses[st] {
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown application status %q", s)}
	}
	return st, nil
}

// IsFinalOutcome reports whether s settles the application for its job.
func (s ApplicationStatus) IsFinalOutcome() bool {
	return s == ApplicationStatusHired || s == ApplicationStatusRejected || s == ApplicationStatusWithdrawn
}

// StatusHistoryEntry records one status change.
type StatusHistoryEntry struct {
	Status    ApplicationStatus `json:"status"`
	ChangedAt time.Time         `json:"changed_at"`
	ChangedBy string            `json:"changed_by"`
	Reason    string            `json:"reason,omitempty"`
	StageKey  string            `json:"stage_key,omitempty"`
	StageName string            `json:"stage_name,omitempty"`
}

// StageHistoryEntry records one move between pipeline stages.
type StageHistoryEntry struct {
	StageID          uuid.UUID `json:"stage_id"`
	StageKey         string    `json:"stage_key"`
	StageName        string    `json:"stage_name"`
	ChangedAt        time.Time `json:"changed_at"`
	ChangedBy        string    `json:"changed_by"`
	Reason           string    `json:"reason,omitempty"`
	PreviousStageKey string    `json:"previous_stage_key,omitempty"`
	ActionName       string    `json:"action_name,omitempty"`
}

// StatusHistory is stored as a jsonb array.
type StatusHistory []StatusHistoryEntry

func (h StatusHistory) Value() (driver.Value, error) {
	return marshalHistory(h)
}

func (h *StatusHistory) Scan(value any) error {
	return unmarshalHistory(value, h)
}

// StageHistory is stored as a jsonb array.
type StageHistory []StageHistoryEntry

func (h StageHistory) Value() (driver.Value, error) {
	return marshalHistory(h)
}

func (h *StageHistory) Scan(value any) error {
	return unmarshalHistory(value, h)
}

func marshalHistory(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

func unmarshalHistory(value any, dest any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan history: unsupported type %T", value)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("scan history: %w", err)
	}
	return nil
}

// Application is a candidate's application to a job.
type Application struct {
	ID                   uuid.UUID         `json:"id" db:"id"`
	JobID                uuid.UUID         `json:"job_id" db:"job_id"`
	CandidateID          uuid.UUID         `json:"candidate_id" db:"candidate_id"`
	Status               ApplicationStatus `json:"status" db:"status"`
	CurrentStageKey      *string           `json:"current_stage_key,omitempty" db:"current_stage_key"`
	CurrentStageName     *string           `json:"current_stage_name,omitempty" db:"current_stage_name"`
	StatusHistory        StatusHistory     `json:"status_history" db:"status_history"`
	PipelineStageHistory StageHistory      `json:"pipeline_stage_history" db:"pipeline_stage_history"`
	AppliedAt            time.Time         `json:"applied_at" db:"applied_at"`
	LastStatusChange     time.Time         `json:"last_status_change" db:"last_status_change"`
	DaysSinceApplied     int               `json:"days_since_applied" db:"days_since_applied"`
	DaysInCurrentStatus  int               `json:"days_in_current_status" db:"days_in_current_status"`
	Version              int64             `json:"version" db:"version"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" db:"updated_at"`
}

// Clone returns a copy whose history slices do not alias a.
func (a Application) Clone() Application {
	out := a
	out.StatusHistory = append(StatusHistory(nil), a.StatusHistory...)
	out.PipelineStageHistory = append(StageHistory(nil), a.PipelineStageHistory...)
	if a.CurrentStageKey != nil {
		k := *a.CurrentStageKey
		out.CurrentStageKey = &k
	}
	if a.CurrentStageName != nil {
		n := *a.CurrentStageName
		out.CurrentStageName = &n
	}
	return out
}

// WithStatus returns a copy of a moved to status, with one history entry appended.
// The entry timestamp never precedes the last recorded entry.
func (a Application) WithStatus(entry StatusHistoryEntry) Application {
	out := a.Clone()
	if n := len(out.StatusHistory); n > 0 && entry.ChangedAt.Before(out.StatusHistory[n-1].ChangedAt) {
		entry.ChangedAt = out.StatusHistory[n-1].ChangedAt
	}
	out.Status = entry.Status
	out.LastStatusChange = entry.ChangedAt
	out.DaysInCurrentStatus = 0
	out.StatusHistory = append(out.StatusHistory, entry)
	return out
}

// WithStage returns a copy of a pointing at the given stage, with one stage
// history entry appended.
func (a Application) WithStage(entry StageHistoryEntry) Application {
	out := a.Clone()
	if n := len(out.PipelineStageHistory); n > 0 && entry.ChangedAt.Before(out.PipelineStageHistory[n-1].ChangedAt) {
		entry.ChangedAt = out.PipelineStageHistory[n-1].ChangedAt
	}
	key, name := entry.StageKey, entry.StageName
	out.CurrentStageKey = &key
	out.CurrentStageName = &name
	out.PipelineStageHistory = append(out.PipelineStageHistory, entry)
	return out
}

// Recompute refreshes the day counters relative to now.
func (a *Application) Recompute(now time.Time) {
	a.DaysSinceApplied = daysBetween(a.AppliedAt, now)
	a.DaysInCurrentStatus = daysBetween(a.LastStatusChange, now)
}

func daysBetween(from, to time.Time) int {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours() / 24)
}

// ApplicationCounts aggregates application outcomes for one job.
type ApplicationCounts struct {
	Total    int `json:"total" db:"total"`
	Hired    int `json:"hired" db:"hired"`
	Rejected int `json:"rejected" db:"rejected"`
	Active   int `json:"active" db:"active"`
}
