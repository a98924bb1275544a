package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// StageType is the coarse category of a pipeline stage.
type StageType string

const (
	StageTypeSourcing  StageType = "sourcing"
	StageTypeScreening StageType = "screening"
	StageTypeInterview StageType = "interview"
	StageTypeOffer     StageType = "offer"
	StageTypeHired     StageType = "hired"
	StageTypeRejected  StageType = "rejected"
	StageTypeOnHold    StageType = "on_hold"
	StageTypeCustom    StageType = "custom"
)

// StageTypes lists every accepted stage type.
var StageTypes = []StageType{
	StageTypeSourcing, StageTypeScreening, StageTypeInterview, StageTypeOffer,
	StageTypeHired, StageTypeRejected, StageTypeOnHold, StageTypeCustom,
}

// Valid reports whether t is one of the known stage types.
func (t StageType) Valid() bool {
	for _, st := range StageTypes {
		if st == t {
			return true
		}
	}
	return false
}

// MaxStageKeyLength bounds a stage key; it matches the key column width.
const MaxStageKeyLength = 100

var stageKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidStageKey reports whether key is a lowercase snake_case identifier of
// at most MaxStageKeyLength bytes.
func ValidStageKey(key string) bool {
	return len(key) <= MaxStageKeyLength && stageKeyPattern.MatchString(key)
}

// Pipeline is an organization-owned hiring workflow.
type Pipeline struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrganizationID uuid.UUID `json:"organization_id" db:"organization_id"`
	Name           string    `json:"name" db:"name"`
	Description    *string   `json:"description,omitempty" db:"description"`
	Active         bool      `json:"active" db:"active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Stage is a node of a pipeline.
type Stage struct {
	ID         uuid.UUID `json:"id" db:"id"`
	PipelineID uuid.UUID `json:"pipeline_id" db:"pipeline_id"`
	Key        string    `json:"key" db:"key"`
	Name       string    `json:"name" db:"name"`
	Type       StageType `json:"type" db:"type"`
	Order      int       `json:"order" db:"stage_order"`
	Terminal   bool      `json:"terminal" db:"terminal"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Transition is a directed edge between two stages of the same pipeline.
type Transition struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	PipelineID   uuid.UUID      `json:"pipeline_id" db:"pipeline_id"`
	FromStageKey string         `json:"from_stage_key" db:"from_stage_key"`
	ToStageKey   string         `json:"to_stage_key" db:"to_stage_key"`
	ActionName   *string        `json:"action_name,omitempty" db:"action_name"`
	AllowedRoles pq.StringArray `json:"allowed_roles,omitempty" db:"allowed_roles"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// Touches reports whether either endpoint of t is key.
func (t Transition) Touches(key string) bool {
	return t.FromStageKey == key || t.ToStageKey == key
}

// Permits reports whether an actor holding roles may traverse t.
// A transition without role restrictions is open to everyone.
func (t Transition) Permits(roles []string) bool {
	if len(t.AllowedRoles) == 0 {
		return true
	}
	for _, allowed := range t.AllowedRoles {
		for _, r := range roles {
			if r == allowed {
				return true
			}
		}
	}
	return false
}

// LockMode selects how a pipeline row is locked for the rest of a transaction.
type LockMode int

const (
	// LockShared is taken by readers that must not observe a structural edit mid-way.
	LockShared LockMode = iota
	// LockExclusive is taken by structural writes.
	LockExclusive
)
