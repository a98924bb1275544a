package domain

import "strings"

var statusByStageType = map[StageType]ApplicationStatus{
	StageTypeSourcing:  ApplicationStatusLead,
	StageTypeScreening: ApplicationStatusScreening,
	StageTypeInterview: ApplicationStatusInterviewScheduled,
	StageTypeOffer:     ApplicationStatusOfferPending,
	StageTypeHired:     ApplicationStatusHired,
	StageTypeRejected:  ApplicationStatusRejected,
	StageTypeOnHold:    ApplicationStatusOnHold,
}

// StatusForStage derives the application status a candidate carries while
// sitting in stage. Custom stages fall back to hints in the stage key.
func StatusForStage(stage Stage) ApplicationStatus {
	if status, ok := statusByStageType[stage.Type]; ok {
		return status
	}
	key := strings.ToLower(stage.Key)
	switch {
	case strings.Contains(key, "review"):
		return ApplicationStatusUnderReview
	case strings.Contains(key, "shortlist"):
		return ApplicationStatusShortlisted
	case strings.Contains(key, "reference"):
		return ApplicationStatusReferenceCheck
	default:
		return ApplicationStatusUnderReview
	}
}

// CurrentStage resolves where app sits in g by reverse-mapping its status.
// The stored stage pointer breaks ties between stages sharing a status, as
// long as it still agrees with that status; otherwise the lowest-ordered
// matching stage is used.
func (g *Graph) CurrentStage(app Application) (Stage, bool) {
	if app.CurrentStageKey != nil {
		if s, ok := g.Stage(*app.CurrentStageKey); ok && StatusForStage(s) == app.Status {
			return s, true
		}
	}
	for _, s := range g.Stages {
		if StatusForStage(s) == app.Status {
			return s, true
		}
	}
	return Stage{}, false
}
