// internal/crisis/controller.go
package crisis

import (
	"time"

	"github.com/user/haven/internal/types"
)

// Per-level immediate-action tables.
var immediateActions = map[types.RiskLevel][]string{
	types.RiskSevere: {
		"contact emergency services immediately",
		"do not leave the person alone",
		"remove access to means of harm",
		"contact a trusted person now",
	},
	types.RiskHigh: {
		"schedule a professional consultation within 24 hours",
		"activate the support network",
		"review the safety plan together",
	},
	types.RiskModerate: {
		"increase session frequency",
		"practice grounding techniques",
		"connect with a support person",
	},
}

// Follow-up offsets per level. Advisory metadata only; delivery is the
// notifier's responsibility.
var followUpOffsets = map[types.RiskLevel][]struct {
	label  string
	offset time.Duration
}{
	types.RiskSevere: {
		{"immediate", 2 * time.Hour},
		{"short_term", 24 * time.Hour},
		{"ongoing", 7 * 24 * time.Hour},
	},
	types.RiskHigh: {
		{"immediate", 24 * time.Hour},
		{"short_term", 3 * 24 * time.Hour},
		{"ongoing", 14 * 24 * time.Hour},
	},
	types.RiskModerate: {
		{"short_term", 2 * 24 * time.Hour},
		{"ongoing", 7 * 24 * time.Hour},
	},
}

// directory is the static professional-contact list, ordered by the
// severity they are appropriate for.
var directory = []struct {
	contact  types.ProfessionalContact
	minLevel types.RiskLevel
}{
	{types.ProfessionalContact{
		Name:         "Emergency Services",
		Role:         "emergency",
		Phone:        "112",
		Availability: "24/7",
	}, types.RiskSevere},
	{types.ProfessionalContact{
		Name:         "National Crisis Helpline",
		Role:         "crisis_counselor",
		Phone:        "988",
		Availability: "24/7",
	}, types.RiskHigh},
	{types.ProfessionalContact{
		Name:         "On-call Therapist Network",
		Role:         "therapist",
		Phone:        "+1-800-555-0134",
		Availability: "08:00-22:00",
	}, types.RiskModerate},
}

// Controller builds CrisisEvents once risk crosses the moderate threshold.
type Controller struct{}

// New creates a Controller.
func New() *Controller {
	return &Controller{}
}

// ShouldEscalate reports whether the level triggers the crisis protocol.
func (c *Controller) ShouldEscalate(level types.RiskLevel) bool {
	return level.AtLeast(types.RiskModerate)
}

// Escalate builds the CrisisEvent for the assessment: immediate actions,
// the contact directory slice appropriate for the level, a safety plan
// templated from the indicator categories that fired, and the advisory
// follow-up schedule. The returned event is append-only thereafter.
func (c *Controller) Escalate(session *types.Session, assessment *types.RiskAssessment, now time.Time) *types.CrisisEvent {
	level := assessment.Level

	var contacts []types.ProfessionalContact
	for _, entry := range directory {
		if level.AtLeast(entry.minLevel) {
			contacts = append(contacts, entry.contact)
		}
	}

	var followUps []types.FollowUp
	for _, fu := range followUpOffsets[level] {
		followUps = append(followUps, types.FollowUp{Label: fu.label, Due: now.Add(fu.offset)})
	}

	return &types.CrisisEvent{
		ID:               types.NewCrisisEventID(),
		SessionID:        session.ID,
		UserID:           session.UserID,
		At:               now,
		Level:            level,
		Indicators:       assessment.Indicators,
		ImmediateActions: immediateActions[level],
		Contacts:         contacts,
		SafetyPlan:       safetyPlan(assessment),
		FollowUps:        followUps,
	}
}

// safetyPlan templates plan steps from the indicator categories present.
// Each category contributes its steps once, however many terms matched.
func safetyPlan(assessment *types.RiskAssessment) []string {
	plan := []string{"recognize personal warning signs and triggers"}
	if assessment.HasIndicator(types.RiskSuicidalIdeation) || assessment.HasIndicator(types.RiskSelfHarm) {
		plan = append(plan,
			"keep the environment free of means of harm",
			"call the crisis helpline before acting on urges")
	}
	if assessment.HasIndicator(types.RiskHopelessness) {
		plan = append(plan, "write down one reason to hold on for tomorrow")
	}
	if assessment.HasIndicator(types.RiskIsolation) {
		plan = append(plan, "reach out to one trusted person today")
	}
	if assessment.HasIndicator(types.RiskSubstanceUse) {
		plan = append(plan, "avoid alcohol and non-prescribed substances while distressed")
	}
	plan = append(plan, "keep the professional contact list within reach")
	return plan
}
