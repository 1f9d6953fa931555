// internal/types/models.go
package types

import (
	"time"
)

// Modality identifies the input channel an EmotionSignal was derived from.
type Modality string

const (
	ModalityText   Modality = "text"
	ModalityVoice  Modality = "voice"
	ModalityFacial Modality = "facial"
)

// Emotion is the primary emotion label carried by an EmotionSignal.
type Emotion string

const (
	EmotionAnxiety    Emotion = "anxiety"
	EmotionDepression Emotion = "depression"
	EmotionStress     Emotion = "stress"
	EmotionAnger      Emotion = "anger"
	EmotionJoy        Emotion = "joy"
	EmotionNeutral    Emotion = "neutral"
)

// EmotionSignal is a normalized per-modality emotional reading for one turn.
// Signals are immutable once produced.
type EmotionSignal struct {
	Modality       Modality  `json:"modality"`
	PrimaryEmotion Emotion   `json:"primary_emotion"`
	Intensity      float64   `json:"intensity"`  // [0,1]
	Valence        float64   `json:"valence"`    // [-1,1]
	Arousal        float64   `json:"arousal"`    // [0,1]
	Confidence     float64   `json:"confidence"` // [0,1]; 0 means the extractor failed
	At             time.Time `json:"at"`
}

// NeutralSignal is the defaulted reading substituted when an extractor
// fails or times out. Confidence 0 marks it as carrying no evidence.
func NeutralSignal(modality Modality, at time.Time) EmotionSignal {
	return EmotionSignal{
		Modality:       modality,
		PrimaryEmotion: EmotionNeutral,
		Intensity:      0,
		Valence:        0,
		Arousal:        0,
		Confidence:     0,
		At:             at,
	}
}

// RiskCategory classifies a risk indicator.
type RiskCategory string

const (
	RiskSuicidalIdeation RiskCategory = "suicidal_ideation"
	RiskSelfHarm         RiskCategory = "self_harm"
	RiskHopelessness     RiskCategory = "hopelessness"
	RiskIsolation        RiskCategory = "isolation"
	RiskSubstanceUse     RiskCategory = "substance_use"
)

// ProtectiveCategory classifies a protective factor.
type ProtectiveCategory string

const (
	ProtectiveSocialSupport     ProtectiveCategory = "social_support"
	ProtectiveCopingSkills      ProtectiveCategory = "coping_skills"
	ProtectiveFutureOrientation ProtectiveCategory = "future_orientation"
	ProtectiveHelpSeeking       ProtectiveCategory = "help_seeking"
)

// RiskIndicator is weighted evidence of harm risk found in message text.
type RiskIndicator struct {
	Category     RiskCategory `json:"category"`
	MatchedTerms []string     `json:"matched_terms"`
	Weight       int          `json:"weight"`
}

// ProtectiveFactor is evidence of resilience found in message text.
type ProtectiveFactor struct {
	Category     ProtectiveCategory `json:"category"`
	MatchedTerms []string           `json:"matched_terms"`
}

// RiskLevel is the discrete fused risk verdict for a turn.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskSevere   RiskLevel = "severe"
)

// Rank orders levels: severe > high > moderate > low > none.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskSevere:
		return 4
	case RiskHigh:
		return 3
	case RiskModerate:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether l is at or above other in severity.
func (l RiskLevel) AtLeast(other RiskLevel) bool {
	return l.Rank() >= other.Rank()
}

// RiskAssessment is the fused risk verdict for one turn. Immutable once
// appended to a session's history.
type RiskAssessment struct {
	ID                   AssessmentID       `json:"id"`
	SessionID            SessionID          `json:"session_id"`
	Level                RiskLevel          `json:"level"`
	Score                int                `json:"score"`
	Confidence           float64            `json:"confidence"`
	Indicators           []RiskIndicator    `json:"indicators"`
	ProtectiveFactors    []ProtectiveFactor `json:"protective_factors"`
	At                   time.Time          `json:"at"`
	FollowUpRequired     bool               `json:"follow_up_required"`
	ProfessionalReferral bool               `json:"professional_referral"`
}

// HasIndicator reports whether the assessment carries an indicator of the
// given category.
func (a *RiskAssessment) HasIndicator(cat RiskCategory) bool {
	for _, ind := range a.Indicators {
		if ind.Category == cat {
			return true
		}
	}
	return false
}

// SessionState is the lifecycle state of a Session.
type SessionState string

const (
	StateInitializing SessionState = "initializing"
	StateActive       SessionState = "active"
	StateClosing      SessionState = "closing"
	StateClosed       SessionState = "closed"
)

// ProgressMetrics are bounded per-session therapeutic scores, each in [0,1].
type ProgressMetrics struct {
	EmotionalRegulation float64 `json:"emotional_regulation"`
	SelfAwareness       float64 `json:"self_awareness"`
	CopingSkillsUsage   float64 `json:"coping_skills_usage"`
	TherapeuticAlliance float64 `json:"therapeutic_alliance"`
	EngagementLevel     float64 `json:"engagement_level"`
}

// Strategy is the therapeutic-approach tag handed to the response generator.
type Strategy string

const (
	StrategyValidation             Strategy = "validation"
	StrategyCognitiveRestructuring Strategy = "cognitive_restructuring"
	StrategyMindfulness            Strategy = "mindfulness"
	StrategyCrisisIntervention     Strategy = "crisis_intervention"
	StrategyBehavioralActivation   Strategy = "behavioral_activation"
	StrategyPsychoeducation        Strategy = "psychoeducation"
)

// CulturalContext carries language and formality cues for response shaping.
type CulturalContext struct {
	Language  string `json:"language"`
	Formality string `json:"formality,omitempty"` // "formal" or "informal"
	Region    string `json:"region,omitempty"`
}

// Directive is the structured instruction the planner emits for the
// external response generator. It never contains user-facing prose.
type Directive struct {
	Strategy   Strategy `json:"strategy"`
	Tone       string   `json:"tone,omitempty"`       // e.g. "gentle_supportive"
	Complexity string   `json:"complexity,omitempty"` // e.g. "simplified"
	Language   string   `json:"language,omitempty"`
	Formality  string   `json:"formality,omitempty"`
}

// AdaptationRecord logs one planner decision on a session.
type AdaptationRecord struct {
	Strategy Strategy  `json:"strategy"`
	Level    RiskLevel `json:"level"`
	At       time.Time `json:"at"`
}

// JourneyCap bounds a session's emotional journey; oldest entries are
// evicted first.
const JourneyCap = 50

// Session is the stateful per-user conversational context. It is owned
// exclusively by the state machine while Active.
type Session struct {
	ID          SessionID          `json:"id"`
	UserID      UserID             `json:"user_id"`
	StartTime   time.Time          `json:"start_time"`
	EndTime     *time.Time         `json:"end_time,omitempty"`
	State       SessionState       `json:"state"`
	Modality    Modality           `json:"modality"`
	Culture     CulturalContext    `json:"culture"`
	Goals       []string           `json:"goals"`
	Journey     []EmotionSignal    `json:"journey"`
	Assessments []*RiskAssessment  `json:"assessments"`
	Metrics     ProgressMetrics    `json:"metrics"`
	Adaptations []AdaptationRecord `json:"adaptations"`
	Transcript  []Utterance        `json:"transcript"`
}

// Utterance is one entry of a session transcript, used to build the
// recent-history window for the response generator.
type Utterance struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// AppendSignal appends to the journey, evicting the oldest entry once the
// cap is reached.
func (s *Session) AppendSignal(sig EmotionSignal) {
	s.Journey = append(s.Journey, sig)
	if len(s.Journey) > JourneyCap {
		s.Journey = s.Journey[len(s.Journey)-JourneyCap:]
	}
}

// LatestAssessment returns the most recent assessment, or nil.
func (s *Session) LatestAssessment() *RiskAssessment {
	if len(s.Assessments) == 0 {
		return nil
	}
	return s.Assessments[len(s.Assessments)-1]
}

// Clone returns a copy of the session safe to read after the original
// has moved on: scalar fields and every slice are copied. Assessments
// are shared by pointer; they are immutable once appended.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	c.Goals = append([]string(nil), s.Goals...)
	c.Journey = append([]EmotionSignal(nil), s.Journey...)
	c.Assessments = append([]*RiskAssessment(nil), s.Assessments...)
	c.Adaptations = append([]AdaptationRecord(nil), s.Adaptations...)
	c.Transcript = append([]Utterance(nil), s.Transcript...)
	return &c
}

// VoicePayload is the optional voice-modality input for a turn.
type VoicePayload struct {
	Transcript string  `json:"transcript"`
	Amplitude  float64 `json:"amplitude"` // [0,1] coarse bucket
	Pitch      float64 `json:"pitch"`     // [0,1] coarse bucket
}

// FacialPayload is the optional facial-modality input for a turn: one
// emotion probability vector per captured frame.
type FacialPayload struct {
	Frames [][]float64 `json:"frames"`
}

// TurnInput is everything the caller supplies for one user turn.
type TurnInput struct {
	Message string         `json:"message"`
	Voice   *VoicePayload  `json:"voice,omitempty"`
	Facial  *FacialPayload `json:"facial,omitempty"`
}

// TurnResult is what processTurn hands back to the caller.
type TurnResult struct {
	Assessment *RiskAssessment `json:"assessment"`
	Directive  Directive       `json:"directive"`
	Signals    []EmotionSignal `json:"signals"`
	Reply      string          `json:"reply"`
	Crisis     *CrisisEvent    `json:"crisis,omitempty"`
}

// ProfessionalContact is one entry of the static referral directory.
type ProfessionalContact struct {
	Name         string `json:"name"`
	Role         string `json:"role"`
	Phone        string `json:"phone"`
	Availability string `json:"availability"`
}

// FollowUp is one advisory outreach slot on a crisis event's schedule.
type FollowUp struct {
	Label string    `json:"label"` // "immediate", "short_term", "ongoing"
	Due   time.Time `json:"due"`
}

// CrisisEvent is the escalation record produced once risk crosses the
// moderate threshold. Append-only; retained for audit independent of
// session deletion.
type CrisisEvent struct {
	ID               CrisisEventID         `json:"id"`
	SessionID        SessionID             `json:"session_id"`
	UserID           UserID                `json:"user_id"`
	At               time.Time             `json:"at"`
	Level            RiskLevel             `json:"level"`
	Indicators       []RiskIndicator       `json:"indicators"`
	ImmediateActions []string              `json:"immediate_actions"`
	Contacts         []ProfessionalContact `json:"contacts"`
	SafetyPlan       []string              `json:"safety_plan"`
	FollowUps        []FollowUp            `json:"follow_ups"`
}

// CloseReport is the summary returned by endSession.
type CloseReport struct {
	SessionID       SessionID       `json:"session_id"`
	Summary         string          `json:"summary"`
	Progress        ProgressMetrics `json:"progress"`
	Recommendations []string        `json:"recommendations"`
	Turns           int             `json:"turns"`
	PeakRisk        RiskLevel       `json:"peak_risk"`
}

// UserExport is the portable bundle returned by exportUserData.
type UserExport struct {
	UserID      UserID         `json:"user_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Sessions    []*Session     `json:"sessions"`
	Crises      []*CrisisEvent `json:"crises"`
}
