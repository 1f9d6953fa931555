// internal/plan/planner.go
package plan

import (
	"github.com/user/haven/internal/types"
)

// Planner maps the turn's risk level, dominant emotion, and cultural
// context to a structured directive for the external response generator.
// It never produces user-facing prose.
type Planner struct{}

// New creates a Planner.
func New() *Planner {
	return &Planner{}
}

// Plan chooses the intervention strategy. Severe risk always forces
// crisis_intervention, overriding any emotion-derived suggestion;
// otherwise the single highest-priority therapeutic need drives the
// choice, defaulting to validation.
func (p *Planner) Plan(assessment *types.RiskAssessment, signal types.EmotionSignal, culture types.CulturalContext) types.Directive {
	d := types.Directive{
		Strategy:  p.strategy(assessment, signal),
		Language:  culture.Language,
		Formality: culture.Formality,
	}
	if signal.Intensity > 0.6 {
		d.Tone = "gentle_supportive"
	}
	if signal.Intensity > 0.7 {
		d.Complexity = "simplified"
	}
	return d
}

func (p *Planner) strategy(assessment *types.RiskAssessment, signal types.EmotionSignal) types.Strategy {
	if assessment != nil && assessment.Level == types.RiskSevere {
		return types.StrategyCrisisIntervention
	}
	switch signal.PrimaryEmotion {
	case types.EmotionAnxiety:
		return types.StrategyMindfulness
	case types.EmotionDepression:
		return types.StrategyBehavioralActivation
	case types.EmotionStress:
		return types.StrategyCognitiveRestructuring
	case types.EmotionAnger:
		return types.StrategyPsychoeducation
	default:
		return types.StrategyValidation
	}
}

// Dominant picks the signal the planner should trust for a turn: the one
// with the highest confidence, earlier modalities winning ties.
func Dominant(signals []types.EmotionSignal) types.EmotionSignal {
	if len(signals) == 0 {
		return types.EmotionSignal{PrimaryEmotion: types.EmotionNeutral}
	}
	best := signals[0]
	for _, sig := range signals[1:] {
		if sig.Confidence > best.Confidence {
			best = sig
		}
	}
	return best
}
