// internal/risk/aggregator.go
package risk

import (
	"time"

	"github.com/user/haven/internal/types"
)

// Score thresholds for the discrete risk levels.
const (
	severeThreshold   = 15
	highThreshold     = 10
	moderateThreshold = 5
	lowThreshold      = 2
)

// Fusion bumps added to the scanner score before thresholding. Both only
// ever raise the score, so level stays monotonic in the scanner score.
const (
	distressBump    = 2 // high-intensity negative latest emotion signal
	persistenceBump = 2 // two consecutive prior assessments at moderate or above
)

// Aggregate fuses a scan result with the latest emotion signal and recent
// history into a RiskAssessment. It is a pure function: identical inputs
// always yield an identical assessment. ID and SessionID are left for the
// caller to assign.
//
// A suicidal-ideation indicator forces severe unconditionally, regardless
// of score or protective factors. Conflicting evidence is resolved by that
// override, never by failing.
func Aggregate(scan ScanResult, signal types.EmotionSignal, history []*types.RiskAssessment, at time.Time) *types.RiskAssessment {
	score := scan.Score

	if signal.Confidence > 0 && signal.Valence <= -0.6 && signal.Intensity >= 0.7 {
		score += distressBump
	}
	if n := len(history); n >= 2 &&
		history[n-1].Level.AtLeast(types.RiskModerate) &&
		history[n-2].Level.AtLeast(types.RiskModerate) {
		score += persistenceBump
	}

	level := levelFor(score)
	for _, ind := range scan.Indicators {
		if ind.Category == types.RiskSuicidalIdeation {
			level = types.RiskSevere
			break
		}
	}

	return &types.RiskAssessment{
		Level:                level,
		Score:                score,
		Confidence:           confidenceFor(score),
		Indicators:           scan.Indicators,
		ProtectiveFactors:    scan.Protective,
		At:                   at,
		FollowUpRequired:     level != types.RiskNone,
		ProfessionalReferral: level.AtLeast(types.RiskHigh),
	}
}

func levelFor(score int) types.RiskLevel {
	switch {
	case score >= severeThreshold:
		return types.RiskSevere
	case score >= highThreshold:
		return types.RiskHigh
	case score >= moderateThreshold:
		return types.RiskModerate
	case score >= lowThreshold:
		return types.RiskLow
	default:
		return types.RiskNone
	}
}

// confidenceFor maps score to confidence deterministically. It increases
// monotonically with score and saturates at 0.95; it is a calibration-free
// heuristic, not a probability.
func confidenceFor(score int) float64 {
	c := 0.5 + 0.03*float64(score)
	if c > 0.95 {
		return 0.95
	}
	return c
}
