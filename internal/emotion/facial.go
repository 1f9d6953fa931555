// internal/emotion/facial.go
package emotion

import (
	"fmt"
	"time"

	"github.com/user/haven/internal/types"
)

// Canonical index order of the per-frame emotion probability vector.
const (
	faceHappy = iota
	faceSad
	faceAngry
	faceFearful
	faceSurprised
	faceDisgusted
	faceNeutral
	faceVectorLen
)

// faceEmotion maps vector indices to session emotion labels.
var faceEmotion = [faceVectorLen]types.Emotion{
	faceHappy:     types.EmotionJoy,
	faceSad:       types.EmotionDepression,
	faceAngry:     types.EmotionAnger,
	faceFearful:   types.EmotionAnxiety,
	faceSurprised: types.EmotionStress,
	faceDisgusted: types.EmotionAnger,
	faceNeutral:   types.EmotionNeutral,
}

// WellnessScores are linear combinations of the averaged probability
// vector, each in [0,1].
type WellnessScores struct {
	Stress     float64 `json:"stress"`
	Fatigue    float64 `json:"fatigue"`
	Engagement float64 `json:"engagement"`
}

// FacialExtractor turns per-frame emotion probability vectors into an
// EmotionSignal plus wellness sub-scores.
type FacialExtractor struct{}

// NewFacialExtractor creates a FacialExtractor.
func NewFacialExtractor() *FacialExtractor {
	return &FacialExtractor{}
}

// Extract averages the frame vectors, picks the dominant emotion, and
// derives valence and arousal from the vector itself. Malformed input
// (no frames, wrong vector length) is an error; the caller substitutes a
// neutral default.
func (e *FacialExtractor) Extract(payload *types.FacialPayload, at time.Time) (types.EmotionSignal, error) {
	avg, err := averageFrames(payload)
	if err != nil {
		return types.EmotionSignal{}, err
	}

	dominant := 0
	for i, p := range avg {
		if p > avg[dominant] {
			dominant = i
		}
	}

	valence := avg[faceHappy] - (avg[faceSad] + avg[faceAngry] + avg[faceFearful] + avg[faceDisgusted])
	arousal := avg[faceAngry] + avg[faceFearful] + avg[faceSurprised] + 0.5*avg[faceHappy]

	return types.EmotionSignal{
		Modality:       types.ModalityFacial,
		PrimaryEmotion: faceEmotion[dominant],
		Intensity:      clamp01(avg[dominant]),
		Valence:        clampSigned(valence),
		Arousal:        clamp01(arousal),
		Confidence:     clamp01(avg[dominant]),
		At:             at,
	}, nil
}

// Wellness computes the stress, fatigue, and engagement sub-scores from
// the same averaged vector.
func (e *FacialExtractor) Wellness(payload *types.FacialPayload) (WellnessScores, error) {
	avg, err := averageFrames(payload)
	if err != nil {
		return WellnessScores{}, err
	}
	return WellnessScores{
		Stress:     clamp01(0.5*avg[faceFearful] + 0.3*avg[faceAngry] + 0.2*avg[faceSad]),
		Fatigue:    clamp01(0.6*avg[faceSad] + 0.4*avg[faceNeutral]),
		Engagement: clamp01(0.5*avg[faceHappy] + 0.3*avg[faceSurprised] + 0.2*(1-avg[faceNeutral])),
	}, nil
}

func averageFrames(payload *types.FacialPayload) ([faceVectorLen]float64, error) {
	var avg [faceVectorLen]float64
	if payload == nil || len(payload.Frames) == 0 {
		return avg, fmt.Errorf("no facial frames")
	}
	for _, frame := range payload.Frames {
		if len(frame) != faceVectorLen {
			return avg, fmt.Errorf("facial frame has %d probabilities, want %d", len(frame), faceVectorLen)
		}
		for i, p := range frame {
			avg[i] += p
		}
	}
	n := float64(len(payload.Frames))
	for i := range avg {
		avg[i] /= n
	}
	return avg, nil
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
