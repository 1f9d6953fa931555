// internal/emotion/voice.go
package emotion

import (
	"errors"
	"time"

	"github.com/user/haven/internal/lexicon"
	"github.com/user/haven/internal/types"
)

// voiceConfidence is a fixed constant, not a calibrated probability: the
// keyword-plus-acoustics heuristic carries the same trust on every turn.
const voiceConfidence = 0.6

// VoiceExtractor derives tone from a transcript using the same keyword
// approach as text, adjusted by coarse amplitude and pitch buckets.
type VoiceExtractor struct {
	table *lexicon.Table
	text  *TextExtractor
}

// NewVoiceExtractor creates a VoiceExtractor sharing the given lexicon.
func NewVoiceExtractor(table *lexicon.Table) *VoiceExtractor {
	return &VoiceExtractor{table: table, text: NewTextExtractor(table)}
}

// Extract reads the transcript for emotion keywords and blends in the
// acoustic buckets: loud high-pitched speech raises arousal and intensity,
// quiet flat speech lowers them.
func (e *VoiceExtractor) Extract(payload *types.VoicePayload, at time.Time) (types.EmotionSignal, error) {
	if payload == nil {
		return types.EmotionSignal{}, errors.New("no voice payload")
	}

	sig, err := e.text.Extract(payload.Transcript, at)
	if err != nil {
		return types.EmotionSignal{}, err
	}
	sig.Modality = types.ModalityVoice

	// Coarse acoustic adjustment: the mean of the two buckets shifts
	// arousal, and loudness alone nudges intensity.
	acoustic := (clamp01(payload.Amplitude) + clamp01(payload.Pitch)) / 2
	sig.Arousal = clamp01(0.7*sig.Arousal + 0.3*acoustic)
	sig.Intensity = clamp01(sig.Intensity + 0.2*(clamp01(payload.Amplitude)-0.5))

	sig.Confidence = voiceConfidence
	return sig, nil
}
