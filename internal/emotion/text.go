// internal/emotion/text.go
package emotion

import (
	"strings"
	"time"

	"github.com/user/haven/internal/lexicon"
	"github.com/user/haven/internal/types"
)

// tiePriority breaks hit-count ties between emotion categories. Earlier
// entries win.
var tiePriority = []types.Emotion{
	types.EmotionAnxiety,
	types.EmotionDepression,
	types.EmotionStress,
	types.EmotionAnger,
	types.EmotionJoy,
}

// Per-emotion valence and arousal baselines.
var emotionProfile = map[types.Emotion]struct{ valence, arousal float64 }{
	types.EmotionAnxiety:    {-0.5, 0.8},
	types.EmotionDepression: {-0.7, 0.2},
	types.EmotionStress:     {-0.4, 0.7},
	types.EmotionAnger:      {-0.6, 0.9},
	types.EmotionJoy:        {0.7, 0.6},
	types.EmotionNeutral:    {0, 0.3},
}

// TextExtractor derives an EmotionSignal from message text by counting
// keyword hits per emotion category across the full multi-script lexicon.
// Every category lexicon, in every script, is checked against every
// message, so code-mixed input matches without a language-detection gate.
type TextExtractor struct {
	table *lexicon.Table
}

// NewTextExtractor creates a TextExtractor over the given lexicon.
func NewTextExtractor(table *lexicon.Table) *TextExtractor {
	return &TextExtractor{table: table}
}

// Extract scores the message and returns the winning emotion. Ties on hit
// count break by fixed priority (anxiety > depression > stress > anger >
// joy). A message with no hits reads as low-confidence neutral.
func (e *TextExtractor) Extract(text string, at time.Time) (types.EmotionSignal, error) {
	lower := strings.ToLower(text)

	hits := make(map[types.Emotion]int)
	for _, et := range e.table.Emotion {
		if lexicon.Contains(lower, et.Term) {
			hits[et.Emotion]++
		}
	}

	winner := types.EmotionNeutral
	best := 0
	for _, em := range tiePriority {
		if hits[em] > best {
			winner = em
			best = hits[em]
		}
	}

	if best == 0 {
		sig := types.NeutralSignal(types.ModalityText, at)
		sig.Confidence = 0.3
		return sig, nil
	}

	profile := emotionProfile[winner]
	return types.EmotionSignal{
		Modality:       types.ModalityText,
		PrimaryEmotion: winner,
		Intensity:      clamp01(0.3 + 0.2*float64(best)),
		Valence:        profile.valence,
		Arousal:        profile.arousal,
		Confidence:     clamp01(0.4 + 0.15*float64(best)),
		At:             at,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
