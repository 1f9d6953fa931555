package emotion

import (
	"context"
	"testing"
	"time"

	"github.com/user/haven/internal/lexicon"
	"github.com/user/haven/internal/types"
)

func TestRunTextOnly(t *testing.T) {
	e := New(lexicon.Default(), time.Second)

	signals := e.Run(context.Background(), types.TurnInput{Message: "feeling anxious"}, at)
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if signals[0].Modality != types.ModalityText {
		t.Errorf("modality = %s, want text", signals[0].Modality)
	}
}

func TestRunAllModalities(t *testing.T) {
	e := New(lexicon.Default(), time.Second)

	input := types.TurnInput{
		Message: "so worried",
		Voice:   &types.VoicePayload{Transcript: "so worried", Amplitude: 0.8, Pitch: 0.7},
		Facial: &types.FacialPayload{Frames: [][]float64{
			{0.0, 0.1, 0.1, 0.7, 0.05, 0.0, 0.05},
		}},
	}

	signals := e.Run(context.Background(), input, at)
	if len(signals) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(signals))
	}

	byModality := make(map[types.Modality]types.EmotionSignal)
	for _, sig := range signals {
		byModality[sig.Modality] = sig
	}
	if byModality[types.ModalityVoice].Confidence != voiceConfidence {
		t.Errorf("voice confidence = %f, want fixed %f", byModality[types.ModalityVoice].Confidence, voiceConfidence)
	}
	if byModality[types.ModalityFacial].PrimaryEmotion != types.EmotionAnxiety {
		t.Errorf("facial emotion = %s, want anxiety", byModality[types.ModalityFacial].PrimaryEmotion)
	}
}

func TestRunFailedExtractorDefaultsNeutral(t *testing.T) {
	e := New(lexicon.Default(), time.Second)

	// Malformed facial payload: wrong vector length.
	input := types.TurnInput{
		Message: "feeling hopeless",
		Facial:  &types.FacialPayload{Frames: [][]float64{{0.5, 0.5}}},
	}

	signals := e.Run(context.Background(), input, at)
	if len(signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(signals))
	}

	var facial types.EmotionSignal
	for _, sig := range signals {
		if sig.Modality == types.ModalityFacial {
			facial = sig
		}
	}
	if facial.Confidence != 0 {
		t.Errorf("failed extractor confidence = %f, want 0", facial.Confidence)
	}
	if facial.PrimaryEmotion != types.EmotionNeutral {
		t.Errorf("failed extractor emotion = %s, want neutral", facial.PrimaryEmotion)
	}
}

func TestRunNeverBlocksOnTimeout(t *testing.T) {
	e := New(lexicon.Default(), 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		e.Run(context.Background(), types.TurnInput{Message: "hello"}, at)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
