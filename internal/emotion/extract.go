// internal/emotion/extract.go
package emotion

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/user/haven/internal/lexicon"
	"github.com/user/haven/internal/types"
)

// DefaultTimeout bounds each extractor; a modality that misses it
// contributes a neutral default instead of blocking the join.
const DefaultTimeout = 2 * time.Second

// Extractors runs the per-modality extractors for a turn. Each extractor
// is a pure function of its own input, so they are dispatched in parallel
// and joined; a failed or timed-out extractor yields a neutral signal with
// confidence 0 rather than failing the turn.
type Extractors struct {
	text    *TextExtractor
	voice   *VoiceExtractor
	facial  *FacialExtractor
	timeout time.Duration
}

// New creates the extractor set over the given lexicon.
func New(table *lexicon.Table, timeout time.Duration) *Extractors {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractors{
		text:    NewTextExtractor(table),
		voice:   NewVoiceExtractor(table),
		facial:  NewFacialExtractor(),
		timeout: timeout,
	}
}

// Run extracts signals for every modality present in the input. The text
// modality always runs; voice and facial run only when their payloads are
// supplied. Run never returns an error: failures degrade to neutral
// defaults and are logged.
func (e *Extractors) Run(ctx context.Context, input types.TurnInput, at time.Time) []types.EmotionSignal {
	type job struct {
		modality types.Modality
		fn       func() (types.EmotionSignal, error)
	}

	jobs := []job{{types.ModalityText, func() (types.EmotionSignal, error) {
		return e.text.Extract(input.Message, at)
	}}}
	if input.Voice != nil {
		jobs = append(jobs, job{types.ModalityVoice, func() (types.EmotionSignal, error) {
			return e.voice.Extract(input.Voice, at)
		}})
	}
	if input.Facial != nil {
		jobs = append(jobs, job{types.ModalityFacial, func() (types.EmotionSignal, error) {
			return e.facial.Extract(input.Facial, at)
		}})
	}

	signals := make([]types.EmotionSignal, len(jobs))
	g := errgroup.Group{}
	for i, j := range jobs {
		g.Go(func() error {
			signals[i] = e.runOne(ctx, j.modality, at, j.fn)
			return nil
		})
	}
	_ = g.Wait()
	return signals
}

// runOne applies the per-extractor timeout and the neutral-default policy.
func (e *Extractors) runOne(ctx context.Context, modality types.Modality, at time.Time, fn func() (types.EmotionSignal, error)) types.EmotionSignal {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		sig types.EmotionSignal
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		sig, err := fn()
		done <- outcome{sig, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			slog.Warn("extractor failed", "modality", string(modality), "error", out.err)
			return types.NeutralSignal(modality, at)
		}
		return out.sig
	case <-ctx.Done():
		slog.Warn("extractor timed out", "modality", string(modality))
		return types.NeutralSignal(modality, at)
	}
}
