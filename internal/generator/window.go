// internal/generator/window.go
package generator

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/haven/internal/types"
)

// Window assembles the token-budgeted recent-history slice handed to the
// generator alongside each turn.
type Window struct {
	tokenizer *tiktoken.Tiktoken
	budget    int
}

// NewWindow creates a Window with the given token budget. model selects
// the tokenizer; unknown models fall back to cl100k_base.
func NewWindow(model string, budget int) (*Window, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Window{tokenizer: enc, budget: budget}, nil
}

// Build walks the transcript backwards, keeping the most recent
// utterances that fit the budget, and returns them in chronological order.
func (w *Window) Build(transcript []types.Utterance) []types.Utterance {
	used := 0
	start := len(transcript)
	for i := len(transcript) - 1; i >= 0; i-- {
		n := len(w.tokenizer.Encode(transcript[i].Content, nil, nil))
		if used+n > w.budget {
			break
		}
		used += n
		start = i
	}
	if start == len(transcript) {
		return nil
	}
	out := make([]types.Utterance, len(transcript)-start)
	copy(out, transcript[start:])
	return out
}
