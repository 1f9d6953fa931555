// internal/generator/generator.go
package generator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/user/haven/internal/types"
)

// Request carries everything the external response generator receives:
// the user message, the planner's directive, the cultural context, and a
// token-budgeted window of recent history.
type Request struct {
	Message   string                `json:"message"`
	Directive types.Directive       `json:"directive"`
	Culture   types.CulturalContext `json:"culture"`
	History   []types.Utterance     `json:"history"`
}

// Response is the fixed schema expected back from the generator.
type Response struct {
	Reply      string   `json:"reply"`
	Techniques []string `json:"techniques,omitempty"`
}

// Generator produces reply prose from a structured request. The core
// treats the reply as opaque text.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// DecodeResponse attempts a strict decode of generator output into the
// fixed schema. On any failure it constructs a deterministic fallback
// carrying the raw text as the reply, so malformed output never throws
// past the boundary.
func DecodeResponse(raw string) Response {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var resp Response
		if err := json.Unmarshal([]byte(trimmed), &resp); err == nil && resp.Reply != "" {
			return resp
		}
	}
	return Response{Reply: trimmed}
}

// fallbacks are the templated replies substituted when the generator is
// unavailable, keyed by intervention strategy. Risk state computed before
// the generator call is unaffected by the substitution.
var fallbacks = map[types.Strategy]string{
	types.StrategyValidation:             "I hear you, and what you're feeling matters. I'm here with you.",
	types.StrategyCognitiveRestructuring: "That sounds heavy. Sometimes it helps to look at one thought at a time - what feels most pressing right now?",
	types.StrategyMindfulness:            "Let's pause together for a moment. Try taking one slow breath in, and a longer breath out.",
	types.StrategyCrisisIntervention:     "You don't have to face this alone. Please reach out to a crisis helpline or someone you trust right now - help is available.",
	types.StrategyBehavioralActivation:   "Even one small step counts today. Is there one gentle thing you could do for yourself in the next hour?",
	types.StrategyPsychoeducation:        "Strong feelings are signals, not flaws. Understanding what sets them off can make them easier to carry.",
}

// Fallback returns the templated reply for the directive's strategy.
func Fallback(directive types.Directive) Response {
	reply, ok := fallbacks[directive.Strategy]
	if !ok {
		reply = fallbacks[types.StrategyValidation]
	}
	return Response{Reply: reply}
}
