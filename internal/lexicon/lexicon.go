// internal/lexicon/lexicon.go
package lexicon

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/user/haven/internal/types"
)

// Script tags the writing system a term belongs to. Every term in every
// script is checked against every message, so code-mixed input matches
// without a language-detection gate.
type Script string

const (
	ScriptLatin      Script = "latin"
	ScriptDevanagari Script = "devanagari"
)

// Term weights. Direct crisis phrases carry DirectWeight; adjacent
// high-risk terms carry IndirectWeight.
const (
	DirectWeight   = 10
	IndirectWeight = 5
)

// RiskTerm is one weighted entry of the risk lexicon.
type RiskTerm struct {
	Category types.RiskCategory `json:"category"`
	Term     string             `json:"term"`
	Weight   int                `json:"weight"`
	Script   Script             `json:"script"`
}

// ProtectiveTerm is one entry of the protective-factor lexicon.
type ProtectiveTerm struct {
	Category types.ProtectiveCategory `json:"category"`
	Term     string                   `json:"term"`
	Script   Script                   `json:"script"`
}

// EmotionTerm is one entry of the emotion keyword lexicon.
type EmotionTerm struct {
	Emotion types.Emotion `json:"emotion"`
	Term    string        `json:"term"`
	Script  Script        `json:"script"`
}

// Table is the full lexicon: risk terms, protective terms, emotion
// keywords, and the contextual-boost token lists. It is plain data,
// decoupled from the scanning and aggregation logic.
type Table struct {
	Risk       []RiskTerm       `json:"risk"`
	Protective []ProtectiveTerm `json:"protective"`
	Emotion    []EmotionTerm    `json:"emotion"`
	Plan       []string         `json:"plan"`
	Immediacy  []string         `json:"immediacy"`
}

// Load reads a lexicon table from a JSON file. An empty path returns the
// built-in default table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal lexicon: %w", err)
	}
	return &t, nil
}

// Contains reports a case-insensitive substring match of term in text.
// text is expected to already be lowercased by the caller.
func Contains(text, term string) bool {
	return strings.Contains(text, strings.ToLower(term))
}

// Default returns the built-in lexicon covering Latin and Devanagari
// script entries.
func Default() *Table {
	return &Table{
		Risk: []RiskTerm{
			// Direct crisis phrases.
			{types.RiskSuicidalIdeation, "suicide", DirectWeight, ScriptLatin},
			{types.RiskSuicidalIdeation, "kill myself", DirectWeight, ScriptLatin},
			{types.RiskSuicidalIdeation, "end my life", DirectWeight, ScriptLatin},
			{types.RiskSuicidalIdeation, "want to die", DirectWeight, ScriptLatin},
			{types.RiskSuicidalIdeation, "better off dead", DirectWeight, ScriptLatin},
			{types.RiskSuicidalIdeation, "आत्महत्या", DirectWeight, ScriptDevanagari},
			{types.RiskSuicidalIdeation, "मरना चाहता", DirectWeight, ScriptDevanagari},
			{types.RiskSuicidalIdeation, "मरना चाहती", DirectWeight, ScriptDevanagari},
			{types.RiskSelfHarm, "hurt myself", DirectWeight, ScriptLatin},
			{types.RiskSelfHarm, "cut myself", DirectWeight, ScriptLatin},
			{types.RiskSelfHarm, "self harm", DirectWeight, ScriptLatin},
			{types.RiskSelfHarm, "खुद को चोट", DirectWeight, ScriptDevanagari},

			// Indirect / high-risk-adjacent terms.
			{types.RiskHopelessness, "hopeless", IndirectWeight, ScriptLatin},
			{types.RiskHopelessness, "no point", IndirectWeight, ScriptLatin},
			{types.RiskHopelessness, "no future", IndirectWeight, ScriptLatin},
			{types.RiskHopelessness, "give up", IndirectWeight, ScriptLatin},
			{types.RiskHopelessness, "निराश", IndirectWeight, ScriptDevanagari},
			{types.RiskHopelessness, "कोई उम्मीद नहीं", IndirectWeight, ScriptDevanagari},
			{types.RiskIsolation, "all alone", IndirectWeight, ScriptLatin},
			{types.RiskIsolation, "nobody cares", IndirectWeight, ScriptLatin},
			{types.RiskIsolation, "no one would miss", IndirectWeight, ScriptLatin},
			{types.RiskIsolation, "बिल्कुल अकेला", IndirectWeight, ScriptDevanagari},
			{types.RiskSubstanceUse, "drink to forget", IndirectWeight, ScriptLatin},
			{types.RiskSubstanceUse, "pills to sleep", IndirectWeight, ScriptLatin},
			{types.RiskSubstanceUse, "नशा", IndirectWeight, ScriptDevanagari},
		},
		Protective: []ProtectiveTerm{
			{types.ProtectiveSocialSupport, "my friend", ScriptLatin},
			{types.ProtectiveSocialSupport, "my family", ScriptLatin},
			{types.ProtectiveSocialSupport, "मेरा परिवार", ScriptDevanagari},
			{types.ProtectiveCopingSkills, "breathing exercise", ScriptLatin},
			{types.ProtectiveCopingSkills, "went for a walk", ScriptLatin},
			{types.ProtectiveCopingSkills, "journaling", ScriptLatin},
			{types.ProtectiveFutureOrientation, "looking forward", ScriptLatin},
			{types.ProtectiveFutureOrientation, "next week", ScriptLatin},
			{types.ProtectiveFutureOrientation, "my plans", ScriptLatin},
			{types.ProtectiveHelpSeeking, "therapist", ScriptLatin},
			{types.ProtectiveHelpSeeking, "counselor", ScriptLatin},
			{types.ProtectiveHelpSeeking, "need help", ScriptLatin},
			{types.ProtectiveHelpSeeking, "मदद चाहिए", ScriptDevanagari},
		},
		Emotion: []EmotionTerm{
			{types.EmotionAnxiety, "anxious", ScriptLatin},
			{types.EmotionAnxiety, "worried", ScriptLatin},
			{types.EmotionAnxiety, "panic", ScriptLatin},
			{types.EmotionAnxiety, "nervous", ScriptLatin},
			{types.EmotionAnxiety, "चिंता", ScriptDevanagari},
			{types.EmotionAnxiety, "घबराहट", ScriptDevanagari},
			{types.EmotionDepression, "sad", ScriptLatin},
			{types.EmotionDepression, "depressed", ScriptLatin},
			{types.EmotionDepression, "empty", ScriptLatin},
			{types.EmotionDepression, "worthless", ScriptLatin},
			{types.EmotionDepression, "उदास", ScriptDevanagari},
			{types.EmotionStress, "stressed", ScriptLatin},
			{types.EmotionStress, "overwhelmed", ScriptLatin},
			{types.EmotionStress, "pressure", ScriptLatin},
			{types.EmotionStress, "exhausted", ScriptLatin},
			{types.EmotionStress, "तनाव", ScriptDevanagari},
			{types.EmotionAnger, "angry", ScriptLatin},
			{types.EmotionAnger, "furious", ScriptLatin},
			{types.EmotionAnger, "hate", ScriptLatin},
			{types.EmotionAnger, "गुस्सा", ScriptDevanagari},
			{types.EmotionJoy, "happy", ScriptLatin},
			{types.EmotionJoy, "grateful", ScriptLatin},
			{types.EmotionJoy, "excited", ScriptLatin},
			{types.EmotionJoy, "खुश", ScriptDevanagari},
		},
		Plan:      []string{"plan", "planned", "method", "decided how", "योजना"},
		Immediacy: []string{"tonight", "right now", "today", "this moment", "आज रात", "अभी"},
	}
}
