// internal/risk/scanner.go
package risk

import (
	"strings"
	"unicode/utf8"

	"github.com/user/haven/internal/lexicon"
	"github.com/user/haven/internal/types"
)

// Contextual boosts applied on top of per-term weights.
const (
	planBoost      = 8 // a plan token and a harm token co-occur
	immediacyBoost = 3 // an immediacy token is present
)

// ScanResult is the outcome of one lexicon scan over a message.
type ScanResult struct {
	Indicators []types.RiskIndicator
	Protective []types.ProtectiveFactor
	Score      int
}

// Scanner matches message text against the risk and protective lexicons.
// It holds only the lexicon table and is safe for concurrent use.
type Scanner struct {
	table *lexicon.Table
}

// NewScanner creates a Scanner over the given lexicon table.
func NewScanner(table *lexicon.Table) *Scanner {
	return &Scanner{table: table}
}

// Scan performs a case-insensitive match of every lexicon term, in every
// script, against the message. Matches across categories are not
// deduplicated; overlapping hits double-count on purpose so that a message
// touching several risk categories scores higher than one touching one.
// Empty or sub-word-length input yields an empty result with score 0.
func (s *Scanner) Scan(text string) ScanResult {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < 2 {
		return ScanResult{}
	}
	lower := strings.ToLower(trimmed)

	result := ScanResult{}

	// Risk terms, grouped into one indicator per category.
	byCategory := make(map[types.RiskCategory]*types.RiskIndicator)
	var order []types.RiskCategory
	harmHit := false
	for _, rt := range s.table.Risk {
		if !lexicon.Contains(lower, rt.Term) {
			continue
		}
		ind, ok := byCategory[rt.Category]
		if !ok {
			ind = &types.RiskIndicator{Category: rt.Category}
			byCategory[rt.Category] = ind
			order = append(order, rt.Category)
		}
		ind.MatchedTerms = append(ind.MatchedTerms, rt.Term)
		ind.Weight += rt.Weight
		result.Score += rt.Weight
		if rt.Category == types.RiskSuicidalIdeation || rt.Category == types.RiskSelfHarm {
			harmHit = true
		}
	}
	for _, cat := range order {
		result.Indicators = append(result.Indicators, *byCategory[cat])
	}

	// Contextual boosts.
	if harmHit && matchAny(lower, s.table.Plan) {
		result.Score += planBoost
	}
	if len(result.Indicators) > 0 && matchAny(lower, s.table.Immediacy) {
		result.Score += immediacyBoost
	}

	// Protective factors, grouped per category.
	protective := make(map[types.ProtectiveCategory]*types.ProtectiveFactor)
	var pOrder []types.ProtectiveCategory
	for _, pt := range s.table.Protective {
		if !lexicon.Contains(lower, pt.Term) {
			continue
		}
		pf, ok := protective[pt.Category]
		if !ok {
			pf = &types.ProtectiveFactor{Category: pt.Category}
			protective[pt.Category] = pf
			pOrder = append(pOrder, pt.Category)
		}
		pf.MatchedTerms = append(pf.MatchedTerms, pt.Term)
	}
	for _, cat := range pOrder {
		result.Protective = append(result.Protective, *protective[cat])
	}

	return result
}

func matchAny(lower string, terms []string) bool {
	for _, term := range terms {
		if lexicon.Contains(lower, term) {
			return true
		}
	}
	return false
}
