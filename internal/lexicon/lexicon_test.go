package lexicon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/user/haven/internal/types"
)

func TestLoadDefaultOnEmptyPath(t *testing.T) {
	table, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(table.Risk) == 0 || len(table.Protective) == 0 || len(table.Emotion) == 0 {
		t.Fatal("default table has empty sections")
	}
	if len(table.Plan) == 0 || len(table.Immediacy) == 0 {
		t.Fatal("default table has no boost tokens")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.json")
	content := `{
		"risk": [{"category": "hopelessness", "term": "bleak", "weight": 5, "script": "latin"}],
		"plan": ["scheme"]
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}

	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(table.Risk) != 1 || table.Risk[0].Term != "bleak" {
		t.Errorf("risk terms = %+v", table.Risk)
	}
	if table.Risk[0].Weight != IndirectWeight {
		t.Errorf("weight = %d, want %d", table.Risk[0].Weight, IndirectWeight)
	}
	if len(table.Plan) != 1 || table.Plan[0] != "scheme" {
		t.Errorf("plan tokens = %v", table.Plan)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("Load accepted a missing file")
	}
}

func TestDefaultCoversBothScripts(t *testing.T) {
	table := Default()
	seen := map[Script]bool{}
	for _, rt := range table.Risk {
		seen[rt.Script] = true
	}
	for _, et := range table.Emotion {
		seen[et.Script] = true
	}
	if !seen[ScriptLatin] || !seen[ScriptDevanagari] {
		t.Errorf("default table scripts = %v, want latin and devanagari", seen)
	}

	for _, rt := range table.Risk {
		switch rt.Category {
		case types.RiskSuicidalIdeation, types.RiskSelfHarm:
			if rt.Weight != DirectWeight {
				t.Errorf("harm term %q weight = %d, want %d", rt.Term, rt.Weight, DirectWeight)
			}
		}
	}
}

func TestContains(t *testing.T) {
	// Callers pass lowercased text; terms may be any case.
	tests := []struct {
		text, term string
		want       bool
	}{
		{"i feel hopeless today", "hopeless", true},
		{"i feel hopeless today", "HOPELESS", true},
		{"मुझे निराशा है", "निराश", true},
		{"all good here", "hopeless", false},
	}
	for _, tt := range tests {
		if got := Contains(tt.text, tt.term); got != tt.want {
			t.Errorf("Contains(%q, %q) = %v, want %v", tt.text, tt.term, got, tt.want)
		}
	}
}
