package contrib

import "testing"

func TestZScoreScorerUsesEvidenceAdvisoryScore(t *testing.T) {
	z := &ZScoreScorer{}
	sl, err := z.Score(ScoreRequest{
		ContextHash:   "h1",
		Decision:      "WARN",
		ContractScore: 0.4,
		Evidence:      map[string]any{"advisory_score": 0.77},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sl.Value() != 0.77 {
		t.Fatalf("expected 0.77, got %v", sl.Value())
	}
}

func TestZScoreScorerFallsBackToContractScore(t *testing.T) {
	z := &ZScoreScorer{}
	sl, err := z.Score(ScoreRequest{ContractScore: 0.3, Evidence: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sl.Value() != 0.3 {
		t.Fatalf("expected fallback 0.3, got %v", sl.Value())
	}
}

func TestGetScorerUnknownName(t *testing.T) {
	if _, err := GetScorer("does-not-exist"); err == nil {
		t.Fatal("expected error for unregistered scorer")
	}
}

func TestListScorersIncludesZScore(t *testing.T) {
	found := false
	for _, n := range ListScorers() {
		if n == "zscore" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected zscore to be registered")
	}
}
