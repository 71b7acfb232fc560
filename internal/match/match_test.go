package match

import "testing"

func TestLiteralMatcherMatchesAny(t *testing.T) {
	m, err := NewLiteralMatcher([]string{"ERROR", "timeout"}, false)
	if err != nil {
		t.Fatalf("NewLiteralMatcher: %v", err)
	}
	if !m.MatchesAny("connection timeout after 30s") {
		t.Fatal("expected a case-insensitive match on 'timeout'")
	}
	if m.MatchesAny("all systems nominal") {
		t.Fatal("expected no match")
	}
}

func TestLiteralMatcherMatchesAll(t *testing.T) {
	m, err := NewLiteralMatcher([]string{"error", "retry"}, false)
	if err != nil {
		t.Fatalf("NewLiteralMatcher: %v", err)
	}
	if !m.MatchesAll("ERROR: retrying after failure") {
		t.Fatal("expected both terms present")
	}
	if m.MatchesAll("ERROR: giving up") {
		t.Fatal("expected 'retry' absent to fail MatchesAll")
	}
}

func TestLiteralMatcherFindMatchesUTF8Safe(t *testing.T) {
	m, err := NewLiteralMatcher([]string{"café"}, true)
	if err != nil {
		t.Fatalf("NewLiteralMatcher: %v", err)
	}
	hits := m.FindMatches("visited the café twice")
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
}

func TestMaxEditsForLength(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{{1, 1}, {4, 1}, {5, 2}, {8, 2}, {9, 3}, {20, 3}}
	for _, c := range cases {
		if got := MaxEditsForLength(c.n); got != c.want {
			t.Errorf("MaxEditsForLength(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestFuzzyMatch(t *testing.T) {
	if !FuzzyMatch("timeout", "timeuot") {
		t.Fatal("expected a transposition within budget to match")
	}
	if FuzzyMatch("timeout", "banana") {
		t.Fatal("expected unrelated words not to match")
	}
}

func TestFuzzyFindBest(t *testing.T) {
	best, ok := FuzzyFindBest("connction", []string{"connection", "banana", "disconnection"})
	if !ok || best != "connection" {
		t.Fatalf("FuzzyFindBest = (%q, %v), want (connection, true)", best, ok)
	}
}

func TestPhoneticMatch(t *testing.T) {
	if !PhoneticMatch("Smith", "Smyth") {
		t.Fatal("expected Smith/Smyth to share a metaphone key")
	}
	if PhoneticMatch("timeout", "database") {
		t.Fatal("expected unrelated words not to share a metaphone key")
	}
}

func TestMetaphoneEmptyInput(t *testing.T) {
	if got := Metaphone(""); got != "" {
		t.Fatalf("Metaphone(\"\") = %q, want empty", got)
	}
}
