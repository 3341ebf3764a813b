package config

import "testing"

func TestParseArgsDefaults(t *testing.T) {
	c, err := ParseArgs([]string{"-f100", "g1", "g2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Freq != 100 {
		t.Fatalf("expected freq 100, got %d", c.Freq)
	}
	if c.ChainBreak != DefaultChainBreak || c.ChainMin != DefaultChainMin {
		t.Fatalf("expected defaulted thresholds, got %+v", c)
	}
	if c.OutRoot != "g1.g2" {
		t.Fatalf("expected derived out root g1.g2, got %q", c.OutRoot)
	}
	if c.RunID == "" {
		t.Fatal("expected a non-empty run id")
	}
}

func TestParseArgsMissingFreqIsError(t *testing.T) {
	if _, err := ParseArgs([]string{"g1", "g2"}); err == nil {
		t.Fatal("expected an error for missing mandatory -f flag")
	}
}

func TestParseArgsRejectsBadAlignRate(t *testing.T) {
	if _, err := ParseArgs([]string{"-f10", "-e0.2", "g1", "g2"}); err == nil {
		t.Fatal("expected an error for an out-of-range -e value")
	}
}

func TestParseArgsRejectsWrongPositionalCount(t *testing.T) {
	if _, err := ParseArgs([]string{"-f10", "g1"}); err == nil {
		t.Fatal("expected an error for a single genome argument")
	}
}

func TestParseArgsHonorsOverrides(t *testing.T) {
	c, err := ParseArgs([]string{"-v", "-Pscratch", "-omyout", "-f50", "-c200", "-s1000", "-a50", "-e0.8", "a.dam", "b.ktab"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Verbose || c.TempDir != "scratch" || c.OutRoot != "myout" {
		t.Fatalf("overrides not applied: %+v", c)
	}
	if c.ChainMin != 200 || c.ChainBreak != 1000 || c.AlignMin != 50 || c.AlignRate != 0.8 {
		t.Fatalf("threshold overrides not applied: %+v", c)
	}
	if c.Genome1 != "a.dam" || c.Genome2 != "b.ktab" {
		t.Fatalf("genome roots not captured: %+v", c)
	}
}

func TestRootStripsKnownSuffixes(t *testing.T) {
	if got := root("/tmp/foo.dam"); got != "foo" {
		t.Fatalf("got %q", got)
	}
	if got := root("bar.ktab"); got != "bar" {
		t.Fatalf("got %q", got)
	}
}
