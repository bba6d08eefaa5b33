package rules

import (
	"context"
	"strings"
	"testing"
)

func TestValidateRules_Valid(t *testing.T) {
	rules := []Rule{
		Substring("a", "A", ".env"),
		ContainsAll("b", "B", "x", "y"),
		ContainsAny("c", "C"),
	}
	if errs := ValidateRules(rules); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateRules_Problems(t *testing.T) {
	rules := []Rule{
		{Kind: MatchSubstring, Pattern: "x", Enabled: true},
		{ID: "b", Kind: "regex", Enabled: true},
		{ID: "c", Kind: MatchSubstring, Pattern: "x", Patterns: []string{"y"}},
		{ID: "d", Kind: MatchContainsAny, Pattern: "x"},
		{ID: "e", Kind: MatchSubstring, Pattern: "  "},
	}
	errs := ValidateRules(rules)

	want := []string{"rules[0].id", "rules[1].type", "rules[2].patterns", "rules[3].pattern", "rules[4].pattern"}
	if len(errs) != len(want) {
		t.Fatalf("got %d errors (%v), want %d", len(errs), errs, len(want))
	}
	for i, field := range want {
		if errs[i].Field != field {
			t.Errorf("errs[%d].Field = %q, want %q", i, errs[i].Field, field)
		}
	}
	if !strings.Contains(errs[1].Error(), `unknown type "regex"`) {
		t.Errorf("errs[1] = %q", errs[1].Error())
	}
}

func TestLint_BuiltinsOnlyWarnAboutShortPatterns(t *testing.T) {
	warnings, err := Lint(context.Background(), BuiltinRules())
	if err != nil {
		t.Fatalf("Lint: %v", err)
	}
	for _, w := range warnings {
		if !strings.Contains(w, "shorter than 3 characters") {
			t.Errorf("unexpected warning for built-ins: %s", w)
		}
	}
}

func TestLint_Findings(t *testing.T) {
	off := Substring("off", "Disabled", "vault")
	off.Enabled = false

	rules := []Rule{
		ContainsAll("match_all", "Empty all"),
		ContainsAny("match_none", "Empty any"),
		Substring("blank", "Blank", "  "),
		ContainsAny("short", "Short", "ab", "longer"),
		Substring("dup", "One", "alpha"),
		Substring("dup", "Two", "beta"),
		off,
	}

	warnings, err := Lint(context.Background(), rules)
	if err != nil {
		t.Fatalf("Lint: %v", err)
	}

	want := []string{
		`rule "match_all": contains_all with no patterns matches every command`,
		`rule "match_none": contains_any with no patterns never matches`,
		`rule "blank": empty substring pattern matches every command`,
		`rule "short": pattern "ab" is shorter than 3 characters and will match broadly`,
		`rule id "dup" is defined more than once (rules[4] and rules[5])`,
		`rule "off" is disabled`,
	}
	joined := strings.Join(warnings, "\n")
	for _, w := range want {
		if !strings.Contains(joined, w) {
			t.Errorf("missing warning %q in:\n%s", w, joined)
		}
	}
	if len(warnings) != len(want) {
		t.Errorf("got %d warnings, want %d:\n%s", len(warnings), len(want), joined)
	}
}

func TestLint_DisabledRulesSkipPatternChecks(t *testing.T) {
	r := ContainsAll("quiet", "Quiet", "x")
	r.Enabled = false

	warnings, err := Lint(context.Background(), []Rule{r})
	if err != nil {
		t.Fatalf("Lint: %v", err)
	}
	if len(warnings) != 1 || warnings[0] != `rule "quiet" is disabled` {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestLint_Empty(t *testing.T) {
	warnings, err := Lint(context.Background(), nil)
	if err != nil {
		t.Fatalf("Lint: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
}
