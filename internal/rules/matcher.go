package rules

import (
	"fmt"
	"strings"
)

// Check reports whether the rule matches command. Matching is case-insensitive
// substring containment on the raw command text; no tokenizing is done, so
// ".env" also matches ".env.example". Disabled rules and unknown kinds never match.
func (r Rule) Check(command string) bool {
	if !r.Enabled {
		return false
	}

	cmd := strings.ToLower(command)

	switch r.Kind {
	case MatchSubstring:
		return containsFold(cmd, r.Pattern)
	case MatchContainsAll:
		for _, p := range r.Patterns {
			if !containsFold(cmd, p) {
				return false
			}
		}
		return true
	case MatchContainsAny:
		for _, p := range r.Patterns {
			if containsFold(cmd, p) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// containsFold reports whether the already lower-cased command contains pattern.
func containsFold(lowerCmd, pattern string) bool {
	return strings.Contains(lowerCmd, strings.ToLower(pattern))
}

// FindMatchingRule returns the first rule in rules that matches command,
// or nil if none does.
func FindMatchingRule(command string, rules []Rule) *Rule {
	for i := range rules {
		if rules[i].Check(command) {
			return &rules[i]
		}
	}
	return nil
}

// patternsOf returns the patterns a rule checks, whatever its kind.
func patternsOf(r Rule) []string {
	if r.Kind == MatchSubstring {
		return []string{r.Pattern}
	}
	return r.Patterns
}

// FormatMatch renders a rule's strategy and patterns for display,
// e.g. contains_all["grep", "password"].
func FormatMatch(r Rule) string {
	ps := patternsOf(r)
	quoted := make([]string, len(ps))
	for i, p := range ps {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return string(r.Kind) + "[" + strings.Join(quoted, ", ") + "]"
}
