package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/rego"
)

// lintModule holds the advisory checks run by Lint. Each warning is a string.
const lintModule = `package keygate.lint

warnings contains msg if {
	some i
	rule := input.rules[i]
	rule.type == "contains_all"
	count(object.get(rule, "patterns", [])) == 0
	rule.enabled
	msg := sprintf("rule %q: contains_all with no patterns matches every command", [rule.id])
}

warnings contains msg if {
	some rule in input.rules
	rule.type == "contains_any"
	count(object.get(rule, "patterns", [])) == 0
	msg := sprintf("rule %q: contains_any with no patterns never matches", [rule.id])
}

warnings contains msg if {
	some rule in input.rules
	rule.type == "substring"
	trim_space(object.get(rule, "pattern", "")) == ""
	rule.enabled
	msg := sprintf("rule %q: empty substring pattern matches every command", [rule.id])
}

warnings contains msg if {
	some rule in input.rules
	some p in short_patterns(rule)
	msg := sprintf("rule %q: pattern %q is shorter than 3 characters and will match broadly", [rule.id, p])
}

warnings contains msg if {
	some i, j
	input.rules[i].id == input.rules[j].id
	i < j
	msg := sprintf("rule id %q is defined more than once (rules[%d] and rules[%d])", [input.rules[i].id, i, j])
}

warnings contains msg if {
	some rule in input.rules
	not rule.enabled
	msg := sprintf("rule %q is disabled", [rule.id])
}

short_patterns(rule) := {p |
	rule.enabled
	some p in all_patterns(rule)
	n := count(trim_space(p))
	n > 0
	n < 3
}

all_patterns(rule) := [rule.pattern] if rule.type == "substring"

all_patterns(rule) := object.get(rule, "patterns", []) if rule.type != "substring"
`

// lintInput is the document passed to the Rego policy.
type lintInput struct {
	Rules []lintRule `json:"rules"`
}

type lintRule struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Pattern  string   `json:"pattern"`
	Patterns []string `json:"patterns"`
	Enabled  bool     `json:"enabled"`
}

// Lint returns sorted advisory warnings for a rule list: rules that match
// everything or nothing, very short patterns, duplicate ids, and disabled rules.
func Lint(ctx context.Context, rules []Rule) ([]string, error) {
	pq, err := rego.New(
		rego.Query("data.keygate.lint.warnings"),
		rego.Module("lint.rego", lintModule),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing lint policy: %w", err)
	}

	in := lintInput{Rules: make([]lintRule, 0, len(rules))}
	for _, r := range rules {
		patterns := r.Patterns
		if patterns == nil {
			patterns = []string{}
		}
		in.Rules = append(in.Rules, lintRule{
			ID:       r.ID,
			Type:     string(r.Kind),
			Pattern:  r.Pattern,
			Patterns: patterns,
			Enabled:  r.Enabled,
		})
	}

	inputMap, err := structToMap(in)
	if err != nil {
		return nil, fmt.Errorf("converting lint input: %w", err)
	}

	rs, err := pq.Eval(ctx, rego.EvalInput(inputMap))
	if err != nil {
		return nil, fmt.Errorf("evaluating lint policy: %w", err)
	}

	var warnings []string
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		if set, ok := rs[0].Expressions[0].Value.([]interface{}); ok {
			for _, w := range set {
				warnings = append(warnings, fmt.Sprint(w))
			}
		}
	}
	sort.Strings(warnings)
	return warnings, nil
}

// structToMap converts a struct to a map[string]interface{} via JSON round-trip.
func structToMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
