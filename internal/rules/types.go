package rules

import "time"

// MatchKind selects how a rule inspects a command string.
type MatchKind string

// Match strategies. New strategies get a constant here and an arm in Rule.Check.
const (
	MatchSubstring   MatchKind = "substring"
	MatchContainsAll MatchKind = "contains_all"
	MatchContainsAny MatchKind = "contains_any"
)

// validKinds is the closed set of match strategies.
var validKinds = map[MatchKind]bool{
	MatchSubstring:   true,
	MatchContainsAll: true,
	MatchContainsAny: true,
}

// Layer records which source a rule was loaded from.
type Layer string

// Rule layers, in load order.
const (
	LayerBuiltin    Layer = "builtin"
	LayerConfigFile Layer = "config-file"
	LayerEnv        Layer = "env-override"
)

// Layers lists every layer in the order the engine loads them.
var Layers = []Layer{LayerBuiltin, LayerConfigFile, LayerEnv}

// Rule is a named, toggleable predicate over a command string.
// Pattern is used by substring rules, Patterns by contains_all and contains_any.
type Rule struct {
	ID          string    `json:"id" yaml:"id"`
	Kind        MatchKind `json:"type" yaml:"type"`
	Pattern     string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Patterns    []string  `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Description string    `json:"description" yaml:"description"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	Layer       Layer     `json:"-" yaml:"-"`
}

// Substring returns an enabled rule matching commands that contain pattern.
func Substring(id, description, pattern string) Rule {
	return Rule{ID: id, Kind: MatchSubstring, Pattern: pattern, Description: description, Enabled: true}
}

// ContainsAll returns an enabled rule matching commands that contain every pattern.
func ContainsAll(id, description string, patterns ...string) Rule {
	return Rule{ID: id, Kind: MatchContainsAll, Patterns: patterns, Description: description, Enabled: true}
}

// ContainsAny returns an enabled rule matching commands that contain at least one pattern.
func ContainsAny(id, description string, patterns ...string) Rule {
	return Rule{ID: id, Kind: MatchContainsAny, Patterns: patterns, Description: description, Enabled: true}
}

// Decision is the outcome of gating a single command.
type Decision struct {
	Command     string        `json:"command"`
	Blocked     bool          `json:"blocked"`
	RuleID      string        `json:"rule,omitempty"`
	Description string        `json:"description,omitempty"`
	Layer       Layer         `json:"layer,omitempty"`
	Reason      string        `json:"reason"`
	InputHash   string        `json:"input_hash"`
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration_ms"`
}
