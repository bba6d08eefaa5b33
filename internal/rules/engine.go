package rules

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
)

// Options configures the optional rule layers.
type Options struct {
	// ConfigPath is the user rules document. Empty skips the layer.
	ConfigPath string

	// EnvRules is the raw value of the override variable. The caller reads
	// the environment so that construction stays deterministic.
	EnvRules string
}

// Engine holds the ordered, immutable rule set and answers whether a command
// is dangerous. It is safe for concurrent use.
type Engine struct {
	rules   []Rule
	version string
}

// New builds an engine from the built-in table, the user rules document, and
// the environment override, in that order. It never fails: a missing or
// broken optional layer contributes no rules.
func New(opts Options) *Engine {
	slog.Debug("loading built-in rules")
	builtin := BuiltinRules()

	slog.Debug("loading rules from configuration file", "path", opts.ConfigPath)
	fileRules, err := LoadConfigRules(opts.ConfigPath)
	if err != nil {
		slog.Warn("ignoring rules file", "path", opts.ConfigPath, "error", err)
		fileRules = nil
	}

	slog.Debug("loading rules from environment")
	envRules := ParseEnvRules(opts.EnvRules)

	e := NewWithRules(builtin, fileRules, envRules)
	slog.Debug("rule engine initialized",
		"builtin", len(builtin),
		"config_file", len(fileRules),
		"env", len(envRules),
		"active", e.ActiveRulesCount(),
	)
	return e
}

// NewWithRules builds an engine from already-parsed layers, concatenated in
// the given order. The rules are copied.
func NewWithRules(layers ...[]Rule) *Engine {
	var all []Rule
	for _, layer := range layers {
		for _, r := range layer {
			all = append(all, cloneRule(r))
		}
	}
	return &Engine{rules: all, version: hashRules(all)}
}

// IsDangerous reports whether any enabled rule matches command. Rules are
// checked in load order and evaluation stops at the first match.
func (e *Engine) IsDangerous(command string) bool {
	r, ok := e.FirstMatch(command)
	if ok {
		slog.Debug("command matched rule", "rule", r.ID, "layer", r.Layer, "description", r.Description)
	}
	return ok
}

// FirstMatch returns the first rule in load order that matches command.
func (e *Engine) FirstMatch(command string) (Rule, bool) {
	if r := FindMatchingRule(command, e.rules); r != nil {
		return cloneRule(*r), true
	}
	return Rule{}, false
}

// Matches returns every rule that matches command, in load order.
func (e *Engine) Matches(command string) []Rule {
	var out []Rule
	for _, r := range e.rules {
		if r.Check(command) {
			out = append(out, cloneRule(r))
		}
	}
	return out
}

// ActiveRulesCount returns the number of enabled rules across all layers.
func (e *Engine) ActiveRulesCount() int {
	n := 0
	for _, r := range e.rules {
		if r.Enabled {
			n++
		}
	}
	return n
}

// Rules returns a copy of the loaded rules in load order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = cloneRule(r)
	}
	return out
}

// LayerCounts returns the number of loaded rules (enabled or not) per layer.
// Every layer is present in the map, possibly with a zero count.
func (e *Engine) LayerCounts() map[Layer]int {
	counts := make(map[Layer]int, len(Layers))
	for _, l := range Layers {
		counts[l] = 0
	}
	for _, r := range e.rules {
		counts[r.Layer]++
	}
	return counts
}

// Version is a short digest of the loaded rule set, recorded with decisions.
func (e *Engine) Version() string {
	return e.version
}

func cloneRule(r Rule) Rule {
	if r.Patterns != nil {
		r.Patterns = append([]string{}, r.Patterns...)
	}
	return r
}

// hashRules produces a short SHA-256 hex digest identifying a rule set.
func hashRules(rules []Rule) string {
	h := sha256.New()
	for _, r := range rules {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%q\x00%t\n",
			r.Layer, r.ID, r.Kind, r.Pattern, r.Patterns, r.Enabled)
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:8])
}
