package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// DefaultEnvVar is the environment variable holding ad-hoc substring rules.
const DefaultEnvVar = "KEYCHAIN_CUSTOM_RULES"

// envSeparator splits the environment override into patterns. There is no
// escape for a literal "|".
const envSeparator = "|"

// ruleRecord mirrors Rule with pointer fields so that missing keys and null
// values can be told apart from zero values.
type ruleRecord struct {
	ID          *string    `json:"id" yaml:"id"`
	Kind        *string    `json:"type" yaml:"type"`
	Pattern     *string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Patterns    *[]*string `json:"patterns,omitempty" yaml:"patterns,omitempty"`
	Description *string    `json:"description" yaml:"description"`
	Enabled     *bool      `json:"enabled" yaml:"enabled"`
}

type documentRecord struct {
	Rules *[]ruleRecord `json:"rules" yaml:"rules"`
}

// LoadConfigRules reads the user rules document at path. A missing file is not
// an error and yields no rules. Paths ending in .yaml or .yml are parsed as
// YAML, everything else as JSON.
func LoadConfigRules(path string) ([]Rule, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading rules file %s: %w", path, err)
	}

	rules, err := ParseDocument(data, formatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("parsing rules file %s: %w", path, err)
	}

	for i := range rules {
		rules[i].Layer = LayerConfigFile
	}

	slog.Debug("loaded rules file", "path", path, "rules", len(rules))
	return rules, nil
}

// formatForPath picks the document format from the file extension.
func formatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// ParseDocument decodes a rules document in the given format ("json" or "yaml").
// Unknown fields, missing fields, and unknown rule types are errors.
func ParseDocument(data []byte, format string) ([]Rule, error) {
	var doc documentRecord

	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("empty document")
			}
			return nil, err
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return nil, errors.New("unexpected data after rules document")
		}
	default:
		return nil, fmt.Errorf("unsupported rules format %q", format)
	}

	if doc.Rules == nil {
		return nil, errors.New(`missing field "rules"`)
	}

	rules := make([]Rule, 0, len(*doc.Rules))
	for i, rec := range *doc.Rules {
		r, err := rec.toRule()
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// toRule converts a decoded record into a Rule, enforcing required fields.
func (rec ruleRecord) toRule() (Rule, error) {
	var missing []string
	if rec.ID == nil {
		missing = append(missing, "id")
	}
	if rec.Kind == nil {
		missing = append(missing, "type")
	}
	if rec.Description == nil {
		missing = append(missing, "description")
	}
	if rec.Enabled == nil {
		missing = append(missing, "enabled")
	}
	if len(missing) > 0 {
		return Rule{}, fmt.Errorf("missing field(s): %s", strings.Join(missing, ", "))
	}

	r := Rule{
		ID:          *rec.ID,
		Kind:        MatchKind(*rec.Kind),
		Description: *rec.Description,
		Enabled:     *rec.Enabled,
	}

	switch r.Kind {
	case MatchSubstring:
		if rec.Pattern == nil {
			return Rule{}, fmt.Errorf("rule %q: missing field: pattern", r.ID)
		}
		if rec.Patterns != nil {
			return Rule{}, fmt.Errorf("rule %q: unknown field patterns for type %s", r.ID, r.Kind)
		}
		r.Pattern = *rec.Pattern
	case MatchContainsAll, MatchContainsAny:
		if rec.Patterns == nil {
			return Rule{}, fmt.Errorf("rule %q: missing field: patterns", r.ID)
		}
		if rec.Pattern != nil {
			return Rule{}, fmt.Errorf("rule %q: unknown field pattern for type %s", r.ID, r.Kind)
		}
		r.Patterns = make([]string, 0, len(*rec.Patterns))
		for i, p := range *rec.Patterns {
			if p == nil {
				return Rule{}, fmt.Errorf("rule %q: patterns[%d] is null", r.ID, i)
			}
			r.Patterns = append(r.Patterns, *p)
		}
	default:
		return Rule{}, fmt.Errorf("rule %q: unknown type %q (want substring, contains_all, or contains_any)", r.ID, r.Kind)
	}

	return r, nil
}

// recordFor converts a Rule back into its document form. Only the field that
// belongs to the rule's kind is set, so empty pattern lists survive a round trip.
func recordFor(r Rule) ruleRecord {
	id, kind, desc, enabled := r.ID, string(r.Kind), r.Description, r.Enabled
	rec := ruleRecord{ID: &id, Kind: &kind, Description: &desc, Enabled: &enabled}
	if r.Kind == MatchSubstring {
		p := r.Pattern
		rec.Pattern = &p
	} else {
		ps := make([]*string, 0, len(r.Patterns))
		for i := range r.Patterns {
			p := r.Patterns[i]
			ps = append(ps, &p)
		}
		rec.Patterns = &ps
	}
	return rec
}

// ParseEnvRules turns a "|"-delimited list of patterns into substring rules.
// Segment indexes count empty segments too, so "a||b" yields env_custom_0 and
// env_custom_2.
func ParseEnvRules(raw string) []Rule {
	if raw == "" {
		return nil
	}

	var rules []Rule
	for i, segment := range strings.Split(raw, envSeparator) {
		pattern := strings.TrimSpace(segment)
		if pattern == "" {
			continue
		}
		r := Substring(
			fmt.Sprintf("env_custom_%d", i),
			fmt.Sprintf("Custom rule from env: %s", segment),
			pattern,
		)
		r.Layer = LayerEnv
		rules = append(rules, r)
	}
	return rules
}

// MarshalDocument renders rules as a rules document in the given format.
func MarshalDocument(rules []Rule, format string) ([]byte, error) {
	records := make([]ruleRecord, 0, len(rules))
	for _, r := range rules {
		records = append(records, recordFor(r))
	}
	doc := documentRecord{Rules: &records}

	switch format {
	case "yaml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encoding rules document: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encoding rules document: %w", err)
		}
		return buf.Bytes(), nil
	case "json":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding rules document: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported rules format %q", format)
	}
}
